package repo

import (
	"context"
	"strings"

	"sprintboard/internal/domain"
)

const eventColumns = `id,ts,type,COALESCE(project_id,'') AS project_id,entity_kind,COALESCE(entity_id,'') AS entity_id,actor_id,payload_json`

// LatestEvents returns events newest first. A non-zero beforeID pages backwards.
func (r Repo) LatestEvents(ctx context.Context, limit int, beforeID int64, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if projectID != "" {
		where = append(where, "project_id=?")
		args = append(args, projectID)
	}
	if beforeID > 0 {
		where = append(where, "id<=?")
		args = append(args, beforeID)
	}
	if evtType != "" {
		where = append(where, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		where = append(where, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	res := []domain.Event{}
	err := r.DB.SelectContext(ctx, &res, r.rebind(query), args...)
	return res, err
}

// EventsAfter returns events with id greater than afterID, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64, projectID string) ([]domain.Event, error) {
	res := []domain.Event{}
	var err error
	if projectID == "" {
		err = r.DB.SelectContext(ctx, &res, r.rebind(`SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id LIMIT ?`), afterID, limit)
	} else {
		err = r.DB.SelectContext(ctx, &res, r.rebind(`SELECT `+eventColumns+` FROM events WHERE id>? AND project_id=? ORDER BY id LIMIT ?`), afterID, projectID, limit)
	}
	return res, err
}

func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	var id int64
	var err error
	if projectID == "" {
		err = r.DB.GetContext(ctx, &id, `SELECT COALESCE(MAX(id),0) FROM events`)
	} else {
		err = r.DB.GetContext(ctx, &id, r.rebind(`SELECT COALESCE(MAX(id),0) FROM events WHERE project_id=?`), projectID)
	}
	return id, err
}
