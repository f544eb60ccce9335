package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"sprintboard/internal/domain"
)

const sprintColumns = `id,project_id,name,start_date,end_date,status,created_at,updated_at`

func (r Repo) InsertSprint(ctx context.Context, tx *sqlx.Tx, s domain.Sprint) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO sprints(`+sprintColumns+`) VALUES (?,?,?,?,?,?,?,?)`),
		s.ID, s.ProjectID, s.Name, s.StartDate, s.EndDate, s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sprint: %w", err)
	}
	return nil
}

func (r Repo) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	var s domain.Sprint
	err := r.DB.GetContext(ctx, &s, r.rebind(`SELECT `+sprintColumns+` FROM sprints WHERE id=?`), id)
	return s, notFound(err, KindSprint, id)
}

func (r Repo) GetSprintTx(ctx context.Context, tx *sqlx.Tx, id string) (domain.Sprint, error) {
	var s domain.Sprint
	err := tx.GetContext(ctx, &s, tx.Rebind(`SELECT `+sprintColumns+` FROM sprints WHERE id=?`), id)
	return s, notFound(err, KindSprint, id)
}

// ListSprints returns the project's sprints, newest first.
func (r Repo) ListSprints(ctx context.Context, projectID string) ([]domain.Sprint, error) {
	res := []domain.Sprint{}
	err := r.DB.SelectContext(ctx, &res, r.rebind(`SELECT `+sprintColumns+` FROM sprints WHERE project_id=? ORDER BY created_at DESC, id DESC`), projectID)
	return res, err
}

// ActiveSprintTx returns the project's ACTIVE sprint other than excludeID, if any.
func (r Repo) ActiveSprintTx(ctx context.Context, tx *sqlx.Tx, projectID, excludeID string) (*domain.Sprint, error) {
	var s domain.Sprint
	err := tx.GetContext(ctx, &s, tx.Rebind(`SELECT `+sprintColumns+` FROM sprints WHERE project_id=? AND status=? AND id<>? LIMIT 1`),
		projectID, domain.SprintActive, excludeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r Repo) UpdateSprintStatus(ctx context.Context, tx *sqlx.Tx, id, status, updatedAt string) error {
	return r.ApplyAtomicTx(ctx, tx, []RowUpdate{{
		Kind:   KindSprint,
		ID:     id,
		Fields: map[string]any{"status": status, "updated_at": updatedAt},
	}})
}
