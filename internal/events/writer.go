// Package events records the append-only audit log that webhooks and the
// events endpoint read back.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Event types written by the engine.
const (
	ProjectCreated     = "project.created"
	ProjectDeleted     = "project.deleted"
	SprintCreated      = "sprint.created"
	SprintTransitioned = "sprint.transitioned"
	IssueCreated       = "issue.created"
	IssueUpdated       = "issue.updated"
	IssueDeleted       = "issue.deleted"
	IssueReordered     = "issue.reordered"
	MemberAdded        = "member.added"
)

type EventPayload map[string]any

// Record is one event before it is stored. Empty ProjectID and EntityID are
// stored as NULL.
type Record struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

type Writer struct {
	Now func() time.Time
}

type row struct {
	TS         string         `db:"ts"`
	Type       string         `db:"type"`
	ProjectID  sql.NullString `db:"project_id"`
	EntityKind string         `db:"entity_kind"`
	EntityID   sql.NullString `db:"entity_id"`
	ActorID    string         `db:"actor_id"`
	Payload    string         `db:"payload_json"`
}

const insertEvent = `INSERT INTO events(ts, type, project_id, entity_kind, entity_id, actor_id, payload_json)
VALUES (:ts, :type, :project_id, :entity_kind, :entity_id, :actor_id, :payload_json)`

// Append stores rec inside tx, so the event commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, rec Record) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := rec.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", rec.Type, err)
	}
	r := row{
		TS:         now().UTC().Format(time.RFC3339),
		Type:       rec.Type,
		ProjectID:  sql.NullString{String: rec.ProjectID, Valid: rec.ProjectID != ""},
		EntityKind: rec.EntityKind,
		EntityID:   sql.NullString{String: rec.EntityID, Valid: rec.EntityID != ""},
		ActorID:    rec.ActorID,
		Payload:    string(data),
	}
	if _, err := tx.NamedExecContext(ctx, insertEvent, r); err != nil {
		return fmt.Errorf("insert %s event: %w", rec.Type, err)
	}
	return nil
}
