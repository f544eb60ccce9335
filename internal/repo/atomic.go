package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"sprintboard/internal/domain"
)

// RowUpdate sets Fields on the row of Kind identified by ID.
type RowUpdate struct {
	Kind   string
	ID     string
	Fields map[string]any
}

var kindTables = map[string]string{
	KindProject: "projects",
	KindSprint:  "sprints",
	KindIssue:   "issues",
	KindUser:    "users",
}

// Columns an update may touch, per kind.
var updatableColumns = map[string]map[string]bool{
	KindProject: {"name": true, "description": true},
	KindSprint:  {"name": true, "status": true, "updated_at": true},
	KindIssue: {
		"title": true, "description": true, "status": true, "priority": true,
		"ord": true, "assignee_id": true, "updated_at": true,
	},
	KindUser: {"name": true, "email": true, "image_url": true, "updated_at": true},
}

func buildUpdate(u RowUpdate) (string, []any, error) {
	table, ok := kindTables[u.Kind]
	if !ok {
		return "", nil, domain.Invalid("unknown record kind %q", u.Kind)
	}
	if u.ID == "" {
		return "", nil, domain.Invalid("%s update without id", u.Kind)
	}
	if len(u.Fields) == 0 {
		return "", nil, domain.Invalid("%s %s update without fields", u.Kind, u.ID)
	}
	cols := make([]string, 0, len(u.Fields))
	for col := range u.Fields {
		if !updatableColumns[u.Kind][col] {
			return "", nil, domain.Invalid("column %s is not updatable on %s", col, u.Kind)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = col + "=?"
		args = append(args, u.Fields[col])
	}
	args = append(args, u.ID)
	return fmt.Sprintf(`UPDATE %s SET %s WHERE id=?`, table, strings.Join(sets, ",")), args, nil
}

// ApplyAtomic applies every update in one transaction. Either all rows change or none do.
func (r Repo) ApplyAtomic(ctx context.Context, updates []RowUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin apply", Err: err}
	}
	defer tx.Rollback()
	if err := r.ApplyAtomicTx(ctx, tx, updates); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit apply", Err: err}
	}
	return nil
}

// ApplyAtomicTx applies updates inside tx. The caller owns commit and rollback.
// A row that does not exist aborts the batch.
func (r Repo) ApplyAtomicTx(ctx context.Context, tx *sqlx.Tx, updates []RowUpdate) error {
	for _, u := range updates {
		query, args, err := buildUpdate(u)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return &domain.PersistenceError{Op: fmt.Sprintf("update %s %s", u.Kind, u.ID), Err: err}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return &domain.PersistenceError{Op: fmt.Sprintf("update %s %s", u.Kind, u.ID), Err: err}
		}
		if affected == 0 {
			return &domain.PersistenceError{
				Op:  fmt.Sprintf("update %s %s", u.Kind, u.ID),
				Err: domain.NotFoundError{Kind: u.Kind, ID: u.ID},
			}
		}
	}
	return nil
}
