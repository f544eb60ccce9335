package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"sprintboard/internal/domain"
)

type Repo struct {
	DB *sqlx.DB
}

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = domain.ErrNotFound

// Record kinds understood by the store.
const (
	KindProject = "project"
	KindSprint  = "sprint"
	KindIssue   = "issue"
	KindUser    = "user"
)

const projectColumns = `id,org_id,key,name,description,created_at`

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func (r Repo) rebind(query string) string {
	return r.DB.Rebind(query)
}

func (r Repo) InsertProject(ctx context.Context, tx *sqlx.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?)`),
		p.ID, p.OrgID, p.Key, p.Name, p.Description, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: project key %s already exists", domain.ErrConflict, p.Key)
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.GetContext(ctx, &p, r.rebind(`SELECT `+projectColumns+` FROM projects WHERE id=?`), id)
	return p, notFound(err, KindProject, id)
}

func (r Repo) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	res := []domain.Project{}
	var err error
	if orgID == "" {
		err = r.DB.SelectContext(ctx, &res, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	} else {
		err = r.DB.SelectContext(ctx, &res, r.rebind(`SELECT `+projectColumns+` FROM projects WHERE org_id=? ORDER BY created_at DESC, id`), orgID)
	}
	return res, err
}

// ProjectKeyExists reports whether key is taken within the organization.
func (r Repo) ProjectKeyExists(ctx context.Context, orgID, key string) (bool, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, r.rebind(`SELECT COUNT(1) FROM projects WHERE org_id=? AND key=?`), orgID, key)
	return n > 0, err
}

// DeleteProject removes the project; sprints and issues cascade.
func (r Repo) DeleteProject(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM issues WHERE project_id=?`), id); err != nil {
		return fmt.Errorf("delete project issues: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sprints WHERE project_id=?`), id); err != nil {
		return fmt.Errorf("delete project sprints: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM projects WHERE id=?`), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return domain.NotFoundError{Kind: KindProject, ID: id}
	}
	return nil
}

func (r Repo) EnsureOrg(ctx context.Context, tx *sqlx.Tx, org domain.Organization) error {
	if org.Slug == "" {
		org.Slug = org.ID
	}
	if org.Name == "" {
		org.Name = org.ID
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO organizations(id,name,slug,created_at) VALUES (?,?,?,?) ON CONFLICT(id) DO NOTHING`),
		org.ID, org.Name, org.Slug, org.CreatedAt)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
