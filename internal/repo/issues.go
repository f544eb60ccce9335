package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"sprintboard/internal/domain"
)

const issueColumns = `id,project_id,sprint_id,title,description,status,priority,ord,assignee_id,reporter_id,created_at,updated_at`

func (r Repo) InsertIssue(ctx context.Context, tx *sqlx.Tx, i domain.Issue) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO issues(`+issueColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
		i.ID, i.ProjectID, i.SprintID, i.Title, i.Description, i.Status, i.Priority, i.Order,
		i.AssigneeID, i.ReporterID, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

// GetIssue returns the issue with assignee and reporter resolved.
func (r Repo) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	var i domain.Issue
	err := r.DB.GetContext(ctx, &i, r.rebind(`SELECT `+issueColumns+` FROM issues WHERE id=?`), id)
	if err != nil {
		return i, notFound(err, KindIssue, id)
	}
	items := []domain.Issue{i}
	if err := r.attachUsers(ctx, r.DB, items); err != nil {
		return i, err
	}
	return items[0], nil
}

// GetIssuesByID loads the listed issues through q, keyed by id. Missing ids are absent from the map.
func (r Repo) GetIssuesByID(ctx context.Context, q sqlx.QueryerContext, ids []string) (map[string]domain.Issue, error) {
	res := make(map[string]domain.Issue, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	query, args, err := sqlx.In(`SELECT `+issueColumns+` FROM issues WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var items []domain.Issue
	if err := sqlx.SelectContext(ctx, q, &items, r.rebind(query), args...); err != nil {
		return nil, err
	}
	for _, it := range items {
		res[it.ID] = it
	}
	return res, nil
}

// MaxIssueOrderTx returns the highest order in the (sprint, status) bucket, or -1 when empty.
func (r Repo) MaxIssueOrderTx(ctx context.Context, tx *sqlx.Tx, projectID string, sprintID *string, status string) (int, error) {
	var max sql.NullInt64
	var err error
	if sprintID == nil {
		err = tx.GetContext(ctx, &max, tx.Rebind(`SELECT MAX(ord) FROM issues WHERE project_id=? AND sprint_id IS NULL AND status=?`), projectID, status)
	} else {
		err = tx.GetContext(ctx, &max, tx.Rebind(`SELECT MAX(ord) FROM issues WHERE sprint_id=? AND status=?`), *sprintID, status)
	}
	if err != nil {
		return 0, fmt.Errorf("max issue order: %w", err)
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// BucketIssuesTx returns the issues of one bucket ordered by position. A nil
// sprintID selects the project's backlog bucket.
func (r Repo) BucketIssuesTx(ctx context.Context, tx *sqlx.Tx, projectID string, sprintID *string, status string) ([]domain.Issue, error) {
	var items []domain.Issue
	var err error
	if sprintID == nil {
		err = tx.SelectContext(ctx, &items, tx.Rebind(`SELECT `+issueColumns+` FROM issues WHERE project_id=? AND sprint_id IS NULL AND status=? ORDER BY ord, id`), projectID, status)
	} else {
		err = tx.SelectContext(ctx, &items, tx.Rebind(`SELECT `+issueColumns+` FROM issues WHERE sprint_id=? AND status=? ORDER BY ord, id`), *sprintID, status)
	}
	return items, err
}

// LockIssueOrderTx serializes order assignment within a project until tx ends.
// SQLite already runs one writer at a time, so only postgres takes a row lock.
func (r Repo) LockIssueOrderTx(ctx context.Context, tx *sqlx.Tx, projectID string) error {
	if tx.DriverName() != "postgres" {
		return nil
	}
	var id string
	if err := tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM projects WHERE id=? FOR UPDATE`), projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundError{Kind: KindProject, ID: projectID}
		}
		return fmt.Errorf("lock issue order: %w", err)
	}
	return nil
}

// SprintIssuesTx returns every issue of the sprint as seen by tx, without users.
func (r Repo) SprintIssuesTx(ctx context.Context, tx *sqlx.Tx, sprintID string) ([]domain.Issue, error) {
	var items []domain.Issue
	err := tx.SelectContext(ctx, &items, tx.Rebind(`SELECT `+issueColumns+` FROM issues WHERE sprint_id=? ORDER BY status, ord, id`), sprintID)
	return items, err
}

// ListSprintIssues returns a sprint's issues ordered by status then order, with users resolved.
func (r Repo) ListSprintIssues(ctx context.Context, sprintID string) ([]domain.Issue, error) {
	items := []domain.Issue{}
	if err := r.DB.SelectContext(ctx, &items, r.rebind(`SELECT `+issueColumns+` FROM issues WHERE sprint_id=? ORDER BY status, ord, id`), sprintID); err != nil {
		return nil, err
	}
	if err := r.attachUsers(ctx, r.DB, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListUserIssues returns issues the user is assigned to or reported, within one organization.
func (r Repo) ListUserIssues(ctx context.Context, orgID, userID string) ([]domain.Issue, error) {
	items := []domain.Issue{}
	err := r.DB.SelectContext(ctx, &items, r.rebind(`
SELECT i.id,i.project_id,i.sprint_id,i.title,i.description,i.status,i.priority,i.ord,i.assignee_id,i.reporter_id,i.created_at,i.updated_at
FROM issues i
JOIN projects p ON p.id=i.project_id
WHERE p.org_id=? AND (i.assignee_id=? OR i.reporter_id=?)
ORDER BY i.updated_at DESC, i.id`), orgID, userID, userID)
	if err != nil {
		return nil, err
	}
	if err := r.attachUsers(ctx, r.DB, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r Repo) DeleteIssue(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM issues WHERE id=?`), id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundError{Kind: KindIssue, ID: id}
	}
	return nil
}

// AttachUsersTx resolves assignee and reporter inside tx.
func (r Repo) AttachUsersTx(ctx context.Context, tx *sqlx.Tx, items []domain.Issue) error {
	return r.attachUsers(ctx, tx, items)
}

func (r Repo) attachUsers(ctx context.Context, q sqlx.QueryerContext, items []domain.Issue) error {
	seen := map[string]struct{}{}
	var ids []string
	for _, it := range items {
		for _, id := range []string{it.Assigned(), it.ReporterID} {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	var users []domain.User
	if err := sqlx.SelectContext(ctx, q, &users, r.rebind(query), args...); err != nil {
		return fmt.Errorf("load issue users: %w", err)
	}
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for i := range items {
		if u, ok := byID[items[i].Assigned()]; ok {
			items[i].Assignee = &u
		}
		if u, ok := byID[items[i].ReporterID]; ok {
			items[i].Reporter = &u
		}
	}
	return nil
}
