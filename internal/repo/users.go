package repo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"sprintboard/internal/domain"
)

const userColumns = `id,external_id,name,email,image_url,created_at,updated_at`

// UpsertUserTx creates or refreshes the profile keyed by ExternalID and returns the stored row.
func (r Repo) UpsertUserTx(ctx context.Context, tx *sqlx.Tx, u domain.User) (domain.User, error) {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(external_id) DO UPDATE SET name=excluded.name, email=excluded.email, image_url=excluded.image_url, updated_at=excluded.updated_at`),
		u.ID, u.ExternalID, u.Name, u.Email, u.ImageURL, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return r.UserByExternalIDTx(ctx, tx, u.ExternalID)
}

// EnsureUserTx creates a profile for ExternalID if none exists and returns the stored row.
func (r Repo) EnsureUserTx(ctx context.Context, tx *sqlx.Tx, u domain.User) (domain.User, error) {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?) ON CONFLICT(external_id) DO NOTHING`),
		u.ID, u.ExternalID, u.Name, u.Email, u.ImageURL, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return r.UserByExternalIDTx(ctx, tx, u.ExternalID)
}

func (r Repo) UserByExternalIDTx(ctx context.Context, tx *sqlx.Tx, externalID string) (domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, tx.Rebind(`SELECT `+userColumns+` FROM users WHERE external_id=?`), externalID)
	return u, notFound(err, KindUser, externalID)
}

func (r Repo) UserByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	var u domain.User
	err := r.DB.GetContext(ctx, &u, r.rebind(`SELECT `+userColumns+` FROM users WHERE external_id=?`), externalID)
	return u, notFound(err, KindUser, externalID)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sqlx.Tx, id string) (domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, tx.Rebind(`SELECT `+userColumns+` FROM users WHERE id=?`), id)
	return u, notFound(err, KindUser, id)
}

// OrgUsers returns the profiles of the organization's members.
func (r Repo) OrgUsers(ctx context.Context, orgID string) ([]domain.User, error) {
	res := []domain.User{}
	err := r.DB.SelectContext(ctx, &res, r.rebind(`
SELECT u.id,u.external_id,u.name,u.email,u.image_url,u.created_at,u.updated_at
FROM users u
JOIN org_members m ON m.actor_id=u.external_id
WHERE m.org_id=?
ORDER BY u.name, u.id`), orgID)
	return res, err
}
