package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"sprintboard/internal/domain"
)

// UpsertMember grants role in the organization, replacing any prior role.
func (r Repo) UpsertMember(ctx context.Context, tx *sqlx.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO org_members(org_id,actor_id,role) VALUES (?,?,?) ON CONFLICT(org_id,actor_id) DO UPDATE SET role=excluded.role`),
		m.OrgID, m.ActorID, m.Role)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// MemberRole returns the actor's role in the organization, or "" when not a member.
func (r Repo) MemberRole(ctx context.Context, orgID, actorID string) (string, error) {
	var role string
	err := r.DB.GetContext(ctx, &role, r.rebind(`SELECT role FROM org_members WHERE org_id=? AND actor_id=?`), orgID, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (r Repo) ListMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	res := []domain.Member{}
	err := r.DB.SelectContext(ctx, &res, r.rebind(`SELECT org_id,actor_id,role FROM org_members WHERE org_id=? ORDER BY actor_id`), orgID)
	return res, err
}
