package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jmoiron/sqlx"

	"sprintboard/internal/domain"
)

const KindAPIKey = "api key"

const apiKeyColumns = `id, actor_id, COALESCE(name,'') AS name, key_hash, created_at`

// HashAPIKey is the lookup digest stored instead of the key itself.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertAPIKey(ctx context.Context, tx *sqlx.Tx, key domain.APIKey) error {
	if key.ID == "" || key.ActorID == "" || key.KeyHash == "" || key.CreatedAt == "" {
		return domain.Invalid("api key needs id, actor_id, key_hash and created_at")
	}
	_, err := tx.NamedExecContext(ctx,
		`INSERT INTO api_keys(id, actor_id, name, key_hash, created_at) VALUES (:id, :actor_id, :name, :key_hash, :created_at)`,
		key)
	return err
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	err := r.DB.GetContext(ctx, &key, r.rebind(`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`), hash)
	return key, notFound(err, KindAPIKey, "")
}

// ListAPIKeys returns an actor's keys, newest first. Hashes are included;
// callers decide what to expose.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	res := []domain.APIKey{}
	err := r.DB.SelectContext(ctx, &res, r.rebind(`SELECT `+apiKeyColumns+` FROM api_keys WHERE actor_id=? ORDER BY created_at DESC, id`), actorID)
	return res, err
}

// DeleteAPIKey removes one of the actor's keys. A key owned by someone else
// is reported as missing.
func (r Repo) DeleteAPIKey(ctx context.Context, tx *sqlx.Tx, actorID, id string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM api_keys WHERE id=? AND actor_id=?`), id, actorID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFoundError{Kind: KindAPIKey, ID: id}
	}
	return nil
}
