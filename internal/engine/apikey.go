package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sprintboard/internal/actor"
	"sprintboard/internal/domain"
	"sprintboard/internal/repo"
)

const apiKeyPrefix = "sbk_"

// CreateAPIKey mints a key for the caller. Only the hash is stored, so the
// returned plaintext cannot be recovered later. Requests made with the key
// carry no active organization.
func (e Engine) CreateAPIKey(ctx context.Context, a actor.Actor, name string) (string, domain.APIKey, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := apiKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        newID(),
		ActorID:   a.ID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, &domain.PersistenceError{Op: "insert api key", Err: err}
	}
	if err := e.commit(tx); err != nil {
		return "", domain.APIKey{}, err
	}
	e.log().Info("api key created", zap.String("actor_id", a.ID), zap.String("key_id", key.ID))
	return plain, key, nil
}

// ListAPIKeys returns the caller's keys without their hashes.
func (e Engine) ListAPIKeys(ctx context.Context, a actor.Actor) ([]domain.APIKey, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return nil, err
	}
	keys, err := e.Repo.ListAPIKeys(ctx, a.ID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list api keys", Err: err}
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// RevokeAPIKey deletes one of the caller's keys. Requests using it fail from
// then on.
func (e Engine) RevokeAPIKey(ctx context.Context, a actor.Actor, keyID string) error {
	if err := actor.RequireSignedIn(a); err != nil {
		return err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, a.ID, keyID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return &domain.PersistenceError{Op: "delete api key", Err: err}
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	e.log().Info("api key revoked", zap.String("actor_id", a.ID), zap.String("key_id", keyID))
	return nil
}
