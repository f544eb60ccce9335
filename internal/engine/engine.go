package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"sprintboard/internal/config"
	"sprintboard/internal/domain"
	"sprintboard/internal/engine/auth"
	"sprintboard/internal/events"
	"sprintboard/internal/logger"
	"sprintboard/internal/repo"
)

type Engine struct {
	DB     *sqlx.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sqlx.DB, cfg *config.Config, log *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Auth:   auth.Service{Repo: r},
		Events: events.Writer{},
		Config: cfg,
		Logger: logger.OrNop(log),
		Now:    time.Now,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	return logger.OrNop(e.Logger)
}

func (e Engine) stamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "begin", Err: err}
	}
	return tx, nil
}

func (e Engine) commit(tx *sqlx.Tx) error {
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

func (e Engine) appendEvent(ctx context.Context, tx *sqlx.Tx, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	rec := events.Record{
		Type:       evtType,
		ProjectID:  projectID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
	if err := w.Append(ctx, tx, rec); err != nil {
		return &domain.PersistenceError{Op: "append event", Err: err}
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// validationError flattens validator errors into one ErrInvalidArgument.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.Invalid("%s failed %s", fieldName(fe), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if ns == "" {
		return fe.Field()
	}
	return ns
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
