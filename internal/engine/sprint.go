package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sprintboard/internal/actor"
	"sprintboard/internal/domain"
	"sprintboard/internal/events"
	"sprintboard/internal/metrics"
	"sprintboard/internal/repo"
)

type CreateSprintInput struct {
	Name      string `validate:"required,max=120"`
	StartDate string `validate:"required"`
	EndDate   string `validate:"required"`
}

// CreateSprint adds a PLANNED sprint to the project.
func (e Engine) CreateSprint(ctx context.Context, a actor.Actor, projectID string, in CreateSprintInput) (domain.Sprint, error) {
	p, err := e.authorizedProject(ctx, a, projectID)
	if err != nil {
		return domain.Sprint{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return domain.Sprint{}, validationError(err)
	}
	start, err := domain.ParseTime(in.StartDate)
	if err != nil {
		return domain.Sprint{}, domain.Invalid("start_date: %v", err)
	}
	end, err := domain.ParseTime(in.EndDate)
	if err != nil {
		return domain.Sprint{}, domain.Invalid("end_date: %v", err)
	}
	if !start.Before(end) {
		return domain.Sprint{}, domain.Invalid("start_date must be before end_date")
	}
	now := e.stamp()
	s := domain.Sprint{
		ID:        newID(),
		ProjectID: p.ID,
		Name:      in.Name,
		StartDate: domain.FormatTime(start),
		EndDate:   domain.FormatTime(end),
		Status:    domain.SprintPlanned,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSprint(ctx, tx, s); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.appendEvent(ctx, tx, events.SprintCreated, p.ID, repo.KindSprint, s.ID, a.ID, events.EventPayload{"name": s.Name}); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

func (e Engine) ListSprints(ctx context.Context, a actor.Actor, projectID string) ([]domain.Sprint, error) {
	p, err := e.authorizedProject(ctx, a, projectID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListSprints(ctx, p.ID)
}

func (e Engine) GetSprint(ctx context.Context, a actor.Actor, sprintID string) (domain.Sprint, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if _, err := e.authorizedProject(ctx, a, s.ProjectID); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

// RequestTransition moves a sprint to target. Only PLANNED to ACTIVE,
// inside the sprint's date window, and ACTIVE to COMPLETED are legal, and
// only organization admins may request them.
func (e Engine) RequestTransition(ctx context.Context, a actor.Actor, sprintID, target string) (s domain.Sprint, err error) {
	defer func() {
		metrics.TransitionCounter.WithLabelValues(target, metrics.Outcome(err)).Inc()
	}()
	if err := actor.RequireSignedIn(a); err != nil {
		return domain.Sprint{}, err
	}
	s, err = e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	p, err := e.Repo.GetProject(ctx, s.ProjectID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := e.Auth.RequireAdmin(ctx, a, p.OrgID); err != nil {
		return domain.Sprint{}, err
	}
	now := e.now()
	if err := ensureSprintTransition(s, target, now); err != nil {
		return domain.Sprint{}, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()
	if target == domain.SprintActive && e.Config.Sprints.SingleActive {
		other, err := e.Repo.ActiveSprintTx(ctx, tx, s.ProjectID, s.ID)
		if err != nil {
			return domain.Sprint{}, &domain.PersistenceError{Op: "check active sprint", Err: err}
		}
		if other != nil {
			return domain.Sprint{}, domain.TransitionError{From: s.Status, To: target, Reason: fmt.Sprintf("sprint %s is already active", other.Name)}
		}
	}
	stamp := domain.FormatTime(now)
	if err := e.Repo.UpdateSprintStatus(ctx, tx, s.ID, target, stamp); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.appendEvent(ctx, tx, events.SprintTransitioned, s.ProjectID, repo.KindSprint, s.ID, a.ID, events.EventPayload{"from": s.Status, "to": target}); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Sprint{}, err
	}
	e.log().Info("sprint transitioned",
		zap.String("sprint_id", s.ID),
		zap.String("from", s.Status),
		zap.String("to", target),
		zap.String("actor_id", a.ID))
	s.Status = target
	s.UpdatedAt = stamp
	return s, nil
}

// ensureSprintTransition checks the sprint lifecycle. The date window is inclusive at both ends.
func ensureSprintTransition(s domain.Sprint, target string, now time.Time) error {
	switch target {
	case domain.SprintActive:
		if s.Status != domain.SprintPlanned {
			return domain.TransitionError{From: s.Status, To: target, Reason: "sprint is not planned"}
		}
		start, end, err := s.Window()
		if err != nil {
			return &domain.PersistenceError{Op: "read sprint window", Err: err}
		}
		if now.Before(start) || now.After(end) {
			return domain.TransitionError{From: s.Status, To: target, Reason: "cannot start sprint outside of its date range"}
		}
		return nil
	case domain.SprintCompleted:
		if s.Status != domain.SprintActive {
			return domain.TransitionError{From: s.Status, To: target, Reason: "can only complete an active sprint"}
		}
		return nil
	default:
		return domain.TransitionError{From: s.Status, To: target, Reason: "unsupported target status"}
	}
}
