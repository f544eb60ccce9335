package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"sprintboard/internal/actor"
	"sprintboard/internal/config"
	"sprintboard/internal/domain"
	"sprintboard/internal/events"
	"sprintboard/internal/metrics"
	"sprintboard/internal/repo"
)

// Reorder applies a drag-and-drop result: every listed issue receives its new
// (status, order) in one transaction, or none does. All moves must reference
// issues of one ACTIVE sprint.
func (e Engine) Reorder(ctx context.Context, a actor.Actor, moves []domain.IssueMove) (err error) {
	defer func() {
		metrics.ReorderCounter.WithLabelValues(metrics.Outcome(err)).Inc()
	}()
	if err := actor.RequireSignedIn(a); err != nil {
		return err
	}
	if len(moves) == 0 {
		return nil
	}
	ids := make([]string, 0, len(moves))
	seen := make(map[string]struct{}, len(moves))
	for i, m := range moves {
		if err := validate.Struct(m); err != nil {
			return fmt.Errorf("move %d: %w", i, validationError(err))
		}
		if _, dup := seen[m.IssueID]; dup {
			return domain.Invalid("issue %s listed more than once", m.IssueID)
		}
		seen[m.IssueID] = struct{}{}
		ids = append(ids, m.IssueID)
	}

	current, err := e.Repo.GetIssuesByID(ctx, e.DB, ids)
	if err != nil {
		return &domain.PersistenceError{Op: "load issues", Err: err}
	}
	var sprintID string
	for _, id := range ids {
		it, ok := current[id]
		if !ok {
			return domain.NotFoundError{Kind: repo.KindIssue, ID: id}
		}
		if it.SprintID == nil {
			return domain.Invalid("issue %s is not in a sprint", id)
		}
		if sprintID == "" {
			sprintID = *it.SprintID
		} else if *it.SprintID != sprintID {
			return domain.Invalid("moves span more than one sprint")
		}
	}

	if err := e.auditReorder(ctx, a, ids, current); err != nil {
		return err
	}

	sprint, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	if err := ensureBoardEditable(sprint); err != nil {
		return err
	}

	now := e.stamp()
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if e.Config.ValidateReorderBuckets() {
		if err := e.checkBuckets(ctx, tx, sprintID, moves); err != nil {
			return err
		}
	}
	updates := make([]repo.RowUpdate, 0, len(moves))
	for _, m := range moves {
		updates = append(updates, repo.RowUpdate{
			Kind:   repo.KindIssue,
			ID:     m.IssueID,
			Fields: map[string]any{"status": m.Status, "ord": m.Order, "updated_at": now},
		})
	}
	if err := e.Repo.ApplyAtomicTx(ctx, tx, updates); err != nil {
		e.log().Warn("reorder rolled back", zap.String("sprint_id", sprintID), zap.Error(err))
		return err
	}
	if err := e.appendEvent(ctx, tx, events.IssueReordered, sprint.ProjectID, repo.KindSprint, sprintID, a.ID, events.EventPayload{
		"moves": moves,
	}); err != nil {
		return err
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	metrics.ReorderRows.Add(float64(len(updates)))
	e.log().Info("issues reordered",
		zap.String("sprint_id", sprintID),
		zap.Int("moves", len(moves)),
		zap.String("actor_id", a.ID))
	return nil
}

// auditReorder checks organization membership for the referenced issues'
// projects. With reorder.audit=first only the first issue is checked.
func (e Engine) auditReorder(ctx context.Context, a actor.Actor, ids []string, current map[string]domain.Issue) error {
	if e.Config.Reorder.Audit == config.AuditFirst {
		ids = ids[:1]
	}
	checked := map[string]struct{}{}
	for _, id := range ids {
		projectID := current[id].ProjectID
		if _, ok := checked[projectID]; ok {
			continue
		}
		checked[projectID] = struct{}{}
		p, err := e.Repo.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if _, err := e.Auth.RequireMember(ctx, a, p.OrgID); err != nil {
			return err
		}
	}
	return nil
}

func ensureBoardEditable(s domain.Sprint) error {
	switch s.Status {
	case domain.SprintActive:
		return nil
	case domain.SprintPlanned:
		return domain.TransitionError{Reason: "start the sprint to update board"}
	case domain.SprintCompleted:
		return domain.TransitionError{Reason: "cannot update board after sprint end"}
	default:
		return domain.TransitionError{Reason: fmt.Sprintf("unknown sprint status %q", s.Status)}
	}
}

// checkBuckets verifies every bucket touched by moves ends up with orders
// exactly 0..n-1. Issues not listed keep their stored status and order.
func (e Engine) checkBuckets(ctx context.Context, tx *sqlx.Tx, sprintID string, moves []domain.IssueMove) error {
	touched := map[string]bool{}
	moved := make(map[string]domain.IssueMove, len(moves))
	for _, m := range moves {
		moved[m.IssueID] = m
		touched[m.Status] = true
	}
	stored, err := e.Repo.SprintIssuesTx(ctx, tx, sprintID)
	if err != nil {
		return &domain.PersistenceError{Op: "load sprint issues", Err: err}
	}
	for _, it := range stored {
		if _, ok := moved[it.ID]; ok {
			touched[it.Status] = true
		}
	}
	final := map[string][]int{}
	for _, it := range stored {
		status, order := it.Status, it.Order
		if m, ok := moved[it.ID]; ok {
			status, order = m.Status, m.Order
		}
		if touched[status] {
			final[status] = append(final[status], order)
		}
	}
	statuses := make([]string, 0, len(final))
	for s := range final {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		orders := final[status]
		sort.Ints(orders)
		for i, o := range orders {
			if o != i {
				return domain.Invalid("orders in %s must be dense and unique from 0, got %v", status, orders)
			}
		}
	}
	return nil
}
