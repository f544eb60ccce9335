package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"sprintboard/internal/actor"
	"sprintboard/internal/domain"
	"sprintboard/internal/events"
	"sprintboard/internal/metrics"
	"sprintboard/internal/repo"
)

type CreateIssueInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=10000"`
	Status      string `json:"status,omitempty" validate:"oneof=TODO IN_PROGRESS IN_REVIEW DONE"`
	Priority    string `json:"priority,omitempty" validate:"oneof=LOW MEDIUM HIGH URGENT"`
	SprintID    string `json:"sprint_id,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

// CreateIssue appends an issue to the end of its (sprint, status) bucket.
// The reporter is the caller's profile, created on first use.
func (e Engine) CreateIssue(ctx context.Context, a actor.Actor, projectID string, in CreateIssueInput) (domain.Issue, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return domain.Issue{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	if _, err := e.Auth.RequireMember(ctx, a, p.OrgID); err != nil {
		return domain.Issue{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = domain.StatusTodo
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if err := validate.Struct(in); err != nil {
		return domain.Issue{}, validationError(err)
	}
	sprintID := optionalString(strings.TrimSpace(in.SprintID))
	if sprintID != nil {
		s, err := e.Repo.GetSprint(ctx, *sprintID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Issue{}, domain.Invalid("sprint %s does not exist", *sprintID)
		}
		if err != nil {
			return domain.Issue{}, err
		}
		if s.ProjectID != p.ID {
			return domain.Issue{}, domain.Invalid("sprint %s belongs to another project", s.ID)
		}
	}

	now := e.stamp()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()
	reporter, err := e.Repo.EnsureUserTx(ctx, tx, domain.User{
		ID: newID(), ExternalID: a.ID, Name: a.ID, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return domain.Issue{}, err
	}
	assigneeID := optionalString(strings.TrimSpace(in.AssigneeID))
	if assigneeID != nil {
		if _, err := e.Repo.GetUserTx(ctx, tx, *assigneeID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Issue{}, domain.Invalid("assignee %s does not exist", *assigneeID)
			}
			return domain.Issue{}, err
		}
	}
	if err := e.Repo.LockIssueOrderTx(ctx, tx, p.ID); err != nil {
		return domain.Issue{}, err
	}
	max, err := e.Repo.MaxIssueOrderTx(ctx, tx, p.ID, sprintID, in.Status)
	if err != nil {
		return domain.Issue{}, err
	}
	issue := domain.Issue{
		ID:          newID(),
		ProjectID:   p.ID,
		SprintID:    sprintID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Order:       max + 1,
		AssigneeID:  assigneeID,
		ReporterID:  reporter.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertIssue(ctx, tx, issue); err != nil {
		return domain.Issue{}, err
	}
	items := []domain.Issue{issue}
	if err := e.Repo.AttachUsersTx(ctx, tx, items); err != nil {
		return domain.Issue{}, err
	}
	issue = items[0]
	if err := e.appendEvent(ctx, tx, events.IssueCreated, p.ID, repo.KindIssue, issue.ID, a.ID, events.EventPayload{
		"sprint_id": issue.Sprint(),
		"status":    issue.Status,
		"order":     issue.Order,
	}); err != nil {
		return domain.Issue{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Issue{}, err
	}
	metrics.IssueCreateCounter.WithLabelValues(issue.Status).Inc()
	e.log().Debug("issue created",
		zap.String("issue_id", issue.ID),
		zap.String("sprint_id", issue.Sprint()),
		zap.String("status", issue.Status),
		zap.Int("order", issue.Order))
	return issue, nil
}

// UpdateIssueInput carries optional edits. A nil field is left unchanged;
// an empty AssigneeID clears the assignee.
type UpdateIssueInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

// UpdateIssue edits one issue. A status change moves the issue to the end of
// the destination bucket and closes the gap it leaves behind.
func (e Engine) UpdateIssue(ctx context.Context, a actor.Actor, issueID string, in UpdateIssueInput) (domain.Issue, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return domain.Issue{}, err
	}
	cur, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	if _, err := e.authorizedProject(ctx, a, cur.ProjectID); err != nil {
		return domain.Issue{}, err
	}
	fields := map[string]any{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Issue{}, domain.Invalid("title is required")
		}
		fields["title"] = title
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Priority != nil {
		if !domain.ValidPriority(*in.Priority) {
			return domain.Issue{}, domain.Invalid("unknown priority %q", *in.Priority)
		}
		fields["priority"] = *in.Priority
	}
	if in.Status != nil && !domain.ValidIssueStatus(*in.Status) {
		return domain.Issue{}, domain.Invalid("unknown status %q", *in.Status)
	}
	now := e.stamp()
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()
	if in.AssigneeID != nil {
		id := strings.TrimSpace(*in.AssigneeID)
		if id == "" {
			fields["assignee_id"] = nil
		} else {
			if _, err := e.Repo.GetUserTx(ctx, tx, id); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return domain.Issue{}, domain.Invalid("assignee %s does not exist", id)
				}
				return domain.Issue{}, err
			}
			fields["assignee_id"] = id
		}
	}
	var updates []repo.RowUpdate
	if in.Status != nil && *in.Status != cur.Status {
		if err := e.Repo.LockIssueOrderTx(ctx, tx, cur.ProjectID); err != nil {
			return domain.Issue{}, err
		}
		max, err := e.Repo.MaxIssueOrderTx(ctx, tx, cur.ProjectID, cur.SprintID, *in.Status)
		if err != nil {
			return domain.Issue{}, err
		}
		fields["status"] = *in.Status
		fields["ord"] = max + 1
		updates, err = e.closeGap(ctx, tx, cur, now)
		if err != nil {
			return domain.Issue{}, err
		}
	}
	if len(fields) == 0 {
		return cur, nil
	}
	fields["updated_at"] = now
	updates = append([]repo.RowUpdate{{Kind: repo.KindIssue, ID: cur.ID, Fields: fields}}, updates...)
	if err := e.Repo.ApplyAtomicTx(ctx, tx, updates); err != nil {
		return domain.Issue{}, err
	}
	payload := events.EventPayload{}
	for k, v := range fields {
		if k != "updated_at" {
			payload[k] = v
		}
	}
	if err := e.appendEvent(ctx, tx, events.IssueUpdated, cur.ProjectID, repo.KindIssue, cur.ID, a.ID, payload); err != nil {
		return domain.Issue{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Issue{}, err
	}
	return e.Repo.GetIssue(ctx, cur.ID)
}

// DeleteIssue removes an issue. Only its reporter or an organization admin may delete it.
func (e Engine) DeleteIssue(ctx context.Context, a actor.Actor, issueID string) error {
	if err := actor.RequireSignedIn(a); err != nil {
		return err
	}
	cur, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, cur.ProjectID)
	if err != nil {
		return err
	}
	role, err := e.Auth.RequireMember(ctx, a, p.OrgID)
	if err != nil {
		return err
	}
	isReporter := cur.Reporter != nil && cur.Reporter.ExternalID == a.ID
	if role != actor.RoleAdmin && !isReporter {
		return domain.PermissionError{Actor: a.ID, Reason: "only the reporter or an admin can delete an issue"}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.LockIssueOrderTx(ctx, tx, cur.ProjectID); err != nil {
		return err
	}
	if err := e.Repo.DeleteIssue(ctx, tx, cur.ID); err != nil {
		return err
	}
	renumber, err := e.closeGap(ctx, tx, cur, e.stamp())
	if err != nil {
		return err
	}
	if err := e.Repo.ApplyAtomicTx(ctx, tx, renumber); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.IssueDeleted, cur.ProjectID, repo.KindIssue, cur.ID, a.ID, events.EventPayload{
		"sprint_id": cur.Sprint(),
		"status":    cur.Status,
		"order":     cur.Order,
	}); err != nil {
		return err
	}
	return e.commit(tx)
}

// closeGap renumbers the bucket that gone leaves, so its orders stay dense
// from 0. gone is skipped whether or not it is still stored.
func (e Engine) closeGap(ctx context.Context, tx *sqlx.Tx, gone domain.Issue, now string) ([]repo.RowUpdate, error) {
	rest, err := e.Repo.BucketIssuesTx(ctx, tx, gone.ProjectID, gone.SprintID, gone.Status)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load bucket", Err: err}
	}
	var updates []repo.RowUpdate
	pos := 0
	for _, it := range rest {
		if it.ID == gone.ID {
			continue
		}
		if it.Order != pos {
			updates = append(updates, repo.RowUpdate{Kind: repo.KindIssue, ID: it.ID, Fields: map[string]any{"ord": pos, "updated_at": now}})
		}
		pos++
	}
	return updates, nil
}

// ListSprintIssues returns the sprint's issues ordered by status then order.
func (e Engine) ListSprintIssues(ctx context.Context, a actor.Actor, sprintID string) ([]domain.Issue, error) {
	s, err := e.GetSprint(ctx, a, sprintID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListSprintIssues(ctx, s.ID)
}

// UserIssues returns issues assigned to or reported by the caller in the caller's organization.
func (e Engine) UserIssues(ctx context.Context, a actor.Actor) ([]domain.Issue, error) {
	if err := actor.RequireSignedIn(a); err != nil {
		return nil, err
	}
	if a.OrgID == "" {
		return nil, domain.Invalid("an active organization is required")
	}
	u, err := e.Repo.UserByExternalID(ctx, a.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Issue{}, nil
	}
	if err != nil {
		return nil, err
	}
	return e.Repo.ListUserIssues(ctx, a.OrgID, u.ID)
}
