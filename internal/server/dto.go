package server

import (
	"encoding/json"
	"time"

	"sprintboard/internal/board"
	"sprintboard/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	OrgID       string  `json:"org_id,omitempty"`
	Name        string  `json:"name" minLength:"1"`
	Key         string  `json:"key" minLength:"2" maxLength:"10"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
	Role    string `json:"role" enum:"admin,member"`
}

type ProfileRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type CreateSprintRequest struct {
	Name      string `json:"name" minLength:"1"`
	StartDate string `json:"start_date" example:"2025-01-01"`
	EndDate   string `json:"end_date" example:"2025-01-14"`
}

type TransitionRequest struct {
	Status string `json:"status" enum:"PLANNED,ACTIVE,COMPLETED"`
}

type CreateIssueRequest struct {
	Title       string  `json:"title" minLength:"1"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status,omitempty" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
	Priority    string  `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT"`
	SprintID    *string `json:"sprint_id,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type UpdateIssueRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
	Priority    *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type ReorderRequest struct {
	Moves []domain.IssueMove `json:"moves"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
	OrgID   string `json:"org_id,omitempty"`
	Role    string `json:"role,omitempty" enum:"admin,member"`
}

// Responses

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	OrgID   string `json:"org_id,omitempty"`
	Role    string `json:"role,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty" maxLength:"80"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}

type KeyAvailabilityResponse struct {
	Key       string `json:"key"`
	Available bool   `json:"available"`
}

// SprintResponse adds lifecycle hints to a sprint.
type SprintResponse struct {
	domain.Sprint
	StatusText  string `json:"status_text,omitempty"`
	CanStart    bool   `json:"can_start"`
	CanComplete bool   `json:"can_complete"`
}

type BoardResponse struct {
	Sprint    SprintResponse `json:"sprint"`
	Columns   []board.Column `json:"columns"`
	Total     int            `json:"total"`
	Shown     int            `json:"shown"`
	Assignees []domain.User  `json:"assignees"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func sprintResponse(s domain.Sprint, now time.Time) SprintResponse {
	return SprintResponse{
		Sprint:      s,
		StatusText:  board.StatusText(s, now),
		CanStart:    board.CanStart(s, now),
		CanComplete: board.CanComplete(s),
	}
}

func mapSprints(items []domain.Sprint, now time.Time) []SprintResponse {
	res := make([]SprintResponse, 0, len(items))
	for _, s := range items {
		res = append(res, sprintResponse(s, now))
	}
	return res
}

func boardResponse(s domain.Sprint, b board.Board, assignees []domain.User, now time.Time) BoardResponse {
	return BoardResponse{
		Sprint:    sprintResponse(s, now),
		Columns:   b.Columns,
		Total:     b.Total,
		Shown:     b.Shown,
		Assignees: nonNilSlice(assignees),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
