package domain

import (
	"fmt"
	"time"
)

// Sprint statuses.
const (
	SprintPlanned   = "PLANNED"
	SprintActive    = "ACTIVE"
	SprintCompleted = "COMPLETED"
)

// Issue statuses, in board column order.
const (
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusInReview   = "IN_REVIEW"
	StatusDone       = "DONE"
)

// Issue priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// IssueStatuses lists board columns left to right.
var IssueStatuses = []string{StatusTodo, StatusInProgress, StatusInReview, StatusDone}

// IssuePriorities lists priorities lowest first.
var IssuePriorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func ValidIssueStatus(s string) bool {
	for _, v := range IssueStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ValidPriority(p string) bool {
	for _, v := range IssuePriorities {
		if v == p {
			return true
		}
	}
	return false
}

type Organization struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Slug      string `json:"slug" db:"slug"`
	CreatedAt string `json:"created_at" db:"created_at" format:"date-time"`
}

type Member struct {
	OrgID   string `json:"org_id" db:"org_id"`
	ActorID string `json:"actor_id" db:"actor_id"`
	Role    string `json:"role" db:"role" enum:"admin,member"`
}

// User is the local profile mirror of an external identity.
type User struct {
	ID         string `json:"id" db:"id"`
	ExternalID string `json:"external_id" db:"external_id"`
	Name       string `json:"name" db:"name"`
	Email      string `json:"email,omitempty" db:"email"`
	ImageURL   string `json:"image_url,omitempty" db:"image_url"`
	CreatedAt  string `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" db:"updated_at" format:"date-time"`
}

type Project struct {
	ID          string   `json:"id" db:"id"`
	OrgID       string   `json:"org_id" db:"org_id"`
	Key         string   `json:"key" db:"key"`
	Name        string   `json:"name" db:"name"`
	Description string   `json:"description,omitempty" db:"description"`
	CreatedAt   string   `json:"created_at" db:"created_at" format:"date-time"`
	Sprints     []Sprint `json:"sprints,omitempty" db:"-"`
}

type Sprint struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`
	Name      string `json:"name" db:"name"`
	StartDate string `json:"start_date" db:"start_date" format:"date-time"`
	EndDate   string `json:"end_date" db:"end_date" format:"date-time"`
	Status    string `json:"status" db:"status" enum:"PLANNED,ACTIVE,COMPLETED"`
	CreatedAt string `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" db:"updated_at" format:"date-time"`
}

// Window returns the parsed start and end of the sprint.
func (s Sprint) Window() (time.Time, time.Time, error) {
	start, err := ParseTime(s.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sprint %s start_date: %w", s.ID, err)
	}
	end, err := ParseTime(s.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sprint %s end_date: %w", s.ID, err)
	}
	return start, end, nil
}

type Issue struct {
	ID          string  `json:"id" db:"id"`
	ProjectID   string  `json:"project_id" db:"project_id"`
	SprintID    *string `json:"sprint_id,omitempty" db:"sprint_id"`
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description,omitempty" db:"description"`
	Status      string  `json:"status" db:"status" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
	Priority    string  `json:"priority" db:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	Order       int     `json:"order" db:"ord"`
	AssigneeID  *string `json:"assignee_id,omitempty" db:"assignee_id"`
	ReporterID  string  `json:"reporter_id" db:"reporter_id"`
	CreatedAt   string  `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" db:"updated_at" format:"date-time"`
	Assignee    *User   `json:"assignee,omitempty" db:"-"`
	Reporter    *User   `json:"reporter,omitempty" db:"-"`
}

// Sprint returns the sprint id or "" for backlog issues.
func (i Issue) Sprint() string {
	if i.SprintID == nil {
		return ""
	}
	return *i.SprintID
}

func (i Issue) Assigned() string {
	if i.AssigneeID == nil {
		return ""
	}
	return *i.AssigneeID
}

// IssueMove is one row of a reorder payload.
type IssueMove struct {
	IssueID string `json:"issue_id" validate:"required"`
	Status  string `json:"status" validate:"required,oneof=TODO IN_PROGRESS IN_REVIEW DONE"`
	Order   int    `json:"order" validate:"gte=0"`
}

type Event struct {
	ID         int64  `json:"id" db:"id"`
	TS         string `json:"ts" db:"ts" format:"date-time"`
	Type       string `json:"type" db:"type"`
	ProjectID  string `json:"project_id,omitempty" db:"project_id"`
	EntityKind string `json:"entity_kind" db:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    string `json:"actor_id" db:"actor_id"`
	Payload    string `json:"payload_json" db:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id" db:"id"`
	ActorID   string `json:"actor_id" db:"actor_id"`
	Name      string `json:"name,omitempty" db:"name"`
	KeyHash   string `json:"key_hash" db:"key_hash"`
	CreatedAt string `json:"created_at" db:"created_at" format:"date-time"`
}

// ParseTime accepts RFC3339 timestamps and plain dates.
func ParseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return t, nil
}

// FormatTime renders t the way rows store timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
