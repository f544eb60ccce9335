package sprintboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sprintboard HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Key   string `json:"key"`
	Name  string `json:"name"`
}

// Sprint represents a sprint with its lifecycle hints.
type Sprint struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Status      string `json:"status"`
	StatusText  string `json:"status_text,omitempty"`
	CanStart    bool   `json:"can_start"`
	CanComplete bool   `json:"can_complete"`
}

// Issue represents the API issue model (partial).
type Issue struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	SprintID   *string `json:"sprint_id,omitempty"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Priority   string  `json:"priority"`
	Order      int     `json:"order"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	ReporterID string  `json:"reporter_id"`
}

// IssueInput is the body of CreateIssue.
type IssueInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	SprintID    string `json:"sprint_id,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

// IssueMove is one row of a reorder payload.
type IssueMove struct {
	IssueID string `json:"issue_id"`
	Status  string `json:"status"`
	Order   int    `json:"order"`
}

// Column is one status column of a board.
type Column struct {
	Status string  `json:"status"`
	Issues []Issue `json:"issues"`
}

// Board is a sprint board projection.
type Board struct {
	Sprint  Sprint   `json:"sprint"`
	Columns []Column `json:"columns"`
	Total   int      `json:"total"`
	Shown   int      `json:"shown"`
}

// BoardFilter narrows a board. Zero values match everything.
type BoardFilter struct {
	Search    string
	Assignees []string
	Priority  string
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given envelope code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

// DevLogin mints a development token and installs it on the client.
func (c *Client) DevLogin(ctx context.Context, actorID, orgID, role string) (string, error) {
	body := map[string]any{"actor_id": actorID, "org_id": orgID, "role": role}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// CreateAPIKey mints an API key for the caller. The key is only returned once.
func (c *Client) CreateAPIKey(ctx context.Context, name string) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, "me/api-keys", map[string]any{"name": name}, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

// CreateProject creates a project in orgID, or the token's organization when empty.
func (c *Client) CreateProject(ctx context.Context, orgID, name, key string) (Project, error) {
	body := map[string]any{"name": name, "key": key}
	if orgID != "" {
		body["org_id"] = orgID
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// CreateSprint creates a planned sprint.
func (c *Client) CreateSprint(ctx context.Context, projectID, name, start, end string) (Sprint, error) {
	body := map[string]any{"name": name, "start_date": start, "end_date": end}
	var resp Sprint
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/sprints", url.PathEscape(projectID)), body, &resp)
	return resp, err
}

// Transition requests a sprint status change.
func (c *Client) Transition(ctx context.Context, sprintID, status string) (Sprint, error) {
	var resp Sprint
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sprints/%s/transition", url.PathEscape(sprintID)), map[string]any{"status": status}, &resp)
	return resp, err
}

// CreateIssue creates an issue at the end of its column.
func (c *Client) CreateIssue(ctx context.Context, projectID string, in IssueInput) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/issues", url.PathEscape(projectID)), in, &resp)
	return resp, err
}

// Reorder applies a reorder payload atomically.
func (c *Client) Reorder(ctx context.Context, moves []IssueMove) error {
	return c.do(ctx, http.MethodPost, "issues/reorder", map[string]any{"moves": moves}, nil)
}

// Board fetches the projected board of a sprint.
func (c *Client) Board(ctx context.Context, sprintID string, f BoardFilter) (Board, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if len(f.Assignees) > 0 {
		q.Set("assignee", strings.Join(f.Assignees, ","))
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	endpoint := fmt.Sprintf("sprints/%s/board", url.PathEscape(sprintID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Board
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events of a project.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, projectID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("projects/%s/events", url.PathEscape(projectID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
