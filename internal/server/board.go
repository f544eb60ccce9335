package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"sprintboard/internal/board"
	"sprintboard/internal/domain"
	"sprintboard/internal/engine"
)

type sprintPath struct {
	SprintID string `path:"sprint_id"`
}

type issuePath struct {
	IssueID string `path:"issue_id"`
}

func (h handlers) registerSprints(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Create a planned sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateSprintRequest `json:"body"`
	}) (*struct {
		Body SprintResponse `json:"body"`
	}, error) {
		s, err := h.e.CreateSprint(ctx, actorFromContext(ctx), input.ProjectID, engine.CreateSprintInput{
			Name:      input.Body.Name,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body SprintResponse `json:"body"`
		}{Body: sprintResponse(s, h.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints",
		Summary:     "List sprints of a project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []SprintResponse `json:"body"`
	}, error) {
		items, err := h.e.ListSprints(ctx, actorFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []SprintResponse `json:"body"`
		}{Body: mapSprints(items, h.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Get sprint",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*struct {
		Body SprintResponse `json:"body"`
	}, error) {
		s, err := h.e.GetSprint(ctx, actorFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body SprintResponse `json:"body"`
		}{Body: sprintResponse(s, h.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/transition",
		Summary:     "Start or complete a sprint",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		SprintID string            `path:"sprint_id"`
		Body     TransitionRequest `json:"body"`
	}) (*struct {
		Body SprintResponse `json:"body"`
	}, error) {
		s, err := h.e.RequestTransition(ctx, actorFromContext(ctx), input.SprintID, input.Body.Status)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body SprintResponse `json:"body"`
		}{Body: sprintResponse(s, h.now())}, nil
	})
}

func (h handlers) registerIssues(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/issues",
		Summary:       "Create issue at the end of its column",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateIssueRequest `json:"body"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		issue, err := h.e.CreateIssue(ctx, actorFromContext(ctx), input.ProjectID, engine.CreateIssueInput{
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			SprintID:    stringOrEmpty(input.Body.SprintID),
			AssigneeID:  stringOrEmpty(input.Body.AssigneeID),
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprint-issues",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/issues",
		Summary:     "List issues of a sprint",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*struct {
		Body []domain.Issue `json:"body"`
	}, error) {
		items, err := h.e.ListSprintIssues(ctx, actorFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Issue `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/issues/{issue_id}",
		Summary:     "Update issue fields",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string             `path:"issue_id"`
		Body    UpdateIssueRequest `json:"body"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		issue, err := h.e.UpdateIssue(ctx, actorFromContext(ctx), input.IssueID, engine.UpdateIssueInput{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			AssigneeID:  input.Body.AssigneeID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-issue",
		Method:        http.MethodDelete,
		Path:          "/issues/{issue_id}",
		Summary:       "Delete issue",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*struct{}, error) {
		if err := h.e.DeleteIssue(ctx, actorFromContext(ctx), input.IssueID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reorder-issues",
		Method:        http.MethodPost,
		Path:          "/issues/reorder",
		Summary:       "Apply a board reorder payload atomically",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body ReorderRequest `json:"body"`
	}) (*struct{}, error) {
		if err := h.e.Reorder(ctx, actorFromContext(ctx), input.Body.Moves); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) registerBoard(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "sprint-board",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/board",
		Summary:     "Sprint board grouped by status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
		Search   string `query:"search"`
		Assignee string `query:"assignee" doc:"Comma separated assignee ids"`
		Priority string `query:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		a := actorFromContext(ctx)
		s, err := h.e.GetSprint(ctx, a, input.SprintID)
		if err != nil {
			return nil, h.handleError(err)
		}
		items, err := h.e.ListSprintIssues(ctx, a, input.SprintID)
		if err != nil {
			return nil, h.handleError(err)
		}
		f := board.Filter{Search: input.Search, Priority: input.Priority, Assignees: splitList(input.Assignee)}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: boardResponse(s, board.Project(items, f), board.Assignees(items), h.now())}, nil
	})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
