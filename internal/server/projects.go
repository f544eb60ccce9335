package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sprintboard/internal/actor"
	"sprintboard/internal/domain"
	"sprintboard/internal/engine"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type orgPath struct {
	OrgID string `path:"org_id"`
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := h.e.CreateProject(ctx, actorFromContext(ctx), engine.CreateProjectInput{
			OrgID:       input.Body.OrgID,
			Name:        input.Body.Name,
			Key:         input.Body.Key,
			Description: stringOrEmpty(input.Body.Description),
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/projects",
		Summary:     "List projects of an organization",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := h.e.ListProjects(ctx, actorFromContext(ctx), input.OrgID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project with its sprints",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := h.e.GetProject(ctx, actorFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project and everything in it",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		if err := h.e.DeleteProject(ctx, actorFromContext(ctx), input.ProjectID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-key-availability",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/project-keys/{key}",
		Summary:     "Check whether a project key is free",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Key   string `path:"key"`
	}) (*struct {
		Body KeyAvailabilityResponse `json:"body"`
	}, error) {
		ok, err := h.e.ProjectKeyAvailable(ctx, actorFromContext(ctx), input.OrgID, input.Key)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body KeyAvailabilityResponse `json:"body"`
		}{Body: KeyAvailabilityResponse{Key: input.Key, Available: ok}}, nil
	})
}

func (h handlers) registerOrgs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "org-users",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/users",
		Summary:     "User profiles of organization members",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *orgPath) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		items, err := h.e.OrganizationUsers(ctx, actorFromContext(ctx), input.OrgID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/members",
		Summary:       "Add or change an organization member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		m, err := h.e.AddMember(ctx, actorFromContext(ctx), input.OrgID, input.Body.ActorID, actor.NormalizeRole(input.Body.Role))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})
}
