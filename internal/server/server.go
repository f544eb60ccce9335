package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sprintboard/internal/actor"
	"sprintboard/internal/domain"
	"sprintboard/internal/engine"
	"sprintboard/internal/logger"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

// handlers carries what every operation needs.
type handlers struct {
	e   engine.Engine
	log *zap.Logger
}

// New returns an HTTP handler exposing the Sprintboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := logger.OrNop(cfg.Logger)
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	installErrorEnvelope()

	router := chi.NewRouter()
	router.Use(newLoggingMiddleware(log))
	router.Use(newAuthMiddleware(basePath, authenticator{cfg: cfg.Auth, repo: cfg.Engine.Repo}))
	router.Handle("/metrics", promhttp.Handler())

	api := humachi.New(router, newAPIConfig(basePath))
	group := huma.NewGroup(api, basePath)

	h := handlers{e: cfg.Engine, log: log}
	registerHealth(group)
	h.registerProjects(group)
	h.registerOrgs(group)
	h.registerSprints(group)
	h.registerIssues(group)
	h.registerBoard(group)
	h.registerEvents(group)
	h.registerMe(group)
	registerDevAuth(group, cfg.Auth)

	return router, nil
}

func (h handlers) now() time.Time {
	if h.e.Now != nil {
		return h.e.Now()
	}
	return time.Now().UTC()
}







func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Security:    noAuth,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,sprint,issue,org"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := h.e.GetProject(ctx, actorFromContext(ctx), input.ProjectID); err != nil {
			return nil, h.handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.e.Repo.LatestEvents(ctx, limit+1, cursorID, input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func (h handlers) registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Resolved caller identity",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		a := actorFromContext(ctx)
		if err := actor.RequireSignedIn(a); err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{ActorID: a.ID, OrgID: a.OrgID, Role: string(a.Role)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-profile",
		Method:      http.MethodPut,
		Path:        "/me/profile",
		Summary:     "Create or update the caller's profile",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body ProfileRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := h.e.EnsureUser(ctx, actorFromContext(ctx), engine.ProfileInput{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			ImageURL: input.Body.ImageURL,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-issues",
		Method:      http.MethodGet,
		Path:        "/me/issues",
		Summary:     "Issues assigned to the caller in the active organization",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Issue `json:"body"`
	}, error) {
		items, err := h.e.UserIssues(ctx, actorFromContext(ctx))
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Issue `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Mint an API key for the caller",
		Description:   "The plaintext key is returned once. Requests made with it carry no active organization.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		plain, key, err := h.e.CreateAPIKey(ctx, actorFromContext(ctx), input.Body.Name)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Name: key.Name, Key: plain, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		keys, err := h.e.ListAPIKeys(ctx, actorFromContext(ctx))
		if err != nil {
			return nil, h.handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/me/api-keys/{key_id}",
		Summary:       "Revoke one of the caller's API keys",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := h.e.RevokeAPIKey(ctx, actorFromContext(ctx), input.KeyID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Security:    noAuth,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actorID := strings.TrimSpace(input.Body.ActorID)
		if actorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, exp, err := signDevToken(authCfg.JWTSecret, actorID, strings.TrimSpace(input.Body.OrgID), input.Body.Role, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: domain.FormatTime(exp)}}, nil
	})
}


func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
