package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"sprintboard/internal/actor"
	"sprintboard/internal/logger"
	"sprintboard/internal/repo"
)

const devTokenTTL = 24 * time.Hour

type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	Logger                 *zap.Logger
}

type jwtClaims struct {
	jwt.RegisteredClaims
	OrgID   string `json:"org_id,omitempty"`
	OrgRole string `json:"org_role,omitempty"`
}

// authenticator resolves the actor of a request from a bearer JWT, an API
// key or, when allowed, the legacy X-Actor-Id header.
type authenticator struct {
	cfg  AuthConfig
	repo repo.Repo
}

var _ actor.Resolver = authenticator{}

var errNoCredentials = errors.New("authentication required")

func (a authenticator) ResolveActor(req *http.Request) (actor.Actor, error) {
	authz := strings.TrimSpace(req.Header.Get("Authorization"))
	apiKey := strings.TrimSpace(req.Header.Get("X-Api-Key"))
	legacyActor := strings.TrimSpace(req.Header.Get("X-Actor-Id"))

	switch {
	case authz != "":
		token, ok := bearerToken(authz)
		if !ok {
			return actor.Actor{}, errors.New("malformed authorization header")
		}
		return authenticateJWT(token, a.cfg.JWTSecret)
	case apiKey != "":
		return authenticateAPIKey(req.Context(), a.repo, apiKey)
	case legacyActor != "" && a.cfg.AllowLegacyActorHeader:
		logger.OrNop(a.cfg.Logger).Warn("using legacy X-Actor-Id header without auth; ignored when Authorization or X-Api-Key is present",
			zap.String("actor_id", legacyActor))
		return actor.Actor{
			ID:    legacyActor,
			OrgID: strings.TrimSpace(req.Header.Get("X-Org-Id")),
			Role:  actor.NormalizeRole(req.Header.Get("X-Org-Role")),
		}, nil
	}
	return actor.Actor{}, errNoCredentials
}

func authenticateJWT(token string, secret string) (actor.Actor, error) {
	if strings.TrimSpace(secret) == "" {
		return actor.Actor{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return actor.Actor{}, err
	}
	if !parsed.Valid {
		return actor.Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return actor.Actor{}, errors.New("subject claim required")
	}
	return actor.Actor{
		ID:    claims.Subject,
		OrgID: claims.OrgID,
		Role:  actor.NormalizeRole(claims.OrgRole),
	}, nil
}

// authenticateAPIKey yields an actor with no active organization; its roles
// come from the membership table.
func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (actor.Actor, error) {
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return actor.Actor{}, err
	}
	if apiKey.ActorID == "" {
		return actor.Actor{}, errors.New("api key missing actor")
	}
	return actor.Actor{ID: apiKey.ActorID}, nil
}

func signDevToken(secret, actorID, orgID, role string, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	exp := now.Add(devTokenTTL)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "sprintboard-dev",
		},
		OrgID:   orgID,
		OrgRole: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, resolver actor.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if isPublicPath(basePath, req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			a, err := resolver.ResolveActor(req)
			if err != nil {
				if errors.Is(err, errNoCredentials) {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
					return
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(actor.WithActor(req.Context(), a)))
		})
	}
}

// actorFromContext returns the resolved actor or the zero actor, which the
// engine rejects as unauthorized.
func actorFromContext(ctx context.Context) actor.Actor {
	a, _ := actor.FromContext(ctx)
	return a
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
