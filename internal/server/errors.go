package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"sprintboard/internal/domain"
	"sprintboard/internal/engine/auth"
)

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot start sprint outside of its date range"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"PLANNED\",\"to\":\"ACTIVE\"}"`
}

// apiError is the {"error": {...}} envelope every failure is written as.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation_failed",
	http.StatusInternalServerError: "internal_error",
}

func codeFor(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = codeFor(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// installErrorEnvelope routes huma's own errors through the envelope. Request
// validation failures become 400 instead of huma's 422.
func installErrorEnvelope() {
	huma.NewError = func(status int, msg string, _ ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}
}

// sentinelStatus is checked in order after the typed errors.
var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrPermissionDenied, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "bad_request"},
}

// handleError maps engine errors onto the envelope.
func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		forbidden  auth.ForbiddenError
		transition domain.TransitionError
		missing    domain.NotFoundError
	)
	switch {
	case errors.As(err, &forbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(),
			map[string]any{"org_id": forbidden.OrgID, "required": string(forbidden.Required)})
	case errors.As(err, &transition):
		var details map[string]any
		if transition.From != "" || transition.To != "" {
			details = map[string]any{"from": transition.From, "to": transition.To}
		}
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", transition.Reason, details)
	case errors.As(err, &missing):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": missing.Kind, "id": missing.ID})
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return newAPIError(s.status, s.code, err.Error(), nil)
		}
	}
	if errors.Is(err, domain.ErrPersistence) {
		h.log.Error("persistence failure", zap.Error(err))
		return newAPIError(http.StatusServiceUnavailable, "persistence_failure", "changes could not be saved", nil)
	}
	h.log.Error("unhandled error", zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}
