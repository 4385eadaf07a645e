package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/approval-ledger/generic"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps engine errors to HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, generic.ErrUnknownResource):
		return http.StatusBadRequest, "unknown_resource"
	case errors.Is(err, generic.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case generic.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, generic.ErrNotDeletable):
		return http.StatusConflict, "not_deletable"
	case errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// errorDetails exposes the structured fields callers render messages from.
func errorDetails(err error) map[string]any {
	var (
		verrs  validator.ValidationErrors
		vErr   *generic.ValidationError
		unauth *generic.UnauthorizedError
		trans  *generic.InvalidTransitionError
		insuf  *generic.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return map[string]any{"fields": fields}
	case errors.As(err, &vErr):
		return map[string]any{"field": vErr.Field, "reason": vErr.Reason}
	case errors.As(err, &unauth):
		return map[string]any{"actor": unauth.Actor, "required": unauth.Required.String(), "transition": unauth.Transition}
	case errors.As(err, &trans):
		return map[string]any{"request_id": trans.RequestID, "resource": trans.Resource, "from": trans.From, "to": trans.To}
	case errors.As(err, &insuf):
		return map[string]any{"account": insuf.Key.String(), "remaining": insuf.Remaining.String(), "requested": insuf.Requested.String()}
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Details: errorDetails(err)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
