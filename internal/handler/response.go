package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/security"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields []domain.FieldError `json:"fields,omitempty"`
	Items  []ItemErrorResponse `json:"items,omitempty"`
}

// ItemErrorResponse reports one failed element of a bulk request.
type ItemErrorResponse struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Anything outside the domain taxonomy is logged
// and reported as a generic internal error.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validationErr *domain.ValidationError
		bulkErr       *domain.BulkOperationError
		expiredErr    *domain.ContextExpiredError
		transitionErr *domain.StateTransitionError
	)
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Code: "VALIDATION_FAILED", Fields: validationErr.Fields})
	case errors.As(err, &bulkErr):
		resp := ErrorResponse{Error: bulkErr.Error(), Code: "BULK_OPERATION_FAILED"}
		for _, item := range bulkErr.Items {
			resp.Items = append(resp.Items, ItemErrorResponse{Index: item.Index, Error: item.Err.Error()})
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &expiredErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: expiredErr.Error(), Code: "TENANT_CONTEXT_EXPIRED"})
	case errors.As(err, &transitionErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: transitionErr.Error(), Code: "INVALID_STATE_TRANSITION"})
	case errors.Is(err, domain.ErrTenantNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "TENANT_NOT_FOUND"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "ALREADY_EXISTS"})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "CONFLICT"})
	case errors.Is(err, domain.ErrInvalidStateTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_STATE_TRANSITION"})
	case errors.Is(err, domain.ErrMissingTenantContext), errors.Is(err, domain.ErrTenantRequired):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "MISSING_TENANT_CONTEXT"})
	case errors.Is(err, domain.ErrInvalidCursor):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_CURSOR"})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_INPUT"})
	case errors.Is(err, domain.ErrTenantInactive):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "TENANT_INACTIVE"})
	case errors.Is(err, security.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Code: "FORBIDDEN"})
	default:
		logger.Error("request failed", slog.String("error", domain.Cause(err).Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "INTERNAL"})
	}
}

// decodeJSON reads one JSON value from the body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %v: %w", err, domain.ErrInvalidInput)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body: %w", domain.ErrInvalidInput)
	}
	return body, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, domain.ErrInvalidInput)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean: %w", key, domain.ErrInvalidInput)
	}
	return &b, nil
}
