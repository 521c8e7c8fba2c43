// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Service sentinel errors are translated here into a status, a stable code
// and a client-safe message. Handlers call h.fail(c, err) and never pick
// statuses for service errors themselves.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tbourn/persona-chat-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_error"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTimeout          = "timeout"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeCannotRegenerate = "cannot_regenerate"
	ErrCodeMessageTooLong   = "message_too_long"
	ErrCodeIdempotency      = "idempotency_conflict"
)

// apiError is a classified service error.
type apiError struct {
	status  int
	code    string
	message string
}

// classify maps err onto the HTTP taxonomy. Unknown errors are 500.
func classify(err error) apiError {
	switch {
	case errors.Is(err, services.ErrCharacterNotFound):
		return apiError{http.StatusNotFound, ErrCodeNotFound, "Character not found"}
	case errors.Is(err, services.ErrConversationNotFound):
		return apiError{http.StatusNotFound, ErrCodeNotFound, "Conversation not found"}
	case errors.Is(err, services.ErrMessageNotFound):
		return apiError{http.StatusNotFound, ErrCodeNotFound, "Message not found"}
	case errors.Is(err, services.ErrUserNotFound):
		return apiError{http.StatusNotFound, ErrCodeNotFound, "User not found"}

	case errors.Is(err, services.ErrCannotRegenerate):
		return apiError{http.StatusBadRequest, ErrCodeCannotRegenerate, "The last message is not an AI reply to a user message"}
	case errors.Is(err, services.ErrTooLong):
		return apiError{http.StatusBadRequest, ErrCodeMessageTooLong, "Message is too long"}
	case errors.Is(err, services.ErrEmptyMessage):
		return apiError{http.StatusBadRequest, ErrCodeValidation, "Message is required"}
	case errors.Is(err, services.ErrInvalidInput):
		return apiError{http.StatusBadRequest, ErrCodeValidation, err.Error()}

	case errors.Is(err, services.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid email or password"}
	case errors.Is(err, services.ErrUnauthorized):
		return apiError{http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or expired token"}
	case errors.Is(err, services.ErrForbidden):
		return apiError{http.StatusForbidden, ErrCodeForbidden, "You do not have permission to modify this resource"}

	case errors.Is(err, services.ErrEmailTaken):
		return apiError{http.StatusConflict, ErrCodeConflict, "Email is already registered"}
	case errors.Is(err, services.ErrUsernameTaken):
		return apiError{http.StatusConflict, ErrCodeConflict, "Username is already taken"}
	case errors.Is(err, services.ErrIdempotencyConflict):
		return apiError{http.StatusConflict, ErrCodeIdempotency, "Idempotency-Key was already used for another conversation"}

	case errors.Is(err, context.DeadlineExceeded):
		return apiError{http.StatusServiceUnavailable, ErrCodeTimeout, "Request timed out"}
	}
	return apiError{http.StatusInternalServerError, ErrCodeInternal, err.Error()}
}
