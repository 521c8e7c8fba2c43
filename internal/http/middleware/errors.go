package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Error codes emitted directly by middleware.
const (
	CodeUnauthorized      = "unauthorized"
	CodeRateLimited       = "rate_limited"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal_error"
	CodeBadIdempotencyKey = "bad_idempotency_key"
)

// ErrorBody is the error envelope shared by every endpoint.
type ErrorBody struct {
	// Human-readable message
	Error string `json:"error" example:"Conversation not found"`
	// HTTP status, repeated for clients that only see the body
	Status int `json:"status" example:"404"`
	// Stable, machine-readable code
	Code string `json:"code" example:"not_found"`
	// RFC3339 time the error was produced
	Timestamp string `json:"timestamp" example:"2024-05-01T12:00:00Z"`
	// Optional structured context, e.g. field validation errors
	Details any `json:"details,omitempty"`
	// Correlates server logs and client errors
	RequestID string `json:"requestId,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// NewErrorBody builds an envelope for c.
func NewErrorBody(c *gin.Context, status int, code, msg string, details any) ErrorBody {
	return ErrorBody{
		Error:     msg,
		Status:    status,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   details,
		RequestID: RequestIDFrom(c),
	}
}

// AbortError writes the envelope and stops the handler chain.
func AbortError(c *gin.Context, status int, code, msg string, details any) {
	c.AbortWithStatusJSON(status, NewErrorBody(c, status, code, msg, details))
}
