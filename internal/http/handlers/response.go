// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers. Every error leaves through fail or
// failErr so the envelope is uniform:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "error": "Conversation not found",
//	  "status": 404,
//	  "code": "not_found",
//	  "timestamp": "2024-05-01T12:00:00Z",
//	  "requestId": "123e4567-e89b-12d3-a456-426614174000"
//	}
package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/persona-chat-backend/internal/http/middleware"
)

// FieldError is one entry of a validation error's details.
type FieldError struct {
	Field   string `json:"field" example:"email"`
	Rule    string `json:"rule" example:"required"`
	Message string `json:"message" example:"email is required"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message" example:"Signed out successfully"`
}

var registerTagName sync.Once

// useJSONFieldNames makes validator errors report json field names.
func useJSONFieldNames() {
	registerTagName.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}

// fail aborts the request with the error envelope and logs server errors.
func fail(c *gin.Context, status int, code, msg string, details any) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	middleware.AbortError(c, status, code, msg, details)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg, nil) }

// failErr classifies a service error. In production the text of 500s is
// replaced with a generic message.
func (h *Handlers) failErr(c *gin.Context, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError && e.status != http.StatusServiceUnavailable {
		_ = c.Error(err)
		if h.production {
			e.message = "Internal server error"
		}
	}
	fail(c, e.status, e.code, e.message, nil)
}

// failBind reports a request binding error, with per-field details when
// the validator produced them.
func failBind(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", nil)
		return
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	fail(c, http.StatusBadRequest, ErrCodeValidation, "Validation failed", details)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "uuid", "uuid4":
		return fe.Field() + " must be a UUID"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "url":
		return fe.Field() + " must be a URL"
	}
	return fe.Field() + " is invalid"
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
