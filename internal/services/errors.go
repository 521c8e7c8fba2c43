// Package services defines the business logic for characters, conversations,
// messages and accounts. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Lookup errors. Rows owned by someone else are reported as not found.
var (
	ErrCharacterNotFound    = errors.New("character not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
)

// Validation errors.
var (
	// ErrEmptyMessage is returned when a chat message has no content.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a chat message exceeds the configured limit.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidInput wraps field-level validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCannotRegenerate is returned when the two newest messages are not a
	// user prompt followed by an assistant reply.
	ErrCannotRegenerate = errors.New("last exchange cannot be regenerated")
)

// Authorization errors.
var (
	// ErrForbidden is returned when a caller mutates a character it did not create.
	ErrForbidden = errors.New("you do not have permission to modify this resource")

	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthorized is returned for missing, invalid, expired or revoked tokens.
	ErrUnauthorized = errors.New("unauthorized")
)

// Conflict errors.
var (
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")

	// ErrIdempotencyConflict is returned when an Idempotency-Key is reused
	// for a different conversation.
	ErrIdempotencyConflict = errors.New("idempotency key already used for another conversation")
)
