package api

import (
	"fmt"
	"math"
	"time"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation_error"
	ErrorTypeInvalidCredentials ErrorType = "invalid_credentials"
	ErrorTypeUnauthenticated    ErrorType = "unauthenticated"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeRateLimited        ErrorType = "rate_limited"
	ErrorTypeResetTokenInvalid  ErrorType = "reset_token_invalid"
	ErrorTypePaymentRequired    ErrorType = "payment_required"
	ErrorTypeServerError        ErrorType = "server_error"
)

// Fixed client-facing messages for the security-relevant categories. Each
// category always carries the same text so responses cannot be used as an
// oracle.
const (
	MessageInvalidCredentials = "invalid email or password"
	MessageUnauthenticated    = "authentication required"
	MessageForbidden          = "insufficient permissions"
	MessageResetTokenInvalid  = "reset token is invalid or has expired"
	MessageServerError        = "internal server error"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError represents a structured API error.
type APIError struct {
	Type    ErrorType    `json:"type"`
	Message string       `json:"message"`
	Param   string       `json:"param,omitempty"`
	Details []FieldError `json:"details,omitempty"`

	// RetryAfter is set on rate_limited errors. RetryAfterSeconds is the
	// same hint in whole seconds, rounded up, for the response body.
	RetryAfter        time.Duration `json:"-"`
	RetryAfterSeconds int           `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewValidationError creates an APIError for a single invalid field.
func NewValidationError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeValidation,
		Param:   param,
		Message: message,
		Details: []FieldError{{Field: param, Message: message}},
	}
}

// NewValidationErrors creates an APIError from several field errors. The
// first field becomes Param.
func NewValidationErrors(fields []FieldError) *APIError {
	e := &APIError{
		Type:    ErrorTypeValidation,
		Message: "request validation failed",
		Details: fields,
	}
	if len(fields) > 0 {
		e.Param = fields[0].Field
	}
	return e
}

// NewInvalidCredentialsError creates the generic login failure.
func NewInvalidCredentialsError() *APIError {
	return &APIError{Type: ErrorTypeInvalidCredentials, Message: MessageInvalidCredentials}
}

// NewUnauthenticatedError creates the generic missing/invalid token error.
func NewUnauthenticatedError() *APIError {
	return &APIError{Type: ErrorTypeUnauthenticated, Message: MessageUnauthenticated}
}

// NewForbiddenError creates the generic role or ownership denial.
func NewForbiddenError() *APIError {
	return &APIError{Type: ErrorTypeForbidden, Message: MessageForbidden}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewRateLimitedError creates a rate limit rejection carrying a retry hint.
func NewRateLimitedError(retryAfter time.Duration) *APIError {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return &APIError{
		Type:              ErrorTypeRateLimited,
		Message:           "too many requests",
		RetryAfter:        retryAfter,
		RetryAfterSeconds: secs,
	}
}

// NewResetTokenInvalidError creates the generic reset token failure. It does
// not distinguish unknown, expired, and consumed tokens.
func NewResetTokenInvalidError() *APIError {
	return &APIError{Type: ErrorTypeResetTokenInvalid, Message: MessageResetTokenInvalid}
}

// NewPaymentRequiredError creates an APIError for an insufficient plan.
func NewPaymentRequiredError(required Plan) *APIError {
	return &APIError{
		Type:    ErrorTypePaymentRequired,
		Message: fmt.Sprintf("subscription plan %s or higher required", required),
	}
}

// NewServerError creates an APIError for internal failures. The message is
// always generic; the cause belongs in the logs.
func NewServerError() *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: MessageServerError}
}
