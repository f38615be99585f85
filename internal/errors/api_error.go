package errors

import (
	"net/http"
	"strconv"
)

// Error codes returned by the admin and webhook routes.
const (
	CodeInternal           = "internal_error"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidJSON        = "invalid_json"
	CodeInvalidCredentials = "invalid_credentials"
	CodeAdminDisabled      = "admin_disabled"
	CodeInvalidPlatformID  = "invalid_platform_id"
	CodeUserNotFound       = "user_not_found"
	CodeWebhookDisabled    = "webhook_disabled"
	CodeInvalidUpdate      = "invalid_update"
)

// APIError is the error envelope of the admin and webhook HTTP surface.
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, CodeInternal, message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// InvalidPlatformID echoes the rejected :platformId segment in details.
func InvalidPlatformID(raw string) *APIError {
	return BadRequest(CodeInvalidPlatformID, "platformId must be a positive integer").
		WithDetails(map[string]string{"platformId": raw})
}

// UserNotFound is returned for a platform user that never started a timer.
func UserNotFound(platformID int64) *APIError {
	return New(http.StatusNotFound, CodeUserNotFound, "user not found").
		WithDetails(map[string]string{"platformId": strconv.FormatInt(platformID, 10)})
}

// AdminDisabled means no ADMIN_PASSWORD_HASH is configured.
func AdminDisabled() *APIError {
	return New(http.StatusServiceUnavailable, CodeAdminDisabled, "admin login is not configured")
}

// WebhookDisabled answers pushes while the bot runs in polling mode.
func WebhookDisabled() *APIError {
	return New(http.StatusNotFound, CodeWebhookDisabled, "webhook mode is not enabled")
}

func InvalidUpdate() *APIError {
	return BadRequest(CodeInvalidUpdate, "invalid update payload")
}

// WithDetails attaches extra context, such as the offending parameter.
func (e *APIError) WithDetails(details interface{}) *APIError {
	e.Details = details
	return e
}
