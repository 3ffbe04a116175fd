package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers use these instead of hardcoded strings.
const (
	// User input (400) -- surfaced to WhatsApp users as localized help text.
	ErrCodeInputUnrecognized  ErrorCode = "user_input_unrecognized"
	ErrCodeInputBadLocation   ErrorCode = "user_input_malformed_location"
	ErrCodeInputBadRating     ErrorCode = "user_input_invalid_rating"
	ErrCodeValidationMissing  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationBadJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationBadPhone ErrorCode = "validation_invalid_phone"

	// Auth (401/403)
	ErrCodeAuthAgentKey       ErrorCode = "auth_invalid_agent_key"
	ErrCodeAuthVerifyToken    ErrorCode = "auth_invalid_verify_token"
	ErrCodeAuthBadSignature   ErrorCode = "auth_invalid_webhook_signature"
	ErrCodePermissionMismatch ErrorCode = "permission_recipient_mismatch"

	// Business rules (409) -- short-circuit a transition with a specific
	// user-facing message and no partial side effects.
	ErrCodeAlreadyClockedIn ErrorCode = "business_rule_already_clocked_in"
	ErrCodeNotClockedIn     ErrorCode = "business_rule_not_clocked_in"
	ErrCodeOutsideGeofence  ErrorCode = "business_rule_outside_geofence"
	ErrCodeShiftEnded       ErrorCode = "business_rule_shift_ended"
	ErrCodeNoActiveShift    ErrorCode = "business_rule_no_active_shift"
	ErrCodeStaleTaskAnswer  ErrorCode = "business_rule_stale_task_answer"

	// Not found (404)
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"
	ErrCodeNotFoundSession      ErrorCode = "not_found_session"
	ErrCodeNotFoundShift        ErrorCode = "not_found_shift"
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"

	// Conflict (409)
	ErrCodeConflictDuplicate  ErrorCode = "conflict_duplicate_message"
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamWhatsApp   ErrorCode = "upstream_whatsapp_unavailable"
	ErrCodeUpstreamPush       ErrorCode = "upstream_push_unavailable"
	ErrCodeUpstreamEmail      ErrorCode = "upstream_email_unavailable"
	ErrCodeUpstreamTranscribe ErrorCode = "upstream_transcription_unavailable"
	ErrCodeUpstreamRedis      ErrorCode = "upstream_redis_unavailable"

	// Generic upstream codes used by the shared HTTP client.
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "user_input_"), strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case s == string(ErrCodeAuthVerifyToken):
		return http.StatusForbidden
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "business_rule_"), strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain and handler
// errors are expressed as AppError to enable consistent formatting, HTTP
// status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}

// IsBusinessRule reports whether err is an AppError in the business_rule
// family. The state machine uses this to distinguish rule short-circuits
// (specific user message, no state change) from infrastructure failures.
func IsBusinessRule(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && strings.HasPrefix(string(appErr.Code), "business_rule_")
}

// AsAppError unwraps err to an *AppError if one is present in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
