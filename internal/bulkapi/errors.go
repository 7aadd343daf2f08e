package bulkapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const (
	// ErrorCodeUnknown is used for faults that carry no remote error code.
	ErrorCodeUnknown            = "UNKNOWN"
	ErrorCodeInvalidSession     = "INVALID_SESSION_ID"
	ErrorCodeUnsupportedJobType = "UNSUPPORTED_JOB_TYPE"
	ErrorCodeInvalidOptions     = "INVALID_OPTIONS"
	ErrorCodeNoMoreResults      = "NO_MORE_RESULTS"
)

// ErrSessionExpired is matched by errors.Is on the error returned when the
// access token is no longer accepted.
var ErrSessionExpired = errors.New("session expired or invalid")

var sessionExpiredPattern = regexp.MustCompile(`INVALID_SESSION_ID`)

// APIError is the normalized error shape of every failed bulk api call.
type APIError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`

	// StatusCode is the HTTP status that produced the error, 0 when the
	// request never got a response.
	StatusCode int `json:"-"`

	cause error
}

func NewAPIError(code, message string) *APIError {
	return &APIError{ErrorCode: code, Message: message}
}

// WrapError returns an *APIError with the given code whose cause is err.
func WrapError(code string, err error) *APIError {
	return &APIError{ErrorCode: code, Message: err.Error(), cause: err}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.ErrorCode
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Classify coerces err into an *APIError. Errors that already are (or wrap)
// an *APIError are returned as such; anything else becomes UNKNOWN.
func Classify(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{ErrorCode: ErrorCodeUnknown, Message: err.Error(), cause: err}
}

// responseError maps a non 2xx response to an *APIError.
func responseError(status int, body []byte) *APIError {
	trimmed := bytes.TrimSpace(body)

	if status == http.StatusUnauthorized && sessionExpiredPattern.Match(trimmed) {
		e := &APIError{
			ErrorCode:  ErrorCodeInvalidSession,
			Message:    ErrSessionExpired.Error(),
			StatusCode: status,
			cause:      ErrSessionExpired,
		}
		if first := firstStructuredError(trimmed); first != nil && first.Message != "" {
			e.Message = first.Message
		}
		return e
	}

	if first := firstStructuredError(trimmed); first != nil {
		first.StatusCode = status
		return first
	}

	return &APIError{
		ErrorCode:  fmt.Sprintf("ERROR_HTTP_%d", status),
		Message:    strings.TrimSpace(string(trimmed)),
		StatusCode: status,
	}
}

// firstStructuredError decodes a body shaped as [{errorCode, message}, ...]
// or as a single {errorCode, message} object.
func firstStructuredError(body []byte) *APIError {
	if len(body) == 0 {
		return nil
	}

	switch body[0] {
	case '[':
		var entries []APIError
		if err := json.Unmarshal(body, &entries); err != nil || len(entries) == 0 {
			return nil
		}
		if entries[0].ErrorCode == "" {
			return nil
		}
		e := entries[0]
		return &e
	case '{':
		var entry APIError
		if err := json.Unmarshal(body, &entry); err != nil || entry.ErrorCode == "" {
			return nil
		}
		return &entry
	default:
		return nil
	}
}
