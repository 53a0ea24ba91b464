/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package qbsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// APIError is the base error type for all QuickBlox API errors.
// All specific error sub-types embed this struct, so consumers can use
// errors.As(err, &apiErr) to access common fields regardless of the
// specific error type.
type APIError struct {
	// StatusCode is the HTTP status code from the response.
	StatusCode int

	// Status is the HTTP status line (e.g., "404 Not Found").
	Status string

	// Message is the flattened content of the "errors" member of the body.
	Message string

	// RetryAfter is the duration to wait before retrying, parsed from
	// the Retry-After header. Zero if not applicable.
	RetryAfter time.Duration

	// RawBody is the raw response body bytes, preserved for debugging.
	RawBody []byte

	// Err is an optional wrapped error for errors.Unwrap support.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error: %d", e.StatusCode)
	if e.Message != "" {
		msg += " - " + e.Message
	}
	return msg
}

// Unwrap returns the wrapped error, if any.
func (e *APIError) Unwrap() error {
	return e.Err
}

// --- Specific error sub-types ---

// RateLimitError is returned for HTTP 429 Too Many Requests responses.
type RateLimitError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *RateLimitError) Unwrap() error { return e.APIError }

// AuthError is returned for HTTP 401 Unauthorized responses.
type AuthError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *AuthError) Unwrap() error { return e.APIError }

// ForbiddenError is returned for HTTP 403 Forbidden responses.
type ForbiddenError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *ForbiddenError) Unwrap() error { return e.APIError }

// NotFoundError is returned for HTTP 404 Not Found responses.
type NotFoundError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *NotFoundError) Unwrap() error { return e.APIError }

// ValidationError is returned for HTTP 422 Unprocessable Entity responses,
// which QuickBlox uses for rejected parameters.
type ValidationError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *ValidationError) Unwrap() error { return e.APIError }

// ServerError is returned for HTTP 5xx responses (500, 502, 503, 504).
type ServerError struct {
	*APIError
}

// Unwrap returns the underlying APIError for errors.As traversal.
func (e *ServerError) Unwrap() error { return e.APIError }

// --- Factory ---

// apiErrorBody is used to parse the QuickBlox error envelope. The "errors"
// member is either a list of strings or an object of field to messages.
type apiErrorBody struct {
	Errors  json.RawMessage `json:"errors"`
	Message string          `json:"message"`
}

// NewAPIError creates a structured error from an HTTP response and its body.
func NewAPIError(resp *http.Response, body []byte) error {
	base := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RawBody:    body,
	}

	if len(body) > 0 {
		var parsed apiErrorBody
		if err := json.Unmarshal(body, &parsed); err == nil {
			base.Message = flattenErrors(parsed.Errors)
			if base.Message == "" {
				base.Message = parsed.Message
			}
		}
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			base.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{APIError: base}
	case resp.StatusCode == http.StatusForbidden:
		return &ForbiddenError{APIError: base}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{APIError: base}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{APIError: base}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{APIError: base}
	case resp.StatusCode >= 500:
		return &ServerError{APIError: base}
	default:
		return base
	}
}

// flattenErrors renders either error shape as one line, fields sorted.
func flattenErrors(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var msgs []string
		if err := json.Unmarshal(fields[k], &msgs); err == nil {
			parts = append(parts, k+" "+strings.Join(msgs, ", "))
			continue
		}
		var msg string
		if err := json.Unmarshal(fields[k], &msg); err == nil {
			parts = append(parts, k+" "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

// --- Convenience functions ---

// IsRateLimited reports whether err is a rate limit error (HTTP 429).
func IsRateLimited(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a not found error (HTTP 404).
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsAuthError reports whether err is an authentication error (HTTP 401).
func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// IsForbidden reports whether err is a forbidden error (HTTP 403).
func IsForbidden(err error) bool {
	var e *ForbiddenError
	return errors.As(err, &e)
}

// IsValidation reports whether err is a validation error (HTTP 422).
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsServerError reports whether err is a server error (HTTP 5xx).
func IsServerError(err error) bool {
	var e *ServerError
	return errors.As(err, &e)
}
