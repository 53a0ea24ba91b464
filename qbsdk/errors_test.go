/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package qbsdk

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func newErrorResponse(status int, retryAfter string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{},
	}
	if retryAfter != "" {
		resp.Header.Set("Retry-After", retryAfter)
	}
	return resp
}

func TestAPIError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "Status only",
			err:  &APIError{StatusCode: 500},
			want: "API error: 500",
		},
		{
			name: "With message",
			err:  &APIError{StatusCode: 404, Message: "Not found"},
			want: "API error: 404 - Not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &APIError{StatusCode: 500, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Expected errors.Is to find the wrapped error")
	}
}

func TestNewAPIError_Returns_CorrectSubtype(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, IsAuthError},
		{http.StatusForbidden, IsForbidden},
		{http.StatusNotFound, IsNotFound},
		{http.StatusUnprocessableEntity, IsValidation},
		{http.StatusTooManyRequests, IsRateLimited},
		{http.StatusInternalServerError, IsServerError},
		{http.StatusBadGateway, IsServerError},
		{http.StatusServiceUnavailable, IsServerError},
		{http.StatusGatewayTimeout, IsServerError},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			err := NewAPIError(newErrorResponse(tc.status, ""), nil)
			if !tc.check(err) {
				t.Errorf("Expected matching sub-type for %d, got %T", tc.status, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatal("Expected errors.As to reach *APIError")
			}
			if apiErr.StatusCode != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, apiErr.StatusCode)
			}
		})
	}

	t.Run("Unmapped status", func(t *testing.T) {
		err := NewAPIError(newErrorResponse(http.StatusBadRequest, ""), nil)
		if _, ok := err.(*APIError); !ok {
			t.Errorf("Expected plain *APIError, got %T", err)
		}
	})
}

func TestNewAPIError_ErrorBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "List form",
			body: `{"errors":["Token is required"]}`,
			want: "Token is required",
		},
		{
			name: "Field form",
			body: `{"errors":{"base":["Unexpected signature"],"login":["is missing","is invalid"]}}`,
			want: "base Unexpected signature; login is missing, is invalid",
		},
		{
			name: "Field with string",
			body: `{"errors":{"base":"forbidden"}}`,
			want: "base forbidden",
		},
		{
			name: "Message fallback",
			body: `{"message":"Resource not found"}`,
			want: "Resource not found",
		},
		{
			name: "Not JSON",
			body: `<html>bad gateway</html>`,
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewAPIError(newErrorResponse(http.StatusUnprocessableEntity, ""), []byte(tc.body))
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatal("Expected *APIError")
			}
			if apiErr.Message != tc.want {
				t.Errorf("Expected message %q, got %q", tc.want, apiErr.Message)
			}
			if string(apiErr.RawBody) != tc.body {
				t.Errorf("Expected raw body preserved")
			}
		})
	}
}

func TestNewAPIError_RetryAfter(t *testing.T) {
	err := NewAPIError(newErrorResponse(http.StatusTooManyRequests, "7"), nil)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected *RateLimitError, got %T", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("Expected RetryAfter 7s, got %v", rl.RetryAfter)
	}
}

func TestIsHelpers_Wrapped(t *testing.T) {
	err := fmt.Errorf("error creating dialog: %w", NewAPIError(newErrorResponse(http.StatusNotFound, ""), nil))
	if !IsNotFound(err) {
		t.Error("Expected IsNotFound through fmt.Errorf wrapping")
	}
	if IsAuthError(err) {
		t.Error("Did not expect IsAuthError")
	}
}
