package api

import (
	"errors"
	"fmt"
)

// ErrMissingData is returned when the backend reports success but omits a
// payload the operation needs.
var ErrMissingData = errors.New("no data received")

// TransportError is an HTTP-level failure: a non-2xx status, or no
// response at all (StatusCode 0, Err set).
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("API request failed: %v", e.Err)
	}
	return fmt.Sprintf("API request failed: HTTP %d. Body: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError wraps a malformed envelope or event payload.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// APIError means the transport succeeded but the envelope status was not ok.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "API error: " + e.Message
}

// AuthError is a rejected login.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "login failed"
	}
	return "login failed: " + e.Message
}
