// Package calerr defines the error kinds shared by the calendar provider
// clients. Every failure returned by the clients matches one of ErrNetwork,
// ErrAuth, ErrAPI, ErrCalDAV or ErrTokenExpired via errors.Is.
package calerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNetwork      = errors.New("network error")
	ErrAuth         = errors.New("authentication error")
	ErrAPI          = errors.New("API error")
	ErrCalDAV       = errors.New("CalDAV error")
	ErrTokenExpired = errors.New("token expired")

	// Discovery failures. Both also match ErrCalDAV.
	ErrPrincipalNotFound    = errors.New("current-user-principal not found")
	ErrCalendarHomeNotFound = errors.New("calendar-home-set not found")
)

// maxBodyLen bounds how much of a response body is kept on a StatusError.
const maxBodyLen = 2048

// StatusError is a non-2xx HTTP response from a provider.
type StatusError struct {
	Kind       error // ErrAPI or ErrCalDAV
	Op         string
	StatusCode int
	Body       string
}

// NewStatusError builds a StatusError, truncating an oversized body.
func NewStatusError(kind error, op string, statusCode int, body string) *StatusError {
	body = strings.TrimSpace(body)
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen] + "..."
	}
	return &StatusError{Kind: kind, Op: op, StatusCode: statusCode, Body: body}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: %s: HTTP %d", e.Kind, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%v: %s: HTTP %d: %s", e.Kind, e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}

// StatusCode returns the HTTP status carried by err, or 0 if there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
