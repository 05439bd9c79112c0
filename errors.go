package ugibdd

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Custom errors
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("resource not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrRecordNotFound     = errors.New("could not find user record for the authenticated subject")
	ErrSelfDelete         = errors.New("cannot delete own account")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
)

// ValidationError captures field level problems found before any network call.
type ValidationError struct {
	Fields map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+v.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (v *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Add records a problem with a single field.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = message
}

// HasErrors reports whether any field problem was recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

// invalid builds a single-field validation error.
func invalid(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// RemoteError is an error answered by the backend (table API, auth API or admin function).
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// SessionExpired reports whether the backend rejected the bearer token.
func (e *RemoteError) SessionExpired() bool {
	if e.Status == http.StatusUnauthorized {
		return true
	}
	text := strings.ToLower(e.Message)
	return strings.Contains(text, "jwt expired") || strings.Contains(text, "invalid jwt")
}

// IsSessionExpired reports whether err means the remote session is gone.
func IsSessionExpired(err error) bool {
	if errors.Is(err, ErrSessionExpired) {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re) && re.SessionExpired()
}

// IsRemoteNotFound reports whether the backend answered that the target does not exist.
func IsRemoteNotFound(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.Status == http.StatusNotFound || strings.Contains(strings.ToLower(re.Message), "not found")
}
