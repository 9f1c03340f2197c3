package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAlreadyExists        = errors.New("an account with this email already exists")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrMobileLoginRequired  = errors.New("log in to the mobile app before requesting a desktop login code")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrNotFound             = errors.New("not found")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrProviderNotEnabled   = errors.New("identity provider not enabled")
)

// ValidationError reports malformed input with one message per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// orNil lets validators build errors incrementally and return a nil error interface.
func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
