package services

import (
	"regexp"
	"strings"
)

const (
	MinPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	otpPattern   = regexp.MustCompile(`^\d{6}$`)
	pinPattern   = regexp.MustCompile(`^\d{4,8}$`)
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(v *ValidationError, email string) {
	if email == "" {
		v.add("email", "email is required")
		return
	}
	if len(email) > 255 || !emailPattern.MatchString(email) {
		v.add("email", "email is not a valid address")
	}
}

func validatePassword(v *ValidationError, field, password string) {
	if len(password) < MinPasswordLength {
		v.add(field, "password must be at least 6 characters")
	} else if len(password) > MaxPasswordLength {
		v.add(field, "password must be at most 72 bytes")
	}
}

func validateRegistration(email, password, firstName, lastName string) error {
	v := &ValidationError{}
	validateEmail(v, email)
	validatePassword(v, "password", password)
	if strings.TrimSpace(firstName) == "" {
		v.add("firstName", "first name is required")
	}
	if strings.TrimSpace(lastName) == "" {
		v.add("lastName", "last name is required")
	}
	return v.orNil()
}

func validateCredentials(email, password string) error {
	v := &ValidationError{}
	if email == "" {
		v.add("email", "email is required")
	}
	if password == "" {
		v.add("password", "password is required")
	}
	return v.orNil()
}
