package domain

import (
	"errors"
	"strings"
)

var (
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrConflict            = errors.New("conflict")
	ErrAmbiguousIdentifier = errors.New("identifier matches more than one identity")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token expired")
	ErrNotInvited          = errors.New("identity is not awaiting an invite")
	ErrWeakPassword        = errors.New("password does not meet policy")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("access forbidden")
	ErrSignupDisabled      = errors.New("self-service signup is disabled")
	ErrThrottled           = errors.New("too many attempts")
)

// ValidationError names the offending fields. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields []string
	Reason string
}

func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: reason}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
