package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrInvalidVersionFormat ErrorType = iota
	ErrMissingCredentials
	ErrMissingArtifact
	ErrMissingLicense
	ErrEscrowIO
	ErrInvalidConfig
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrInvalidVersionFormat:
		return "InvalidVersionFormat"
	case ErrMissingCredentials:
		return "MissingCredentials"
	case ErrMissingArtifact:
		return "MissingArtifact"
	case ErrMissingLicense:
		return "MissingLicense"
	case ErrEscrowIO:
		return "EscrowIO"
	case ErrInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

// PublishError represents a failure while resolving a publish target or
// assembling an escrow package. Subject names the version, credential source
// or coordinate the failure is about.
type PublishError struct {
	Type    ErrorType
	Subject string
	Err     error
}

// Error implements the error interface
func (e *PublishError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Subject, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewError builds a PublishError with a formatted cause.
func NewError(t ErrorType, subject, format string, args ...interface{}) *PublishError {
	return &PublishError{
		Type:    t,
		Subject: subject,
		Err:     fmt.Errorf(format, args...),
	}
}

// IsErrorType reports whether err carries a PublishError of type t anywhere in its chain.
func IsErrorType(err error, t ErrorType) bool {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}

// ErrorSubject returns the subject of the first PublishError in err's chain.
func ErrorSubject(err error) string {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Subject
	}
	return ""
}
