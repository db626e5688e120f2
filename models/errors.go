package models

import (
	"errors"
	"fmt"
)

// ErrorKind registry error taxonomy. Kinds let callers render specific
// guidance instead of a generic failure message.
type ErrorKind string

const (
	// ErrorKindInvalidInput a required field was empty or malformed
	ErrorKindInvalidInput ErrorKind = "INVALID_INPUT"
	// ErrorKindNotFound the referenced consent does not exist
	ErrorKindNotFound ErrorKind = "NOT_FOUND"
	// ErrorKindIndexOutOfRange the referenced request position does not exist
	ErrorKindIndexOutOfRange ErrorKind = "INDEX_OUT_OF_RANGE"
	// ErrorKindNotAuthorized the caller lacks the required identity
	ErrorKindNotAuthorized ErrorKind = "NOT_AUTHORIZED"
	// ErrorKindAlreadyRevoked the consent is already inactive
	ErrorKindAlreadyRevoked ErrorKind = "ALREADY_REVOKED"
)

// RegistryError typed registry error. Survives fmt.Errorf wrapping so the
// kind is recoverable at any call depth via errors.As.
type RegistryError struct {
	// Kind the error taxonomy entry
	Kind ErrorKind
	// Message human readable detail
	Message string
}

// Error implement error
func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

/*
NewRegistryError define a new typed registry error

	@param kind ErrorKind - taxonomy entry
	@param format string - message format
	@param args ...interface{} - message format arguments
	@returns the error
*/
func NewRegistryError(kind ErrorKind, format string, args ...interface{}) error {
	return &RegistryError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

/*
ErrorKindOf resolve the registry error kind of an error chain

	@param err error - the error to inspect
	@returns the kind, or empty string when err carries no RegistryError
*/
func ErrorKindOf(err error) ErrorKind {
	var regErr *RegistryError
	if errors.As(err, &regErr) {
		return regErr.Kind
	}
	return ""
}
