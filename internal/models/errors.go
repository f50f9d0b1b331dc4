package models

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the library layer matches exactly one of them.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrStoreFault         = errors.New("store fault")
	ErrInvariantViolation = errors.New("invariant violation")
)

var (
	// ErrBookNotFound is returned when a book id does not exist
	ErrBookNotFound = fmt.Errorf("book %w", ErrNotFound)

	// ErrDuplicateISBN is returned when another book already uses the isbn
	ErrDuplicateISBN = fmt.Errorf("%w: isbn already exists", ErrConflict)

	// ErrInsufficientStock is returned when a borrow asks for more copies than are in stock
	ErrInsufficientStock = fmt.Errorf("%w: insufficient copies available", ErrConflict)
)

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
