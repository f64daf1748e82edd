package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySplit is returned when splitting a requirement that has left
	// draft status. Splitting never silently duplicates orders.
	ErrAlreadySplit = errors.New("requirement already split")

	// ErrEmptyRequirement is returned when splitting a requirement that has no
	// configuration items.
	ErrEmptyRequirement = errors.New("requirement has no configuration items")

	// ErrIncompleteMapping is returned when a supplier present among the
	// requirement's SKUs is missing from the supplier mapping.
	ErrIncompleteMapping = errors.New("incomplete supplier mapping")

	// ErrConcurrentModification is returned when a row version check fails at
	// update time: another writer changed the row since it was read.
	// Recoverable by reloading and retrying.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// ValidationError reports malformed or out-of-range input, duplicate unique
// codes, and percentage-sum mismatches. Field names the offending input when
// known.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func validationErrorf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IntegrityError reports a referential integrity violation: a dangling
// reference on insert, or a delete blocked by dependent rows. The caller
// decides between abort and an explicit cascade delete.
type IntegrityError struct {
	EntityKind     string
	EntityID       int
	DependentCount int
	Message        string
}

func (e *IntegrityError) Error() string {
	return e.Message
}

func danglingReference(kind string, id int) error {
	return &IntegrityError{
		EntityKind: kind,
		EntityID:   id,
		Message:    fmt.Sprintf("%s %d does not exist", kind, id),
	}
}
