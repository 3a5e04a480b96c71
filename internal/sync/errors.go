package sync

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Use errors.Is to check; MappingError wraps the first three.
var (
	ErrMissingField = errors.New("sync: missing required field")
	ErrUnknownEnum  = errors.New("sync: unknown enumeration value")
	ErrInvalidValue = errors.New("sync: invalid field value")

	// ErrForeignKeyViolation is returned when an event references a calendar
	// the store has never seen. Nothing is written.
	ErrForeignKeyViolation = errors.New("sync: event references unknown calendar")

	ErrNotFound = errors.New("sync: record not found")

	// ErrDrainInProgress and ErrPassInProgress are returned instead of
	// queueing when the same work is already running.
	ErrDrainInProgress = errors.New("sync: drain already in progress")
	ErrPassInProgress  = errors.New("sync: pass already in progress")

	// ErrPageLimit stops a drain whose listing never terminates.
	ErrPageLimit = errors.New("sync: page limit exceeded")
)

// MappingError describes a remote record that could not be mapped. The record
// is skipped and counted; the page continues.
type MappingError struct {
	Kind  string // "calendar" or "event"
	ID    string // may be empty when the id itself is missing
	Field string
	Value string
	Err   error // ErrMissingField, ErrUnknownEnum or ErrInvalidValue
}

func (e *MappingError) Error() string {
	id := e.ID
	if id == "" {
		id = "?"
	}

	reason := strings.TrimPrefix(e.Err.Error(), "sync: ")

	if e.Value != "" {
		return fmt.Sprintf("sync: mapping %s %q: %s %s (%q)", e.Kind, id, reason, e.Field, e.Value)
	}

	return fmt.Sprintf("sync: mapping %s %q: %s %s", e.Kind, id, reason, e.Field)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

func missingField(kind, id, field string) *MappingError {
	return &MappingError{Kind: kind, ID: id, Field: field, Err: ErrMissingField}
}
