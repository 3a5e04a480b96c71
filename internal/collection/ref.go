// Package collection identifies the remote listings the sync engine drains:
// the calendar list itself, or the events of one calendar. A Ref is the key
// of the stored sync cursor for that listing, so its string form is stable
// and persisted.
package collection

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes the two listing types.
type Kind int

const (
	KindCalendars Kind = iota + 1
	KindEvents
)

const (
	calendarsKey = "calendars"
	eventsPrefix = "events:"
)

// ErrInvalidRef is returned by Parse for strings that are not a collection key.
var ErrInvalidRef = errors.New("collection: invalid reference")

// Ref is a comparable collection reference, usable as a map key.
type Ref struct {
	kind       Kind
	calendarID string
}

// Calendars returns the reference to the calendar list.
func Calendars() Ref {
	return Ref{kind: KindCalendars}
}

// Events returns the reference to the event listing of calendarID.
func Events(calendarID string) Ref {
	return Ref{kind: KindEvents, calendarID: calendarID}
}

// Kind returns the listing type, or 0 for the zero Ref.
func (r Ref) Kind() Kind {
	return r.kind
}

// CalendarID returns the owning calendar of an events reference. Empty for
// the calendar list.
func (r Ref) CalendarID() string {
	return r.calendarID
}

// IsZero reports whether r is the zero value.
func (r Ref) IsZero() bool {
	return r.kind == 0
}

// String returns the persisted key: "calendars" or "events:<calendar-id>".
func (r Ref) String() string {
	switch r.kind {
	case KindCalendars:
		return calendarsKey
	case KindEvents:
		return eventsPrefix + r.calendarID
	default:
		return ""
	}
}

// Parse converts a persisted key back into a Ref.
func Parse(s string) (Ref, error) {
	if s == calendarsKey {
		return Calendars(), nil
	}

	if id, ok := strings.CutPrefix(s, eventsPrefix); ok && id != "" {
		return Events(id), nil
	}

	return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
}

// MarshalText implements encoding.TextMarshaler so refs render as their key
// in JSON output.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
