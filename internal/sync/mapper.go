package sync

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // event time zones must resolve on hosts without zoneinfo

	"golang.org/x/text/unicode/norm"

	"github.com/ultimaforsan/ultima/internal/gcal"
)

const (
	kindCalendar = "calendar"
	kindEvent    = "event"

	allDayLayout = "2006-01-02"
)

// MapCalendar converts a calendar-list entry into a Calendar observed at now.
// A deleted entry becomes a tombstone that only needs its id. Fields are
// NFC-normalized so equal names compare equal regardless of the client that
// wrote them.
func MapCalendar(raw *gcal.CalendarEntry, now time.Time) (*Calendar, error) {
	if raw.ID == "" {
		return nil, missingField(kindCalendar, "", "id")
	}

	cal := &Calendar{
		ID:           raw.ID,
		ETag:         raw.ETag,
		SyncEnabled:  true,
		LastSyncTime: now,
	}

	if raw.Deleted {
		cal.Deleted = true
		return cal, nil
	}

	cal.Name = nfcNormalize(strings.TrimSpace(raw.DisplayName()))
	if cal.Name == "" {
		return nil, missingField(kindCalendar, raw.ID, "name")
	}

	if raw.AccessRole == "" {
		return nil, missingField(kindCalendar, raw.ID, "access_role")
	}

	role, err := ParseAccessRole(raw.AccessRole)
	if err != nil {
		return nil, &MappingError{
			Kind: kindCalendar, ID: raw.ID, Field: "access_role", Value: raw.AccessRole, Err: ErrUnknownEnum,
		}
	}

	cal.AccessRole = role
	cal.Description = nfcNormalize(raw.Description)
	cal.Color = raw.BackgroundColor

	return cal, nil
}

// MapEvent converts an event entry of calendarID into an Event. A cancelled
// entry becomes a tombstone that only needs its id. New events are never
// dirty.
func MapEvent(raw *gcal.EventEntry, calendarID string) (*Event, error) {
	if raw.ID == "" {
		return nil, missingField(kindEvent, "", "id")
	}

	ev := &Event{
		ID:         raw.ID,
		CalendarID: calendarID,
		ETag:       raw.ETag,
		Source:     SourceGoogleCalendar,
	}

	if raw.IsCancelled() {
		ev.Deleted = true
		return ev, nil
	}

	ev.Title = nfcNormalize(strings.TrimSpace(raw.Summary))
	if ev.Title == "" {
		return nil, missingField(kindEvent, raw.ID, "title")
	}

	if raw.Start.IsZero() {
		return nil, missingField(kindEvent, raw.ID, "start")
	}

	if raw.End.IsZero() {
		return nil, missingField(kindEvent, raw.ID, "end")
	}

	start, err := parseEventTime(raw.ID, "start", raw.Start)
	if err != nil {
		return nil, err
	}

	end, err := parseEventTime(raw.ID, "end", raw.End)
	if err != nil {
		return nil, err
	}

	if start.After(end) {
		return nil, &MappingError{
			Kind: kindEvent, ID: raw.ID, Field: "end", Value: end.Format(time.RFC3339), Err: ErrInvalidValue,
		}
	}

	ev.Start = start
	ev.End = end
	ev.Description = nfcNormalize(raw.Description)
	ev.Location = nfcNormalize(raw.Location)

	return ev, nil
}

// parseEventTime resolves a timed or all-day value. All-day dates are
// midnight in the event's zone; timed values are shown in the event's zone.
// Without a zone both fall back to UTC.
func parseEventTime(id, field string, t *gcal.EventTime) (time.Time, error) {
	loc := time.UTC

	if t.TimeZone != "" {
		l, err := time.LoadLocation(t.TimeZone)
		if err != nil {
			return time.Time{}, &MappingError{
				Kind: kindEvent, ID: id, Field: field + ".time_zone", Value: t.TimeZone, Err: ErrInvalidValue,
			}
		}

		loc = l
	}

	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, &MappingError{Kind: kindEvent, ID: id, Field: field, Value: t.DateTime, Err: ErrInvalidValue}
		}

		return parsed.In(loc), nil
	}

	parsed, err := time.ParseInLocation(allDayLayout, t.Date, loc)
	if err != nil {
		return time.Time{}, &MappingError{Kind: kindEvent, ID: id, Field: field, Value: t.Date, Err: ErrInvalidValue}
	}

	return parsed, nil
}

// nfcNormalize applies Unicode NFC normalization.
func nfcNormalize(s string) string {
	return norm.NFC.String(s)
}

// describeEvent is used in log attributes.
func describeEvent(ev *Event) string {
	return fmt.Sprintf("%s/%s", ev.CalendarID, ev.ID)
}
