// Package export renders mirrored calendars as iCalendar (RFC 5545) files.
package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/ultimaforsan/ultima/internal/sync"
)

// DefaultProductID is the PRODID written when Options leaves it empty.
const DefaultProductID = "-//ultima//calendar mirror//EN"

// Options tunes ICS output. Stamp is written as DTSTAMP on every event; the
// zero value means time.Now().
type Options struct {
	ProductID string
	Stamp     time.Time
}

// WriteICS serializes one calendar and its events as a PUBLISH feed. Events
// are written in the order given; tombstones are skipped.
func WriteICS(w io.Writer, cal *sync.Calendar, events []*sync.Event, opts Options) (int, error) {
	if cal == nil {
		return 0, errors.New("export: nil calendar")
	}

	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}

	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	feed := ics.NewCalendar()
	feed.SetMethod(ics.MethodPublish)
	feed.SetProductId(opts.ProductID)
	feed.SetName(cal.Name)
	feed.SetXWRCalName(cal.Name)

	if cal.Description != "" {
		feed.SetDescription(cal.Description)
	}

	written := 0

	for _, ev := range events {
		if ev == nil || ev.Deleted {
			continue
		}

		if ev.CalendarID != cal.ID {
			return written, fmt.Errorf("export: event %s belongs to calendar %s, not %s",
				ev.ID, ev.CalendarID, cal.ID)
		}

		addEvent(feed, ev, opts.Stamp)
		written++
	}

	if err := feed.SerializeTo(w); err != nil {
		return written, fmt.Errorf("export: writing calendar %s: %w", cal.ID, err)
	}

	return written, nil
}

func addEvent(feed *ics.Calendar, ev *sync.Event, stamp time.Time) {
	vev := feed.AddEvent(uid(ev))
	vev.SetDtStampTime(stamp)

	if isAllDay(ev) {
		vev.SetAllDayStartAt(ev.Start)
		vev.SetAllDayEndAt(ev.End)
	} else {
		vev.SetStartAt(ev.Start)
		vev.SetEndAt(ev.End)
	}

	vev.SetSummary(ev.Title)

	if ev.Description != "" {
		vev.SetDescription(ev.Description)
	}

	if ev.Location != "" {
		vev.SetLocation(ev.Location)
	}
}

// uid is globally unique across calendars because provider event IDs are
// only unique within their calendar.
func uid(ev *sync.Event) string {
	return ev.ID + "@" + ev.CalendarID
}

// isAllDay reports whether an event spans whole days in its own zone.
func isAllDay(ev *sync.Event) bool {
	return atMidnight(ev.Start) && atMidnight(ev.End) && ev.End.After(ev.Start)
}

func atMidnight(t time.Time) bool {
	h, m, s := t.Clock()

	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
