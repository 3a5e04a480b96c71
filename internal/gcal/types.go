package gcal

// CalendarEntry is one calendar-list record as delivered by the provider.
// Deleted entries only carry ID and ETag reliably.
type CalendarEntry struct {
	ID              string
	Summary         string
	SummaryOverride string
	Description     string
	BackgroundColor string
	AccessRole      string
	ETag            string
	Primary         bool
	Deleted         bool
}

// DisplayName prefers the user's override over the calendar's own summary.
func (c *CalendarEntry) DisplayName() string {
	if c.SummaryOverride != "" {
		return c.SummaryOverride
	}

	return c.Summary
}

// EventTime is either a timed instant (DateTime, RFC 3339) or an all-day date
// (Date, yyyy-mm-dd). TimeZone is an IANA name and may be empty.
type EventTime struct {
	Date     string
	DateTime string
	TimeZone string
}

// IsZero reports whether neither form is present.
func (t *EventTime) IsZero() bool {
	return t == nil || (t.Date == "" && t.DateTime == "")
}

// EventEntry is one event record within a calendar.
type EventEntry struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Status      string
	ETag        string
	Start       *EventTime
	End         *EventTime
}

// statusCancelled marks a deleted event in incremental listings.
const statusCancelled = "cancelled"

// IsCancelled reports whether the event was deleted upstream.
func (e *EventEntry) IsCancelled() bool {
	return e.Status == statusCancelled
}

// Page is one listing page. Exactly one of Calendars or Events is populated,
// depending on the collection fetched. NextPageCursor is set iff more pages
// remain; NextSyncCursor is only set on the final page.
type Page struct {
	Calendars      []CalendarEntry
	Events         []EventEntry
	NextPageCursor string
	NextSyncCursor string
}

// Len returns the number of records on the page.
func (p *Page) Len() int {
	return len(p.Calendars) + len(p.Events)
}
