// Package sync mirrors remote calendars and their events into a local SQLite
// store. The Engine drains each remote listing page by page, maps every record
// into a Calendar or Event, and merges it into the Store, keeping an
// incremental sync cursor per listing so later passes fetch only deltas.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ultimaforsan/ultima/internal/collection"
	"github.com/ultimaforsan/ultima/internal/gcal"
)

// AccessRole is the caller's permission level on a calendar.
type AccessRole int

// Access roles, in decreasing order of privilege.
const (
	AccessOwner AccessRole = iota + 1
	AccessWriter
	AccessReader
	AccessFreeBusyReader
)

// String returns the provider's spelling of the role, which is also the
// persisted form.
func (r AccessRole) String() string {
	switch r {
	case AccessOwner:
		return "owner"
	case AccessWriter:
		return "writer"
	case AccessReader:
		return "reader"
	case AccessFreeBusyReader:
		return "freeBusyReader"
	default:
		return fmt.Sprintf("AccessRole(%d)", int(r))
	}
}

// ParseAccessRole converts the provider/database spelling to AccessRole.
// Matching is exact; anything else wraps ErrUnknownEnum.
func ParseAccessRole(s string) (AccessRole, error) {
	switch s {
	case AccessOwner.String():
		return AccessOwner, nil
	case AccessWriter.String():
		return AccessWriter, nil
	case AccessReader.String():
		return AccessReader, nil
	case AccessFreeBusyReader.String():
		return AccessFreeBusyReader, nil
	default:
		return 0, fmt.Errorf("%w: access role %q", ErrUnknownEnum, s)
	}
}

// SourceType identifies which provider an event was mirrored from.
type SourceType int

const (
	SourceGoogleCalendar SourceType = iota + 1
)

func (s SourceType) String() string {
	switch s {
	case SourceGoogleCalendar:
		return "google_calendar"
	default:
		return fmt.Sprintf("SourceType(%d)", int(s))
	}
}

// ParseSourceType converts the persisted spelling to SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch s {
	case SourceGoogleCalendar.String():
		return SourceGoogleCalendar, nil
	default:
		return 0, fmt.Errorf("%w: source type %q", ErrUnknownEnum, s)
	}
}

// Calendar is the mirrored form of one calendar-list entry.
type Calendar struct {
	ID           string
	Name         string
	Description  string // optional
	Color        string // optional
	AccessRole   AccessRole
	SyncEnabled  bool
	ETag         string // observability only; never used for merge decisions
	LastSyncTime time.Time
	Deleted      bool // tombstone: removed upstream
}

// Event is the mirrored form of one event. (CalendarID, ID) is unique.
type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string // optional
	Location    string // optional
	Start       time.Time
	End         time.Time
	ETag        string
	Source      SourceType

	// Updated marks a local edit not yet pushed upstream. Pulls never
	// overwrite the mutable fields of an updated event.
	Updated bool
	Deleted bool
}

// EventEdit carries the mutable fields of a local edit.
type EventEdit struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// MergeOutcome reports what a merge did to the stored row.
type MergeOutcome int

const (
	MergeInserted   MergeOutcome = iota + 1 // new row
	MergeUpdated                            // existing row overwritten
	MergePreserved                          // local edit kept, only etag recorded
	MergeTombstoned                         // row marked deleted
	MergeIgnored                            // tombstone for a record never seen
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeInserted:
		return "inserted"
	case MergeUpdated:
		return "updated"
	case MergePreserved:
		return "preserved"
	case MergeTombstoned:
		return "tombstoned"
	case MergeIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("MergeOutcome(%d)", int(o))
	}
}

// ListingSource fetches one page of a remote listing. Implemented by
// *gcal.Client. Must return errors wrapping gcal.ErrRemoteUnavailable or
// gcal.ErrInvalidCursor for the engine's cursor policy to apply.
type ListingSource interface {
	FetchPage(ctx context.Context, ref collection.Ref, syncCursor, pageCursor string) (*gcal.Page, error)
}

// Store is the persistence the engine drains into. Implemented by *SQLiteStore.
type Store interface {
	MergeCalendar(ctx context.Context, cal *Calendar) (MergeOutcome, error)
	MergeEvent(ctx context.Context, ev *Event) (MergeOutcome, error)
	ListCalendars(ctx context.Context, opts ListOptions) ([]Calendar, error)
	SetSyncEnabled(ctx context.Context, calendarID string, enabled bool) error

	GetCursor(ctx context.Context, ref collection.Ref) (string, error)
	SaveCursor(ctx context.Context, ref collection.Ref, cursor string) error
	ClearCursor(ctx context.Context, ref collection.Ref) error

	RecordRun(ctx context.Context, run *RunRecord) error
}

// ListOptions filters snapshot reads.
type ListOptions struct {
	IncludeDeleted bool
}

// EventQuery filters ListEvents. Zero From/To leave that side open.
type EventQuery struct {
	From           time.Time
	To             time.Time
	IncludeDeleted bool
}

// CursorRecord is one stored sync cursor.
type CursorRecord struct {
	Collection collection.Ref
	Cursor     string
	UpdatedAt  time.Time
}

// RunRecord is one finished drain as persisted in sync_runs.
type RunRecord struct {
	ID         string
	Collection string
	State      DrainState
	FullResync bool
	StartedAt  time.Time
	FinishedAt time.Time
	Pages      int
	Fetched    int
	Merged     int
	Skipped    int
	Warnings   int
	Error      string
}

// StoreStats summarizes table contents for status output.
type StoreStats struct {
	Calendars     int
	SyncEnabled   int
	Events        int
	DirtyEvents   int
	Tombstones    int
	CursorsStored int
}
