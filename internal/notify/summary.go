package notify

import (
	"time"

	"github.com/ultimaforsan/ultima/internal/sync"
)

// PassSummary is the JSON message published after each pass.
type PassSummary struct {
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	OK         bool           `json:"ok"`
	Error      string         `json:"error,omitempty"`
	Fetched    int            `json:"fetched"`
	Merged     int            `json:"merged"`
	Skipped    int            `json:"skipped"`
	Warnings   int            `json:"warnings"`
	Drains     []DrainSummary `json:"drains"`
}

// DrainSummary describes one collection drain within a pass.
type DrainSummary struct {
	Collection string `json:"collection"`
	State      string `json:"state"`
	FullResync bool   `json:"full_resync,omitempty"`
	Pages      int    `json:"pages"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Preserved  int    `json:"preserved"`
	Tombstoned int    `json:"tombstoned"`
	Skipped    int    `json:"skipped"`
	Warnings   int    `json:"warnings"`
	Error      string `json:"error,omitempty"`
}

// NewPassSummary flattens a pass report into its wire form.
func NewPassSummary(r *sync.PassReport) *PassSummary {
	fetched, merged, skipped, warnings := r.Totals()

	s := &PassSummary{
		StartedAt:  r.StartedAt.UTC(),
		DurationMS: r.Duration.Milliseconds(),
		OK:         r.Err == nil && len(r.FailedDrains()) == 0,
		Fetched:    fetched,
		Merged:     merged,
		Skipped:    skipped,
		Warnings:   warnings,
		Drains:     make([]DrainSummary, 0, len(r.Events)+1),
	}

	if r.Err != nil {
		s.Error = r.Err.Error()
	}

	if r.Calendars != nil {
		s.Drains = append(s.Drains, newDrainSummary(r.Calendars))
	}

	for _, d := range r.Events {
		s.Drains = append(s.Drains, newDrainSummary(d))
	}

	return s
}

func newDrainSummary(d *sync.DrainReport) DrainSummary {
	ds := DrainSummary{
		Collection: d.Collection.String(),
		State:      d.State.String(),
		FullResync: d.FullResync,
		Pages:      d.Pages,
		Fetched:    d.Fetched,
		Inserted:   d.Inserted,
		Updated:    d.Updated,
		Preserved:  d.Preserved,
		Tombstoned: d.Tombstoned,
		Skipped:    d.Skipped,
		Warnings:   d.Warnings,
	}

	if d.Err != nil {
		ds.Error = d.Err.Error()
	}

	return ds
}
