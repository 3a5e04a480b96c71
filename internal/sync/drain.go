package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ultimaforsan/ultima/internal/collection"
	"github.com/ultimaforsan/ultima/internal/gcal"
)

// DrainState is the state of one collection drain.
type DrainState int

// Start → Paging → Completed | Failed. Start is re-entered once after the
// provider rejects the sync cursor.
const (
	DrainStart DrainState = iota
	DrainPaging
	DrainCompleted
	DrainFailed
)

func (s DrainState) String() string {
	switch s {
	case DrainStart:
		return "start"
	case DrainPaging:
		return "paging"
	case DrainCompleted:
		return "completed"
	case DrainFailed:
		return "failed"
	default:
		return fmt.Sprintf("DrainState(%d)", int(s))
	}
}

// ParseDrainState converts a persisted state back to DrainState.
func ParseDrainState(s string) (DrainState, error) {
	switch s {
	case DrainStart.String():
		return DrainStart, nil
	case DrainPaging.String():
		return DrainPaging, nil
	case DrainCompleted.String():
		return DrainCompleted, nil
	case DrainFailed.String():
		return DrainFailed, nil
	default:
		return DrainStart, fmt.Errorf("%w: drain state %q", ErrUnknownEnum, s)
	}
}

// DrainReport summarizes one drain.
type DrainReport struct {
	Collection collection.Ref
	State      DrainState
	FullResync bool // the stored cursor was rejected and the listing restarted
	StartedAt  time.Time
	FinishedAt time.Time

	Pages   int
	Fetched int

	Inserted   int
	Updated    int
	Preserved  int
	Tombstoned int
	Ignored    int

	Skipped  int // records that failed to map
	Warnings int // records the store rejected (other than FK violations)

	Err error
}

// Merged returns the number of records that changed or confirmed a row.
func (r *DrainReport) Merged() int {
	return r.Inserted + r.Updated + r.Preserved + r.Tombstoned
}

func (r *DrainReport) count(o MergeOutcome) {
	switch o {
	case MergeInserted:
		r.Inserted++
	case MergeUpdated:
		r.Updated++
	case MergePreserved:
		r.Preserved++
	case MergeTombstoned:
		r.Tombstoned++
	case MergeIgnored:
		r.Ignored++
	}
}

func (r *DrainReport) runRecord() *RunRecord {
	rec := &RunRecord{
		Collection: r.Collection.String(),
		State:      r.State,
		FullResync: r.FullResync,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Pages:      r.Pages,
		Fetched:    r.Fetched,
		Merged:     r.Merged(),
		Skipped:    r.Skipped,
		Warnings:   r.Warnings,
	}

	if r.Err != nil {
		rec.Error = r.Err.Error()
	}

	return rec
}

// drainGuard hands out one slot per collection. A second drain of the same
// collection fails fast instead of waiting.
type drainGuard struct {
	mu    stdsync.Mutex
	slots map[collection.Ref]*semaphore.Weighted
}

func newDrainGuard() *drainGuard {
	return &drainGuard{slots: make(map[collection.Ref]*semaphore.Weighted)}
}

func (g *drainGuard) tryAcquire(ref collection.Ref) (release func(), ok bool) {
	g.mu.Lock()
	sem, exists := g.slots[ref]

	if !exists {
		sem = semaphore.NewWeighted(1)
		g.slots[ref] = sem
	}
	g.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}

	return func() { sem.Release(1) }, true
}

// drain runs the state machine for one collection.
type drain struct {
	e      *Engine
	ref    collection.Ref
	report *DrainReport
	logger *slog.Logger
}

// run executes Start → Paging → Completed | Failed. Stored cursors change
// only when a listing reaches its final page, or when the provider rejects
// the cursor.
func (d *drain) run(ctx context.Context) error {
	d.report.State = DrainStart

	cursor, err := d.e.store.GetCursor(ctx, d.ref)
	if err != nil {
		return err
	}

	d.logger.Debug("drain starting", slog.Bool("incremental", cursor != ""))

	err = d.pages(ctx, cursor)
	if !errors.Is(err, gcal.ErrInvalidCursor) {
		return err
	}

	d.logger.Warn("sync cursor rejected, restarting with full listing",
		slog.String("error", err.Error()),
	)

	if clearErr := d.e.store.ClearCursor(ctx, d.ref); clearErr != nil {
		return clearErr
	}

	d.report.FullResync = true
	d.report.State = DrainStart

	return d.pages(ctx, "")
}

// pages walks the listing from the first page. Records already merged by an
// earlier attempt are merged again harmlessly.
func (d *drain) pages(ctx context.Context, syncCursor string) error {
	d.report.State = DrainPaging

	var pageCursor string

	for n := 0; ; n++ {
		if n >= d.e.maxPages {
			return fmt.Errorf("%w: %d pages for %s", ErrPageLimit, d.e.maxPages, d.ref)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync: drain of %s canceled: %w", d.ref, err)
		}

		page, err := d.e.source.FetchPage(ctx, d.ref, syncCursor, pageCursor)
		if err != nil {
			return fmt.Errorf("sync: fetching page %d of %s: %w", n+1, d.ref, err)
		}

		d.report.Pages++
		d.report.Fetched += page.Len()

		if err := d.apply(ctx, page); err != nil {
			return err
		}

		if page.NextPageCursor == "" {
			return d.finish(ctx, page.NextSyncCursor)
		}

		pageCursor = page.NextPageCursor
	}
}

// finish stores the cursor of the final page, or clears the stored one when
// the provider did not issue any.
func (d *drain) finish(ctx context.Context, nextSync string) error {
	if nextSync == "" {
		d.logger.Warn("final page carried no sync cursor, next drain is a full listing")
		return d.e.store.ClearCursor(ctx, d.ref)
	}

	return d.e.store.SaveCursor(ctx, d.ref, nextSync)
}

// apply maps and merges every record of page. Only a foreign-key violation
// stops the page.
func (d *drain) apply(ctx context.Context, page *gcal.Page) error {
	now := d.e.nowFunc()

	for i := range page.Calendars {
		cal, err := MapCalendar(&page.Calendars[i], now)
		if err != nil {
			d.skip(err)
			continue
		}

		if !cal.Deleted {
			cal.SyncEnabled = d.e.Selection().Enabled(cal.ID)
		}

		outcome, err := d.e.store.MergeCalendar(ctx, cal)
		if err := d.merged(outcome, err, "calendar", cal.ID); err != nil {
			return err
		}
	}

	for i := range page.Events {
		ev, err := MapEvent(&page.Events[i], d.ref.CalendarID())
		if err != nil {
			d.skip(err)
			continue
		}

		outcome, err := d.e.store.MergeEvent(ctx, ev)
		if err := d.merged(outcome, err, "event", ev.ID); err != nil {
			return err
		}
	}

	return nil
}

func (d *drain) skip(err error) {
	d.report.Skipped++
	d.logger.Warn("skipping unmappable record", slog.String("error", err.Error()))
}

// merged books a merge result. Returns non-nil only for errors fatal to the
// drain.
func (d *drain) merged(outcome MergeOutcome, err error, kind, id string) error {
	if err == nil {
		d.report.count(outcome)
		return nil
	}

	if errors.Is(err, ErrForeignKeyViolation) {
		return err
	}

	d.report.Warnings++
	d.logger.Warn("merge failed, continuing",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.String("error", err.Error()),
	)

	return nil
}
