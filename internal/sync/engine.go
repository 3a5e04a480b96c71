package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	stdsync "sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ultimaforsan/ultima/internal/collection"
)

// DefaultMaxPages caps a single drain. Listings that never terminate fail
// instead of spinning.
const DefaultMaxPages = 10000

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Source    ListingSource // satisfied by *gcal.Client
	Store     Store         // satisfied by *SQLiteStore
	Selection Selection
	MaxPages  int // zero means DefaultMaxPages
	Logger    *slog.Logger

	// OnPassComplete, if set, is called after every pass with its report,
	// successful or not.
	OnPassComplete func(ctx context.Context, report *PassReport)
}

// Selection decides which calendars have their events mirrored. An empty
// Include means every calendar; Skip always wins.
type Selection struct {
	Include []string
	Skip    []string
}

// Enabled reports whether calendarID's events should be synced.
func (s Selection) Enabled(calendarID string) bool {
	if slices.Contains(s.Skip, calendarID) {
		return false
	}

	return len(s.Include) == 0 || slices.Contains(s.Include, calendarID)
}

// PassReport summarizes one pass: the calendar drain followed by one event
// drain per enabled calendar.
type PassReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Calendars *DrainReport
	Events    []*DrainReport
	Err       error
}

// FailedDrains returns the drains that ended Failed.
func (r *PassReport) FailedDrains() []*DrainReport {
	var out []*DrainReport

	if r.Calendars != nil && r.Calendars.State == DrainFailed {
		out = append(out, r.Calendars)
	}

	for _, d := range r.Events {
		if d.State == DrainFailed {
			out = append(out, d)
		}
	}

	return out
}

// Totals sums record counts over every drain of the pass.
func (r *PassReport) Totals() (fetched, merged, skipped, warnings int) {
	all := r.Events
	if r.Calendars != nil {
		all = append([]*DrainReport{r.Calendars}, all...)
	}

	for _, d := range all {
		fetched += d.Fetched
		merged += d.Merged()
		skipped += d.Skipped
		warnings += d.Warnings
	}

	return fetched, merged, skipped, warnings
}

// Engine drains remote listings into the store. One pass runs at a time and
// drains run sequentially within it.
type Engine struct {
	source   ListingSource
	store    Store
	logger   *slog.Logger
	maxPages int
	onPass   func(ctx context.Context, report *PassReport)
	nowFunc  func() time.Time // injectable for deterministic tests

	pass   *semaphore.Weighted
	drains *drainGuard

	selMu     stdsync.RWMutex
	selection Selection
}

// NewEngine wires an Engine. Source and Store are required.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg.Source == nil || cfg.Store == nil {
		return nil, errors.New("sync: engine requires a listing source and a store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	return &Engine{
		source:    cfg.Source,
		store:     cfg.Store,
		logger:    logger,
		maxPages:  maxPages,
		onPass:    cfg.OnPassComplete,
		nowFunc:   time.Now,
		pass:      semaphore.NewWeighted(1),
		drains:    newDrainGuard(),
		selection: cfg.Selection,
	}, nil
}

// SetSelection replaces the calendar selection used by later drains.
func (e *Engine) SetSelection(sel Selection) {
	e.selMu.Lock()
	defer e.selMu.Unlock()

	e.selection = sel
}

// Selection returns the calendar selection in effect.
func (e *Engine) Selection() Selection {
	e.selMu.RLock()
	defer e.selMu.RUnlock()

	return e.selection
}

// Drain walks one collection to completion and merges every record. The
// returned report is non-nil unless the drain could not start
// (ErrDrainInProgress); its State is Completed or Failed. Every finished
// drain is appended to the run history.
func (e *Engine) Drain(ctx context.Context, ref collection.Ref) (*DrainReport, error) {
	release, ok := e.drains.tryAcquire(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDrainInProgress, ref)
	}
	defer release()

	logger := e.logger.With(slog.String("collection", ref.String()))
	d := &drain{
		e:      e,
		ref:    ref,
		logger: logger,
		report: &DrainReport{Collection: ref, StartedAt: e.nowFunc()},
	}

	err := d.run(ctx)

	d.report.FinishedAt = e.nowFunc()

	if err != nil {
		d.report.State = DrainFailed
		d.report.Err = err
		logger.Error("drain failed",
			slog.Int("pages", d.report.Pages),
			slog.Int("merged", d.report.Merged()),
			slog.String("error", err.Error()),
		)
	} else {
		d.report.State = DrainCompleted
		logger.Info("drain completed",
			slog.Int("pages", d.report.Pages),
			slog.Int("fetched", d.report.Fetched),
			slog.Int("merged", d.report.Merged()),
			slog.Int("skipped", d.report.Skipped),
			slog.Int("warnings", d.report.Warnings),
			slog.Bool("full_resync", d.report.FullResync),
		)
	}

	// History is written even for canceled drains.
	if recErr := e.store.RecordRun(context.WithoutCancel(ctx), d.report.runRecord()); recErr != nil {
		logger.Warn("failed to record run", slog.String("error", recErr.Error()))
	}

	return d.report, err
}

// RunPass drains the calendar list, then the events of every enabled
// calendar in turn. A failed calendar drain ends the pass. A failed event
// drain is reported and the pass moves on, except for foreign-key
// violations and cancellation, which end it.
func (e *Engine) RunPass(ctx context.Context) (*PassReport, error) {
	if !e.pass.TryAcquire(1) {
		return nil, ErrPassInProgress
	}
	defer e.pass.Release(1)

	report := &PassReport{StartedAt: e.nowFunc()}

	err := e.runPass(ctx, report)

	report.Duration = e.nowFunc().Sub(report.StartedAt)
	report.Err = err

	if e.onPass != nil {
		e.onPass(context.WithoutCancel(ctx), report)
	}

	return report, err
}

func (e *Engine) runPass(ctx context.Context, report *PassReport) error {
	e.logger.Info("sync pass starting")

	calReport, err := e.Drain(ctx, collection.Calendars())
	report.Calendars = calReport

	if err != nil {
		return fmt.Errorf("sync: draining calendars: %w", err)
	}

	cals, err := e.store.ListCalendars(ctx, ListOptions{})
	if err != nil {
		return err
	}

	sel := e.Selection()

	for i := range cals {
		if enabled := sel.Enabled(cals[i].ID); enabled != cals[i].SyncEnabled {
			if err := e.store.SetSyncEnabled(ctx, cals[i].ID, enabled); err != nil {
				return err
			}

			cals[i].SyncEnabled = enabled
		}

		if !cals[i].SyncEnabled {
			e.logger.Debug("calendar not selected, skipping events",
				slog.String("calendar_id", cals[i].ID),
			)

			continue
		}

		evReport, err := e.Drain(ctx, collection.Events(cals[i].ID))
		if evReport != nil {
			report.Events = append(report.Events, evReport)
		}

		if err == nil {
			continue
		}

		if errors.Is(err, ErrForeignKeyViolation) || ctx.Err() != nil {
			return fmt.Errorf("sync: draining events of %s: %w", cals[i].ID, err)
		}
	}

	fetched, merged, skipped, warnings := report.Totals()
	e.logger.Info("sync pass finished",
		slog.Int("calendars", len(cals)),
		slog.Int("event_drains", len(report.Events)),
		slog.Int("failed_drains", len(report.FailedDrains())),
		slog.Int("fetched", fetched),
		slog.Int("merged", merged),
		slog.Int("skipped", skipped),
		slog.Int("warnings", warnings),
	)

	return nil
}
