package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ultimaforsan/ultima/internal/collection"
	"github.com/ultimaforsan/ultima/internal/sync"
)

// errPassIncomplete marks a run where at least one drain failed.
var errPassIncomplete = errors.New("sync finished with failed drains")

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [collection...]",
		Short: "Run one sync pass",
		Long: `Drain the calendar list and then the events of every selected calendar.

With arguments, drain only the named collections instead, for example
"calendars" or "events:primary".`,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	refs, err := parseRefs(args)
	if err != nil {
		return err
	}

	release, err := lockMirror(cc.Cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer release()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	session, err := newSyncSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer session.Close()

	return syncWithSession(ctx, cc, session, refs, os.Stdout)
}

func parseRefs(args []string) ([]collection.Ref, error) {
	refs := make([]collection.Ref, 0, len(args))

	for _, a := range args {
		ref, err := collection.Parse(a)
		if err != nil {
			return nil, err
		}

		refs = append(refs, ref)
	}

	return refs, nil
}

// syncWithSession runs a pass (no refs) or the named drains and prints the
// result.
func syncWithSession(ctx context.Context, cc *CLIContext, s *syncSession, refs []collection.Ref, w io.Writer) error {
	var report *sync.PassReport

	if len(refs) == 0 {
		var err error

		report, err = s.Engine.RunPass(ctx)
		if report == nil {
			return err
		}
	} else {
		report = drainRefs(ctx, s.Engine, refs)
	}

	if cc.Flags.JSON {
		if err := printJSON(w, newPassOutput(report)); err != nil {
			return err
		}
	} else if !cc.Flags.Quiet {
		printPassText(w, report)
	}

	if report.Err != nil {
		return report.Err
	}

	if n := len(report.FailedDrains()); n > 0 {
		return fmt.Errorf("%w: %d of %d", errPassIncomplete, n, countDrains(report))
	}

	return nil
}

// drainRefs drains each ref in order and folds the results into a report
// shaped like a pass.
func drainRefs(ctx context.Context, engine *sync.Engine, refs []collection.Ref) *sync.PassReport {
	report := &sync.PassReport{StartedAt: time.Now()}

	for _, ref := range refs {
		d, err := engine.Drain(ctx, ref)
		if d == nil {
			report.Err = err
			break
		}

		if ref.Kind() == collection.KindCalendars {
			report.Calendars = d
		} else {
			report.Events = append(report.Events, d)
		}

		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}
	}

	report.Duration = time.Since(report.StartedAt)

	return report
}

func countDrains(r *sync.PassReport) int {
	n := len(r.Events)
	if r.Calendars != nil {
		n++
	}

	return n
}

// passOutput is the JSON schema for `sync --json`.
type passOutput struct {
	StartedAt  time.Time     `json:"started_at"`
	DurationMS int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
	Drains     []drainOutput `json:"drains"`
}

type drainOutput struct {
	Collection string `json:"collection"`
	State      string `json:"state"`
	FullResync bool   `json:"full_resync"`
	Pages      int    `json:"pages"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Preserved  int    `json:"preserved"`
	Tombstoned int    `json:"tombstoned"`
	Ignored    int    `json:"ignored"`
	Skipped    int    `json:"skipped"`
	Warnings   int    `json:"warnings"`
	Error      string `json:"error,omitempty"`
}

func newPassOutput(r *sync.PassReport) passOutput {
	out := passOutput{
		StartedAt:  r.StartedAt.UTC(),
		DurationMS: r.Duration.Milliseconds(),
		Drains:     make([]drainOutput, 0, countDrains(r)),
	}

	if r.Err != nil {
		out.Error = r.Err.Error()
	}

	for _, d := range passDrains(r) {
		do := drainOutput{
			Collection: d.Collection.String(),
			State:      d.State.String(),
			FullResync: d.FullResync,
			Pages:      d.Pages,
			Fetched:    d.Fetched,
			Inserted:   d.Inserted,
			Updated:    d.Updated,
			Preserved:  d.Preserved,
			Tombstoned: d.Tombstoned,
			Ignored:    d.Ignored,
			Skipped:    d.Skipped,
			Warnings:   d.Warnings,
		}

		if d.Err != nil {
			do.Error = d.Err.Error()
		}

		out.Drains = append(out.Drains, do)
	}

	return out
}

func passDrains(r *sync.PassReport) []*sync.DrainReport {
	all := make([]*sync.DrainReport, 0, countDrains(r))
	if r.Calendars != nil {
		all = append(all, r.Calendars)
	}

	return append(all, r.Events...)
}

func printPassText(w io.Writer, r *sync.PassReport) {
	rows := make([][]string, 0, countDrains(r))

	for _, d := range passDrains(r) {
		note := ""

		switch {
		case d.Err != nil:
			note = d.Err.Error()
		case d.FullResync:
			note = "full resync"
		}

		rows = append(rows, []string{
			d.Collection.String(),
			d.State.String(),
			fmt.Sprint(d.Pages),
			fmt.Sprint(d.Fetched),
			fmt.Sprint(d.Merged()),
			fmt.Sprint(d.Skipped),
			note,
		})
	}

	printTable(w, []string{"COLLECTION", "STATE", "PAGES", "FETCHED", "MERGED", "SKIPPED", "NOTE"}, rows)

	fetched, merged, skipped, warnings := r.Totals()
	fmt.Fprintf(w, "\n%d fetched, %d merged, %d skipped, %d warnings in %s\n",
		fetched, merged, skipped, warnings, formatDuration(r.Duration))

	if r.Err != nil {
		fmt.Fprintf(w, "Pass aborted: %v\n", r.Err)
	}
}
