package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ultimaforsan/ultima/internal/sync"
	"github.com/ultimaforsan/ultima/internal/tokenfile"
)

// Token state constants for status reporting.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStateValid   = "valid"
	tokenStateInvalid = "unreadable"
)

// defaultRunHistory is how many recent drains status prints.
const defaultRunHistory = 10

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show token, mirror, cursor, and run history status",
		RunE:  runStatus,
	}

	cmd.Flags().Int("runs", defaultRunHistory, "number of recent drains to show")

	return cmd
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	TokenState    string         `json:"token_state"`
	TokenExpiry   *time.Time     `json:"token_expiry,omitempty"`
	DBPath        string         `json:"db_path"`
	SchemaVersion int64          `json:"schema_version"`
	WatcherPID    int            `json:"watcher_pid,omitempty"`
	Stats         statusStats    `json:"stats"`
	Cursors       []statusCursor `json:"cursors"`
	Runs          []statusRun    `json:"runs"`
}

type statusStats struct {
	Calendars   int `json:"calendars"`
	SyncEnabled int `json:"sync_enabled"`
	Events      int `json:"events"`
	DirtyEvents int `json:"dirty_events"`
	Tombstones  int `json:"tombstones"`
}

type statusCursor struct {
	Collection string    `json:"collection"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type statusRun struct {
	Collection string    `json:"collection"`
	State      string    `json:"state"`
	FullResync bool      `json:"full_resync"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Fetched    int       `json:"fetched"`
	Merged     int       `json:"merged"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	runs, _ := cmd.Flags().GetInt("runs")

	out, err := buildStatus(cmd.Context(), cc, runs)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	printStatusText(os.Stdout, out, time.Now())

	return nil
}

func buildStatus(ctx context.Context, cc *CLIContext, runLimit int) (*statusOutput, error) {
	out := &statusOutput{DBPath: cc.Cfg.Store.DBPath}
	out.TokenState, out.TokenExpiry = tokenState(cc.Cfg.Google.TokenFile, time.Now())

	if proc, err := liveDaemon(pidFilePath(cc.Cfg.Store.DBPath)); err == nil {
		out.WatcherPID = proc.Pid
	}

	store, err := openStore(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	out.SchemaVersion = store.SchemaVersion()

	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	out.Stats = statusStats{
		Calendars:   stats.Calendars,
		SyncEnabled: stats.SyncEnabled,
		Events:      stats.Events,
		DirtyEvents: stats.DirtyEvents,
		Tombstones:  stats.Tombstones,
	}

	cursors, err := store.ListCursors(ctx)
	if err != nil {
		return nil, err
	}

	out.Cursors = make([]statusCursor, 0, len(cursors))
	for _, c := range cursors {
		out.Cursors = append(out.Cursors, statusCursor{Collection: c.Collection.String(), UpdatedAt: c.UpdatedAt})
	}

	records, err := store.ListRuns(ctx, runLimit)
	if err != nil {
		return nil, err
	}

	out.Runs = make([]statusRun, 0, len(records))
	for i := range records {
		out.Runs = append(out.Runs, newStatusRun(&records[i]))
	}

	return out, nil
}

func newStatusRun(r *sync.RunRecord) statusRun {
	return statusRun{
		Collection: r.Collection,
		State:      r.State.String(),
		FullResync: r.FullResync,
		StartedAt:  r.StartedAt,
		DurationMS: r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		Fetched:    r.Fetched,
		Merged:     r.Merged,
		Skipped:    r.Skipped,
		Error:      r.Error,
	}
}

// tokenState classifies the saved token. A token with a refresh token never
// counts as expired because the client renews it on demand.
func tokenState(path string, now time.Time) (string, *time.Time) {
	tf, err := tokenfile.Load(path)

	switch {
	case err != nil:
		return tokenStateInvalid, nil
	case tf == nil:
		return tokenStateMissing, nil
	}

	var expiry *time.Time
	if !tf.Token.Expiry.IsZero() {
		e := tf.Token.Expiry
		expiry = &e
	}

	if tf.Token.RefreshToken == "" && expiry != nil && now.After(*expiry) {
		return tokenStateExpired, expiry
	}

	return tokenStateValid, expiry
}

func printStatusText(w io.Writer, s *statusOutput, now time.Time) {
	fmt.Fprintf(w, "Token:     %s\n", s.TokenState)
	fmt.Fprintf(w, "Database:  %s (schema v%d)\n", s.DBPath, s.SchemaVersion)

	if s.WatcherPID != 0 {
		fmt.Fprintf(w, "Watcher:   running (PID %d)\n", s.WatcherPID)
	} else {
		fmt.Fprintf(w, "Watcher:   not running\n")
	}

	fmt.Fprintf(w, "Calendars: %d (%d selected)\n", s.Stats.Calendars, s.Stats.SyncEnabled)
	fmt.Fprintf(w, "Events:    %d (%d edited locally, %d tombstones)\n",
		s.Stats.Events, s.Stats.DirtyEvents, s.Stats.Tombstones)

	if len(s.Cursors) > 0 {
		fmt.Fprintln(w)

		rows := make([][]string, 0, len(s.Cursors))
		for _, c := range s.Cursors {
			rows = append(rows, []string{c.Collection, formatTime(c.UpdatedAt, now)})
		}

		printTable(w, []string{"CURSOR", "UPDATED"}, rows)
	}

	if len(s.Runs) > 0 {
		fmt.Fprintln(w)

		rows := make([][]string, 0, len(s.Runs))
		for _, r := range s.Runs {
			rows = append(rows, []string{
				formatTime(r.StartedAt, now),
				r.Collection,
				r.State,
				fmt.Sprint(r.Fetched),
				fmt.Sprint(r.Merged),
				r.Error,
			})
		}

		printTable(w, []string{"STARTED", "COLLECTION", "STATE", "FETCHED", "MERGED", "ERROR"}, rows)
	}
}
