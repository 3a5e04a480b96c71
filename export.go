package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ultimaforsan/ultima/internal/export"
	"github.com/ultimaforsan/ultima/internal/sync"
)

// exportFilePermissions: owner rw, group/other r.
const exportFilePermissions = 0o644

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <calendar-id>",
		Short: "Export a mirrored calendar as an iCalendar (.ics) file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	cmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	cmd.Flags().String("from", "", "only events ending at or after this time")
	cmd.Flags().String("to", "", "only events starting before this time")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	q, err := eventQueryFromFlags(cmd)
	if err != nil {
		return err
	}

	q.IncludeDeleted = false

	output, _ := cmd.Flags().GetString("output")

	return withStore(cmd.Context(), cc, func(store *sync.SQLiteStore) error {
		if output == "" {
			_, err := exportCalendar(cmd.Context(), store, args[0], q, os.Stdout)
			return err
		}

		n, err := exportToFile(cmd.Context(), store, args[0], q, output)
		if err != nil {
			return err
		}

		cc.Statusf("Exported %d events to %s.\n", n, output)

		return nil
	})
}

func exportCalendar(ctx context.Context, store *sync.SQLiteStore, calendarID string, q sync.EventQuery, w io.Writer) (int, error) {
	cal, err := store.GetCalendar(ctx, calendarID)
	if err != nil {
		return 0, err
	}

	events, err := store.ListEvents(ctx, calendarID, q)
	if err != nil {
		return 0, err
	}

	ptrs := make([]*sync.Event, len(events))
	for i := range events {
		ptrs[i] = &events[i]
	}

	return export.WriteICS(w, cal, ptrs, export.Options{})
}

// exportToFile writes through a temp file and renames it into place so a
// reader never sees a partial feed.
func exportToFile(ctx context.Context, store *sync.SQLiteStore, calendarID string, q sync.EventQuery, path string) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ultima-export-*.ics")
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false

	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := exportCalendar(ctx, store, calendarID, q, tmp)
	if err != nil {
		return 0, err
	}

	if err := tmp.Chmod(exportFilePermissions); err != nil {
		return 0, fmt.Errorf("setting export file permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing export file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("renaming export file: %w", err)
	}

	success = true

	return n, nil
}
