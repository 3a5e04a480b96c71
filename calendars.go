package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ultimaforsan/ultima/internal/sync"
)

func newCalendarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "List mirrored calendars",
		RunE:  runCalendars,
	}

	cmd.Flags().Bool("deleted", false, "include calendars removed upstream")

	return cmd
}

// calendarOutput is the JSON schema for one `calendars --json` entry.
type calendarOutput struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Color        string    `json:"color,omitempty"`
	AccessRole   string    `json:"access_role"`
	SyncEnabled  bool      `json:"sync_enabled"`
	LastSyncTime time.Time `json:"last_sync_time"`
	Deleted      bool      `json:"deleted,omitempty"`
}

func runCalendars(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	deleted, _ := cmd.Flags().GetBool("deleted")

	var cals []sync.Calendar

	err := withStore(cmd.Context(), cc, func(store *sync.SQLiteStore) error {
		list, err := store.ListCalendars(cmd.Context(), sync.ListOptions{IncludeDeleted: deleted})
		cals = list

		return err
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]calendarOutput, 0, len(cals))
		for i := range cals {
			out = append(out, newCalendarOutput(&cals[i]))
		}

		return printJSON(os.Stdout, out)
	}

	printCalendarsText(os.Stdout, cals, time.Now())

	return nil
}

func newCalendarOutput(c *sync.Calendar) calendarOutput {
	return calendarOutput{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		Color:        c.Color,
		AccessRole:   c.AccessRole.String(),
		SyncEnabled:  c.SyncEnabled,
		LastSyncTime: c.LastSyncTime,
		Deleted:      c.Deleted,
	}
}

func printCalendarsText(w io.Writer, cals []sync.Calendar, now time.Time) {
	if len(cals) == 0 {
		fmt.Fprintln(w, "No calendars mirrored yet. Run 'ultima sync'.")
		return
	}

	rows := make([][]string, 0, len(cals))

	for i := range cals {
		c := &cals[i]

		state := "selected"
		switch {
		case c.Deleted:
			state = "deleted"
		case !c.SyncEnabled:
			state = "skipped"
		}

		rows = append(rows, []string{c.ID, c.Name, c.AccessRole.String(), state, formatTime(c.LastSyncTime, now)})
	}

	printTable(w, []string{"ID", "NAME", "ROLE", "STATE", "LAST SYNC"}, rows)
}
