package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ultimaforsan/ultima/internal/sync"
)

const dateLayout = "2006-01-02"

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <calendar-id>",
		Short: "List mirrored events of a calendar",
		Long: `List the events of one calendar ordered by start time. --from and --to
accept a date (2006-01-02, local midnight) or an RFC 3339 timestamp and keep
events overlapping that range.`,
		Args: cobra.ExactArgs(1),
		RunE: runEvents,
	}

	cmd.Flags().String("from", "", "only events ending at or after this time")
	cmd.Flags().String("to", "", "only events starting before this time")
	cmd.Flags().Bool("deleted", false, "include events removed upstream")

	return cmd
}

// eventOutput is the JSON schema for one `events --json` entry.
type eventOutput struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"time_zone"`
	Source      string    `json:"source"`
	Updated     bool      `json:"updated"`
	Deleted     bool      `json:"deleted,omitempty"`
}

func runEvents(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	calendarID := args[0]

	q, err := eventQueryFromFlags(cmd)
	if err != nil {
		return err
	}

	var events []sync.Event

	err = withStore(cmd.Context(), cc, func(store *sync.SQLiteStore) error {
		if _, err := store.GetCalendar(cmd.Context(), calendarID); err != nil {
			return err
		}

		list, err := store.ListEvents(cmd.Context(), calendarID, q)
		events = list

		return err
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]eventOutput, 0, len(events))
		for i := range events {
			out = append(out, newEventOutput(&events[i]))
		}

		return printJSON(os.Stdout, out)
	}

	printEventsText(os.Stdout, events)

	return nil
}

func eventQueryFromFlags(cmd *cobra.Command) (sync.EventQuery, error) {
	var q sync.EventQuery

	q.IncludeDeleted, _ = cmd.Flags().GetBool("deleted")

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	var err error

	if q.From, err = parseTimeFlag("from", from); err != nil {
		return q, err
	}

	if q.To, err = parseTimeFlag("to", to); err != nil {
		return q, err
	}

	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fmt.Errorf("--to %s is before --from %s", to, from)
	}

	return q, nil
}

// parseTimeFlag accepts a date in the local zone or an RFC 3339 timestamp.
// An empty value yields the zero time.
func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.ParseInLocation(dateLayout, value, time.Local); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected %s or RFC 3339 timestamp, got %q", name, dateLayout, value)
	}

	return t, nil
}

func newEventOutput(e *sync.Event) eventOutput {
	return eventOutput{
		ID:          e.ID,
		CalendarID:  e.CalendarID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       e.Start,
		End:         e.End,
		TimeZone:    e.Start.Location().String(),
		Source:      e.Source.String(),
		Updated:     e.Updated,
		Deleted:     e.Deleted,
	}
}

func printEventsText(w io.Writer, events []sync.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}

	rows := make([][]string, 0, len(events))

	for i := range events {
		e := &events[i]

		flags := ""
		switch {
		case e.Deleted:
			flags = "deleted"
		case e.Updated:
			flags = "edited"
		}

		rows = append(rows, []string{formatEventSpan(e.Start, e.End), e.Title, e.Location, e.ID, flags})
	}

	printTable(w, []string{"WHEN", "TITLE", "LOCATION", "ID", "FLAGS"}, rows)
}

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <calendar-id> <event-id>",
		Short: "Edit a mirrored event locally",
		Long: `Change an event's mutable fields in the mirror and mark it as edited.
Later syncs keep the local values until the edit is pushed upstream.`,
		Args: cobra.ExactArgs(2),
		RunE: runEdit,
	}

	cmd.Flags().String("title", "", "new title")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().String("location", "", "new location")
	cmd.Flags().String("start", "", "new start (RFC 3339)")
	cmd.Flags().String("end", "", "new end (RFC 3339)")

	return cmd
}

func runEdit(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	calendarID, eventID := args[0], args[1]

	return withStore(cmd.Context(), cc, func(store *sync.SQLiteStore) error {
		ev, err := store.GetEvent(cmd.Context(), calendarID, eventID)
		if err != nil {
			return err
		}

		edit, err := applyEditFlags(cmd, ev)
		if err != nil {
			return err
		}

		if err := store.EditEvent(cmd.Context(), calendarID, eventID, edit); err != nil {
			return err
		}

		cc.Statusf("Edited %s/%s.\n", calendarID, eventID)

		return nil
	})
}

// applyEditFlags starts from the stored event and overrides the fields
// whose flags were set.
func applyEditFlags(cmd *cobra.Command, ev *sync.Event) (sync.EventEdit, error) {
	edit := sync.EventEdit{
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start,
		End:         ev.End,
	}

	flags := cmd.Flags()

	if flags.Changed("title") {
		edit.Title, _ = flags.GetString("title")
	}

	if flags.Changed("description") {
		edit.Description, _ = flags.GetString("description")
	}

	if flags.Changed("location") {
		edit.Location, _ = flags.GetString("location")
	}

	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{"start", &edit.Start}, {"end", &edit.End}} {
		if !flags.Changed(f.name) {
			continue
		}

		raw, _ := flags.GetString(f.name)

		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return edit, fmt.Errorf("--%s: expected RFC 3339 timestamp, got %q", f.name, raw)
		}

		*f.dst = t
	}

	return edit, nil
}
