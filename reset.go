package main

import (
	"github.com/spf13/cobra"

	"github.com/ultimaforsan/ultima/internal/collection"
	"github.com/ultimaforsan/ultima/internal/sync"
)

func newResetCursorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-cursor [collection]",
		Short: "Forget stored sync cursors so the next sync re-lists everything",
		Long: `Delete the stored sync cursor of one collection ("calendars" or
"events:<calendar-id>"), or of every collection when none is given. The next
drain of an affected collection performs a full listing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResetCursor,
	}
}

func runResetCursor(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	return withStore(cmd.Context(), cc, func(store *sync.SQLiteStore) error {
		if len(args) == 0 {
			n, err := store.ClearAllCursors(cmd.Context())
			if err != nil {
				return err
			}

			cc.Logger.Info("cleared all sync cursors", "count", n)
			cc.Statusf("Cleared %d sync cursors.\n", n)

			return nil
		}

		ref, err := collection.Parse(args[0])
		if err != nil {
			return err
		}

		if err := store.ClearCursor(cmd.Context(), ref); err != nil {
			return err
		}

		cc.Logger.Info("cleared sync cursor", "collection", ref.String())
		cc.Statusf("Cleared sync cursor for %s.\n", ref)

		return nil
	})
}
