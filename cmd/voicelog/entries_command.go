package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"voicelog/internal/models"
)

func newEntriesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect and manage captured entries",
	}
	cmd.AddCommand(newEntriesListCommand(ctx))
	cmd.AddCommand(newEntriesAddCommand(ctx))
	cmd.AddCommand(newEntriesRetryCommand(ctx))
	cmd.AddCommand(newEntriesDeleteCommand(ctx))
	return cmd
}

func newEntriesListCommand(ctx *commandContext) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries captured between two dates (default today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensureConfig()
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			start, err := dateFlag("from", from, a.cal.Today())
			if err != nil {
				return err
			}
			end, err := dateFlag("to", to, start)
			if err != nil {
				return err
			}

			entries, err := a.entryService(nil, nil).ListEntries(cmd.Context(), cfg.User.ID, start, end)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entries.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			total := 0
			for _, e := range entries {
				total += e.DurationMinutes
				rows = append(rows, []string{
					e.CreatedAt.In(a.cal.Location()).Format("2006-01-02 15:04"),
					truncate(e.RawText, 60),
					strconv.Itoa(e.DurationMinutes),
					syncLabel(e),
					e.ID,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Captured", "Text", "Min", "Sync", "ID"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d minutes\n", len(entries), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last date, YYYY-MM-DD")
	return cmd
}

func newEntriesAddCommand(ctx *commandContext) *cobra.Command {
	var duration int
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Record an entry from text, as if it had been dictated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensureConfig()
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.entryService(nil, nil).CaptureEntry(cmd.Context(), strings.Join(args, " "), cfg.User.ID, duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d min)\n", entry.ID, entry.DurationMinutes)
			return nil
		},
	}
	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "Minutes spent; defaults to capture.default_duration_minutes")
	return cmd
}

func newEntriesRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Queue a failed or rejected entry for another sync attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensureConfig()
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.entryService(nil, nil).RetryEntry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", entry.ID, entry.SyncState)
			return nil
		},
	}
}

func newEntriesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensureConfig()
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.entryService(nil, nil).DeleteEntry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func syncLabel(e *models.Entry) string {
	switch {
	case e.SyncState == models.SyncSynced:
		return colorize("synced", text.Colors{text.FgGreen})
	case e.SyncState == models.SyncFailed && e.Rejected:
		return colorize("rejected", text.Colors{text.FgRed})
	case e.SyncState == models.SyncFailed:
		return colorize(fmt.Sprintf("failed (%d)", e.Attempts), text.Colors{text.FgYellow})
	default:
		return string(e.SyncState)
	}
}
