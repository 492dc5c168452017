package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"voicelog/internal/apperr"
	"voicelog/internal/calendar"
	"voicelog/internal/models"
	"voicelog/internal/service"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sprint, cycle and project sessions",
	}
	cmd.AddCommand(newSessionStartCommand(ctx))
	cmd.AddCommand(newSessionShowCommand(ctx))
	cmd.AddCommand(newSessionListCommand(ctx))
	cmd.AddCommand(newSessionRescheduleCommand(ctx))
	cmd.AddCommand(newSessionFinishCommand(ctx, "complete", "Mark the session completed"))
	cmd.AddCommand(newSessionFinishCommand(ctx, "cancel", "Cancel the session"))
	cmd.AddCommand(newSessionLeaveCommand(ctx))
	return cmd
}

// withSessions opens the store and resolves the session id argument,
// defaulting to the user's active session.
func withSessions(cmd *cobra.Command, ctx *commandContext, args []string, fn func(a *app, id string) error) error {
	cfg, _ := ctx.ensureConfig()
	a, err := openApp(cfg, "warn")
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) > 0 {
		return fn(a, args[0])
	}
	current, err := a.sessions.CurrentSession(cmd.Context(), cfg.User.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("no active session; pass a session id")
	}
	if err != nil {
		return err
	}
	return fn(a, current.ID)
}

func newSessionStartCommand(ctx *commandContext) *cobra.Command {
	var sessionType, start, end string
	var leave []string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensureConfig()
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			req := service.StartSessionRequest{UserID: cfg.User.ID, Type: models.SessionType(sessionType)}
			if req.StartDate, err = dateFlag("start", start, a.cal.Today()); err != nil {
				return err
			}
			if req.PlannedEndDate, err = dateFlag("end", end, time.Time{}); err != nil {
				return err
			}
			for _, raw := range leave {
				d, err := dateFlag("leave", raw, time.Time{})
				if err != nil {
					return err
				}
				req.LeaveDates = append(req.LeaveDates, d)
			}

			session, err := a.sessions.StartSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printSession(cmd, a, session.ID, a.cal.Today())
		},
	}
	cmd.Flags().StringVarP(&sessionType, "type", "t", string(models.SessionSprint), "sprint, cycle, project or custom")
	cmd.Flags().StringVar(&start, "start", "", "Start date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&end, "end", "", "Planned end date, YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&leave, "leave", nil, "Leave dates, YYYY-MM-DD (repeatable)")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a session's progress (default: the active session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, ctx, args, func(a *app, id string) error {
				day, err := dateFlag("today", today, a.cal.Today())
				if err != nil {
					return err
				}
				return printSession(cmd, a, id, day)
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "Evaluate progress as of this date, YYYY-MM-DD")
	return cmd
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensureConfig()
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.sessions.ListSessions(cmd.Context(), cfg.User.ID, limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					s.Type.Label(),
					string(s.Status),
					calendar.FormatDate(s.StartDate),
					calendar.FormatDate(s.PlannedEndDate),
					s.ID,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Type", "Status", "Start", "Planned end", "ID"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list")
	return cmd
}

func newSessionRescheduleCommand(ctx *commandContext) *cobra.Command {
	var end string
	cmd := &cobra.Command{
		Use:   "reschedule [id]",
		Short: "Move the planned end date of an active session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, ctx, args, func(a *app, id string) error {
				newEnd, err := dateFlag("end", end, time.Time{})
				if err != nil {
					return err
				}
				if _, err := a.sessions.RescheduleEnd(cmd.Context(), id, newEnd); err != nil {
					return err
				}
				return printSession(cmd, a, id, a.cal.Today())
			})
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "New planned end date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newSessionFinishCommand(ctx *commandContext, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [id]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd, ctx, args, func(a *app, id string) error {
				finish := a.sessions.Complete
				if action == "cancel" {
					finish = a.sessions.Cancel
				}
				session, err := finish(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s\n", session.Type.Label(), session.ID, session.Status)
				return nil
			})
		},
	}
}

func newSessionLeaveCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var remove bool
	cmd := &cobra.Command{
		Use:   "leave <date>",
		Short: "Declare (or with --remove, withdraw) a leave day on the active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []string
			if sessionID != "" {
				ids = []string{sessionID}
			}
			return withSessions(cmd, ctx, ids, func(a *app, id string) error {
				date, err := dateFlag("date", args[0], time.Time{})
				if err != nil {
					return err
				}
				update := a.sessions.AddLeaveDate
				if remove {
					update = a.sessions.RemoveLeaveDate
				}
				if _, err := update(cmd.Context(), id, date); err != nil {
					return err
				}
				return printSession(cmd, a, id, a.cal.Today())
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: the active session)")
	cmd.Flags().BoolVar(&remove, "remove", false, "Withdraw the leave day instead of adding it")
	return cmd
}

func printSession(cmd *cobra.Command, a *app, id string, today time.Time) error {
	summary, err := a.sessions.Summary(cmd.Context(), id, today)
	if err != nil {
		return err
	}
	s, p := summary.Session, summary.Progress

	leave := make([]string, 0, len(s.LeaveDates))
	for _, d := range s.LeaveDates {
		leave = append(leave, calendar.FormatDate(d))
	}

	rows := [][]string{
		{"Session", fmt.Sprintf("%s (%s)", s.Type.Label(), s.Status)},
		{"Dates", calendar.FormatDate(s.StartDate) + " → " + calendar.FormatDate(s.PlannedEndDate)},
		{"Progress", fmt.Sprintf("%.0f%% (day %d of %d)", p.ProgressPercentage, p.DaysElapsed, p.DaysTotal)},
		{"Status", progressLabel(p)},
		{"Working days", strconv.Itoa(p.WorkingDays)},
		{"Leave", fmt.Sprintf("%d [%s]", p.LeaveDays, strings.Join(leave, ", "))},
		{"Entries", fmt.Sprintf("%d, %d min", summary.EntryCount, summary.TotalMinutes)},
		{"ID", s.ID},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"", ""}, rows, nil))
	return nil
}

func progressLabel(p models.SessionProgress) string {
	switch p.Status {
	case models.ProgressOverdue:
		return colorize(p.StatusText, text.Colors{text.FgRed})
	case models.ProgressNearEnd:
		return colorize(p.StatusText, text.Colors{text.FgYellow})
	default:
		return colorize(p.StatusText, text.Colors{text.FgGreen})
	}
}
