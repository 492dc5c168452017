package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"voicelog/internal/platform"
)

type probeResult bool

func (p probeResult) IsOnline() bool { return bool(p) }

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync progress and backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := ctx.ensureConfig()
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			online := false
			if cfg.Backend.BaseURL != "" {
				probeCtx, cancel := contextWithTimeout(cmd, cfg.Connectivity.ProbeTimeout)
				online = a.apiClient().HealthCheck(probeCtx) == nil
				cancel()
			}

			summary, err := a.entryService(nil, probeResult(online)).SyncStatus(cmd.Context(), cfg.User.ID)
			if err != nil {
				return err
			}
			sys := platform.GetSystemInfo()

			rows := [][]string{
				{"Backend", cfg.Backend.BaseURL},
				{"Online", yesNo(summary.Online)},
				{"Pending", strconv.Itoa(summary.Pending)},
				{"Syncing", strconv.Itoa(summary.Syncing)},
				{"Failed", strconv.Itoa(summary.Failed)},
				{"Rejected", strconv.Itoa(summary.Rejected)},
				{"Synced", strconv.Itoa(summary.Synced)},
				{"Device", a.deviceID},
				{"Host", fmt.Sprintf("%s (%s/%s %s)", sys.Hostname, sys.OS, sys.Arch, sys.OSVersion)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"", ""}, rows, nil))
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
