package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"voicelog/internal/connectivity"
	"voicelog/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync sweep now (fails while the agent is serving)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Backend.BaseURL == "" {
				return fmt.Errorf("backend.base_url is not configured")
			}
			a, err := openApp(cfg, "warn")
			if err != nil {
				return err
			}
			defer a.Close()

			lock, err := a.lock()
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			if _, err := a.entryRepo.ResetSyncing(cmd.Context()); err != nil {
				return err
			}

			api := a.apiClient()
			probeCtx, cancel := contextWithTimeout(cmd, cfg.Connectivity.ProbeTimeout)
			err = api.HealthCheck(probeCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("backend unreachable: %w", err)
			}

			monitor := connectivity.NewMonitor(true, 0, a.log.Logger)
			defer monitor.Close()
			engine := syncer.NewEngine(a.entryRepo, api, monitor, a.clock, syncer.Config{
				BaseBackoff:   cfg.Sync.BaseBackoff,
				MaxBackoff:    cfg.Sync.MaxBackoff,
				StuckTimeout:  cfg.Sync.StuckTimeout,
				SubmitTimeout: cfg.Backend.Timeout,
				Concurrency:   cfg.Sync.Concurrency,
				BatchSize:     cfg.Sync.BatchSize,
				DeviceID:      a.deviceID,
			}, nil, a.log.Logger)

			result, err := engine.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Attempted", "Synced", "Failed", "Rejected"},
				[][]string{{
					strconv.Itoa(result.Attempted),
					strconv.Itoa(result.Synced),
					strconv.Itoa(result.Failed),
					strconv.Itoa(result.Rejected),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
