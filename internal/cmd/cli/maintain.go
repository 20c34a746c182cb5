package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmatresu/claimd/internal/reaper"
	"github.com/vmatresu/claimd/internal/resolver"
	"github.com/vmatresu/claimd/pkg/log"
)

// newSweepCommand constructs the `sweep` subcommand.
func newSweepCommand(logger log.Logger) *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release expired claims once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			olderThanMs, _ := cmd.Flags().GetInt64("older-than-ms")

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			var released int
			if olderThanMs > 0 {
				released, err = rt.Sweeper().SweepOlderThan(cmd.Context(), olderThanMs)
			} else {
				released, err = rt.Sweeper().Sweep(cmd.Context())
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "released %d\n", released)
			return nil
		},
	}
	sweepCmd.Flags().Int64("older-than-ms", 0, "Also release claims idle longer than this, ignoring their lease")
	return sweepCmd
}

// newResolveCommand constructs the `resolve` subcommand.
func newResolveCommand(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Promote items whose dependencies completed, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			promoted, err := rt.Resolver().Resolve(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "promoted %d\n", promoted)
			return nil
		},
	}
}

// newRunCommand constructs the `run` subcommand: the maintenance daemon.
func newRunCommand(logger log.Logger) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sweep and resolve loops until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sweepMs, _ := cmd.Flags().GetInt64("sweep-interval-ms")
			resolveMs, _ := cmd.Flags().GetInt64("resolve-interval-ms")

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := rt.Config()
			if sweepMs <= 0 {
				sweepMs = cfg.SweepIntervalMs
			}
			if resolveMs <= 0 {
				resolveMs = cfg.ResolveIntervalMs
			}

			sweepRunner := reaper.NewRunner(rt.Sweeper(), time.Duration(sweepMs)*time.Millisecond, logger)
			resolveRunner := resolver.NewRunner(rt.Resolver(), time.Duration(resolveMs)*time.Millisecond, logger)
			sweepRunner.Start()
			resolveRunner.Start()
			defer resolveRunner.Stop()
			defer sweepRunner.Stop()

			logger.Info("maintenance loops running",
				log.F("sweep_interval_ms", sweepMs),
				log.F("resolve_interval_ms", resolveMs))
			<-cmd.Context().Done()
			logger.Info("shutting down")
			return nil
		},
	}
	runCmd.Flags().Int64("sweep-interval-ms", 0, "Sweep cadence (default: config sweepIntervalMs)")
	runCmd.Flags().Int64("resolve-interval-ms", 0, "Resolve cadence (default: config resolveIntervalMs)")
	return runCmd
}
