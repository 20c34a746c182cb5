// Package cli contains the Cobra commands for claimd.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/vmatresu/claimd/internal/config"
	"github.com/vmatresu/claimd/internal/runtime"
	"github.com/vmatresu/claimd/pkg/log"
)

// NewRootCommand constructs the claimd root command.
func NewRootCommand(logger log.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "claimd",
		Short: "claimd coordinates task claiming across workers",
		Long: `claimd is a shared backlog with claim coordination.

Workers race to claim ready items; the store accepts exactly one claim per
item, losers re-observe and retry. Claims carry leases kept alive by
heartbeats, a reaper returns abandoned items to the pool, and blocked items
unlock once their dependencies complete.

Item Lifecycle:
  Blocked → [Resolve] → Ready → [Claim] → Claimed → [Complete] → Completed
                          ↑                  ↓ (release / lease expiry)
                          └──────────────────┘

Backlog:
  add         Add an item (items with deps start blocked)
  show        Show one item
  list        List items, optionally by status
  stats       Backlog counters

Claim Protocol:
  claim       Claim the best ready item
  renew       Heartbeat a held item
  complete    Mark a held item done (terminal)
  release     Give a held item back

Maintenance:
  sweep       Release expired claims once
  resolve     Promote unblocked items once
  run         Run the sweep and resolve loops until interrupted

Workers:
  work        Claim items and run a command per item`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default: OS-specific application data directory)")

	rootCmd.AddCommand(
		newAddCommand(logger),
		newShowCommand(logger),
		newListCommand(logger),
		newStatsCommand(logger),
		newClaimCommand(logger),
		newRenewCommand(logger),
		newCompleteCommand(logger),
		newReleaseCommand(logger),
		newSweepCommand(logger),
		newResolveCommand(logger),
		newRunCommand(logger),
		newWorkCommand(logger),
	)
	return rootCmd
}

// loadConfig builds the effective config: file, then CLAIMD_* env, then
// flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfgpkg.FromEnv(&cfg)
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// openRuntime opens the backlog for one command invocation.
func openRuntime(cmd *cobra.Command, logger log.Logger) (*runtime.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return runtime.Open(runtime.Options{Config: cfg, Logger: logger})
}
