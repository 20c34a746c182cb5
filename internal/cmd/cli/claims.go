package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vmatresu/claimd/internal/coordinator"
	"github.com/vmatresu/claimd/pkg/log"
)

// newClaimCommand constructs the `claim` subcommand.
func newClaimCommand(logger log.Logger) *cobra.Command {
	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the best ready item",
		Long: `Claim takes ownership of the highest-priority ready item passing the
filter and prints it as JSON. Exit code 2 means no claimable work, 3 means
every attempt lost the race.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workerID, _ := cmd.Flags().GetString("worker")
			kind, _ := cmd.Flags().GetString("kind")
			expr, _ := cmd.Flags().GetString("filter")
			leaseMs, _ := cmd.Flags().GetInt64("lease-ms")

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if leaseMs <= 0 {
				leaseMs = rt.Config().DefaultLeaseMs
			}
			it, err := rt.Coordinator().Claim(cmd.Context(), workerID, coordinator.Filter{Kind: kind, Expr: expr}, leaseMs)
			if err != nil {
				return err
			}
			b, err := json.Marshal(it)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	claimCmd.Flags().StringP("worker", "w", "", "Worker id claiming the item")
	claimCmd.Flags().String("kind", "", "Only claim items of this kind")
	claimCmd.Flags().String("filter", "", "CEL expression over id, kind, title, priority, headers, age_ms")
	claimCmd.Flags().Int64("lease-ms", 0, "Lease length in ms (default: config defaultLeaseMs)")
	_ = claimCmd.MarkFlagRequired("worker")
	return claimCmd
}

// newRenewCommand constructs the `renew` subcommand.
func newRenewCommand(logger log.Logger) *cobra.Command {
	renewCmd := &cobra.Command{
		Use:   "renew <item-id>",
		Short: "Heartbeat a held item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workerID, _ := cmd.Flags().GetString("worker")
			leaseMs, _ := cmd.Flags().GetInt64("lease-ms")

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			expiresMs, err := rt.Coordinator().Renew(cmd.Context(), args[0], workerID, leaseMs)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "renewed %s expires_at_ms=%d\n", args[0], expiresMs)
			return nil
		},
	}
	renewCmd.Flags().StringP("worker", "w", "", "Worker id holding the item")
	renewCmd.Flags().Int64("lease-ms", 0, "Also replace the lease length (0 keeps it)")
	_ = renewCmd.MarkFlagRequired("worker")
	return renewCmd
}

// newCompleteCommand constructs the `complete` subcommand.
func newCompleteCommand(logger log.Logger) *cobra.Command {
	completeCmd := &cobra.Command{
		Use:   "complete <item-id>",
		Short: "Mark a held item done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workerID, _ := cmd.Flags().GetString("worker")
			ref, _ := cmd.Flags().GetString("ref")

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Coordinator().Complete(cmd.Context(), args[0], workerID, ref); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "completed %s\n", args[0])
			return nil
		},
	}
	completeCmd.Flags().StringP("worker", "w", "", "Worker id holding the item")
	completeCmd.Flags().String("ref", "", "Pointer to the produced result")
	_ = completeCmd.MarkFlagRequired("worker")
	return completeCmd
}

// newReleaseCommand constructs the `release` subcommand.
func newReleaseCommand(logger log.Logger) *cobra.Command {
	releaseCmd := &cobra.Command{
		Use:   "release <item-id>",
		Short: "Give a held item back to the ready pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workerID, _ := cmd.Flags().GetString("worker")

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Coordinator().Release(cmd.Context(), args[0], workerID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
			return nil
		},
	}
	releaseCmd.Flags().StringP("worker", "w", "", "Worker id holding the item")
	_ = releaseCmd.MarkFlagRequired("worker")
	return releaseCmd
}
