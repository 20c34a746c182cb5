package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vmatresu/claimd/internal/coordinator"
	"github.com/vmatresu/claimd/internal/worker"
	"github.com/vmatresu/claimd/pkg/log"
)

// newWorkCommand constructs the `work` subcommand.
func newWorkCommand(logger log.Logger) *cobra.Command {
	workCmd := &cobra.Command{
		Use:   "work [flags] -- <command> [args...]",
		Short: "Claim items and run a command per item",
		Long: `Work claims items and runs the given command once per item, with the
item exposed through CLAIMD_ITEM_* environment variables. A zero exit
completes the item; a non-zero exit releases it and stops the worker. By
default the worker drains the backlog and exits; --once processes a single
item (exit code 2 when nothing is claimable).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workerID, _ := cmd.Flags().GetString("worker")
			kind, _ := cmd.Flags().GetString("kind")
			expr, _ := cmd.Flags().GetString("filter")
			leaseMs, _ := cmd.Flags().GetInt64("lease-ms")
			once, _ := cmd.Flags().GetBool("once")

			if len(args) == 0 {
				return errors.New("missing command; usage: claimd work [flags] -- <command> [args...]")
			}

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if leaseMs <= 0 {
				leaseMs = rt.Config().DefaultLeaseMs
			}
			w := worker.New(worker.Options{
				Coordinator: rt.Coordinator(),
				Handler:     &worker.ExecHandler{Argv: args, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()},
				Logger:      logger,
				ID:          workerID,
				Filter:      coordinator.Filter{Kind: kind, Expr: expr},
				LeaseMs:     leaseMs,
			})

			if once {
				return w.RunOnce(cmd.Context())
			}
			if err := w.Run(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "backlog drained")
			return nil
		},
	}
	workCmd.Flags().StringP("worker", "w", "", "Worker id (default: generated)")
	workCmd.Flags().String("kind", "", "Only claim items of this kind")
	workCmd.Flags().String("filter", "", "CEL expression over id, kind, title, priority, headers, age_ms")
	workCmd.Flags().Int64("lease-ms", 0, "Lease length in ms (default: config defaultLeaseMs)")
	workCmd.Flags().Bool("once", false, "Process one item and exit")
	return workCmd
}
