package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmatresu/claimd/internal/backlog"
	"github.com/vmatresu/claimd/internal/coordinator"
	"github.com/vmatresu/claimd/pkg/log"
)

// newAddCommand constructs the `add` subcommand.
func newAddCommand(logger log.Logger) *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item to the backlog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			itemID, _ := cmd.Flags().GetString("id")
			kind, _ := cmd.Flags().GetString("kind")
			title, _ := cmd.Flags().GetString("title")
			priority, _ := cmd.Flags().GetInt32("priority")
			deps, _ := cmd.Flags().GetStringArray("dep")
			rawHeaders, _ := cmd.Flags().GetStringArray("header")

			headers, err := parseHeaders(rawHeaders)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			it, err := rt.Coordinator().Add(cmd.Context(), coordinator.AddRequest{
				ID:       itemID,
				Kind:     kind,
				Title:    title,
				Priority: priority,
				Deps:     deps,
				Headers:  headers,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s status=%s\n", it.ID, it.Status)
			return nil
		},
	}
	addCmd.Flags().String("id", "", "Item id (default: generated)")
	addCmd.Flags().String("kind", "", "Item kind, used as a claim filter")
	addCmd.Flags().String("title", "", "Human-readable title")
	addCmd.Flags().Int32("priority", 0, "Higher priority is claimed first")
	addCmd.Flags().StringArray("dep", nil, "Dependency item id (repeatable); any dep makes the item start blocked")
	addCmd.Flags().StringArray("header", nil, "Header key=value (repeatable)")
	return addCmd
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --header %q; use key=value", h)
		}
		headers[k] = v
	}
	return headers, nil
}

// newShowCommand constructs the `show` subcommand.
func newShowCommand(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one item as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			v, err := rt.Store().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(v.Item, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

// newListCommand constructs the `list` subcommand.
func newListCommand(logger log.Logger) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List items, optionally filtered by status or kind",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statusFlag, _ := cmd.Flags().GetString("status")
			kindFlag, _ := cmd.Flags().GetString("kind")
			if statusFlag != "" && !backlog.Status(statusFlag).Valid() {
				return fmt.Errorf("unknown status %q; use ready|claimed|completed|blocked", statusFlag)
			}

			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.Store().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			var items []*backlog.Item
			for _, v := range snap {
				if statusFlag != "" && string(v.Item.Status) != statusFlag {
					continue
				}
				if kindFlag != "" && v.Item.Kind != kindFlag {
					continue
				}
				items = append(items, v.Item)
			}
			sort.Slice(items, func(i, j int) bool {
				if items[i].Priority != items[j].Priority {
					return items[i].Priority > items[j].Priority
				}
				if items[i].Stamp != items[j].Stamp {
					return items[i].Stamp < items[j].Stamp
				}
				return items[i].ID < items[j].ID
			})
			for _, it := range items {
				line := fmt.Sprintf("%-24s %-10s prio=%-4d kind=%s", it.ID, it.Status, it.Priority, it.Kind)
				if it.Claimant != "" {
					line += " claimant=" + it.Claimant
				}
				if len(it.Deps) > 0 {
					line += " deps=" + strings.Join(it.Deps, ",")
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	listCmd.Flags().String("status", "", "Only items with this status")
	listCmd.Flags().String("kind", "", "Only items of this kind")
	return listCmd
}

// newStatsCommand constructs the `stats` subcommand.
func newStatsCommand(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Backlog counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.Store().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			counts := map[backlog.Status]int{}
			for _, v := range snap {
				counts[v.Item.Status]++
			}
			seq, err := rt.Store().Seq()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"items=%d ready=%d claimed=%d completed=%d blocked=%d proposals=%d\n",
				len(snap),
				counts[backlog.StatusReady],
				counts[backlog.StatusClaimed],
				counts[backlog.StatusCompleted],
				counts[backlog.StatusBlocked],
				seq)
			return nil
		},
	}
}
