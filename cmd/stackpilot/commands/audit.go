package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/orchestrator"
)

func newAuditCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "audit [tenant] [environment]",
		Short: "Show the audit trail",
		Long: `Show recorded lifecycle and administrative actions, newest first.

Without arguments the full trail is shown; with a tenant and environment
it is filtered to that deployment's stack.`,
		Args: cobra.MaximumNArgs(2),
		Example: `  # Everything
  stackpilot audit

  # One deployment's history
  stackpilot audit acme dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			var stackName string
			if len(args) == 2 {
				stackName = orchestrator.StackName(args[0], args[1])
			} else if len(args) == 1 {
				return fmt.Errorf("audit takes no arguments or both tenant and environment")
			}

			entries, err := a.store.ListAuditEntries(ctx, stackName, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(entries)
			}

			w := newTable()
			fmt.Fprintln(w, "TIME\tACTION\tACTOR\tSTACK\tDETAILS")
			for _, e := range entries {
				stack, details := "", ""
				if e.StackName != nil {
					stack = *e.StackName
				}
				if e.Details != nil {
					details = *e.Details
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Actor, stack, details)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")

	return cmd
}
