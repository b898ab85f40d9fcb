package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	var tenantSlug string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Long: `List deployment records, optionally filtered by tenant.

Listing reads local records only; it does not reconcile against the
backend. Use "stackpilot status" on individual deployments for a
reconciled view.`,
		Example: `  # All deployments
  stackpilot list

  # One tenant's deployments
  stackpilot list --tenant acme`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			records, err := a.store.ListDeployments(ctx, tenantSlug)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}

			w := newTable()
			fmt.Fprintln(w, "STACK\tTENANT\tENV\tSTATUS\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.StackName, r.TenantSlug, r.Environment, r.Status,
					r.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&tenantSlug, "tenant", "t", "", "filter by tenant slug")

	return cmd
}
