package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDestroyCommand() *cobra.Command {
	var (
		confirm      bool
		wait         bool
		pollInterval time.Duration
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "destroy <tenant> <environment>",
		Short: "Destroy a tenant environment",
		Long: `Tear down the infrastructure of a tenant environment.

Destruction is asynchronous and irreversible; it requires --confirm.
The deployment record survives destruction as history until removed with
"stackpilot rm".`,
		Args: cobra.ExactArgs(2),
		Example: `  # Destroy with confirmation
  stackpilot destroy acme dev --confirm

  # Destroy and poll until finished
  stackpilot destroy acme dev --confirm --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}

			tenantSlug, environment := args[0], args[1]
			d, err := orch.Destroy(ctx, tenantSlug, environment, confirm)
			if err != nil {
				return err
			}
			fmt.Printf("Destruction of %s accepted (status: %s)\n", d.StackName, d.Status)

			// Drain the queue so the remote trigger lands before we exit.
			if err := orch.Close(ctx); err != nil {
				return err
			}

			if wait {
				d, err = waitForTerminal(ctx, orch, tenantSlug, environment, pollInterval, timeout)
				if err != nil {
					return err
				}
			} else {
				d, err = orch.SyncStatus(ctx, tenantSlug, environment)
				if err != nil {
					return err
				}
			}

			return printDeployment(d)
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the destruction")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the operation reaches a terminal status")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 15*time.Second, "polling interval with --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Minute, "maximum time to wait with --wait")

	return cmd
}
