package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/orchestrator"
)

func newDeployCommand() *cobra.Command {
	var (
		wait         bool
		pollInterval time.Duration
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "deploy <tenant> <environment>",
		Short: "Deploy a tenant environment",
		Long: `Deploy infrastructure for a tenant environment.

The deployment is asynchronous: this command validates the request,
records it, and hands the environment configuration to the provisioning
backend. The backend runs the operation to completion on its own; use
"stackpilot status" (or --wait) to follow progress.

A tenant and a saved configuration for the environment must exist first.`,
		Args: cobra.ExactArgs(2),
		Example: `  # Trigger a deployment and return immediately
  stackpilot deploy acme dev

  # Trigger and poll until the backend finishes
  stackpilot deploy acme prod --wait`,
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
			d, err := orch.Deploy(ctx, tenantSlug, environment)
			if err != nil {
				return err
			}
			fmt.Printf("Deployment %s accepted (status: %s)\n", d.StackName, d.Status)

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

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the operation reaches a terminal status")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 15*time.Second, "polling interval with --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Minute, "maximum time to wait with --wait")

	return cmd
}

// waitForTerminal polls the reconciled status until the record leaves its
// in-flight statuses or the timeout elapses.
func waitForTerminal(ctx context.Context, orch *orchestrator.Orchestrator, tenantSlug, environment string, interval, timeout time.Duration) (*orchestrator.Deployment, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d, err := orch.SyncStatus(waitCtx, tenantSlug, environment)
		if err != nil {
			return nil, err
		}
		if !d.Status.InFlight() {
			return d, nil
		}

		fmt.Printf("Waiting... (status: %s)\n", d.Status)
		select {
		case <-waitCtx.Done():
			return d, fmt.Errorf("timed out waiting for %s/%s: last status %s",
				tenantSlug, environment, d.Status)
		case <-ticker.C:
		}
	}
}
