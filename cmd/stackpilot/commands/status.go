package commands

import (
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <tenant> <environment>",
		Short: "Show a deployment's reconciled status",
		Long: `Show the status of a deployment, reconciled against the backend.

When a remote operation is outstanding its current state is polled and
folded into the local record: a finished update becomes succeeded (with
outputs cached), a finished destroy becomes destroyed, a failed
operation becomes failed. If the backend is unreachable the last known
local status is shown unchanged.`,
		Args: cobra.ExactArgs(2),
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

			d, err := orch.SyncStatus(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printDeployment(d)
		},
	}
}
