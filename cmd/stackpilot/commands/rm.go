package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/orchestrator"
)

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <tenant> <environment>",
		Short: "Remove a deployment record",
		Long: `Remove a deployment record.

This is record administration, not infrastructure teardown: only records
in a terminal deletable status (failed or destroyed) can be removed. Use
"stackpilot destroy" to tear infrastructure down first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			// Record administration never talks to the backend.
			orch := orchestrator.New(a.store, nil, a.configs, orchestrator.Options{
				Logger: a.logger,
			})
			defer orch.Close(ctx)

			if err := orch.Delete(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Deployment record %s removed\n", orchestrator.StackName(args[0], args[1]))
			return nil
		},
	}
}
