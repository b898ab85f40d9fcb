package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newOutputsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "outputs <tenant> <environment>",
		Short: "Show a deployment's stack outputs",
		Long: `Show the output values of a successfully deployed environment, such as
the cluster endpoint and VPC id.

Outputs are cached locally on first success; when the cache is empty they
are fetched from the backend and cached for subsequent reads.`,
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

			outputs, err := orch.Outputs(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(outputs)
			}

			keys := make([]string, 0, len(outputs))
			for key := range outputs {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			w := newTable()
			for _, key := range keys {
				fmt.Fprintf(w, "%s:\t%v\n", key, outputs[key])
			}
			return w.Flush()
		},
	}
}
