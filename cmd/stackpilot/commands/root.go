package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	settingsPath string
	verbose      bool
	jsonOutput   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stackpilot",
		Short: "StackPilot - Tenant Infrastructure Control Plane",
		Long: `StackPilot provisions and manages per-tenant cloud environments through
a remote provisioning backend.

Each (tenant, environment) pair owns one deployment: a dedicated VPC and
Kubernetes cluster in the tenant's own AWS account, created via a
cross-account role. Operations run asynchronously on the backend; the
local record tracks their lifecycle and caches stack outputs.

Features:
  - Tenant onboarding with cross-account trust material
  - Versioned environment configuration with validation
  - Policy guardrails evaluated before every deployment
  - Asynchronous deploy/destroy with status reconciliation
  - Full audit trail of lifecycle actions`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newTenantCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newOutputsCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newRmCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}
