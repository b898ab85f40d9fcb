package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/tenants"
)

func newTenantCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant onboarding and management",
		Long: `Manage tenants: the owners of deployed environments.

Onboarding a tenant records its target AWS account and region and mints
the cross-account trust material (platform role ARN and external id) the
provisioning backend uses to assume into the account.`,
	}

	cmd.AddCommand(newTenantAddCommand())
	cmd.AddCommand(newTenantListCommand())
	cmd.AddCommand(newTenantGetCommand())
	cmd.AddCommand(newTenantRmCommand())

	return cmd
}

func newTenantAddCommand() *cobra.Command {
	var req tenants.CreateRequest

	cmd := &cobra.Command{
		Use:   "add <slug>",
		Short: "Onboard a new tenant",
		Args:  cobra.ExactArgs(1),
		Example: `  # Onboard a tenant into account 123456789012
  stackpilot tenant add acme --name "Acme Corp" --account 123456789012 --region eu-west-1

  # Use a non-standard platform role
  stackpilot tenant add acme --name "Acme Corp" --account 123456789012 \
    --region eu-west-1 --role-arn arn:aws:iam::123456789012:role/CustomRole`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			req.Slug = args[0]
			tenant, err := a.tenantService().Create(ctx, req)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(tenant)
			}
			fmt.Printf("Tenant %s onboarded\n", tenant.Slug)
			fmt.Printf("  Role ARN:    %s\n", tenant.RoleARN)
			fmt.Printf("  External ID: %s\n", tenant.ExternalID)
			fmt.Println("Grant the role a trust policy requiring this external id before deploying.")
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "tenant display name")
	cmd.Flags().StringVar(&req.AWSAccountID, "account", "", "tenant AWS account id (12 digits)")
	cmd.Flags().StringVar(&req.Region, "region", "", "tenant home region")
	cmd.Flags().StringVar(&req.RoleARN, "role-arn", "", "override the derived platform role ARN")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("region")

	return cmd
}

func newTenantListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			all, err := a.tenantService().List(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(all)
			}
			w := newTable()
			fmt.Fprintln(w, "SLUG\tNAME\tACCOUNT\tREGION\tCREATED")
			for _, t := range all {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.Slug, t.Name, t.AWSAccountID, t.Region, t.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func newTenantGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <slug>",
		Short: "Show a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			tenant, err := a.tenantService().Get(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(tenant)
			}
			w := newTable()
			fmt.Fprintf(w, "Slug:\t%s\n", tenant.Slug)
			fmt.Fprintf(w, "Name:\t%s\n", tenant.Name)
			fmt.Fprintf(w, "Account:\t%s\n", tenant.AWSAccountID)
			fmt.Fprintf(w, "Region:\t%s\n", tenant.Region)
			fmt.Fprintf(w, "Role ARN:\t%s\n", tenant.RoleARN)
			fmt.Fprintf(w, "External ID:\t%s\n", tenant.ExternalID)
			fmt.Fprintf(w, "Created:\t%s\n", tenant.CreatedAt.Format("2006-01-02 15:04:05"))
			return w.Flush()
		},
	}
}

func newTenantRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <slug>",
		Short: "Remove a tenant",
		Long: `Remove a tenant record.

Removal is refused while the tenant still owns live deployments; destroy
them first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.tenantService().Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Tenant %s removed\n", args[0])
			return nil
		},
	}
}
