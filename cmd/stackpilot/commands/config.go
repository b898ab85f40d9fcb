package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/pkg/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Environment configuration management",
		Long: `Manage the desired-state configuration of tenant environments.

A configuration describes the network and cluster shape of one
(tenant, environment) pair. It is validated on write and consumed as a
snapshot at the moment a deployment is triggered; editing it never
mutates running infrastructure by itself.`,
	}

	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigGetCommand())
	cmd.AddCommand(newConfigRmCommand())

	return cmd
}

func newConfigSetCommand() *cobra.Command {
	var (
		file           string
		vpcCIDR        string
		clusterVersion string
		clusterMode    string
		zones          []string
		instanceTypes  []string
		desiredSize    int
		minSize        int
		maxSize        int
		diskSize       int
		capacityType   string
	)

	cmd := &cobra.Command{
		Use:   "set <tenant> <environment>",
		Short: "Create or replace an environment configuration",
		Args:  cobra.ExactArgs(2),
		Example: `  # Start from defaults and override the network
  stackpilot config set acme dev --vpc-cidr 10.42.0.0/16

  # Size the node group
  stackpilot config set acme prod --vpc-cidr 10.10.0.0/16 \
    --node-desired 4 --node-min 3 --node-max 8 --instance-type m5.large

  # Load a full configuration from a file
  stackpilot config set acme prod --file prod.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			tenantSlug, environment := args[0], args[1]

			var cfg *config.EnvironmentConfig
			if file != "" {
				cfg, err = loadConfigFile(file)
				if err != nil {
					return err
				}
			} else {
				cfg = config.DefaultEnvironmentConfig()
			}

			// Flags override whatever the file or defaults provided.
			if cmd.Flags().Changed("vpc-cidr") {
				cfg.VPCCIDR = vpcCIDR
			}
			if cmd.Flags().Changed("cluster-version") {
				cfg.ClusterVersion = clusterVersion
			}
			if cmd.Flags().Changed("cluster-mode") {
				cfg.ClusterMode = config.ClusterMode(clusterMode)
			}
			if cmd.Flags().Changed("zone") {
				cfg.AvailabilityZones = zones
			}

			if cfg.NodeGroup == nil {
				cfg.NodeGroup = config.DefaultNodeGroup()
			}
			if cmd.Flags().Changed("instance-type") {
				cfg.NodeGroup.InstanceTypes = instanceTypes
			}
			if cmd.Flags().Changed("node-desired") {
				cfg.NodeGroup.DesiredSize = desiredSize
			}
			if cmd.Flags().Changed("node-min") {
				cfg.NodeGroup.MinSize = minSize
			}
			if cmd.Flags().Changed("node-max") {
				cfg.NodeGroup.MaxSize = maxSize
			}
			if cmd.Flags().Changed("node-disk") {
				cfg.NodeGroup.DiskSize = diskSize
			}
			if cmd.Flags().Changed("capacity-type") {
				cfg.NodeGroup.CapacityType = strings.ToUpper(capacityType)
			}

			if err := a.configs.Save(tenantSlug, environment, cfg); err != nil {
				return err
			}

			fmt.Printf("Configuration for %s/%s saved\n", tenantSlug, environment)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "load configuration from a YAML or JSON file")
	cmd.Flags().StringVar(&vpcCIDR, "vpc-cidr", "", "VPC CIDR block")
	cmd.Flags().StringVar(&clusterVersion, "cluster-version", "", "Kubernetes cluster version")
	cmd.Flags().StringVar(&clusterMode, "cluster-mode", "", "cluster mode (auto or managed)")
	cmd.Flags().StringSliceVar(&zones, "zone", nil, "availability zones")
	cmd.Flags().StringSliceVar(&instanceTypes, "instance-type", nil, "node instance types")
	cmd.Flags().IntVar(&desiredSize, "node-desired", 0, "desired node count")
	cmd.Flags().IntVar(&minSize, "node-min", 0, "minimum node count")
	cmd.Flags().IntVar(&maxSize, "node-max", 0, "maximum node count")
	cmd.Flags().IntVar(&diskSize, "node-disk", 0, "node disk size in GiB")
	cmd.Flags().StringVar(&capacityType, "capacity-type", "", "node capacity type (ON_DEMAND or SPOT)")

	return cmd
}

// loadConfigFile parses a YAML or JSON environment configuration. YAML is a
// superset of JSON here, so a single decoder covers both.
func loadConfigFile(path string) (*config.EnvironmentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg config.EnvironmentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func newConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant> <environment>",
		Short: "Show an environment configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			cfg, err := a.configs.Get(args[0], args[1])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newConfigRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <tenant> <environment>",
		Short: "Remove an environment configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			deleted, err := a.configs.Delete(args[0], args[1])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no configuration found for %s/%s", args[0], args[1])
			}
			fmt.Printf("Configuration for %s/%s removed\n", args[0], args[1])
			return nil
		},
	}
}
