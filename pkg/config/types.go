package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ClusterMode selects how cluster compute is provisioned.
type ClusterMode string

const (
	// ClusterModeAuto delegates compute management to the cloud provider.
	ClusterModeAuto ClusterMode = "auto"

	// ClusterModeManaged provisions an explicitly sized node group.
	ClusterModeManaged ClusterMode = "managed"
)

// NodeGroupConfig describes compute sizing for a managed node group.
type NodeGroupConfig struct {
	InstanceTypes []string `json:"instance_types" yaml:"instance_types" validate:"min=1,dive,required"`
	DesiredSize   int      `json:"desired_size" yaml:"desired_size" validate:"min=1,max=100"`
	MinSize       int      `json:"min_size" yaml:"min_size" validate:"min=1,max=100"`
	MaxSize       int      `json:"max_size" yaml:"max_size" validate:"min=1,max=100"`
	DiskSize      int      `json:"disk_size" yaml:"disk_size" validate:"min=20,max=1000"`
	CapacityType  string   `json:"capacity_type" yaml:"capacity_type" validate:"oneof=ON_DEMAND SPOT"`
}

// EnvironmentConfig holds the desired-state parameters for one
// (tenant, environment) pair. It is consumed as an input snapshot at the
// moment a deployment is triggered.
type EnvironmentConfig struct {
	VPCCIDR           string           `json:"vpc_cidr" yaml:"vpc_cidr" validate:"required,cidrv4"`
	AvailabilityZones []string         `json:"availability_zones,omitempty" yaml:"availability_zones,omitempty"`
	ClusterVersion    string           `json:"cluster_version" yaml:"cluster_version" validate:"required"`
	ClusterMode       ClusterMode      `json:"cluster_mode" yaml:"cluster_mode" validate:"oneof=auto managed"`
	NodeGroup         *NodeGroupConfig `json:"node_group,omitempty" yaml:"node_group,omitempty"`
}

// DefaultNodeGroup returns the node group sizing used when a managed-mode
// config does not specify one.
func DefaultNodeGroup() *NodeGroupConfig {
	return &NodeGroupConfig{
		InstanceTypes: []string{"t3.medium"},
		DesiredSize:   2,
		MinSize:       1,
		MaxSize:       5,
		DiskSize:      50,
		CapacityType:  "ON_DEMAND",
	}
}

// DefaultEnvironmentConfig returns a config populated with the platform defaults.
func DefaultEnvironmentConfig() *EnvironmentConfig {
	return &EnvironmentConfig{
		VPCCIDR:        "10.0.0.0/16",
		ClusterVersion: "1.31",
		ClusterMode:    ClusterModeManaged,
		NodeGroup:      DefaultNodeGroup(),
	}
}

// ApplyDefaults fills unset fields with platform defaults.
func (c *EnvironmentConfig) ApplyDefaults() {
	if c.VPCCIDR == "" {
		c.VPCCIDR = "10.0.0.0/16"
	}
	if c.ClusterVersion == "" {
		c.ClusterVersion = "1.31"
	}
	if c.ClusterMode == "" {
		c.ClusterMode = ClusterModeManaged
	}
	if c.ClusterMode == ClusterModeManaged && c.NodeGroup == nil {
		c.NodeGroup = DefaultNodeGroup()
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its constraints.
func (c *EnvironmentConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid environment config: %w", err)
	}
	if c.NodeGroup != nil && c.NodeGroup.MinSize > c.NodeGroup.MaxSize {
		return fmt.Errorf("invalid environment config: node group min_size %d exceeds max_size %d",
			c.NodeGroup.MinSize, c.NodeGroup.MaxSize)
	}
	return nil
}

// StackValues flattens the config into the key-value form the provisioning
// backend's infrastructure program reads. Key names are part of the remote
// contract and must match the program's config surface.
func (c *EnvironmentConfig) StackValues() map[string]string {
	values := map[string]string{
		"vpcCidr":    c.VPCCIDR,
		"eksVersion": c.ClusterVersion,
		"eksMode":    string(c.ClusterMode),
	}

	if len(c.AvailabilityZones) > 0 {
		values["availabilityZones"] = strings.Join(c.AvailabilityZones, ",")
	}

	if c.ClusterMode == ClusterModeManaged {
		ng := c.NodeGroup
		if ng == nil {
			ng = DefaultNodeGroup()
		}
		values["nodeInstanceTypes"] = strings.Join(ng.InstanceTypes, ",")
		values["nodeDesiredSize"] = strconv.Itoa(ng.DesiredSize)
		values["nodeMinSize"] = strconv.Itoa(ng.MinSize)
		values["nodeMaxSize"] = strconv.Itoa(ng.MaxSize)
		values["nodeDiskSize"] = strconv.Itoa(ng.DiskSize)
		values["nodeCapacityType"] = ng.CapacityType
	}

	return values
}
