package policy

// BuiltinPolicies returns the guardrail policies shipped with the platform.
func BuiltinPolicies() []Policy {
	return []Policy{
		networkGuardrailPolicy(),
		nodeGroupBoundsPolicy(),
		clusterVersionPolicy(),
		productionResiliencePolicy(),
	}
}

// networkGuardrailPolicy requires tenant VPCs to live in private address space.
func networkGuardrailPolicy() Policy {
	return Policy{
		Name:        "network-guardrails",
		Description: "Tenant VPC CIDR blocks must fall within a private RFC 1918 range",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"network"},
		Rego: `package stackpilot.policies.network

import rego.v1

private_ranges := ["10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"]

private_cidr(cidr) if {
	some range in private_ranges
	net.cidr_contains(range, cidr)
}

deny contains violation if {
	cidr := input.config.vpc_cidr
	not private_cidr(cidr)
	violation := {
		"message": sprintf("VPC CIDR %s must fall within a private RFC 1918 range", [cidr]),
		"severity": "error",
	}
}

deny contains violation if {
	cidr := input.config.vpc_cidr
	prefix := to_number(split(cidr, "/")[1])
	prefix > 24
	violation := {
		"message": sprintf("VPC CIDR %s is smaller than /24 and leaves no room for subnets", [cidr]),
		"severity": "error",
	}
}
`,
	}
}

// nodeGroupBoundsPolicy checks node group sizing for internal consistency.
func nodeGroupBoundsPolicy() Policy {
	return Policy{
		Name:        "node-group-bounds",
		Description: "Node group sizing must be internally consistent",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"compute"},
		Rego: `package stackpilot.policies.nodes

import rego.v1

deny contains violation if {
	ng := input.config.node_group
	ng.min_size > ng.max_size
	violation := {
		"message": sprintf("node group min size %d exceeds max size %d", [ng.min_size, ng.max_size]),
		"severity": "error",
	}
}

deny contains violation if {
	ng := input.config.node_group
	ng.desired_size < ng.min_size
	violation := {
		"message": sprintf("node group desired size %d is below min size %d", [ng.desired_size, ng.min_size]),
		"severity": "error",
	}
}

deny contains violation if {
	ng := input.config.node_group
	ng.desired_size > ng.max_size
	violation := {
		"message": sprintf("node group desired size %d exceeds max size %d", [ng.desired_size, ng.max_size]),
		"severity": "error",
	}
}

deny contains violation if {
	ng := input.config.node_group
	count(ng.instance_types) == 0
	violation := {
		"message": "node group must declare at least one instance type",
		"severity": "error",
	}
}
`,
	}
}

// clusterVersionPolicy pins deployments to cluster versions the platform's
// infrastructure program supports.
func clusterVersionPolicy() Policy {
	return Policy{
		Name:        "cluster-version",
		Description: "Cluster version must be one the platform supports",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"cluster"},
		Rego: `package stackpilot.policies.cluster

import rego.v1

supported_versions := {"1.29", "1.30", "1.31", "1.32", "1.33"}

deny contains violation if {
	version := input.config.cluster_version
	not supported_versions[version]
	violation := {
		"message": sprintf("cluster version %s is not supported; supported: %v", [version, supported_versions]),
		"severity": "error",
	}
}
`,
	}
}

// productionResiliencePolicy warns when production environments are configured
// without redundancy.
func productionResiliencePolicy() Policy {
	return Policy{
		Name:        "production-resilience",
		Description: "Production environments should span multiple availability zones and avoid spot-only capacity",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"resilience"},
		Rego: `package stackpilot.policies.resilience

import rego.v1

production if input.context.environment == "prod"

production if input.context.environment == "production"

deny contains violation if {
	production
	count(input.config.availability_zones) == 1
	violation := {
		"message": "production environments should span at least two availability zones",
		"severity": "warning",
	}
}

deny contains violation if {
	production
	input.config.node_group.capacity_type == "SPOT"
	violation := {
		"message": "production node groups should not run exclusively on spot capacity",
		"severity": "warning",
	}
}
`,
	}
}
