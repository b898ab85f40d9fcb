// Package tenants implements tenant onboarding and lifecycle. A tenant is the
// owner of deployments: onboarding records its slug, target AWS account and
// region, and mints the cross-account trust material (platform role ARN and
// external id) later injected into provisioning operations.
package tenants
