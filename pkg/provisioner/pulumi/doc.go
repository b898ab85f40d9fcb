// Package pulumi implements the provisioning backend client against the
// Pulumi Cloud Deployments REST API. Stacks are created under a single
// organization project, configured through deployment settings (git source
// context, pre-run configuration commands, credential environment variables),
// and driven by remotely executed update and destroy operations.
package pulumi
