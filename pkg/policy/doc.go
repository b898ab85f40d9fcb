// Package policy evaluates guardrail policies against tenant environment
// configurations before a deployment is admitted. Policies are Rego rules
// evaluated with the embedded OPA engine: a built-in set covers network,
// node-group and cluster-version guardrails, and operators can layer
// additional .rego files on top, with hot reload on file changes.
//
// A policy denies by emitting violations; violations at error or critical
// severity block the deployment, warnings surface in logs only.
package policy
