// Package orchestrator owns the deployment lifecycle state machine for
// StackPilot. It decides when remote provisioning operations are triggered,
// enforces at most one in-flight operation per stack key, and reconciles
// local deployment records against remote operation status on demand.
package orchestrator
