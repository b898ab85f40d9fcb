package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stackpilot/stackpilot/pkg/stores"
)

// StackNameSeparator joins tenant slug and environment into the stack key.
const StackNameSeparator = "-"

// StackName derives the globally unique stack key for a (tenant, environment)
// pair. The orchestrator never resolves collisions in this namespace; creation
// is rejected when a record for the key already exists.
func StackName(tenantSlug, environment string) string {
	return tenantSlug + StackNameSeparator + environment
}

// Operation is the kind of remote operation performed against a workspace.
type Operation string

const (
	// OperationUpdate converges the workspace to the configured desired state.
	OperationUpdate Operation = "update"

	// OperationDestroy tears the workspace's infrastructure down.
	OperationDestroy Operation = "destroy"
)

// Validate checks if the operation is valid.
func (o Operation) Validate() error {
	switch o {
	case OperationUpdate, OperationDestroy:
		return nil
	default:
		return fmt.Errorf("invalid operation: %s", o)
	}
}

// OperationState is the remote backend's view of an operation.
type OperationState string

const (
	// OperationStateRunning indicates the remote operation is still executing.
	OperationStateRunning OperationState = "running"

	// OperationStateSucceeded indicates the remote operation finished successfully.
	OperationStateSucceeded OperationState = "succeeded"

	// OperationStateFailed indicates the remote operation failed.
	OperationStateFailed OperationState = "failed"
)

// OperationStatus is the result of polling a remote operation.
type OperationStatus struct {
	State   OperationState `json:"state"`
	Message string         `json:"message,omitempty"`
}

// StackConfig is the configuration snapshot pushed into a remote workspace
// before an update is triggered: the tenant's cross-account credentials plus
// the flattened environment parameters.
type StackConfig struct {
	TenantSlug  string            `json:"tenant_slug"`
	Environment string            `json:"environment"`
	Region      string            `json:"region"`
	RoleARN     string            `json:"role_arn"`
	ExternalID  string            `json:"external_id"` // secret, cross-account trust
	Values      map[string]string `json:"values,omitempty"`
	Secrets     map[string]string `json:"secrets,omitempty"`
}

// Deployment is the orchestrator's view of one (tenant, environment) pair.
// It mirrors the durable record with outputs decoded from their stored form.
type Deployment struct {
	ID           int64                   `json:"id"`
	TenantID     string                  `json:"tenant_id"`
	TenantSlug   string                  `json:"tenant_slug"`
	Environment  string                  `json:"environment"`
	StackName    string                  `json:"stack_name"`
	Region       string                  `json:"region"`
	Status       stores.DeploymentStatus `json:"status"`
	OperationID  string                  `json:"operation_id,omitempty"`
	Outputs      map[string]any          `json:"outputs,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// deploymentFromRecord converts a durable record into the caller-facing model.
func deploymentFromRecord(record *stores.DeploymentRecord) (*Deployment, error) {
	d := &Deployment{
		ID:          record.ID,
		TenantID:    record.TenantID,
		TenantSlug:  record.TenantSlug,
		Environment: record.Environment,
		StackName:   record.StackName,
		Region:      record.Region,
		Status:      record.Status,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}

	if record.OperationID != nil {
		d.OperationID = *record.OperationID
	}
	if record.ErrorMessage != nil {
		d.ErrorMessage = *record.ErrorMessage
	}
	if record.Outputs != nil && *record.Outputs != "" {
		if err := json.Unmarshal([]byte(*record.Outputs), &d.Outputs); err != nil {
			return nil, fmt.Errorf("failed to decode cached outputs for %s: %w", record.StackName, err)
		}
	}

	return d, nil
}

// encodeOutputs serializes an output snapshot for storage.
func encodeOutputs(outputs map[string]any) (*string, error) {
	if outputs == nil {
		outputs = map[string]any{}
	}
	raw, err := json.Marshal(outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outputs: %w", err)
	}
	s := string(raw)
	return &s, nil
}

// ErrWorkspaceExists is returned by a Provisioner when the remote workspace
// already exists. The deploy path swallows it; workspace creation is idempotent.
var ErrWorkspaceExists = errors.New("workspace already exists")
