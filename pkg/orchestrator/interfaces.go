package orchestrator

import (
	"context"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/stores"
)

// Provisioner is the capability interface over the remote provisioning backend.
// Implementations are stateless per call; every call is a blocking network
// operation with a bounded timeout and may fail transiently. Alternate backends
// can be substituted in tests or future ports.
type Provisioner interface {
	// CreateWorkspace creates the remote workspace for a stack key.
	// Returns ErrWorkspaceExists if it is already present.
	CreateWorkspace(ctx context.Context, project, stackName string) error

	// PushConfiguration pushes the desired-state snapshot and cross-account
	// credentials into the remote workspace's configuration.
	PushConfiguration(ctx context.Context, project, stackName string, cfg StackConfig) error

	// TriggerOperation starts a remote update or destroy operation and returns
	// the remote operation id. Once accepted remotely, the operation cannot be
	// cancelled from here; it runs to completion externally.
	TriggerOperation(ctx context.Context, project, stackName string, op Operation) (string, error)

	// GetOperationStatus polls the status of a previously triggered operation.
	GetOperationStatus(ctx context.Context, project, stackName, operationID string) (*OperationStatus, error)

	// GetOutputs fetches the workspace's current output values. Safe to repeat.
	GetOutputs(ctx context.Context, project, stackName string) (map[string]any, error)
}

// RecordStore is the subset of the persistence layer the orchestrator needs.
// *stores.SQLiteStore satisfies it; tests substitute doubles.
type RecordStore interface {
	GetTenantBySlug(ctx context.Context, slug string) (*stores.TenantRecord, error)
	CreateDeployment(ctx context.Context, record *stores.DeploymentRecord) (*stores.DeploymentRecord, error)
	GetDeployment(ctx context.Context, tenantSlug, environment string) (*stores.DeploymentRecord, error)
	UpdateDeploymentStatus(ctx context.Context, stackName string, status stores.DeploymentStatus, upd stores.DeploymentUpdate) (*stores.DeploymentRecord, error)
	UpdateDeploymentStatusIf(ctx context.Context, stackName string, expect []stores.DeploymentStatus, status stores.DeploymentStatus, upd stores.DeploymentUpdate) (bool, error)
	ResetDeployment(ctx context.Context, stackName string) (*stores.DeploymentRecord, error)
	ListDeployments(ctx context.Context, tenantSlug string) ([]*stores.DeploymentRecord, error)
	DeleteDeployment(ctx context.Context, stackName string) (bool, error)
	CreateAuditEntry(ctx context.Context, entry *stores.AuditEntry) error
}

// ConfigSource supplies the persisted environment configuration consumed as an
// input snapshot at the moment a deployment is triggered.
type ConfigSource interface {
	Get(tenantSlug, environment string) (*config.EnvironmentConfig, error)
}

// PolicyGate evaluates guardrail policies against an environment configuration
// before a deploy is admitted. A nil gate admits everything.
type PolicyGate interface {
	Check(ctx context.Context, tenantSlug, environment string, cfg *config.EnvironmentConfig) error
}
