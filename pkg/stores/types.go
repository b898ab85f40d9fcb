package stores

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeploymentStatus represents the lifecycle status of a deployment.
type DeploymentStatus string

const (
	// DeploymentStatusPending indicates the record exists but no remote work has started.
	DeploymentStatusPending DeploymentStatus = "pending"

	// DeploymentStatusInProgress indicates a remote update operation is running.
	DeploymentStatusInProgress DeploymentStatus = "in_progress"

	// DeploymentStatusSucceeded indicates the last update operation completed successfully.
	DeploymentStatusSucceeded DeploymentStatus = "succeeded"

	// DeploymentStatusFailed indicates the last operation failed.
	DeploymentStatusFailed DeploymentStatus = "failed"

	// DeploymentStatusDestroying indicates a remote destroy operation is running.
	DeploymentStatusDestroying DeploymentStatus = "destroying"

	// DeploymentStatusDestroyed indicates the environment has been torn down.
	DeploymentStatusDestroyed DeploymentStatus = "destroyed"
)

// InFlight returns true while a remote operation is outstanding for the record.
func (s DeploymentStatus) InFlight() bool {
	return s == DeploymentStatusInProgress || s == DeploymentStatusDestroying
}

// Deletable returns true if the record may be removed by an administrative delete.
func (s DeploymentStatus) Deletable() bool {
	return s == DeploymentStatusFailed || s == DeploymentStatusDestroyed
}

// Redeployable returns true if a fresh deploy request may reuse the record.
func (s DeploymentStatus) Redeployable() bool {
	return s == DeploymentStatusPending || s == DeploymentStatusFailed ||
		s == DeploymentStatusDestroyed
}

// Validate checks if the deployment status is valid.
func (s DeploymentStatus) Validate() error {
	switch s {
	case DeploymentStatusPending, DeploymentStatusInProgress, DeploymentStatusSucceeded,
		DeploymentStatusFailed, DeploymentStatusDestroying, DeploymentStatusDestroyed:
		return nil
	default:
		return fmt.Errorf("invalid deployment status: %s", s)
	}
}

// TenantRecord is the durable representation of an onboarded tenant.
type TenantRecord struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	AWSAccountID string    `json:"aws_account_id"`
	Region       string    `json:"region"`
	RoleARN      string    `json:"role_arn"`
	ExternalID   string    `json:"external_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeploymentRecord is the durable representation of one (tenant, environment)
// deployment. StackName is the globally unique stack key derived from
// tenant slug and environment.
type DeploymentRecord struct {
	ID           int64            `json:"id"`
	TenantID     string           `json:"tenant_id"`
	TenantSlug   string           `json:"tenant_slug"`
	Environment  string           `json:"environment"`
	StackName    string           `json:"stack_name"`
	Region       string           `json:"region"`
	Status       DeploymentStatus `json:"status"`
	OperationID  *string          `json:"operation_id,omitempty"`
	Outputs      *string          `json:"outputs,omitempty"` // JSON blob
	ErrorMessage *string          `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// DeploymentUpdate carries the optional fields of a status transition.
// Nil fields are left untouched.
type DeploymentUpdate struct {
	OperationID  *string
	Outputs      *string // JSON blob
	ErrorMessage *string

	// ClearOperationID and ClearErrorMessage null the column instead of
	// preserving the previous value. A transition that starts a new lifecycle
	// attempt must not inherit the prior attempt's operation id or error.
	ClearOperationID  bool
	ClearErrorMessage bool
}

// AuditEntry records an administrative or lifecycle action.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"` // e.g. "deploy.requested", "deployment.deleted"
	Actor     string    `json:"actor"`
	StackName *string   `json:"stack_name,omitempty"`
	Details   *string   `json:"details,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a uniqueness constraint is violated.
	ErrAlreadyExists = errors.New("record already exists")
)

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Tenant operations
	CreateTenant(ctx context.Context, tenant *TenantRecord) error
	GetTenantBySlug(ctx context.Context, slug string) (*TenantRecord, error)
	ListTenants(ctx context.Context) ([]*TenantRecord, error)
	DeleteTenant(ctx context.Context, slug string) (bool, error)

	// Deployment operations
	CreateDeployment(ctx context.Context, record *DeploymentRecord) (*DeploymentRecord, error)
	GetDeployment(ctx context.Context, tenantSlug, environment string) (*DeploymentRecord, error)
	UpdateDeploymentStatus(ctx context.Context, stackName string, status DeploymentStatus, upd DeploymentUpdate) (*DeploymentRecord, error)
	UpdateDeploymentStatusIf(ctx context.Context, stackName string, expect []DeploymentStatus, status DeploymentStatus, upd DeploymentUpdate) (bool, error)
	ResetDeployment(ctx context.Context, stackName string) (*DeploymentRecord, error)
	ListDeployments(ctx context.Context, tenantSlug string) ([]*DeploymentRecord, error)
	DeleteDeployment(ctx context.Context, stackName string) (bool, error)

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, stackName string, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
