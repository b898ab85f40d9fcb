package tenants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/stores"
)

// PlatformRoleName is the IAM role the platform assumes in tenant accounts.
const PlatformRoleName = "StackPilotPlatformRole"

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

// ErrTenantInUse is returned when deletion is refused because the tenant still
// owns live deployments.
var ErrTenantInUse = errors.New("tenant has live deployments")

// Store is the persistence surface the tenant service needs.
type Store interface {
	CreateTenant(ctx context.Context, tenant *stores.TenantRecord) error
	GetTenantBySlug(ctx context.Context, slug string) (*stores.TenantRecord, error)
	ListTenants(ctx context.Context) ([]*stores.TenantRecord, error)
	DeleteTenant(ctx context.Context, slug string) (bool, error)
	ListDeployments(ctx context.Context, tenantSlug string) ([]*stores.DeploymentRecord, error)
	CreateAuditEntry(ctx context.Context, entry *stores.AuditEntry) error
}

// CreateRequest is the input for onboarding a tenant.
type CreateRequest struct {
	Slug         string `json:"slug" validate:"required,min=2,max=40,tenant_slug"`
	Name         string `json:"name" validate:"required,min=1,max=120"`
	AWSAccountID string `json:"aws_account_id" validate:"required,len=12,numeric"`
	Region       string `json:"region" validate:"required"`

	// RoleARN overrides the derived platform role ARN, for tenants whose
	// account uses a non-standard role name.
	RoleARN string `json:"role_arn,omitempty"`
}

// Service manages tenant records.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewService creates a tenant service.
func NewService(store Store, logger zerolog.Logger) *Service {
	validate := validator.New()
	_ = validate.RegisterValidation("tenant_slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})

	return &Service{
		store:    store,
		validate: validate,
		logger:   logger.With().Str("component", "tenants").Logger(),
	}
}

// Create onboards a tenant: validates the request, derives the platform role
// ARN, mints a fresh external id, and persists the record.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*stores.TenantRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid tenant request: %w", err)
	}

	roleARN := req.RoleARN
	if roleARN == "" {
		roleARN = fmt.Sprintf("arn:aws:iam::%s:role/%s", req.AWSAccountID, PlatformRoleName)
	}

	externalID, err := newExternalID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate external id: %w", err)
	}

	tenant := &stores.TenantRecord{
		ID:           uuid.NewString(),
		Slug:         req.Slug,
		Name:         req.Name,
		AWSAccountID: req.AWSAccountID,
		Region:       req.Region,
		RoleARN:      roleARN,
		ExternalID:   externalID,
	}

	if err := s.store.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant %q: %w", req.Slug, err)
	}

	s.audit(ctx, "tenant.created", map[string]any{"slug": tenant.Slug, "aws_account_id": tenant.AWSAccountID})
	s.logger.Info().Str("slug", tenant.Slug).Msg("Tenant onboarded")

	return s.store.GetTenantBySlug(ctx, tenant.Slug)
}

// Get returns a tenant by slug.
func (s *Service) Get(ctx context.Context, slug string) (*stores.TenantRecord, error) {
	return s.store.GetTenantBySlug(ctx, slug)
}

// List returns all tenants.
func (s *Service) List(ctx context.Context) ([]*stores.TenantRecord, error) {
	return s.store.ListTenants(ctx)
}

// Delete removes a tenant. Deletion is refused while any of the tenant's
// deployments is still live; records in a terminal deletable status stay
// behind as history and do not block removal.
func (s *Service) Delete(ctx context.Context, slug string) error {
	deployments, err := s.store.ListDeployments(ctx, slug)
	if err != nil {
		return fmt.Errorf("failed to list deployments for tenant %q: %w", slug, err)
	}
	for _, d := range deployments {
		if !d.Status.Deletable() {
			return fmt.Errorf("tenant %q has a deployment in status %q: %w", slug, d.Status, ErrTenantInUse)
		}
	}

	deleted, err := s.store.DeleteTenant(ctx, slug)
	if err != nil {
		return fmt.Errorf("failed to delete tenant %q: %w", slug, err)
	}
	if !deleted {
		return fmt.Errorf("tenant %q: %w", slug, stores.ErrNotFound)
	}

	s.audit(ctx, "tenant.deleted", map[string]any{"slug": slug})
	s.logger.Info().Str("slug", slug).Msg("Tenant deleted")
	return nil
}

func (s *Service) audit(ctx context.Context, action string, details map[string]any) {
	entry := &stores.AuditEntry{Action: action, Actor: "tenants"}
	if raw, err := json.Marshal(details); err == nil {
		str := string(raw)
		entry.Details = &str
	}
	if err := s.store.CreateAuditEntry(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}
}

func newExternalID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
