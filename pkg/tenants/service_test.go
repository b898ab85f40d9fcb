package tenants

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/stores"
)

// fakeStore is an in-memory tenant store
type fakeStore struct {
	tenants     map[string]*stores.TenantRecord
	deployments []*stores.DeploymentRecord
	audits      []*stores.AuditEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{tenants: make(map[string]*stores.TenantRecord)}
}

func (f *fakeStore) CreateTenant(ctx context.Context, tenant *stores.TenantRecord) error {
	if _, exists := f.tenants[tenant.Slug]; exists {
		return stores.ErrAlreadyExists
	}
	f.tenants[tenant.Slug] = tenant
	return nil
}

func (f *fakeStore) GetTenantBySlug(ctx context.Context, slug string) (*stores.TenantRecord, error) {
	tenant, exists := f.tenants[slug]
	if !exists {
		return nil, stores.ErrNotFound
	}
	return tenant, nil
}

func (f *fakeStore) ListTenants(ctx context.Context) ([]*stores.TenantRecord, error) {
	all := make([]*stores.TenantRecord, 0, len(f.tenants))
	for _, tenant := range f.tenants {
		all = append(all, tenant)
	}
	return all, nil
}

func (f *fakeStore) DeleteTenant(ctx context.Context, slug string) (bool, error) {
	if _, exists := f.tenants[slug]; !exists {
		return false, nil
	}
	delete(f.tenants, slug)
	return true, nil
}

func (f *fakeStore) ListDeployments(ctx context.Context, tenantSlug string) ([]*stores.DeploymentRecord, error) {
	var matched []*stores.DeploymentRecord
	for _, d := range f.deployments {
		if tenantSlug == "" || d.TenantSlug == tenantSlug {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

func (f *fakeStore) CreateAuditEntry(ctx context.Context, entry *stores.AuditEntry) error {
	f.audits = append(f.audits, entry)
	return nil
}

func validRequest() CreateRequest {
	return CreateRequest{
		Slug:         "acme",
		Name:         "Acme Corp",
		AWSAccountID: "123456789012",
		Region:       "eu-west-1",
	}
}

// TestCreateTenant tests onboarding with derived trust material
func TestCreateTenant(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	service := NewService(store, zerolog.Nop())

	tenant, err := service.Create(ctx, validRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if tenant.ID == "" {
		t.Error("expected a generated tenant id")
	}
	if tenant.RoleARN != "arn:aws:iam::123456789012:role/StackPilotPlatformRole" {
		t.Errorf("expected derived role ARN, got %s", tenant.RoleARN)
	}
	if len(tenant.ExternalID) != 32 {
		t.Errorf("expected 32-char external id, got %q", tenant.ExternalID)
	}

	// External ids must be unique per tenant
	req := validRequest()
	req.Slug = "globex"
	other, err := service.Create(ctx, req)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if other.ExternalID == tenant.ExternalID {
		t.Error("expected distinct external ids")
	}

	if len(store.audits) != 2 {
		t.Errorf("expected 2 audit entries, got %d", len(store.audits))
	}

	// Duplicate slug is rejected
	if _, err := service.Create(ctx, validRequest()); !errors.Is(err, stores.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

// TestCreateTenantRoleOverride tests the role ARN override
func TestCreateTenantRoleOverride(t *testing.T) {
	ctx := context.Background()
	service := NewService(newFakeStore(), zerolog.Nop())

	req := validRequest()
	req.RoleARN = "arn:aws:iam::123456789012:role/CustomRole"
	tenant, err := service.Create(ctx, req)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if tenant.RoleARN != req.RoleARN {
		t.Errorf("expected override kept, got %s", tenant.RoleARN)
	}
}

// TestCreateTenantValidation tests request validation
func TestCreateTenantValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(req *CreateRequest)
	}{
		{"empty slug", func(req *CreateRequest) { req.Slug = "" }},
		{"uppercase slug", func(req *CreateRequest) { req.Slug = "Acme" }},
		{"slug with spaces", func(req *CreateRequest) { req.Slug = "acme corp" }},
		{"slug leading hyphen", func(req *CreateRequest) { req.Slug = "-acme" }},
		{"slug trailing hyphen", func(req *CreateRequest) { req.Slug = "acme-" }},
		{"slug too long", func(req *CreateRequest) { req.Slug = strings.Repeat("a", 41) }},
		{"missing name", func(req *CreateRequest) { req.Name = "" }},
		{"short account id", func(req *CreateRequest) { req.AWSAccountID = "1234" }},
		{"non-numeric account id", func(req *CreateRequest) { req.AWSAccountID = "12345678901a" }},
		{"missing region", func(req *CreateRequest) { req.Region = "" }},
	}

	service := NewService(newFakeStore(), zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if _, err := service.Create(context.Background(), req); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

// TestDeleteTenant tests the live-deployment guard
func TestDeleteTenant(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	service := NewService(store, zerolog.Nop())

	if _, err := service.Create(ctx, validRequest()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	store.deployments = append(store.deployments, &stores.DeploymentRecord{
		TenantSlug: "acme",
		StackName:  "acme-dev",
		Status:     stores.DeploymentStatusSucceeded,
	})

	if err := service.Delete(ctx, "acme"); !errors.Is(err, ErrTenantInUse) {
		t.Errorf("expected ErrTenantInUse with live deployment, got %v", err)
	}

	// Terminal deletable records do not block removal
	store.deployments[0].Status = stores.DeploymentStatusDestroyed
	if err := service.Delete(ctx, "acme"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if err := service.Delete(ctx, "acme"); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing tenant, got %v", err)
	}
}
