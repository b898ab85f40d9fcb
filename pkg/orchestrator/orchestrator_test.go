package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/stores"
)

// fakeProvisioner is a scripted Provisioner standing in for the remote backend
type fakeProvisioner struct {
	mu sync.Mutex

	workspaceExists bool
	createErr       error
	pushErr         error
	triggerErrs     []error
	triggerGate     chan struct{} // when set, TriggerOperation blocks until closed
	statusErr       error
	status          OperationStatus
	outputs         map[string]any
	outputsErr      error

	nextOpID     int
	triggered    []Operation
	pushedConfig []StackConfig
	outputsCalls int
}

func (f *fakeProvisioner) CreateWorkspace(ctx context.Context, project, stackName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.workspaceExists {
		return ErrWorkspaceExists
	}
	f.workspaceExists = true
	return nil
}

func (f *fakeProvisioner) PushConfiguration(ctx context.Context, project, stackName string, cfg StackConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushedConfig = append(f.pushedConfig, cfg)
	return nil
}

func (f *fakeProvisioner) TriggerOperation(ctx context.Context, project, stackName string, op Operation) (string, error) {
	f.mu.Lock()
	gate := f.triggerGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.triggerErrs) > 0 {
		err := f.triggerErrs[0]
		f.triggerErrs = f.triggerErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.nextOpID++
	f.triggered = append(f.triggered, op)
	return fmt.Sprintf("op-%d", f.nextOpID), nil
}

func (f *fakeProvisioner) GetOperationStatus(ctx context.Context, project, stackName, operationID string) (*OperationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	status := f.status
	return &status, nil
}

func (f *fakeProvisioner) GetOutputs(ctx context.Context, project, stackName string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputsCalls++
	if f.outputsErr != nil {
		return nil, f.outputsErr
	}
	return f.outputs, nil
}

func (f *fakeProvisioner) setStatus(state OperationState, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = OperationStatus{State: state, Message: message}
}

func (f *fakeProvisioner) triggeredOps() []Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Operation(nil), f.triggered...)
}

// fakeGate rejects everything with a fixed error
type fakeGate struct {
	err error
}

func (g *fakeGate) Check(ctx context.Context, tenantSlug, environment string, cfg *config.EnvironmentConfig) error {
	return g.err
}

func setupStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.CreateTenant(ctx, &stores.TenantRecord{
		ID:           "tenant-acme",
		Slug:         "acme",
		Name:         "Acme Corp",
		AWSAccountID: "123456789012",
		Region:       "eu-west-1",
		RoleARN:      "arn:aws:iam::123456789012:role/StackPilotPlatformRole",
		ExternalID:   "abcd1234",
	}); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	return store
}

func setupConfigs(t *testing.T) *config.Store {
	t.Helper()

	configs, err := config.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create config store: %v", err)
	}
	if err := configs.Save("acme", "dev", config.DefaultEnvironmentConfig()); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}
	return configs
}

func setupOrchestrator(t *testing.T, store *stores.SQLiteStore, configs *config.Store, provisioner Provisioner, opts Options) *Orchestrator {
	t.Helper()

	if opts.Project == "" {
		opts.Project = "stackpilot-platform"
	}
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	if opts.QueueDepth == 0 {
		opts.QueueDepth = 8
	}
	opts.Logger = zerolog.Nop()

	return New(store, provisioner, configs, opts)
}

// drain waits for scheduled background work to finish
func drain(t *testing.T, orch *Orchestrator) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.Close(ctx); err != nil {
		t.Fatalf("failed to drain background work: %v", err)
	}
}

// TestDeployLifecycle drives one deployment from request to cached outputs
func TestDeployLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{
		status:  OperationStatus{State: OperationStateRunning},
		outputs: map[string]any{"clusterName": "acme-dev", "vpcId": "vpc-123"},
	}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	d, err := orch.Deploy(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusPending {
		t.Errorf("expected synchronous status pending, got %s", d.Status)
	}
	if d.StackName != "acme-dev" {
		t.Errorf("expected stack acme-dev, got %s", d.StackName)
	}

	drain(t, orch)

	d, err = orch.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusInProgress {
		t.Errorf("expected in_progress after trigger, got %s", d.Status)
	}
	if d.OperationID != "op-1" {
		t.Errorf("expected operation id op-1, got %q", d.OperationID)
	}
	if ops := provisioner.triggeredOps(); len(ops) != 1 || ops[0] != OperationUpdate {
		t.Errorf("expected one update trigger, got %v", ops)
	}

	// The pushed configuration carries the tenant's trust material and the
	// flattened environment parameters.
	if len(provisioner.pushedConfig) != 1 {
		t.Fatalf("expected one configuration push, got %d", len(provisioner.pushedConfig))
	}
	pushed := provisioner.pushedConfig[0]
	if pushed.RoleARN == "" || pushed.ExternalID == "" {
		t.Error("expected role ARN and external id in pushed configuration")
	}
	if pushed.Values["vpcCidr"] != "10.0.0.0/16" {
		t.Errorf("expected flattened vpcCidr, got %v", pushed.Values)
	}

	// Remote still running: local status intentionally lags
	d, err = orch.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusInProgress {
		t.Errorf("expected in_progress while remote runs, got %s", d.Status)
	}

	provisioner.setStatus(OperationStateSucceeded, "")
	d, err = orch.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusSucceeded {
		t.Errorf("expected succeeded, got %s", d.Status)
	}
	if d.Outputs["clusterName"] != "acme-dev" {
		t.Errorf("expected cached outputs, got %v", d.Outputs)
	}

	// Outputs come from the cache; the backend is not consulted again
	before := provisioner.outputsCalls
	outputs, err := orch.Outputs(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("outputs failed: %v", err)
	}
	if outputs["vpcId"] != "vpc-123" {
		t.Errorf("expected vpcId output, got %v", outputs)
	}
	if provisioner.outputsCalls != before {
		t.Error("expected outputs to be served from the cache")
	}
}

// TestDeployRejectsUnknownTenantAndMissingConfig tests deploy preconditions
func TestDeployRejectsUnknownTenantAndMissingConfig(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	orch := setupOrchestrator(t, store, configs, &fakeProvisioner{}, Options{})
	defer drain(t, orch)

	if _, err := orch.Deploy(ctx, "ghost", "dev"); !IsNotFound(err) {
		t.Errorf("expected not found for unknown tenant, got %v", err)
	}
	if _, err := orch.Deploy(ctx, "acme", "prod"); !IsNotFound(err) {
		t.Errorf("expected not found for missing config, got %v", err)
	}
}

// TestDeployConflicts tests the state-machine admission guard
func TestDeployConflicts(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)

	// Record is now in_progress
	orch2 := setupOrchestrator(t, store, configs, provisioner, Options{})
	defer drain(t, orch2)

	_, err := orch2.Deploy(ctx, "acme", "dev")
	if !IsConflict(err) {
		t.Fatalf("expected conflict for in-flight deployment, got %v", err)
	}
	var oerr *Error
	if errors.As(err, &oerr) && oerr.Code != ErrCodeInFlight {
		t.Errorf("expected code %s, got %s", ErrCodeInFlight, oerr.Code)
	}

	// Move to succeeded: redeploy must demand a destroy first
	if _, err := store.UpdateDeploymentStatus(ctx, "acme-dev", stores.DeploymentStatusSucceeded, stores.DeploymentUpdate{}); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	_, err = orch2.Deploy(ctx, "acme", "dev")
	if !IsConflict(err) {
		t.Fatalf("expected conflict for succeeded deployment, got %v", err)
	}
	if errors.As(err, &oerr) && oerr.Code != ErrCodeDestroyFirst {
		t.Errorf("expected code %s, got %s", ErrCodeDestroyFirst, oerr.Code)
	}
}

// TestRedeployAfterFailureReusesRecord tests the retry path
func TestRedeployAfterFailureReusesRecord(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{
		triggerErrs: []error{errors.New("backend unavailable")},
	}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)

	record, err := store.GetDeployment(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("failed to get deployment: %v", err)
	}
	if record.Status != stores.DeploymentStatusFailed {
		t.Fatalf("expected failed after trigger error, got %s", record.Status)
	}
	if record.ErrorMessage == nil {
		t.Fatal("expected error message on failed record")
	}
	firstID := record.ID

	// A fresh deploy reuses the record
	orch2 := setupOrchestrator(t, store, configs, provisioner, Options{})
	if _, err := orch2.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("redeploy failed: %v", err)
	}
	drain(t, orch2)

	record, err = store.GetDeployment(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("failed to get deployment: %v", err)
	}
	if record.ID != firstID {
		t.Errorf("expected reused record %d, got %d", firstID, record.ID)
	}
	if record.Status != stores.DeploymentStatusInProgress {
		t.Errorf("expected in_progress after redeploy, got %s", record.Status)
	}
	if record.ErrorMessage != nil {
		t.Error("expected stale error message cleared on redeploy")
	}
}

// TestTriggerRetries tests the bounded retry around the trigger call
func TestTriggerRetries(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{
		triggerErrs: []error{errors.New("transient"), errors.New("transient")},
	}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{TriggerRetries: 2})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)

	record, err := store.GetDeployment(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("failed to get deployment: %v", err)
	}
	if record.Status != stores.DeploymentStatusInProgress {
		t.Errorf("expected trigger to succeed on the third attempt, got %s", record.Status)
	}
}

// TestDestroyLifecycle drives a deployment through destruction
func TestDestroyLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{status: OperationStatus{State: OperationStateRunning}}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)
	provisioner.setStatus(OperationStateSucceeded, "")
	if _, err := orch.SyncStatus(ctx, "acme", "dev"); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// Destruction requires explicit confirmation before any mutation
	orch2 := setupOrchestrator(t, store, configs, provisioner, Options{})
	_, err := orch2.Destroy(ctx, "acme", "dev", false)
	if !IsValidation(err) {
		t.Fatalf("expected validation error without confirmation, got %v", err)
	}
	record, _ := store.GetDeployment(ctx, "acme", "dev")
	if record.Status != stores.DeploymentStatusSucceeded {
		t.Fatalf("expected record untouched after refused destroy, got %s", record.Status)
	}

	provisioner.setStatus(OperationStateRunning, "")
	d, err := orch2.Destroy(ctx, "acme", "dev", true)
	if err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusDestroying {
		t.Errorf("expected destroying, got %s", d.Status)
	}
	drain(t, orch2)

	if ops := provisioner.triggeredOps(); len(ops) != 2 || ops[1] != OperationDestroy {
		t.Errorf("expected a destroy trigger, got %v", ops)
	}

	// A second destroy while one is in flight is rejected
	orch3 := setupOrchestrator(t, store, configs, provisioner, Options{})
	defer drain(t, orch3)
	if _, err := orch3.Destroy(ctx, "acme", "dev", true); !IsConflict(err) {
		t.Errorf("expected conflict for concurrent destroy, got %v", err)
	}

	provisioner.setStatus(OperationStateSucceeded, "")
	d, err = orch3.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusDestroyed {
		t.Errorf("expected destroyed, got %s", d.Status)
	}

	// Destroying a missing deployment reports not found
	if _, err := orch3.Destroy(ctx, "acme", "prod", true); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

// TestSyncStatusBeforeDestroyTrigger tests the window between the destroying
// write and the destroy trigger landing: the previous update's operation id
// must not be polled, or the record would reach destroyed without any destroy
// having run
func TestSyncStatusBeforeDestroyTrigger(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{outputs: map[string]any{"clusterName": "acme-dev"}}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)
	provisioner.setStatus(OperationStateSucceeded, "")
	if _, err := orch.SyncStatus(ctx, "acme", "dev"); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// Hold the destroy trigger open; the update operation still reports
	// succeeded, which is exactly what a stale poll would see.
	gate := make(chan struct{})
	provisioner.mu.Lock()
	provisioner.triggerGate = gate
	provisioner.mu.Unlock()

	orch2 := setupOrchestrator(t, store, configs, provisioner, Options{})
	d, err := orch2.Destroy(ctx, "acme", "dev", true)
	if err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if d.OperationID != "" {
		t.Errorf("expected the destroying record to carry no operation id, got %q", d.OperationID)
	}

	d, err = orch2.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusDestroying {
		t.Fatalf("expected destroying while the trigger is pending, got %s", d.Status)
	}
	if ops := provisioner.triggeredOps(); len(ops) != 1 {
		t.Fatalf("expected no destroy trigger yet, got %v", ops)
	}

	close(gate)
	drain(t, orch2)

	if ops := provisioner.triggeredOps(); len(ops) != 2 || ops[1] != OperationDestroy {
		t.Fatalf("expected the destroy trigger after unblocking, got %v", ops)
	}
	d, err = orch2.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusDestroyed {
		t.Errorf("expected destroyed once the destroy operation succeeded, got %s", d.Status)
	}
}

// TestConcurrentDeployAdmitsExactlyOne tests two racing deploys for one key
func TestConcurrentDeployAdmitsExactlyOne(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{status: OperationStatus{State: OperationStateRunning}}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	errs := make(chan error, 2)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < 2; i++ {
		go func() {
			start.Wait()
			_, err := orch.Deploy(ctx, "acme", "dev")
			errs <- err
		}()
	}
	start.Done()

	var accepted, conflicts int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			accepted++
		case IsConflict(err):
			conflicts++
			var oerr *Error
			if errors.As(err, &oerr) && oerr.Code != ErrCodeInFlight {
				t.Errorf("expected code %s, got %s", ErrCodeInFlight, oerr.Code)
			}
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one accepted and one conflict, got %d accepted, %d conflicts", accepted, conflicts)
	}

	drain(t, orch)

	if ops := provisioner.triggeredOps(); len(ops) != 1 || ops[0] != OperationUpdate {
		t.Errorf("expected exactly one update trigger, got %v", ops)
	}
	record, err := store.GetDeployment(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("failed to get deployment: %v", err)
	}
	if record.Status != stores.DeploymentStatusInProgress {
		t.Errorf("expected in_progress, got %s", record.Status)
	}
}

// TestSyncStatusSwallowsPollErrors tests resilience to backend outages
func TestSyncStatusSwallowsPollErrors(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)

	provisioner.mu.Lock()
	provisioner.statusErr = errors.New("connection refused")
	provisioner.mu.Unlock()

	d, err := orch.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("expected poll failure to be swallowed, got %v", err)
	}
	if d.Status != stores.DeploymentStatusInProgress {
		t.Errorf("expected local status unchanged, got %s", d.Status)
	}
}

// TestSyncStatusRecordsRemoteFailure tests the failure transition
func TestSyncStatusRecordsRemoteFailure(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)

	provisioner.setStatus(OperationStateFailed, "quota exceeded")
	d, err := orch.SyncStatus(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if d.Status != stores.DeploymentStatusFailed {
		t.Errorf("expected failed, got %s", d.Status)
	}
	if d.ErrorMessage != "quota exceeded" {
		t.Errorf("expected remote message recorded, got %q", d.ErrorMessage)
	}
}

// TestOutputsBackfill tests the read-through output cache
func TestOutputsBackfill(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	provisioner := &fakeProvisioner{outputs: map[string]any{"clusterName": "acme-dev"}}
	orch := setupOrchestrator(t, store, configs, provisioner, Options{})
	defer drain(t, orch)

	// Succeeded record without a cached snapshot
	if _, err := store.CreateDeployment(ctx, &stores.DeploymentRecord{
		TenantID:    "tenant-acme",
		TenantSlug:  "acme",
		Environment: "dev",
		StackName:   "acme-dev",
		Region:      "eu-west-1",
		Status:      stores.DeploymentStatusPending,
	}); err != nil {
		t.Fatalf("failed to create deployment: %v", err)
	}
	if _, err := store.UpdateDeploymentStatus(ctx, "acme-dev", stores.DeploymentStatusSucceeded, stores.DeploymentUpdate{}); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	outputs, err := orch.Outputs(ctx, "acme", "dev")
	if err != nil {
		t.Fatalf("outputs failed: %v", err)
	}
	if outputs["clusterName"] != "acme-dev" {
		t.Errorf("expected fetched outputs, got %v", outputs)
	}
	if provisioner.outputsCalls != 1 {
		t.Fatalf("expected one remote fetch, got %d", provisioner.outputsCalls)
	}

	// Second read hits the backfilled cache
	if _, err := orch.Outputs(ctx, "acme", "dev"); err != nil {
		t.Fatalf("outputs failed: %v", err)
	}
	if provisioner.outputsCalls != 1 {
		t.Errorf("expected cache hit, got %d remote fetches", provisioner.outputsCalls)
	}

	// Outputs are meaningless before success
	if _, err := store.UpdateDeploymentStatus(ctx, "acme-dev", stores.DeploymentStatusFailed, stores.DeploymentUpdate{}); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if _, err := orch.Outputs(ctx, "acme", "dev"); !IsConflict(err) {
		t.Errorf("expected conflict for non-succeeded deployment, got %v", err)
	}
}

// TestDeleteGuards tests record administration
func TestDeleteGuards(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	orch := setupOrchestrator(t, store, configs, &fakeProvisioner{}, Options{})

	if _, err := orch.Deploy(ctx, "acme", "dev"); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	drain(t, orch)

	err := orch.Delete(ctx, "acme", "dev")
	if !IsConflict(err) {
		t.Fatalf("expected conflict deleting live record, got %v", err)
	}
	var oerr *Error
	if errors.As(err, &oerr) && oerr.Code != ErrCodeNotDeletable {
		t.Errorf("expected code %s, got %s", ErrCodeNotDeletable, oerr.Code)
	}

	if _, err := store.UpdateDeploymentStatus(ctx, "acme-dev", stores.DeploymentStatusFailed, stores.DeploymentUpdate{}); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if err := orch.Delete(ctx, "acme", "dev"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := orch.Delete(ctx, "acme", "dev"); !IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

// TestDeployPolicyDenied tests the admission gate
func TestDeployPolicyDenied(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	configs := setupConfigs(t)
	gate := &fakeGate{err: NewValidationError("cidr out of bounds", nil).WithCode(ErrCodePolicyDenied)}
	orch := setupOrchestrator(t, store, configs, &fakeProvisioner{}, Options{Policy: gate})
	defer drain(t, orch)

	_, err := orch.Deploy(ctx, "acme", "dev")
	if !IsValidation(err) {
		t.Fatalf("expected validation error from policy gate, got %v", err)
	}
	var oerr *Error
	if errors.As(err, &oerr) && oerr.Code != ErrCodePolicyDenied {
		t.Errorf("expected code %s, got %s", ErrCodePolicyDenied, oerr.Code)
	}

	// No record is created for a rejected deploy
	if _, err := store.GetDeployment(ctx, "acme", "dev"); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("expected no deployment record, got %v", err)
	}
}

// TestStackName tests the stack key derivation
func TestStackName(t *testing.T) {
	if got := StackName("acme", "dev"); got != "acme-dev" {
		t.Errorf("expected acme-dev, got %s", got)
	}
}
