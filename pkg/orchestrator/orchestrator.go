package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
)

// Options configures an Orchestrator.
type Options struct {
	// Project is the provisioning backend's project the stacks live under.
	Project string

	// Workers is the background worker pool size.
	Workers int

	// QueueDepth is the background task queue capacity.
	QueueDepth int

	// TriggerRetries bounds the retry attempts around the remote trigger call.
	// Zero means no retries; the first failure is terminal for the attempt.
	TriggerRetries uint64

	// Policy is an optional guardrail gate evaluated before deploys.
	Policy PolicyGate

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Orchestrator owns the deployment lifecycle state machine. All remote
// triggering flows through it; it guarantees at most one in-flight
// remote-triggering sequence per stack key.
type Orchestrator struct {
	store       RecordStore
	provisioner Provisioner
	configs     ConfigSource
	policy      PolicyGate

	project        string
	triggerRetries uint64

	locks *keyLock
	queue *workQueue

	mu       sync.Mutex
	inFlight map[string]struct{}

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// New creates an orchestrator with explicitly constructed dependencies.
func New(store RecordStore, provisioner Provisioner, configs ConfigSource, opts Options) *Orchestrator {
	metrics := opts.Metrics
	if metrics == nil {
		metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer, _ = telemetry.NewTracer(telemetry.TracingConfig{}, "orchestrator", "", "")
	}

	logger := opts.Logger.With().Str("component", "orchestrator").Logger()

	return &Orchestrator{
		store:          store,
		provisioner:    provisioner,
		configs:        configs,
		policy:         opts.Policy,
		project:        opts.Project,
		triggerRetries: opts.TriggerRetries,
		locks:          newKeyLock(),
		queue:          newWorkQueue(opts.Workers, opts.QueueDepth, opts.Logger),
		inFlight:       make(map[string]struct{}),
		logger:         logger,
		metrics:        metrics,
		tracer:         tracer,
	}
}

// Close stops accepting new triggers and drains queued background work.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.queue.Close(ctx)
}

// Deploy validates preconditions, persists a pending record, and schedules the
// remote create/configure/trigger sequence on a background worker. It returns
// synchronously with the record in status pending; callers poll SyncStatus to
// observe progress.
func (o *Orchestrator) Deploy(ctx context.Context, tenantSlug, environment string) (*Deployment, error) {
	stackName := StackName(tenantSlug, environment)

	ctx, span := o.tracer.Start(ctx, "orchestrator.deploy",
		attribute.String("stack", stackName))
	defer span.End()

	o.locks.Lock(stackName)
	defer o.locks.Unlock(stackName)

	tenant, err := o.store.GetTenantBySlug(ctx, tenantSlug)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, NewNotFoundError(fmt.Sprintf("tenant %q not found", tenantSlug), err).
				WithCode(ErrCodeNotFound).WithStack(stackName)
		}
		return nil, NewInternalError("failed to load tenant", err).WithStack(stackName)
	}

	cfg, err := o.configs.Get(tenantSlug, environment)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, NewNotFoundError(
				fmt.Sprintf("config for %s/%s not found; save config first", tenantSlug, environment), err).
				WithCode(ErrCodeNotFound).WithStack(stackName)
		}
		return nil, NewInternalError("failed to load environment config", err).WithStack(stackName)
	}

	if o.policy != nil {
		if err := o.policy.Check(ctx, tenantSlug, environment, cfg); err != nil {
			var oerr *Error
			if errors.As(err, &oerr) {
				return nil, oerr
			}
			return nil, NewValidationError("environment config rejected by policy", err).
				WithCode(ErrCodePolicyDenied).WithStack(stackName)
		}
	}

	if o.isInFlight(stackName) {
		return nil, NewConflictError("deployment already in progress", nil).
			WithCode(ErrCodeInFlight).WithStack(stackName)
	}

	record, err := o.admitDeploy(ctx, tenant, environment, stackName)
	if err != nil {
		return nil, err
	}

	o.markInFlight(stackName)
	o.audit(ctx, "deploy.requested", stackName, map[string]any{"tenant": tenantSlug, "environment": environment})
	o.metrics.OperationStarted(string(OperationUpdate))

	tenantSnapshot := *tenant
	cfgSnapshot := *cfg
	if err := o.queue.Submit("deploy "+stackName, func(taskCtx context.Context) {
		defer o.clearInFlight(stackName)
		defer o.metrics.OperationFinished()
		o.runDeploy(taskCtx, &tenantSnapshot, environment, &cfgSnapshot)
	}); err != nil {
		o.clearInFlight(stackName)
		o.metrics.OperationFinished()
		o.failDeployment(ctx, stackName, OperationUpdate,
			[]stores.DeploymentStatus{stores.DeploymentStatusPending},
			fmt.Sprintf("failed to schedule deployment: %v", err))
		return nil, NewInternalError("failed to schedule deployment", err).WithStack(stackName)
	}

	return deploymentFromRecord(record)
}

// admitDeploy applies the state-machine guard and produces the pending record,
// creating a fresh one or reusing an existing redeployable record. Callers hold
// the stack key lock.
func (o *Orchestrator) admitDeploy(ctx context.Context, tenant *stores.TenantRecord, environment, stackName string) (*stores.DeploymentRecord, error) {
	existing, err := o.store.GetDeployment(ctx, tenant.Slug, environment)
	if err != nil && !errors.Is(err, stores.ErrNotFound) {
		return nil, NewInternalError("failed to load deployment record", err).WithStack(stackName)
	}

	if existing == nil {
		record, err := o.store.CreateDeployment(ctx, &stores.DeploymentRecord{
			TenantID:    tenant.ID,
			TenantSlug:  tenant.Slug,
			Environment: environment,
			StackName:   stackName,
			Region:      tenant.Region,
			Status:      stores.DeploymentStatusPending,
		})
		if err != nil {
			if errors.Is(err, stores.ErrAlreadyExists) {
				return nil, NewConflictError("deployment record already exists", err).
					WithCode(ErrCodeAlreadyExists).WithStack(stackName)
			}
			return nil, NewInternalError("failed to create deployment record", err).WithStack(stackName)
		}
		return record, nil
	}

	switch existing.Status {
	case stores.DeploymentStatusInProgress:
		return nil, NewConflictError("deployment already in progress", nil).
			WithCode(ErrCodeInFlight).WithStack(stackName)
	case stores.DeploymentStatusDestroying:
		return nil, NewConflictError("destruction in progress", nil).
			WithCode(ErrCodeInFlight).WithStack(stackName)
	case stores.DeploymentStatusSucceeded:
		return nil, NewConflictError("deployment exists; destroy first to redeploy", nil).
			WithCode(ErrCodeDestroyFirst).WithStack(stackName)
	}

	record, err := o.store.ResetDeployment(ctx, stackName)
	if err != nil {
		if errors.Is(err, stores.ErrAlreadyExists) {
			return nil, NewConflictError("deployment state changed concurrently", err).
				WithCode(ErrCodeInFlight).WithStack(stackName)
		}
		return nil, NewInternalError("failed to reset deployment record", err).WithStack(stackName)
	}
	return record, nil
}

// runDeploy executes the remote sequence for one deploy attempt: ensure the
// workspace exists, push configuration, trigger the update, record the
// operation id. Any failure past the pending write moves the record straight
// to failed; the record stays as evidence of how far the attempt progressed.
func (o *Orchestrator) runDeploy(ctx context.Context, tenant *stores.TenantRecord, environment string, cfg *config.EnvironmentConfig) {
	stackName := StackName(tenant.Slug, environment)
	logger := o.logger.With().Str("stack", stackName).Logger()

	if err := o.ensureWorkspace(ctx, stackName); err != nil {
		logger.Error().Err(err).Msg("Workspace creation failed")
		o.failDeployment(ctx, stackName, OperationUpdate,
			[]stores.DeploymentStatus{stores.DeploymentStatusPending}, err.Error())
		return
	}

	stackCfg := StackConfig{
		TenantSlug:  tenant.Slug,
		Environment: environment,
		Region:      tenant.Region,
		RoleARN:     tenant.RoleARN,
		ExternalID:  tenant.ExternalID,
		Values:      cfg.StackValues(),
	}
	if err := o.timedCall(ctx, "push_configuration", func(callCtx context.Context) error {
		return o.provisioner.PushConfiguration(callCtx, o.project, stackName, stackCfg)
	}); err != nil {
		logger.Error().Err(err).Msg("Configuration push failed")
		o.failDeployment(ctx, stackName, OperationUpdate,
			[]stores.DeploymentStatus{stores.DeploymentStatusPending}, err.Error())
		return
	}

	operationID, err := o.trigger(ctx, stackName, OperationUpdate)
	if err != nil {
		logger.Error().Err(err).Msg("Update trigger failed")
		o.failDeployment(ctx, stackName, OperationUpdate,
			[]stores.DeploymentStatus{stores.DeploymentStatusPending}, err.Error())
		return
	}

	ok, err := o.store.UpdateDeploymentStatusIf(ctx, stackName,
		[]stores.DeploymentStatus{stores.DeploymentStatusPending},
		stores.DeploymentStatusInProgress,
		stores.DeploymentUpdate{OperationID: &operationID})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist in_progress transition")
		return
	}
	if !ok {
		logger.Warn().Msg("Record left pending status before trigger completed; not overwriting")
		return
	}

	o.metrics.Transition(string(stores.DeploymentStatusPending), string(stores.DeploymentStatusInProgress))
	logger.Info().Str("operation_id", operationID).Msg("Update operation triggered")
}

// ensureWorkspace creates the remote workspace, treating "already exists" as
// success.
func (o *Orchestrator) ensureWorkspace(ctx context.Context, stackName string) error {
	err := o.timedCall(ctx, "create_workspace", func(callCtx context.Context) error {
		return o.provisioner.CreateWorkspace(callCtx, o.project, stackName)
	})
	if errors.Is(err, ErrWorkspaceExists) {
		return nil
	}
	return err
}

// trigger starts a remote operation with a bounded exponential-backoff retry.
// Retries apply to the trigger call only and do not change the externally
// observed state machine.
func (o *Orchestrator) trigger(ctx context.Context, stackName string, op Operation) (string, error) {
	var operationID string

	attempt := func() error {
		return o.timedCall(ctx, "trigger_operation", func(callCtx context.Context) error {
			id, err := o.provisioner.TriggerOperation(callCtx, o.project, stackName, op)
			if err != nil {
				return err
			}
			operationID = id
			return nil
		})
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.triggerRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return "", err
	}

	return operationID, nil
}

// timedCall wraps a remote call with a timeout and metrics.
func (o *Orchestrator) timedCall(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	outcome := "ok"
	if err != nil && !errors.Is(err, ErrWorkspaceExists) {
		outcome = "error"
	}
	o.metrics.RemoteCall(call, outcome, time.Since(start))
	return err
}

// failDeployment records a terminal failed status with the error text,
// guarded so it never reverts a status another path already advanced.
func (o *Orchestrator) failDeployment(ctx context.Context, stackName string, op Operation, expect []stores.DeploymentStatus, message string) {
	ok, err := o.store.UpdateDeploymentStatusIf(ctx, stackName, expect,
		stores.DeploymentStatusFailed,
		stores.DeploymentUpdate{ErrorMessage: &message})
	if err != nil {
		o.logger.Error().Err(err).Str("stack", stackName).Msg("Failed to persist failed transition")
		return
	}
	if ok {
		o.metrics.OperationCompleted(string(op), string(stores.DeploymentStatusFailed))
		o.audit(ctx, "deployment.failed", stackName, map[string]any{"error": message})
	}
}

// Destroy validates the destroy request, persists the destroying transition,
// and schedules the remote destroy trigger. Requires explicit confirmation;
// the confirmation check happens before any state mutation.
func (o *Orchestrator) Destroy(ctx context.Context, tenantSlug, environment string, confirm bool) (*Deployment, error) {
	stackName := StackName(tenantSlug, environment)

	if !confirm {
		return nil, NewValidationError("destroy requires explicit confirmation", nil).
			WithCode(ErrCodeConfirmRequired).WithStack(stackName)
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.destroy",
		attribute.String("stack", stackName))
	defer span.End()

	o.locks.Lock(stackName)
	defer o.locks.Unlock(stackName)

	record, err := o.store.GetDeployment(ctx, tenantSlug, environment)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, NewNotFoundError(
				fmt.Sprintf("deployment for %s/%s not found", tenantSlug, environment), err).
				WithCode(ErrCodeNotFound).WithStack(stackName)
		}
		return nil, NewInternalError("failed to load deployment record", err).WithStack(stackName)
	}

	if record.Status == stores.DeploymentStatusDestroying {
		return nil, NewConflictError("destruction already in progress", nil).
			WithCode(ErrCodeInFlight).WithStack(stackName)
	}
	if o.isInFlight(stackName) {
		return nil, NewConflictError("operation already in progress", nil).
			WithCode(ErrCodeInFlight).WithStack(stackName)
	}

	// The destroying record starts a fresh lifecycle attempt: the previous
	// operation id must not survive into it, or a status query issued before
	// the destroy trigger lands would poll the old operation and conclude the
	// stack was destroyed without any destroy having run.
	record, err = o.store.UpdateDeploymentStatus(ctx, stackName,
		stores.DeploymentStatusDestroying, stores.DeploymentUpdate{
			ClearOperationID:  true,
			ClearErrorMessage: true,
		})
	if err != nil {
		return nil, NewInternalError("failed to persist destroying transition", err).WithStack(stackName)
	}

	o.markInFlight(stackName)
	o.audit(ctx, "destroy.requested", stackName, map[string]any{"tenant": tenantSlug, "environment": environment})
	o.metrics.OperationStarted(string(OperationDestroy))

	if err := o.queue.Submit("destroy "+stackName, func(taskCtx context.Context) {
		defer o.clearInFlight(stackName)
		defer o.metrics.OperationFinished()
		o.runDestroy(taskCtx, stackName)
	}); err != nil {
		o.clearInFlight(stackName)
		o.metrics.OperationFinished()
		o.failDeployment(ctx, stackName, OperationDestroy,
			[]stores.DeploymentStatus{stores.DeploymentStatusDestroying},
			fmt.Sprintf("failed to schedule destruction: %v", err))
		return nil, NewInternalError("failed to schedule destruction", err).WithStack(stackName)
	}

	return deploymentFromRecord(record)
}

// runDestroy triggers the remote destroy operation and records its id.
func (o *Orchestrator) runDestroy(ctx context.Context, stackName string) {
	logger := o.logger.With().Str("stack", stackName).Logger()

	operationID, err := o.trigger(ctx, stackName, OperationDestroy)
	if err != nil {
		logger.Error().Err(err).Msg("Destroy trigger failed")
		o.failDeployment(ctx, stackName, OperationDestroy,
			[]stores.DeploymentStatus{stores.DeploymentStatusDestroying}, err.Error())
		return
	}

	ok, err := o.store.UpdateDeploymentStatusIf(ctx, stackName,
		[]stores.DeploymentStatus{stores.DeploymentStatusDestroying},
		stores.DeploymentStatusDestroying,
		stores.DeploymentUpdate{OperationID: &operationID})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist destroy operation id")
		return
	}
	if !ok {
		logger.Warn().Msg("Record left destroying status before trigger completed; not overwriting")
		return
	}

	logger.Info().Str("operation_id", operationID).Msg("Destroy operation triggered")
}

// SyncStatus is the single read path and the only place remote state is
// polled. When a remote operation is outstanding it reconciles the local
// record against the remote operation's status; transport errors while
// polling are swallowed so a query never fails merely because the backend
// was briefly unreachable.
func (o *Orchestrator) SyncStatus(ctx context.Context, tenantSlug, environment string) (*Deployment, error) {
	record, err := o.store.GetDeployment(ctx, tenantSlug, environment)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, NewNotFoundError(
				fmt.Sprintf("deployment for %s/%s not found", tenantSlug, environment), err).
				WithCode(ErrCodeNotFound)
		}
		return nil, NewInternalError("failed to load deployment record", err)
	}

	if !record.Status.InFlight() || record.OperationID == nil || *record.OperationID == "" {
		return deploymentFromRecord(record)
	}

	stackName := record.StackName
	logger := o.logger.With().Str("stack", stackName).Logger()

	var status *OperationStatus
	err = o.timedCall(ctx, "get_operation_status", func(callCtx context.Context) error {
		var pollErr error
		status, pollErr = o.provisioner.GetOperationStatus(callCtx, o.project, stackName, *record.OperationID)
		return pollErr
	})
	if err != nil {
		logger.Debug().Err(err).Msg("Status poll failed; returning local record unchanged")
		return deploymentFromRecord(record)
	}

	switch status.State {
	case OperationStateSucceeded:
		if record.Status == stores.DeploymentStatusInProgress {
			if err := o.completeDeploy(ctx, record, logger); err != nil {
				return deploymentFromRecord(record)
			}
		} else {
			o.completeDestroy(ctx, record, logger)
		}
	case OperationStateFailed:
		message := status.Message
		if message == "" {
			message = "remote operation failed"
		}
		ok, err := o.store.UpdateDeploymentStatusIf(ctx, stackName,
			[]stores.DeploymentStatus{stores.DeploymentStatusInProgress, stores.DeploymentStatusDestroying},
			stores.DeploymentStatusFailed,
			stores.DeploymentUpdate{ErrorMessage: &message})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to persist failed transition")
			return deploymentFromRecord(record)
		}
		if ok {
			op := OperationUpdate
			if record.Status == stores.DeploymentStatusDestroying {
				op = OperationDestroy
			}
			o.metrics.Transition(string(record.Status), string(stores.DeploymentStatusFailed))
			o.metrics.OperationCompleted(string(op), string(stores.DeploymentStatusFailed))
		}
	default:
		// Still running; the local record intentionally lags.
		return deploymentFromRecord(record)
	}

	updated, err := o.store.GetDeployment(ctx, tenantSlug, environment)
	if err != nil {
		return deploymentFromRecord(record)
	}
	return deploymentFromRecord(updated)
}

// completeDeploy fetches outputs and transitions in_progress → succeeded.
// An outputs fetch failure leaves the record untouched; the next status query
// retries the whole step.
func (o *Orchestrator) completeDeploy(ctx context.Context, record *stores.DeploymentRecord, logger zerolog.Logger) error {
	var outputs map[string]any
	err := o.timedCall(ctx, "get_outputs", func(callCtx context.Context) error {
		var fetchErr error
		outputs, fetchErr = o.provisioner.GetOutputs(callCtx, o.project, record.StackName)
		return fetchErr
	})
	if err != nil {
		logger.Debug().Err(err).Msg("Output fetch failed; returning local record unchanged")
		return err
	}

	encoded, err := encodeOutputs(outputs)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode outputs")
		return err
	}

	ok, err := o.store.UpdateDeploymentStatusIf(ctx, record.StackName,
		[]stores.DeploymentStatus{stores.DeploymentStatusInProgress},
		stores.DeploymentStatusSucceeded,
		stores.DeploymentUpdate{Outputs: encoded})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist succeeded transition")
		return err
	}
	if ok {
		o.metrics.Transition(string(stores.DeploymentStatusInProgress), string(stores.DeploymentStatusSucceeded))
		o.metrics.OperationCompleted(string(OperationUpdate), string(stores.DeploymentStatusSucceeded))
		o.audit(ctx, "deployment.succeeded", record.StackName, nil)
	}
	return nil
}

// completeDestroy transitions destroying → destroyed.
func (o *Orchestrator) completeDestroy(ctx context.Context, record *stores.DeploymentRecord, logger zerolog.Logger) {
	ok, err := o.store.UpdateDeploymentStatusIf(ctx, record.StackName,
		[]stores.DeploymentStatus{stores.DeploymentStatusDestroying},
		stores.DeploymentStatusDestroyed,
		stores.DeploymentUpdate{})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist destroyed transition")
		return
	}
	if ok {
		o.metrics.Transition(string(stores.DeploymentStatusDestroying), string(stores.DeploymentStatusDestroyed))
		o.metrics.OperationCompleted(string(OperationDestroy), string(stores.DeploymentStatusDestroyed))
		o.audit(ctx, "deployment.destroyed", record.StackName, nil)
	}
}

// Outputs returns the deployment's output values, preferring the cached
// snapshot and backfilling it from the backend when absent. Outputs exist only
// after a successful deployment.
func (o *Orchestrator) Outputs(ctx context.Context, tenantSlug, environment string) (map[string]any, error) {
	record, err := o.store.GetDeployment(ctx, tenantSlug, environment)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, NewNotFoundError(
				fmt.Sprintf("deployment for %s/%s not found", tenantSlug, environment), err).
				WithCode(ErrCodeNotFound)
		}
		return nil, NewInternalError("failed to load deployment record", err)
	}

	if record.Status != stores.DeploymentStatusSucceeded {
		return nil, NewConflictError("outputs are available only after a successful deployment", nil).
			WithStack(record.StackName)
	}

	if record.Outputs != nil && *record.Outputs != "" {
		var outputs map[string]any
		if err := json.Unmarshal([]byte(*record.Outputs), &outputs); err != nil {
			return nil, NewInternalError("failed to decode cached outputs", err).WithStack(record.StackName)
		}
		return outputs, nil
	}

	var outputs map[string]any
	err = o.timedCall(ctx, "get_outputs", func(callCtx context.Context) error {
		var fetchErr error
		outputs, fetchErr = o.provisioner.GetOutputs(callCtx, o.project, record.StackName)
		return fetchErr
	})
	if err != nil {
		return nil, NewRemoteError("failed to fetch outputs", err).WithStack(record.StackName)
	}

	encoded, err := encodeOutputs(outputs)
	if err != nil {
		return nil, NewInternalError("failed to encode outputs", err).WithStack(record.StackName)
	}

	// Backfill is best effort; the fetch is idempotent and safe to repeat.
	if _, err := o.store.UpdateDeploymentStatusIf(ctx, record.StackName,
		[]stores.DeploymentStatus{stores.DeploymentStatusSucceeded},
		stores.DeploymentStatusSucceeded,
		stores.DeploymentUpdate{Outputs: encoded}); err != nil {
		o.logger.Warn().Err(err).Str("stack", record.StackName).Msg("Failed to backfill output cache")
	}

	return outputs, nil
}

// List returns deployments, optionally filtered by tenant slug.
func (o *Orchestrator) List(ctx context.Context, tenantSlug string) ([]*Deployment, error) {
	records, err := o.store.ListDeployments(ctx, tenantSlug)
	if err != nil {
		return nil, NewInternalError("failed to list deployments", err)
	}

	deployments := make([]*Deployment, 0, len(records))
	for _, record := range records {
		d, err := deploymentFromRecord(record)
		if err != nil {
			return nil, NewInternalError("failed to decode deployment record", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, nil
}

// Delete removes a deployment record. Deletion is an explicit administrative
// action, distinct from state-machine transitions, and is permitted only once
// the record is in a deletable terminal status.
func (o *Orchestrator) Delete(ctx context.Context, tenantSlug, environment string) error {
	stackName := StackName(tenantSlug, environment)

	o.locks.Lock(stackName)
	defer o.locks.Unlock(stackName)

	record, err := o.store.GetDeployment(ctx, tenantSlug, environment)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return NewNotFoundError(
				fmt.Sprintf("deployment for %s/%s not found", tenantSlug, environment), err).
				WithCode(ErrCodeNotFound).WithStack(stackName)
		}
		return NewInternalError("failed to load deployment record", err).WithStack(stackName)
	}

	if !record.Status.Deletable() {
		return NewConflictError(
			fmt.Sprintf("deployment in status %q cannot be deleted", record.Status), nil).
			WithCode(ErrCodeNotDeletable).WithStack(stackName)
	}

	deleted, err := o.store.DeleteDeployment(ctx, stackName)
	if err != nil {
		return NewInternalError("failed to delete deployment record", err).WithStack(stackName)
	}
	if !deleted {
		return NewNotFoundError(
			fmt.Sprintf("deployment for %s/%s not found", tenantSlug, environment), nil).
			WithCode(ErrCodeNotFound).WithStack(stackName)
	}

	o.audit(ctx, "deployment.deleted", stackName, nil)
	return nil
}

// audit appends an audit entry; failures are logged, never surfaced.
func (o *Orchestrator) audit(ctx context.Context, action, stackName string, details map[string]any) {
	entry := &stores.AuditEntry{
		Action:    action,
		Actor:     "orchestrator",
		StackName: &stackName,
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			s := string(raw)
			entry.Details = &s
		}
	}
	if err := o.store.CreateAuditEntry(ctx, entry); err != nil {
		o.logger.Warn().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}
}

func (o *Orchestrator) isInFlight(stackName string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[stackName]
	return ok
}

func (o *Orchestrator) markInFlight(stackName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight[stackName] = struct{}{}
}

func (o *Orchestrator) clearInFlight(stackName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, stackName)
}
