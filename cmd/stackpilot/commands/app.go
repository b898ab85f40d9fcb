package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/orchestrator"
	"github.com/stackpilot/stackpilot/pkg/policy"
	"github.com/stackpilot/stackpilot/pkg/provisioner/pulumi"
	"github.com/stackpilot/stackpilot/pkg/stores"
	"github.com/stackpilot/stackpilot/pkg/telemetry"
	"github.com/stackpilot/stackpilot/pkg/tenants"
)

// app wires settings, storage and services for one command invocation.
type app struct {
	settings *config.Settings
	logger   zerolog.Logger
	store    *stores.SQLiteStore
	configs  *config.Store

	orch   *orchestrator.Orchestrator
	tracer *telemetry.Tracer
}

// newApp loads settings, opens the store and runs pending migrations.
func newApp(ctx context.Context) (*app, error) {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.LogLevel = "debug"
	}

	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: settings.DatabasePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	configs, err := config.NewStore(settings.ConfigDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		settings: settings,
		logger:   logger,
		store:    store,
		configs:  configs,
	}, nil
}

// Close drains background work and releases resources.
func (a *app) Close(ctx context.Context) error {
	if a.orch != nil {
		if err := a.orch.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Background work did not drain cleanly")
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
	return a.store.Close()
}

// tenantService builds the tenant onboarding service.
func (a *app) tenantService() *tenants.Service {
	return tenants.NewService(a.store, a.logger)
}

// orchestrator builds the deployment orchestrator with the remote backend
// client and policy gate. Commands that never touch the backend skip this.
func (a *app) orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	if a.orch != nil {
		return a.orch, nil
	}
	if err := a.settings.ValidateRemote(); err != nil {
		return nil, fmt.Errorf("incomplete provisioning settings: %w", err)
	}

	client, err := pulumi.NewClient(pulumi.Options{
		Organization:       a.settings.PulumiOrg,
		AccessToken:        a.settings.PulumiAccessToken,
		APIURL:             a.settings.PulumiAPIURL,
		GitRepoURL:         a.settings.GitRepoURL,
		GitBranch:          a.settings.GitRepoBranch,
		GitDir:             a.settings.GitRepoDir,
		GitHubToken:        a.settings.GitHubToken,
		AWSAccessKeyID:     a.settings.AWSAccessKeyID,
		AWSSecretAccessKey: a.settings.AWSSecretAccessKey,
		Logger:             a.logger,
	})
	if err != nil {
		return nil, err
	}

	engine, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:   a.settings.MetricsEnabled,
		Namespace: "stackpilot",
	})
	if err != nil {
		return nil, err
	}

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:    a.settings.TraceExporter != "" && a.settings.TraceExporter != "none",
		Exporter:   a.settings.TraceExporter,
		Endpoint:   a.settings.TraceEndpoint,
		Insecure:   true,
		SampleRate: 1,
	}, "stackpilot", "", "")
	if err != nil {
		return nil, err
	}
	a.tracer = tracer

	a.orch = orchestrator.New(a.store, client, a.configs, orchestrator.Options{
		Project:        a.settings.PulumiProject,
		Workers:        a.settings.Workers,
		QueueDepth:     a.settings.QueueDepth,
		TriggerRetries: 2,
		Policy:         policy.NewGate(engine, a.logger),
		Logger:         a.logger,
		Metrics:        metrics,
		Tracer:         tracer,
	})
	return a.orch, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable returns a tabwriter for aligned column output.
func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

// printDeployment renders one deployment in the selected output format.
func printDeployment(d *orchestrator.Deployment) error {
	if jsonOutput {
		return printJSON(d)
	}

	w := newTable()
	fmt.Fprintf(w, "Stack:\t%s\n", d.StackName)
	fmt.Fprintf(w, "Tenant:\t%s\n", d.TenantSlug)
	fmt.Fprintf(w, "Environment:\t%s\n", d.Environment)
	fmt.Fprintf(w, "Region:\t%s\n", d.Region)
	fmt.Fprintf(w, "Status:\t%s\n", d.Status)
	if d.OperationID != "" {
		fmt.Fprintf(w, "Operation:\t%s\n", d.OperationID)
	}
	if d.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", d.ErrorMessage)
	}
	fmt.Fprintf(w, "Updated:\t%s\n", d.UpdatedAt.Format("2006-01-02 15:04:05"))
	return w.Flush()
}
