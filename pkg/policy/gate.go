package policy

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/orchestrator"
)

// Gate adapts the policy engine to the orchestrator's admission hook.
type Gate struct {
	engine *Engine
	logger zerolog.Logger
}

// NewGate creates an admission gate over a policy engine.
func NewGate(engine *Engine, logger zerolog.Logger) *Gate {
	return &Gate{
		engine: engine,
		logger: logger.With().Str("component", "policy-gate").Logger(),
	}
}

// Check evaluates the guardrails against an environment configuration.
// Warnings are logged; blocking violations reject the deployment with a
// validation error listing every violated rule.
func (g *Gate) Check(ctx context.Context, tenantSlug, environment string, cfg *config.EnvironmentConfig) error {
	input := &Input{
		Config: cfg,
		Context: &Context{
			TenantSlug:  tenantSlug,
			Environment: environment,
			Timestamp:   time.Now(),
		},
	}

	result, err := g.engine.Evaluate(ctx, input)
	if err != nil {
		return orchestrator.NewInternalError("policy evaluation failed", err)
	}

	for _, warning := range result.Warnings {
		g.logger.Warn().
			Str("tenant", tenantSlug).
			Str("environment", environment).
			Str("policy", warning.Policy).
			Msg(warning.Message)
	}

	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, violation := range result.Violations {
		messages = append(messages, violation.Policy+": "+violation.Message)
	}

	return orchestrator.NewValidationError(
		"configuration rejected by policy: "+strings.Join(messages, "; "), nil).
		WithCode(orchestrator.ErrCodePolicyDenied)
}
