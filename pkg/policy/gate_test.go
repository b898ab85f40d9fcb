package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/orchestrator"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	return NewGate(newTestEngine(t), zerolog.Nop())
}

// TestGateAllowsCompliantConfig tests admission of the defaults
func TestGateAllowsCompliantConfig(t *testing.T) {
	gate := newTestGate(t)

	if err := gate.Check(context.Background(), "acme", "dev", config.DefaultEnvironmentConfig()); err != nil {
		t.Fatalf("expected defaults to pass the gate: %v", err)
	}
}

// TestGateRejectsViolations tests that blocking violations surface as a
// validation error naming the violated rule
func TestGateRejectsViolations(t *testing.T) {
	gate := newTestGate(t)

	cfg := config.DefaultEnvironmentConfig()
	cfg.VPCCIDR = "8.8.0.0/16"

	err := gate.Check(context.Background(), "acme", "dev", cfg)
	if err == nil {
		t.Fatal("expected the gate to reject a public CIDR")
	}
	if !orchestrator.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
	var oerr *orchestrator.Error
	if !errors.As(err, &oerr) || oerr.Code != orchestrator.ErrCodePolicyDenied {
		t.Errorf("expected code %s, got %v", orchestrator.ErrCodePolicyDenied, err)
	}
	if !strings.Contains(err.Error(), "network-guardrails") {
		t.Errorf("expected the message to name the policy, got %q", err.Error())
	}
}

// TestGatePassesWarnings tests that warning-severity findings do not reject
func TestGatePassesWarnings(t *testing.T) {
	gate := newTestGate(t)

	cfg := config.DefaultEnvironmentConfig()
	cfg.AvailabilityZones = []string{"eu-west-1a"}

	if err := gate.Check(context.Background(), "acme", "prod", cfg); err != nil {
		t.Fatalf("expected warnings to pass the gate: %v", err)
	}
}
