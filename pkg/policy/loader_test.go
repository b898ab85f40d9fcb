package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const loaderTestRego = `# Custom guardrail used by loader tests.

package stackpilot.policies.custom

import rego.v1

deny contains violation if {
	input.context.environment == "forbidden"
	violation := {"message": "environment name is reserved", "severity": "error"}
}
`

// TestLoadFromPaths tests loading rego and json policies from a directory
func TestLoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(loaderTestRego), 0o644); err != nil {
		t.Fatalf("failed to write rego file: %v", err)
	}
	jsonPolicy := `{"name": "from-json", "description": "json policy", "rego": "package stackpilot.policies.fromjson\n", "enabled": true}`
	if err := os.WriteFile(filepath.Join(dir, "policy.json"), []byte(jsonPolicy), 0o644); err != nil {
		t.Fatalf("failed to write json file: %v", err)
	}
	// Non-policy files are skipped.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}

	byName := make(map[string]Policy)
	for _, p := range policies {
		byName[p.Name] = p
	}
	if p, ok := byName["custom"]; !ok {
		t.Error("expected the rego policy to load under its file name")
	} else {
		if p.Description != "Custom guardrail used by loader tests." {
			t.Errorf("unexpected description %q", p.Description)
		}
		if !p.Enabled {
			t.Error("expected loaded rego policies to be enabled")
		}
	}
	if p, ok := byName["from-json"]; !ok {
		t.Error("expected the json policy to load under its declared name")
	} else if p.Severity != SeverityWarning {
		t.Errorf("expected the json severity default, got %s", p.Severity)
	}
}

// TestLoadFromMissingPath tests the error for a nonexistent path
func TestLoadFromMissingPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/no/such/path"}); err == nil {
		t.Error("expected an error for a missing path")
	}
}

// TestWatchReloads tests the debounced hot reload
func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(zerolog.Nop())
	defer loader.StopWatching()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 1)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		select {
		case reloaded <- policies:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "custom.rego"), []byte(loaderTestRego), 0o644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	select {
	case policies := <-reloaded:
		if len(policies) != 1 || policies[0].Name != "custom" {
			t.Errorf("unexpected reload payload: %+v", policies)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the reload")
	}
}
