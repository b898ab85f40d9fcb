package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no configuration is persisted for the pair.
var ErrNotFound = errors.New("environment config not found")

// Store persists environment configurations as JSON files, one per
// (tenant, environment) pair. Configs are versioned implicitly by overwrite;
// no history is retained.
type Store struct {
	dir string
}

// NewStore creates a file-backed config store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("config directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// configFile is the on-disk envelope for one environment configuration.
type configFile struct {
	TenantSlug  string             `json:"tenant_slug"`
	Environment string             `json:"environment"`
	Config      *EnvironmentConfig `json:"config"`
}

func (s *Store) path(tenantSlug, environment string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", tenantSlug, environment))
}

// Save validates and persists an environment configuration, overwriting any
// previous version.
func (s *Store) Save(tenantSlug, environment string, cfg *EnvironmentConfig) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config for %s/%s: %w", tenantSlug, environment, err)
	}

	data, err := json.MarshalIndent(configFile{
		TenantSlug:  tenantSlug,
		Environment: environment,
		Config:      cfg,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(s.path(tenantSlug, environment), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get loads the persisted configuration for the pair.
func (s *Store) Get(tenantSlug, environment string) (*EnvironmentConfig, error) {
	data, err := os.ReadFile(s.path(tenantSlug, environment))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config %s/%s: %w", tenantSlug, environment, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if file.Config == nil {
		return nil, fmt.Errorf("config %s/%s: empty config body", tenantSlug, environment)
	}

	file.Config.ApplyDefaults()
	return file.Config, nil
}

// Delete removes the persisted configuration. Returns false if none existed.
func (s *Store) Delete(tenantSlug, environment string) (bool, error) {
	err := os.Remove(s.path(tenantSlug, environment))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete config: %w", err)
	}
	return true, nil
}
