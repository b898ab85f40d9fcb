package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings holds process-level configuration, loaded from a settings file
// and STACKPILOT_* environment variables.
type Settings struct {
	// Provisioning backend
	PulumiOrg         string `mapstructure:"pulumi_org"`
	PulumiAccessToken string `mapstructure:"pulumi_access_token"`
	PulumiProject     string `mapstructure:"pulumi_project"`
	PulumiAPIURL      string `mapstructure:"pulumi_api_url"`

	// Source context for the remote infrastructure program
	GitRepoURL    string `mapstructure:"git_repo_url"`
	GitRepoBranch string `mapstructure:"git_repo_branch"`
	GitRepoDir    string `mapstructure:"git_repo_dir"`
	GitHubToken   string `mapstructure:"github_token"`

	// Credentials the backend uses to assume tenant roles
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	AWSRegion          string `mapstructure:"aws_region"`

	// Local state
	DatabasePath string `mapstructure:"database_path"`
	ConfigDir    string `mapstructure:"config_dir"`

	// Background execution
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`

	// Telemetry
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	TraceExporter  string `mapstructure:"trace_exporter"`
	TraceEndpoint  string `mapstructure:"trace_endpoint"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// LoadSettings reads settings from the given file (optional) and the
// environment. Environment variables use the STACKPILOT_ prefix, e.g.
// STACKPILOT_PULUMI_ACCESS_TOKEN.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("pulumi_project", "stackpilot-platform")
	v.SetDefault("pulumi_api_url", "https://api.pulumi.com")
	v.SetDefault("git_repo_branch", "main")
	v.SetDefault("git_repo_dir", ".")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("database_path", "stackpilot.db")
	v.SetDefault("config_dir", "configs")
	v.SetDefault("workers", 4)
	v.SetDefault("queue_depth", 64)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("trace_exporter", "none")
	v.SetDefault("metrics_enabled", false)

	v.SetEnvPrefix("STACKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	} else {
		v.SetConfigName("stackpilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.stackpilot")
		// A missing settings file is fine; env vars and defaults apply.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read settings file: %w", err)
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return settings, nil
}

// ValidateRemote checks that the settings required for remote provisioning
// calls are present. Local-only commands skip this.
func (s *Settings) ValidateRemote() error {
	if s.PulumiOrg == "" {
		return fmt.Errorf("pulumi_org is required")
	}
	if s.PulumiAccessToken == "" {
		return fmt.Errorf("pulumi_access_token is required")
	}
	if s.GitRepoURL == "" {
		return fmt.Errorf("git_repo_url is required")
	}
	return nil
}
