package pulumi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/orchestrator"
)

const (
	// DefaultAPIURL is the Pulumi Cloud API endpoint.
	DefaultAPIURL = "https://api.pulumi.com"

	defaultTimeout = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	// Organization is the Pulumi Cloud organization stacks are created under.
	Organization string

	// AccessToken authenticates against the Pulumi Cloud API.
	AccessToken string

	// APIURL overrides the API endpoint. Defaults to DefaultAPIURL.
	APIURL string

	// GitRepoURL, GitBranch and GitDir identify the infrastructure program the
	// deployment executor checks out and runs.
	GitRepoURL string
	GitBranch  string
	GitDir     string

	// GitHubToken grants the executor read access to a private repository.
	GitHubToken string

	// AWS credentials injected into the deployment executor environment.
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string

	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Client talks to the Pulumi Cloud Deployments REST API. It is stateless and
// safe for concurrent use.
type Client struct {
	organization string
	accessToken  string
	apiURL       string

	gitRepoURL  string
	gitBranch   string
	gitDir      string
	gitHubToken string

	awsAccessKeyID     string
	awsSecretAccessKey string
	awsSessionToken    string

	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a Pulumi Deployments client.
func NewClient(opts Options) (*Client, error) {
	if opts.Organization == "" {
		return nil, fmt.Errorf("pulumi organization is required")
	}
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("pulumi access token is required")
	}
	if opts.GitRepoURL == "" {
		return nil, fmt.Errorf("git repository url is required")
	}

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	branch := opts.GitBranch
	if branch == "" {
		branch = "main"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		organization:       opts.Organization,
		accessToken:        opts.AccessToken,
		apiURL:             strings.TrimRight(apiURL, "/"),
		gitRepoURL:         opts.GitRepoURL,
		gitBranch:          branch,
		gitDir:             opts.GitDir,
		gitHubToken:        opts.GitHubToken,
		awsAccessKeyID:     opts.AWSAccessKeyID,
		awsSecretAccessKey: opts.AWSSecretAccessKey,
		awsSessionToken:    opts.AWSSessionToken,
		httpClient:         httpClient,
		logger:             opts.Logger.With().Str("component", "pulumi").Logger(),
	}, nil
}

// CreateWorkspace creates the stack in Pulumi Cloud. A stack that already
// exists reports orchestrator.ErrWorkspaceExists.
func (c *Client) CreateWorkspace(ctx context.Context, project, stackName string) error {
	path := fmt.Sprintf("/api/stacks/%s/%s", c.organization, project)
	body := map[string]string{"stackName": stackName}

	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return orchestrator.ErrWorkspaceExists
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp, "create stack")
	}

	c.logger.Debug().Str("stack", stackName).Msg("Stack created")
	return nil
}

// deploymentSettings is the Pulumi Deployments settings payload.
type deploymentSettings struct {
	SourceContext    sourceContext    `json:"sourceContext"`
	OperationContext operationContext `json:"operationContext"`
}

type sourceContext struct {
	Git gitSource `json:"git"`
}

type gitSource struct {
	RepoURL string   `json:"repoURL"`
	Branch  string   `json:"branch"`
	RepoDir string   `json:"repoDir,omitempty"`
	GitAuth *gitAuth `json:"gitAuth,omitempty"`
}

type gitAuth struct {
	AccessToken string `json:"accessToken"`
}

type operationContext struct {
	PreRunCommands       []string          `json:"preRunCommands"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`
}

// PushConfiguration writes the stack's deployment settings: the git source of
// the infrastructure program, pre-run commands seeding the stack
// configuration, and executor credentials.
func (c *Client) PushConfiguration(ctx context.Context, project, stackName string, cfg orchestrator.StackConfig) error {
	settings := deploymentSettings{
		SourceContext: sourceContext{
			Git: gitSource{
				RepoURL: c.gitRepoURL,
				Branch:  c.gitBranch,
				RepoDir: c.gitDir,
			},
		},
		OperationContext: operationContext{
			PreRunCommands:       c.preRunCommands(cfg),
			EnvironmentVariables: c.environmentVariables(),
		},
	}
	if c.gitHubToken != "" {
		settings.SourceContext.Git.GitAuth = &gitAuth{AccessToken: c.gitHubToken}
	}

	path := fmt.Sprintf("/api/stacks/%s/%s/%s/deployments/settings", c.organization, project, stackName)
	resp, err := c.do(ctx, http.MethodPost, path, settings)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp, "push deployment settings")
	}

	c.logger.Debug().Str("stack", stackName).Msg("Deployment settings pushed")
	return nil
}

// preRunCommands renders the configuration snapshot as pulumi config commands
// the executor runs before the operation. Values are emitted in sorted key
// order so the settings payload is deterministic.
func (c *Client) preRunCommands(cfg orchestrator.StackConfig) []string {
	commands := []string{
		fmt.Sprintf("pulumi config set aws:region %s", cfg.Region),
		fmt.Sprintf("pulumi config set tenantSlug %s", cfg.TenantSlug),
		fmt.Sprintf("pulumi config set environment %s", cfg.Environment),
	}
	if cfg.RoleARN != "" {
		commands = append(commands, fmt.Sprintf("pulumi config set --secret roleArn %s", cfg.RoleARN))
	}
	if cfg.ExternalID != "" {
		commands = append(commands, fmt.Sprintf("pulumi config set --secret externalId %s", cfg.ExternalID))
	}

	keys := make([]string, 0, len(cfg.Values))
	for key := range cfg.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		commands = append(commands, fmt.Sprintf("pulumi config set %s %q", key, cfg.Values[key]))
	}

	secretKeys := make([]string, 0, len(cfg.Secrets))
	for key := range cfg.Secrets {
		secretKeys = append(secretKeys, key)
	}
	sort.Strings(secretKeys)
	for _, key := range secretKeys {
		commands = append(commands, fmt.Sprintf("pulumi config set --secret %s %q", key, cfg.Secrets[key]))
	}

	return commands
}

func (c *Client) environmentVariables() map[string]string {
	env := make(map[string]string)
	if c.awsAccessKeyID != "" {
		env["AWS_ACCESS_KEY_ID"] = c.awsAccessKeyID
	}
	if c.awsSecretAccessKey != "" {
		env["AWS_SECRET_ACCESS_KEY"] = c.awsSecretAccessKey
	}
	if c.awsSessionToken != "" {
		env["AWS_SESSION_TOKEN"] = c.awsSessionToken
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

// TriggerOperation starts a remote deployment inheriting the pushed settings
// and returns its id.
func (c *Client) TriggerOperation(ctx context.Context, project, stackName string, op orchestrator.Operation) (string, error) {
	path := fmt.Sprintf("/api/stacks/%s/%s/%s/deployments", c.organization, project, stackName)
	body := map[string]any{
		"operation":       string(op),
		"inheritSettings": true,
	}

	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.apiError(resp, fmt.Sprintf("trigger %s", op))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode deployment response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("deployment response missing id")
	}

	c.logger.Debug().Str("stack", stackName).Str("operation", string(op)).
		Str("deployment_id", result.ID).Msg("Operation triggered")
	return result.ID, nil
}

// GetOperationStatus polls a deployment. Statuses the API may grow in the
// future map to running rather than failing the poll.
func (c *Client) GetOperationStatus(ctx context.Context, project, stackName, operationID string) (*orchestrator.OperationStatus, error) {
	path := fmt.Sprintf("/api/stacks/%s/%s/%s/deployments/%s", c.organization, project, stackName, operationID)

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp, "get deployment status")
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode deployment status: %w", err)
	}

	status := &orchestrator.OperationStatus{Message: result.Message}
	switch result.Status {
	case "succeeded":
		status.State = orchestrator.OperationStateSucceeded
	case "failed":
		status.State = orchestrator.OperationStateFailed
	default:
		status.State = orchestrator.OperationStateRunning
	}
	return status, nil
}

// GetOutputs exports the stack state and returns the root stack resource's
// outputs.
func (c *Client) GetOutputs(ctx context.Context, project, stackName string) (map[string]any, error) {
	path := fmt.Sprintf("/api/stacks/%s/%s/%s/export", c.organization, project, stackName)

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp, "export stack")
	}

	var export struct {
		Deployment struct {
			Resources []struct {
				Type    string         `json:"type"`
				Outputs map[string]any `json:"outputs"`
			} `json:"resources"`
		} `json:"deployment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode stack export: %w", err)
	}

	for _, resource := range export.Deployment.Resources {
		if resource.Type == "pulumi:pulumi:Stack" {
			if resource.Outputs == nil {
				return map[string]any{}, nil
			}
			return resource.Outputs, nil
		}
	}
	return map[string]any{}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pulumi api request failed: %w", err)
	}
	return resp, nil
}

// apiError drains the response body and builds an error carrying the API's
// message when one is present.
func (c *Client) apiError(resp *http.Response, action string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return fmt.Errorf("failed to %s: %s (status %d)", action, payload.Message, resp.StatusCode)
	}
	if len(raw) > 0 {
		return fmt.Errorf("failed to %s: %s (status %d)", action, strings.TrimSpace(string(raw)), resp.StatusCode)
	}
	return fmt.Errorf("failed to %s: status %d", action, resp.StatusCode)
}
