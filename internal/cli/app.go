// Package cli implements the agentctl command tree: deploy an MCP-wired
// agent definition, smoke-test it, or chat with it interactively.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/calebmch/agentctl/pkg/config"
	"github.com/calebmch/agentctl/pkg/foundry"
	"github.com/calebmch/agentctl/pkg/mcpprobe"
	"github.com/calebmch/agentctl/pkg/mcptool"
	"github.com/calebmch/agentctl/pkg/runwait"
	"github.com/calebmch/agentctl/pkg/secrets"
)

// apiKeyHeader is the header name MCP servers with apiKey auth expect.
const apiKeyHeader = "X-API-Key"

// Service is the slice of the hosting-service client the commands consume.
// *foundry.Client satisfies it; tests substitute fakes.
type Service interface {
	FindAgentByName(ctx context.Context, name string) (*foundry.Agent, error)
	CreateAgent(ctx context.Context, params foundry.AgentParams) (*foundry.Agent, error)
	UpdateAgent(ctx context.Context, agentID string, params foundry.AgentParams) (*foundry.Agent, error)
	CreateThread(ctx context.Context) (*foundry.Thread, error)
	CreateMessage(ctx context.Context, threadID, role, text string) (*foundry.Message, error)
	LatestAssistantText(ctx context.Context, threadID string) (string, error)
	CreateRun(ctx context.Context, threadID string, params foundry.RunParams) (*foundry.Run, error)
	runwait.StatusClient
}

var _ Service = (*foundry.Client)(nil)

// Deps wires the external collaborators. The zero value connects to the
// real hosting service, secret store, and MCP servers; tests override.
type Deps struct {
	NewService func(ctx context.Context, cfg *config.Config) (Service, error)
	NewSecrets func(cfg *config.Config) (secrets.Source, error)
	Probe      func(ctx context.Context, serverURL string, headers map[string]string) (*mcpprobe.Result, error)

	// PollInterval overrides the poller cadence; tests set it near zero.
	PollInterval time.Duration
	// ScenarioPause is the delay between smoke scenarios.
	ScenarioPause time.Duration
	// Sleep suspends between scenarios; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (d Deps) withDefaults() Deps {
	if d.NewService == nil {
		d.NewService = newFoundryService
	}
	if d.NewSecrets == nil {
		d.NewSecrets = newVaultSecrets
	}
	if d.Probe == nil {
		d.Probe = mcpprobe.Probe
	}
	if d.PollInterval <= 0 {
		d.PollInterval = time.Second
	}
	if d.ScenarioPause <= 0 {
		d.ScenarioPause = 2 * time.Second
	}
	if d.Sleep == nil {
		d.Sleep = sleepContext
	}
	return d
}

func newFoundryService(_ context.Context, cfg *config.Config) (Service, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("build credential: %w", err)
	}
	tokens, err := foundry.NewCredentialTokenProvider(cred)
	if err != nil {
		return nil, err
	}
	client, err := foundry.NewClient(cfg.Project.Endpoint, tokens)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Project.Endpoint, err)
	}
	return client, nil
}

func newVaultSecrets(cfg *config.Config) (secrets.Source, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("build credential: %w", err)
	}
	return secrets.NewVaultSource(cfg.Infrastructure.MCP.KeyVault.Name, cred)
}

// resolveAPIKey fetches the MCP API key when the agent's server needs one.
// Servers with authType none never touch the secret store.
func resolveAPIKey(ctx context.Context, deps Deps, cfg *config.Config, agent config.AgentConfig, out console) (string, error) {
	if !agent.MCPServer.RequiresAPIKey() {
		return "", nil
	}
	out.Println("Loading MCP API key from the key vault...")
	source, err := deps.NewSecrets(cfg)
	if err != nil {
		return "", err
	}
	key, err := source.GetSecret(ctx, cfg.Infrastructure.MCP.KeyVault.SecretName())
	if err != nil {
		return "", err
	}
	out.OK("API key retrieved from key vault %s", cfg.Infrastructure.MCP.KeyVault.Name)
	return key, nil
}

// buildTool assembles the MCP tool for an agent from its configuration.
func buildTool(agent config.AgentConfig, apiKey string) (*mcptool.Tool, error) {
	tool, err := mcptool.New(agent.MCPServer.Label, agent.MCPServer.URL, agent.AllowedTools...)
	if err != nil {
		return nil, fmt.Errorf("configure mcp tool for %s: %w", agent.Name, err)
	}
	if apiKey != "" {
		tool.SetHeader(apiKeyHeader, apiKey)
	}
	return tool, nil
}

// printConfigSummary echoes the settings a command is about to act on.
func printConfigSummary(out console, cfg *config.Config, agent config.AgentConfig) {
	out.Println("Configuration:")
	out.Field("Project Endpoint", cfg.Project.Endpoint)
	out.Field("Model", cfg.Project.ModelDeployment)
	out.Field("Agent Name", agent.Name)
	out.Field("MCP Server URL", agent.MCPServer.URL)
	out.Field("MCP Server Label", agent.MCPServer.Label)
	out.Println()
}

// analyzeSQLResponse finds database-activity hints in a response.
func analyzeSQLResponse(text string) []string {
	if text == "" {
		return nil
	}
	lowered := strings.ToLower(text)
	var found []string
	for _, indicator := range sqlIndicators {
		if strings.Contains(lowered, strings.ToLower(indicator)) {
			found = append(found, indicator)
		}
	}
	return found
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
