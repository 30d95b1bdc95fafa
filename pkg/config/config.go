// Package config loads the centralized configuration document shared by the
// deploy, smoke, and chat commands. The document is plain JSON; comments and
// trailing commas are tolerated so deployment tooling can annotate it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// DefaultPath is where the commands look when --config is not given.
const DefaultPath = "config/config.json"

// defaultAPIKeySecretName matches the secret provisioned by the
// infrastructure templates.
const defaultAPIKeySecretName = "mcp-api-key"

// Auth types accepted for an MCP server.
const (
	AuthNone   = "none"
	AuthAPIKey = "apiKey"
)

// fallbackFiles are deployment-output documents merged when the primary
// config file is absent.
var fallbackFiles = []string{
	"mcp-sql-server-deployment-outputs.json",
	"foundry-deployment-outputs.json",
}

// Config is the root configuration document.
type Config struct {
	Project        Project                `json:"project"`
	Agents         map[string]AgentConfig `json:"agents"`
	Infrastructure Infrastructure         `json:"infrastructure"`
}

// Project identifies the hosting-service project and model deployment.
type Project struct {
	Endpoint        string `json:"endpoint"`
	ModelDeployment string `json:"modelDeployment"`
}

// AgentConfig declares one agent definition and its MCP tool server.
type AgentConfig struct {
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	MCPServer    MCPServer `json:"mcpServer"`
	AllowedTools []string  `json:"allowedTools"`
}

// MCPServer locates the external tool server an agent is wired to.
type MCPServer struct {
	URL      string `json:"url"`
	Label    string `json:"label"`
	AuthType string `json:"authType"`
}

// RequiresAPIKey reports whether the server needs an API key header.
func (s MCPServer) RequiresAPIKey() bool {
	return s.AuthType == AuthAPIKey
}

// Infrastructure carries deployment-output settings consumed at runtime.
type Infrastructure struct {
	MCP MCPInfrastructure `json:"mcp"`
}

// MCPInfrastructure groups MCP-related infrastructure settings.
type MCPInfrastructure struct {
	KeyVault KeyVault `json:"keyVault"`
}

// KeyVault names the managed secret store holding the MCP API key.
type KeyVault struct {
	Name             string `json:"name"`
	APIKeySecretName string `json:"apiKeySecretName"`
}

// SecretName returns the configured secret name or its default.
func (k KeyVault) SecretName() string {
	if strings.TrimSpace(k.APIKeySecretName) == "" {
		return defaultAPIKeySecretName
	}
	return k.APIKeySecretName
}

// Load reads the configuration document at path. When the primary file does
// not exist, deployment-output files next to it are merged as a fallback.
// A completely absent configuration is a fatal error naming the path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return Decode(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	merged, found, mergeErr := loadFallbacks(filepath.Dir(path))
	if mergeErr != nil {
		return nil, mergeErr
	}
	if !found {
		return nil, fmt.Errorf("configuration file not found: %s (create it or pass --config)", path)
	}
	return finish(merged)
}

// Decode parses a raw configuration payload.
func Decode(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, errors.New("config payload is empty")
	}
	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFallbacks(dir string) (*Config, bool, error) {
	cfg := &Config{}
	found := false
	for _, name := range fallbackFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("read fallback config %s: %w", path, err)
		}
		var partial Config
		if err := json.Unmarshal(jsonc.ToJSON(data), &partial); err != nil {
			return nil, false, fmt.Errorf("decode fallback config %s: %w", path, err)
		}
		cfg.merge(partial)
		found = true
	}
	return cfg, found, nil
}

// merge overlays non-zero fields of other onto c. Later files win.
func (c *Config) merge(other Config) {
	if other.Project.Endpoint != "" {
		c.Project.Endpoint = other.Project.Endpoint
	}
	if other.Project.ModelDeployment != "" {
		c.Project.ModelDeployment = other.Project.ModelDeployment
	}
	if len(other.Agents) > 0 {
		if c.Agents == nil {
			c.Agents = map[string]AgentConfig{}
		}
		for key, agent := range other.Agents {
			c.Agents[key] = agent
		}
	}
	if other.Infrastructure.MCP.KeyVault.Name != "" {
		c.Infrastructure.MCP.KeyVault.Name = other.Infrastructure.MCP.KeyVault.Name
	}
	if other.Infrastructure.MCP.KeyVault.APIKeySecretName != "" {
		c.Infrastructure.MCP.KeyVault.APIKeySecretName = other.Infrastructure.MCP.KeyVault.APIKeySecretName
	}
}

// Validate enforces the structural requirements every command depends on.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Project.Endpoint) == "" {
		return errors.New("config is missing required key project.endpoint")
	}
	if strings.TrimSpace(c.Project.ModelDeployment) == "" {
		return errors.New("config is missing required key project.modelDeployment")
	}
	if len(c.Agents) == 0 {
		return errors.New("config declares no agents")
	}
	for key, agent := range c.Agents {
		if strings.TrimSpace(agent.Name) == "" {
			return fmt.Errorf("config agents.%s is missing required key name", key)
		}
		if strings.TrimSpace(agent.MCPServer.URL) == "" {
			return fmt.Errorf("config agents.%s is missing required key mcpServer.url", key)
		}
		if strings.TrimSpace(agent.MCPServer.Label) == "" {
			return fmt.Errorf("config agents.%s is missing required key mcpServer.label", key)
		}
		switch agent.MCPServer.AuthType {
		case AuthNone, AuthAPIKey:
		case "":
			return fmt.Errorf("config agents.%s is missing required key mcpServer.authType", key)
		default:
			return fmt.Errorf("config agents.%s has unknown mcpServer.authType %q", key, agent.MCPServer.AuthType)
		}
		if agent.MCPServer.RequiresAPIKey() && strings.TrimSpace(c.Infrastructure.MCP.KeyVault.Name) == "" {
			return fmt.Errorf("config agents.%s uses apiKey auth but infrastructure.mcp.keyVault.name is not set", key)
		}
	}
	return nil
}

// Agent returns the configuration for the named agent key.
func (c *Config) Agent(key string) (AgentConfig, error) {
	agent, ok := c.Agents[key]
	if !ok {
		return AgentConfig{}, fmt.Errorf("config declares no agent %q (known: %s)", key, strings.Join(c.AgentKeys(), ", "))
	}
	return agent, nil
}

// AgentKeys lists the declared agent keys in sorted order.
func (c *Config) AgentKeys() []string {
	keys := make([]string, 0, len(c.Agents))
	for key := range c.Agents {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
