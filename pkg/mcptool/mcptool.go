// Package mcptool assembles the MCP tool configuration an agent definition
// and its runs need: server identity, tool allow-list, auth headers, and the
// approval mode. The protocol itself is implemented by the remote server.
package mcptool

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/calebmch/agentctl/pkg/foundry"
)

// Approval modes accepted by the hosting service for MCP tool calls.
const (
	ApprovalAlways = "always"
	ApprovalNever  = "never"
)

// Tool describes one MCP server wired into an agent.
type Tool struct {
	label           string
	serverURL       string
	allowed         []string
	headers         map[string]string
	requireApproval string
}

// New validates the server coordinates and builds a Tool. Allowed tool names
// may be given up front or added later with AllowTool.
func New(label, serverURL string, allowed ...string) (*Tool, error) {
	trimmedLabel := strings.TrimSpace(label)
	if trimmedLabel == "" {
		return nil, errors.New("mcp server label is empty")
	}
	trimmedURL := strings.TrimSpace(serverURL)
	if trimmedURL == "" {
		return nil, errors.New("mcp server url is empty")
	}
	parsed, err := url.Parse(trimmedURL)
	if err != nil {
		return nil, fmt.Errorf("parse mcp server url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("mcp server url has unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("mcp server url is missing a host")
	}

	tool := &Tool{
		label:     trimmedLabel,
		serverURL: trimmedURL,
		headers:   map[string]string{},
	}
	for _, name := range allowed {
		tool.AllowTool(name)
	}
	return tool, nil
}

// Label returns the server label used in definitions and resources.
func (t *Tool) Label() string { return t.label }

// ServerURL returns the tool server endpoint.
func (t *Tool) ServerURL() string { return t.serverURL }

// AllowTool adds a tool name to the allow-list; duplicates and blanks are
// ignored. An empty allow-list means the server decides what is available.
func (t *Tool) AllowTool(name string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || slices.Contains(t.allowed, trimmed) {
		return
	}
	t.allowed = append(t.allowed, trimmed)
}

// AllowedTools returns a copy of the allow-list.
func (t *Tool) AllowedTools() []string {
	return slices.Clone(t.allowed)
}

// SetHeader attaches a header sent with every approved tool call, typically
// X-API-Key for apiKey-authenticated servers.
func (t *Tool) SetHeader(key, value string) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return
	}
	t.headers[trimmed] = value
}

// Headers returns a copy of the configured headers.
func (t *Tool) Headers() map[string]string {
	if len(t.headers) == 0 {
		return nil
	}
	return maps.Clone(t.headers)
}

// SetRequireApproval selects the approval mode for runs using this tool.
// Unknown modes are rejected; the zero value leaves the service default
// (approve everything) in place.
func (t *Tool) SetRequireApproval(mode string) error {
	switch mode {
	case "", ApprovalAlways, ApprovalNever:
		t.requireApproval = mode
		return nil
	default:
		return fmt.Errorf("unknown approval mode %q", mode)
	}
}

// Definition renders the tool for an agent create/update payload. Headers
// are deliberately absent: secrets must not persist in the agent record.
func (t *Tool) Definition() foundry.ToolDefinition {
	return foundry.ToolDefinition{
		Type:         "mcp",
		ServerLabel:  t.label,
		ServerURL:    t.serverURL,
		AllowedTools: slices.Clone(t.allowed),
	}
}

// Resources renders the per-run tool configuration, carrying headers and the
// approval mode for this invocation only.
func (t *Tool) Resources() *foundry.ToolResources {
	return &foundry.ToolResources{
		MCP: []foundry.MCPToolResource{{
			ServerLabel:     t.label,
			Headers:         t.Headers(),
			RequireApproval: t.requireApproval,
		}},
	}
}
