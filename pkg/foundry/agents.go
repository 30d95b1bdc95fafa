package foundry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const listPageSize = "100"

// ListAgents enumerates every agent definition in the project, following
// pagination until the service reports no more pages.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	after := ""
	for {
		query := url.Values{"limit": {listPageSize}}
		if after != "" {
			query.Set("after", after)
		}
		var page listPage[Agent]
		if err := c.do(ctx, http.MethodGet, "/assistants", query, nil, &page); err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		agents = append(agents, page.Data...)
		if !page.HasMore || page.LastID == "" {
			return agents, nil
		}
		after = page.LastID
	}
}

// FindAgentByName returns the first agent whose name matches exactly.
// Absence is reported as ErrAgentNotFound.
func (c *Client) FindAgentByName(ctx context.Context, name string) (*Agent, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, errors.New("agent name is empty")
	}
	agents, err := c.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].Name == trimmed {
			return &agents[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, trimmed)
}

// GetAgent fetches one agent definition by id.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errors.New("agent id is empty")
	}
	var agent Agent
	if err := c.do(ctx, http.MethodGet, "/assistants/"+url.PathEscape(agentID), nil, nil, &agent); err != nil {
		return nil, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	return &agent, nil
}

// CreateAgent registers a new agent definition.
func (c *Client) CreateAgent(ctx context.Context, params AgentParams) (*Agent, error) {
	if err := validateAgentParams(params); err != nil {
		return nil, err
	}
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/assistants", nil, params, &agent); err != nil {
		return nil, fmt.Errorf("create agent %s: %w", params.Name, err)
	}
	return &agent, nil
}

// UpdateAgent replaces the definition of an existing agent.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, params AgentParams) (*Agent, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errors.New("agent id is empty")
	}
	if err := validateAgentParams(params); err != nil {
		return nil, err
	}
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/assistants/"+url.PathEscape(agentID), nil, params, &agent); err != nil {
		return nil, fmt.Errorf("update agent %s: %w", agentID, err)
	}
	return &agent, nil
}

func validateAgentParams(params AgentParams) error {
	if strings.TrimSpace(params.Name) == "" {
		return errors.New("agent name is required")
	}
	if strings.TrimSpace(params.Model) == "" {
		return errors.New("agent model is required")
	}
	return nil
}
