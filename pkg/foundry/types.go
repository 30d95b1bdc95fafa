package foundry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RunStatus is the lifecycle state reported by the hosting service for a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
)

// Terminal reports whether the service will never transition the run again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// Agent is a hosted agent definition.
type Agent struct {
	ID           string           `json:"id"`
	Object       string           `json:"object"`
	CreatedAt    int64            `json:"created_at"`
	Name         string           `json:"name"`
	Model        string           `json:"model"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDefinition `json:"tools"`
}

// ToolDefinition declares a tool available to an agent. Only MCP tools are
// used here; the service accepts others but this client never sends them.
type ToolDefinition struct {
	Type         string   `json:"type"`
	ServerLabel  string   `json:"server_label,omitempty"`
	ServerURL    string   `json:"server_url,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
}

// AgentParams is the create/update payload for an agent definition.
type AgentParams struct {
	Model        string           `json:"model"`
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// ToolResources carries per-run MCP configuration such as auth headers and
// the approval mode. Headers travel here, not in the agent definition, so
// secrets never persist in the hosted agent record.
type ToolResources struct {
	MCP []MCPToolResource `json:"mcp,omitempty"`
}

// MCPToolResource configures one MCP server for the duration of a run.
type MCPToolResource struct {
	ServerLabel     string            `json:"server_label"`
	Headers         map[string]string `json:"headers,omitempty"`
	RequireApproval string            `json:"require_approval,omitempty"`
}

// Thread is an ordered conversation history handle.
type Thread struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
}

// Message is a single conversational turn on a thread.
type Message struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	CreatedAt int64            `json:"created_at"`
	ThreadID  string           `json:"thread_id"`
	Role      string           `json:"role"`
	Content   []MessageContent `json:"content"`
}

// MessageContent is a union block; only text blocks are consumed here.
type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

// MessageText wraps the text value of a content block.
type MessageText struct {
	Value string `json:"value"`
}

// Text joins the text blocks of the message, newest block last.
func (m Message) Text() string {
	var parts []string
	for _, block := range m.Content {
		if block.Type == "text" && block.Text != nil && block.Text.Value != "" {
			parts = append(parts, block.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// Run is one asynchronous execution of an agent against a thread.
type Run struct {
	ID             string          `json:"id"`
	Object         string          `json:"object"`
	ThreadID       string          `json:"thread_id"`
	AgentID        string          `json:"assistant_id"`
	Status         RunStatus       `json:"status"`
	LastError      *RunError       `json:"last_error,omitempty"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
}

// RunError is the terminal error detail supplied by the service.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RequiredAction is attached to a run while status is requires_action.
type RequiredAction struct {
	Type               string              `json:"type"`
	SubmitToolApproval *SubmitToolApproval `json:"submit_tool_approval,omitempty"`
}

// SubmitToolApproval carries the pending tool calls of one approval episode.
type SubmitToolApproval struct {
	ToolCalls []RequiredToolCall `json:"tool_calls"`
}

// PendingToolCalls returns the calls awaiting approval, nil when the run is
// not blocked on an approval episode.
func (r *Run) PendingToolCalls() []RequiredToolCall {
	if r == nil || r.RequiredAction == nil || r.RequiredAction.SubmitToolApproval == nil {
		return nil
	}
	return r.RequiredAction.SubmitToolApproval.ToolCalls
}

// RequiredToolCall is a tool invocation the remote model wants executed and
// that the operator (or policy) must sign off on first.
type RequiredToolCall struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Arguments   string `json:"arguments"`
	ServerLabel string `json:"server_label,omitempty"`
}

// ParsedArguments decodes the argument payload into a generic map. An empty
// payload decodes to an empty map.
func (c RequiredToolCall) ParsedArguments() (map[string]any, error) {
	args := map[string]any{}
	raw := strings.TrimSpace(c.Arguments)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("parse tool call %s arguments: %w", c.ID, err)
	}
	return args, nil
}

// ToolApproval is the decision record submitted to unblock one pending call.
type ToolApproval struct {
	ToolCallID string            `json:"tool_call_id"`
	Approve    bool              `json:"approve"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// RunParams is the payload for creating a run on a thread.
type RunParams struct {
	AgentID       string         `json:"assistant_id"`
	ToolResources *ToolResources `json:"tool_resources,omitempty"`
}

// ListOrder controls the sort direction of list endpoints.
type ListOrder string

const (
	OrderAscending  ListOrder = "asc"
	OrderDescending ListOrder = "desc"
)

// listPage is the generic list envelope returned by collection endpoints.
type listPage[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	FirstID string `json:"first_id"`
	LastID  string `json:"last_id"`
	HasMore bool   `json:"has_more"`
}
