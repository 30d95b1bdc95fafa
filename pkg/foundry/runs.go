package foundry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CreateRun starts an asynchronous agent execution against the thread.
func (c *Client) CreateRun(ctx context.Context, threadID string, params RunParams) (*Run, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, errors.New("thread id is empty")
	}
	if strings.TrimSpace(params.AgentID) == "" {
		return nil, errors.New("agent id is required")
	}
	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.do(ctx, http.MethodPost, path, nil, params, &run); err != nil {
		return nil, fmt.Errorf("create run on %s: %w", threadID, err)
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	if err := validateRunHandle(threadID, runID); err != nil {
		return nil, err
	}
	var run Run
	if err := c.do(ctx, http.MethodGet, runPath(threadID, runID), nil, nil, &run); err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &run, nil
}

// CancelRun asks the service to stop an in-flight run. The returned run
// usually reports cancelling; polling observes the final cancelled state.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (*Run, error) {
	if err := validateRunHandle(threadID, runID); err != nil {
		return nil, err
	}
	var run Run
	if err := c.do(ctx, http.MethodPost, runPath(threadID, runID)+"/cancel", nil, struct{}{}, &run); err != nil {
		return nil, fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return &run, nil
}

// toolApprovalParams is the single approval submission contract: every
// decision for one requires_action episode travels in one batch.
type toolApprovalParams struct {
	ToolApprovals []ToolApproval `json:"tool_approvals"`
}

// SubmitToolApprovals unblocks a requires_action episode by submitting one
// decision per pending call. Partial submission is not supported.
func (c *Client) SubmitToolApprovals(ctx context.Context, threadID, runID string, approvals []ToolApproval) (*Run, error) {
	if err := validateRunHandle(threadID, runID); err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return nil, errors.New("no tool approvals to submit")
	}
	for _, approval := range approvals {
		if strings.TrimSpace(approval.ToolCallID) == "" {
			return nil, errors.New("tool approval is missing a call id")
		}
	}
	var run Run
	path := runPath(threadID, runID) + "/submit_tool_outputs"
	if err := c.do(ctx, http.MethodPost, path, nil, toolApprovalParams{ToolApprovals: approvals}, &run); err != nil {
		return nil, fmt.Errorf("submit tool approvals for %s: %w", runID, err)
	}
	return &run, nil
}

func runPath(threadID, runID string) string {
	return "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
}

func validateRunHandle(threadID, runID string) error {
	if strings.TrimSpace(threadID) == "" {
		return errors.New("thread id is empty")
	}
	if strings.TrimSpace(runID) == "" {
		return errors.New("run id is empty")
	}
	return nil
}
