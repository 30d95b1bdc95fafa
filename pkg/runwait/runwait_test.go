package runwait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calebmch/agentctl/pkg/foundry"
)

// scriptedClient replays a fixed sequence of run snapshots, one per GetRun.
type scriptedClient struct {
	threadID string
	runID    string
	script   []foundry.Run
	fetches  int

	submissions [][]foundry.ToolApproval
	cancelled   bool
}

func (c *scriptedClient) GetRun(_ context.Context, threadID, runID string) (*foundry.Run, error) {
	if threadID != c.threadID || runID != c.runID {
		return nil, errors.New("unknown run handle")
	}
	if c.fetches >= len(c.script) {
		return nil, errors.New("script exhausted")
	}
	run := c.script[c.fetches]
	c.fetches++
	run.ID = c.runID
	run.ThreadID = c.threadID
	return &run, nil
}

func (c *scriptedClient) SubmitToolApprovals(_ context.Context, _, _ string, approvals []foundry.ToolApproval) (*foundry.Run, error) {
	cloned := append([]foundry.ToolApproval(nil), approvals...)
	c.submissions = append(c.submissions, cloned)
	return &foundry.Run{ID: c.runID, ThreadID: c.threadID, Status: foundry.RunStatusInProgress}, nil
}

func (c *scriptedClient) CancelRun(_ context.Context, _, _ string) (*foundry.Run, error) {
	c.cancelled = true
	return &foundry.Run{ID: c.runID, ThreadID: c.threadID, Status: foundry.RunStatusCancelled}, nil
}

func requiresAction(calls ...foundry.RequiredToolCall) foundry.Run {
	return foundry.Run{
		Status: foundry.RunStatusRequiresAction,
		RequiredAction: &foundry.RequiredAction{
			Type:               "submit_tool_approval",
			SubmitToolApproval: &foundry.SubmitToolApproval{ToolCalls: calls},
		},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func awaitScript(t *testing.T, script []foundry.Run, opts Options) (*scriptedClient, *Result, error) {
	t.Helper()
	client := &scriptedClient{threadID: "thread-1", runID: "run-1", script: script}
	opts.sleep = noSleep
	result, err := Await(context.Background(), client, "thread-1", "run-1", opts)
	return client, result, err
}

func TestAwaitApprovesEpisodeThenCompletes(t *testing.T) {
	script := []foundry.Run{
		{Status: foundry.RunStatusQueued},
		{Status: foundry.RunStatusInProgress},
		requiresAction(
			foundry.RequiredToolCall{ID: "call-1", Type: "mcp", Name: "search_code", Arguments: `{"q":"auth"}`},
			foundry.RequiredToolCall{ID: "call-2", Type: "mcp", Name: "read_file", Arguments: `{"path":"a"}`},
		),
		{Status: foundry.RunStatusInProgress},
		{Status: foundry.RunStatusCompleted},
	}
	client, result, err := awaitScript(t, script, Options{
		MaxAttempts: 10,
		Policy:      ApproveAll(map[string]string{"X-API-Key": "abc123"}),
	})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if result.Outcome != OutcomeCompleted || result.LastStatus != foundry.RunStatusCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", result.Attempts)
	}
	if len(client.submissions) != 1 {
		t.Fatalf("expected exactly one approval batch, got %d", len(client.submissions))
	}
	batch := client.submissions[0]
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2 approvals, got %d", len(batch))
	}
	seen := map[string]bool{}
	for _, approval := range batch {
		if !approval.Approve {
			t.Fatalf("expected unconditional approval: %+v", approval)
		}
		if approval.Headers["X-API-Key"] != "abc123" {
			t.Fatalf("missing auth header on approval: %+v", approval)
		}
		seen[approval.ToolCallID] = true
	}
	if !seen["call-1"] || !seen["call-2"] {
		t.Fatalf("approvals dropped a call id: %+v", batch)
	}
	if len(result.ToolCalls) != 2 {
		t.Fatalf("expected 2 recorded tool calls, got %d", len(result.ToolCalls))
	}
}

func TestAwaitTimesOutDistinctly(t *testing.T) {
	script := make([]foundry.Run, 8)
	for i := range script {
		script[i] = foundry.Run{Status: foundry.RunStatusInProgress}
	}
	client, result, err := awaitScript(t, script, Options{MaxAttempts: 8})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timeout outcome, got %s", result.Outcome)
	}
	if result.Completed() {
		t.Fatal("timeout must not read as completion")
	}
	if result.Attempts != 8 || client.fetches != 8 {
		t.Fatalf("attempt accounting off: attempts=%d fetches=%d", result.Attempts, client.fetches)
	}
}

func TestAwaitCancelsEmptyApprovalEpisode(t *testing.T) {
	script := []foundry.Run{
		{Status: foundry.RunStatusInProgress},
		requiresAction(),
	}
	client, result, err := awaitScript(t, script, Options{MaxAttempts: 10})
	if !errors.Is(err, ErrEmptyApprovalEpisode) {
		t.Fatalf("expected ErrEmptyApprovalEpisode, got %v", err)
	}
	if result.Outcome != OutcomeAnomaly {
		t.Fatalf("expected anomaly outcome, got %s", result.Outcome)
	}
	if !client.cancelled {
		t.Fatal("run was not cancelled")
	}
	if len(client.submissions) != 0 {
		t.Fatalf("no approvals should be submitted, got %d batches", len(client.submissions))
	}
}

func TestAwaitTerminalStatuses(t *testing.T) {
	tests := []struct {
		status  foundry.RunStatus
		outcome Outcome
	}{
		{foundry.RunStatusCompleted, OutcomeCompleted},
		{foundry.RunStatusFailed, OutcomeFailed},
		{foundry.RunStatusCancelled, OutcomeCancelled},
		{foundry.RunStatusExpired, OutcomeExpired},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			run := foundry.Run{Status: tt.status}
			if tt.status == foundry.RunStatusFailed {
				run.LastError = &foundry.RunError{Code: "server_error", Message: "boom"}
			}
			_, result, err := awaitScript(t, []foundry.Run{run}, Options{MaxAttempts: 3})
			if err != nil {
				t.Fatalf("await: %v", err)
			}
			if result.Outcome != tt.outcome {
				t.Fatalf("expected %s, got %s", tt.outcome, result.Outcome)
			}
			if tt.status == foundry.RunStatusFailed && result.ErrorDetail() != "server_error: boom" {
				t.Fatalf("error detail lost: %q", result.ErrorDetail())
			}
		})
	}
}

func TestAwaitAttemptsIncreaseMonotonically(t *testing.T) {
	script := []foundry.Run{
		{Status: foundry.RunStatusQueued},
		{Status: foundry.RunStatusInProgress},
		{Status: foundry.RunStatusInProgress},
		{Status: foundry.RunStatusCompleted},
	}
	var attempts []int
	_, result, err := awaitScript(t, script, Options{
		MaxAttempts: 10,
		Progress:    func(u Update) { attempts = append(attempts, u.Attempt) },
	})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(attempts) != result.Attempts {
		t.Fatalf("progress updates %d != attempts %d", len(attempts), result.Attempts)
	}
	for i, attempt := range attempts {
		if attempt != i+1 {
			t.Fatalf("attempt sequence not strictly increasing by one: %v", attempts)
		}
	}
}

func TestAwaitRejectionPolicy(t *testing.T) {
	script := []foundry.Run{
		requiresAction(foundry.RequiredToolCall{ID: "call-1", Type: "mcp", Name: "drop_table"}),
		{Status: foundry.RunStatusFailed},
	}
	deny := func(call foundry.RequiredToolCall) foundry.ToolApproval {
		return foundry.ToolApproval{ToolCallID: call.ID, Approve: false}
	}
	client, result, err := awaitScript(t, script, Options{MaxAttempts: 5, Policy: deny})
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", result.Outcome)
	}
	if len(client.submissions) != 1 || client.submissions[0][0].Approve {
		t.Fatalf("rejection not submitted: %+v", client.submissions)
	}
}

func TestAwaitHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{threadID: "t", runID: "r", script: []foundry.Run{{Status: foundry.RunStatusQueued}}}
	if _, err := Await(ctx, client, "t", "r", Options{Interval: time.Millisecond, MaxAttempts: 2}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestAwaitValidatesInputs(t *testing.T) {
	if _, err := Await(context.Background(), nil, "t", "r", Options{}); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := &scriptedClient{}
	if _, err := Await(context.Background(), client, "", "r", Options{}); err == nil {
		t.Fatal("expected error for empty thread id")
	}
}
