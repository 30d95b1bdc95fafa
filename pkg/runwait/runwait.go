// Package runwait blocks on an in-flight hosting-service run until it
// reaches a terminal state, auto-submitting tool-approval decisions along
// the way. It replaces the per-command polling loops with one routine
// parameterized by approval policy and progress reporting.
package runwait

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/calebmch/agentctl/pkg/foundry"
)

const (
	defaultInterval    = time.Second
	defaultMaxAttempts = 60
)

// ErrEmptyApprovalEpisode marks a requires_action state that carried no
// pending tool calls. The run is cancelled rather than polled forever.
var ErrEmptyApprovalEpisode = errors.New("requires_action with no pending tool calls")

// StatusClient is the slice of the hosting-service client the poller needs.
type StatusClient interface {
	GetRun(ctx context.Context, threadID, runID string) (*foundry.Run, error)
	SubmitToolApprovals(ctx context.Context, threadID, runID string, approvals []foundry.ToolApproval) (*foundry.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (*foundry.Run, error)
}

// ApprovalPolicy maps one pending tool call to a decision. Policies may
// reject; the ones shipped here never do.
type ApprovalPolicy func(call foundry.RequiredToolCall) foundry.ToolApproval

// ApproveAll returns the policy used by every command in this repository:
// approve unconditionally, attaching the given headers (the MCP server's
// auth headers) to each decision.
func ApproveAll(headers map[string]string) ApprovalPolicy {
	return func(call foundry.RequiredToolCall) foundry.ToolApproval {
		return foundry.ToolApproval{
			ToolCallID: call.ID,
			Approve:    true,
			Headers:    maps.Clone(headers),
		}
	}
}

// Update is delivered to the progress callback once per poll iteration, and
// once more per approval episode with the calls that were approved.
type Update struct {
	Attempt   int
	Status    foundry.RunStatus
	ToolCalls []foundry.RequiredToolCall
	Approved  bool
}

// Progress observes poll iterations. It must not block.
type Progress func(Update)

// Outcome classifies how the wait ended.
type Outcome string

const (
	// OutcomeCompleted, OutcomeFailed, OutcomeCancelled and OutcomeExpired
	// mirror the service's own terminal statuses.
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"

	// OutcomeTimedOut means the attempt budget ran out while the service
	// still reported a non-terminal status. Distinct from OutcomeFailed so
	// callers can tell "gave up waiting" from "the service reported failure".
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeAnomaly means a requires_action episode carried zero pending
	// calls; the run was cancelled.
	OutcomeAnomaly Outcome = "anomaly"
)

// Result is the terminal report of one Await invocation.
type Result struct {
	Outcome    Outcome
	LastStatus foundry.RunStatus
	Run        *foundry.Run
	Attempts   int
	// ToolCalls accumulates every call approved across all episodes.
	ToolCalls []foundry.RequiredToolCall
}

// Completed reports whether the service finished the run successfully.
func (r *Result) Completed() bool {
	return r != nil && r.Outcome == OutcomeCompleted
}

// ErrorDetail returns the service-supplied terminal error, if any.
func (r *Result) ErrorDetail() string {
	if r == nil || r.Run == nil || r.Run.LastError == nil {
		return ""
	}
	return r.Run.LastError.Error()
}

// Options tunes one Await invocation.
type Options struct {
	// Interval between status fetches. Defaults to one second.
	Interval time.Duration
	// MaxAttempts bounds the number of poll iterations. Defaults to 60.
	MaxAttempts int
	// Policy decides each pending tool call. Defaults to ApproveAll(nil).
	Policy ApprovalPolicy
	// Progress, when set, observes every iteration.
	Progress Progress

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.Policy == nil {
		o.Policy = ApproveAll(nil)
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	return o
}

// Await polls the run until it terminates, the attempt budget is exhausted,
// or ctx is cancelled. Exactly one status fetch happens per iteration and at
// most one approval batch per requires_action episode. The error return is
// reserved for transport and context failures; every service-side ending is
// expressed through Result.Outcome.
func Await(ctx context.Context, client StatusClient, threadID, runID string, opts Options) (*Result, error) {
	if client == nil {
		return nil, errors.New("status client is nil")
	}
	if threadID == "" || runID == "" {
		return nil, errors.New("thread id and run id are required")
	}
	opts = opts.withDefaults()

	result := &Result{}
	for result.Attempts < opts.MaxAttempts {
		if err := opts.sleep(ctx, opts.Interval); err != nil {
			return nil, err
		}
		result.Attempts++

		run, err := client.GetRun(ctx, threadID, runID)
		if err != nil {
			return nil, fmt.Errorf("poll run %s: %w", runID, err)
		}
		result.Run = run
		result.LastStatus = run.Status

		if run.Status.Terminal() {
			result.Outcome = terminalOutcome(run.Status)
			report(opts.Progress, Update{Attempt: result.Attempts, Status: run.Status})
			return result, nil
		}

		if run.Status == foundry.RunStatusRequiresAction {
			calls := run.PendingToolCalls()
			if len(calls) == 0 {
				// The model demanded approval but supplied nothing to
				// approve; cancel rather than loop on a wedged run.
				if cancelled, cancelErr := client.CancelRun(ctx, threadID, runID); cancelErr == nil {
					result.Run = cancelled
					result.LastStatus = cancelled.Status
				}
				result.Outcome = OutcomeAnomaly
				report(opts.Progress, Update{Attempt: result.Attempts, Status: run.Status})
				return result, ErrEmptyApprovalEpisode
			}

			approvals := make([]foundry.ToolApproval, 0, len(calls))
			for _, call := range calls {
				approvals = append(approvals, opts.Policy(call))
			}
			if _, err := client.SubmitToolApprovals(ctx, threadID, runID, approvals); err != nil {
				return nil, fmt.Errorf("submit approvals for run %s: %w", runID, err)
			}
			result.ToolCalls = append(result.ToolCalls, calls...)
			report(opts.Progress, Update{
				Attempt:   result.Attempts,
				Status:    run.Status,
				ToolCalls: calls,
				Approved:  true,
			})
			continue
		}

		report(opts.Progress, Update{Attempt: result.Attempts, Status: run.Status})
	}

	result.Outcome = OutcomeTimedOut
	return result, nil
}

func terminalOutcome(status foundry.RunStatus) Outcome {
	switch status {
	case foundry.RunStatusCompleted:
		return OutcomeCompleted
	case foundry.RunStatusFailed:
		return OutcomeFailed
	case foundry.RunStatusCancelled:
		return OutcomeCancelled
	case foundry.RunStatusExpired:
		return OutcomeExpired
	default:
		return OutcomeFailed
	}
}

func report(progress Progress, update Update) {
	if progress != nil {
		progress(update)
	}
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
