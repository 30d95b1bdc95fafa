package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calebmch/agentctl/pkg/config"
	"github.com/calebmch/agentctl/pkg/foundry"
	"github.com/calebmch/agentctl/pkg/mcptool"
	"github.com/calebmch/agentctl/pkg/runwait"
	"github.com/calebmch/agentctl/pkg/transcript"
)

func newChatCommand(deps Deps, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <agent>",
		Short: "Open an interactive session with a deployed agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, deps, *configPath, args[0])
		},
	}
}

// chatSession carries the state one interactive loop mutates.
type chatSession struct {
	service  Service
	deps     Deps
	out      console
	agentKey string
	agentID  string
	tool     *mcptool.Tool
	profile  runProfile
	history  *transcript.Transcript
}

func runChat(cmd *cobra.Command, deps Deps, configPath, agentKey string) error {
	ctx := cmd.Context()
	out := console{out: cmd.OutOrStdout()}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	agent, err := cfg.Agent(agentKey)
	if err != nil {
		return err
	}

	out.Header(fmt.Sprintf("Chat: %s", agent.Name))
	printConfigSummary(out, cfg, agent)

	apiKey, err := resolveAPIKey(ctx, deps, cfg, agent, out)
	if err != nil {
		return err
	}
	tool, err := buildTool(agent, apiKey)
	if err != nil {
		return err
	}
	profile := chatProfileFor(agentKey)
	if err := tool.SetRequireApproval(profile.ApprovalMode); err != nil {
		return err
	}

	service, err := deps.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	hosted, err := service.FindAgentByName(ctx, agent.Name)
	if errors.Is(err, foundry.ErrAgentNotFound) {
		out.Fail("Agent %q is not deployed. Run: agentctl deploy %s", agent.Name, agentKey)
		return fmt.Errorf("agent %q not found", agent.Name)
	}
	if err != nil {
		return fmt.Errorf("look up agent %s: %w", agent.Name, err)
	}

	thread, err := service.CreateThread(ctx)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	history, err := transcript.New(thread.ID)
	if err != nil {
		return err
	}

	out.OK("Connected to agent %s (thread %s)", hosted.ID, thread.ID)
	out.Dim("Type 'help' for example queries, 'clear' to start over, 'quit' to leave.")
	out.Println()

	session := &chatSession{
		service:  service,
		deps:     deps,
		out:      out,
		agentKey: agentKey,
		agentID:  hosted.ID,
		tool:     tool,
		profile:  profile,
		history:  history,
	}
	return session.loop(ctx, cmd)
}

func (s *chatSession) loop(ctx context.Context, cmd *cobra.Command) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		s.out.Printf("You: ")
		if !scanner.Scan() {
			s.out.Println()
			s.out.Println("Goodbye!")
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit", "bye":
			s.out.Println("Goodbye!")
			return nil
		case "help":
			s.printHelp()
			continue
		case "clear":
			if err := s.clear(ctx); err != nil {
				return err
			}
			continue
		}

		if err := s.exchange(ctx, input); err != nil {
			return err
		}
	}
}

func (s *chatSession) printHelp() {
	s.out.Println()
	s.out.Println("Example queries:")
	for _, line := range helpFor(s.agentKey) {
		s.out.Println("  " + line)
	}
	s.out.Println()
}

// clear abandons the current thread and starts a new one. The old thread is
// left to expire on the service side.
func (s *chatSession) clear(ctx context.Context) error {
	thread, err := s.service.CreateThread(ctx)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	if err := s.history.Reset(thread.ID); err != nil {
		return err
	}
	s.out.OK("Conversation cleared (new thread %s)", thread.ID)
	s.out.Println()
	return nil
}

// exchange sends one user turn and waits for the agent's answer. Run-level
// failures are reported and the loop continues; only transport and context
// errors end the session.
func (s *chatSession) exchange(ctx context.Context, input string) error {
	threadID := s.history.ThreadID()
	if _, err := s.service.CreateMessage(ctx, threadID, "user", input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	_ = s.history.Append(transcript.Message{Role: "user", Text: input})

	run, err := s.service.CreateRun(ctx, threadID, foundry.RunParams{
		AgentID:       s.agentID,
		ToolResources: s.tool.Resources(),
	})
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	var approved []foundry.RequiredToolCall
	result, err := runwait.Await(ctx, s.service, threadID, run.ID, runwait.Options{
		Interval:    s.deps.PollInterval,
		MaxAttempts: s.profile.MaxAttempts,
		Policy:      runwait.ApproveAll(s.tool.Headers()),
		Progress: func(u runwait.Update) {
			if u.Approved {
				approved = append(approved, u.ToolCalls...)
				for _, call := range u.ToolCalls {
					s.out.Dim("  [tool call approved: %s]", call.Name)
				}
				return
			}
			if u.Attempt%2 == 0 && !u.Status.Terminal() {
				s.out.Printf(".")
			}
		},
	})
	if errors.Is(err, runwait.ErrEmptyApprovalEpisode) {
		s.out.Println()
		s.out.Warn("The run requested approval with no tool calls and was cancelled. Try again.")
		s.out.Println()
		return nil
	}
	if err != nil {
		return err
	}
	s.out.Println()

	if !result.Completed() {
		s.reportRunEnding(ctx, threadID, result)
		return nil
	}

	text, err := s.service.LatestAssistantText(ctx, threadID)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	s.printResponse(text, approved)
	return nil
}

// reportRunEnding explains a non-completed run and surfaces any partial
// response the agent managed to produce.
func (s *chatSession) reportRunEnding(ctx context.Context, threadID string, result *runwait.Result) {
	switch result.Outcome {
	case runwait.OutcomeTimedOut:
		s.out.Warn("The agent is still working after %d polls; giving up on this turn.", result.Attempts)
	default:
		if detail := result.ErrorDetail(); detail != "" {
			s.out.Warn("Run ended %s: %s", result.LastStatus, detail)
		} else {
			s.out.Warn("Run ended %s", result.LastStatus)
		}
	}
	if text, err := s.service.LatestAssistantText(ctx, threadID); err == nil && strings.TrimSpace(text) != "" {
		s.out.Dim("Partial response:")
		s.printResponse(text, nil)
		return
	}
	s.out.Println()
}

func (s *chatSession) printResponse(text string, approved []foundry.RequiredToolCall) {
	calls := make([]transcript.ToolCall, 0, len(approved))
	for _, call := range approved {
		calls = append(calls, transcript.ToolCall{Name: call.Name, Arguments: call.Arguments})
	}
	_ = s.history.Append(transcript.Message{Role: "assistant", Text: text, ToolCalls: calls})

	s.out.Printf("Agent: %s\n", text)
	if s.agentKey == "sql" && len(approved) == 0 {
		if hints := analyzeSQLResponse(text); len(hints) > 0 {
			s.out.Dim("  (response shows database activity: %s)", strings.Join(hints, ", "))
		}
	}
	s.out.Println()
}
