package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calebmch/agentctl/internal/fakefoundry"
	"github.com/calebmch/agentctl/pkg/config"
	"github.com/calebmch/agentctl/pkg/foundry"
	"github.com/calebmch/agentctl/pkg/mcpprobe"
	"github.com/calebmch/agentctl/pkg/secrets"
)

const testConfig = `{
	"project": {
		"endpoint": "https://example.services.ai.azure.com/api/projects/demo",
		"modelDeployment": "gpt-4o"
	},
	"agents": {
		"github": {
			"name": "github-mcp-agent",
			"instructions": "Answer questions about the Azure REST API specs.",
			"mcpServer": {
				"url": "https://gitmcp.example/azure/azure-rest-api-specs",
				"label": "github_docs",
				"authType": "none"
			}
		},
		"sql": {
			"name": "sql-mcp-agent",
			"instructions": "Answer questions about the sales database.",
			"mcpServer": {
				"url": "https://sqlmcp.example/mcp",
				"label": "sql_server",
				"authType": "apiKey"
			},
			"allowedTools": ["read_data", "list_tables"]
		}
	},
	"infrastructure": {
		"mcp": {"keyVault": {"name": "kv-demo"}}
	}
}`

type fakeSecrets struct {
	calls int
	value string
}

func (f *fakeSecrets) GetSecret(ctx context.Context, name string) (string, error) {
	f.calls++
	return f.value, nil
}

var _ secrets.Source = (*fakeSecrets)(nil)

type env struct {
	fake    *fakefoundry.Server
	secrets *fakeSecrets
	deps    Deps
	cfgPath string
	out     bytes.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fake := fakefoundry.New()
	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(cfgPath, []byte(testConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	e := &env{fake: fake, secrets: &fakeSecrets{value: "abc123"}, cfgPath: cfgPath}
	e.deps = Deps{
		NewService: func(ctx context.Context, cfg *config.Config) (Service, error) {
			return foundry.NewClient(server.URL, foundry.StaticToken("test"))
		},
		NewSecrets: func(cfg *config.Config) (secrets.Source, error) {
			return e.secrets, nil
		},
		Probe: func(ctx context.Context, serverURL string, headers map[string]string) (*mcpprobe.Result, error) {
			return &mcpprobe.Result{Reachable: true, StatusCode: 200}, nil
		},
		PollInterval:  time.Millisecond,
		ScenarioPause: time.Millisecond,
	}
	return e
}

func (e *env) run(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	root := NewRootCommand(e.deps)
	root.SetOut(&e.out)
	root.SetErr(&e.out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--config", e.cfgPath))
	return root.ExecuteContext(context.Background())
}

func TestDeployCreatesAgentWithoutSecretLookup(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if e.fake.AgentCount() != 1 {
		t.Fatalf("expected 1 agent, got %d", e.fake.AgentCount())
	}
	if e.secrets.calls != 0 {
		t.Fatalf("authType none must not touch the secret store, got %d calls", e.secrets.calls)
	}
	if !strings.Contains(e.out.String(), "Agent created") {
		t.Fatalf("missing creation confirmation:\n%s", e.out.String())
	}
}

func TestDeployPromptsBeforeUpdate(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("first deploy: %v", err)
	}

	// Declining the prompt leaves the agent alone.
	e.out.Reset()
	if err := e.run(t, "n\n", "deploy", "github"); err != nil {
		t.Fatalf("declined deploy: %v", err)
	}
	if !strings.Contains(e.out.String(), "Deployment cancelled") {
		t.Fatalf("expected cancellation notice:\n%s", e.out.String())
	}
	if e.fake.AgentCount() != 1 {
		t.Fatalf("decline must not create a duplicate, got %d agents", e.fake.AgentCount())
	}

	// --yes updates without reading stdin.
	e.out.Reset()
	if err := e.run(t, "", "deploy", "github", "--yes"); err != nil {
		t.Fatalf("forced deploy: %v", err)
	}
	if !strings.Contains(e.out.String(), "Agent updated") {
		t.Fatalf("expected update confirmation:\n%s", e.out.String())
	}
	if e.fake.AgentCount() != 1 {
		t.Fatalf("update must not create a duplicate, got %d agents", e.fake.AgentCount())
	}
}

func TestDeployFetchesAPIKeyForAPIKeyAuth(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "sql"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if e.secrets.calls != 1 {
		t.Fatalf("expected one secret fetch, got %d", e.secrets.calls)
	}
}

func TestSmokeApprovalsCarryAPIKeyHeader(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "sql"); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	e.fake.Script = func(threadID string, params foundry.RunParams) []foundry.Run {
		return []foundry.Run{
			{
				Status: foundry.RunStatusRequiresAction,
				RequiredAction: &foundry.RequiredAction{
					Type: "submit_tool_approval",
					SubmitToolApproval: &foundry.SubmitToolApproval{
						ToolCalls: []foundry.RequiredToolCall{
							{ID: "call_1", Type: "mcp", Name: "read_data", Arguments: "{}"},
						},
					},
				},
			},
			{Status: foundry.RunStatusCompleted},
		}
	}
	e.fake.Reply = "SELECT * FROM SalesLT.Customer returned 5 rows."

	e.out.Reset()
	if err := e.run(t, "", "smoke", "sql"); err != nil {
		t.Fatalf("smoke: %v", err)
	}

	if len(e.fake.Approvals) == 0 {
		t.Fatal("no approval batches reached the service")
	}
	for _, batch := range e.fake.Approvals {
		for _, approval := range batch {
			if !approval.Approve {
				t.Fatalf("approval was a rejection: %+v", approval)
			}
			if approval.Headers["X-API-Key"] != "abc123" {
				t.Fatalf("approval lost the API key header: %+v", approval)
			}
		}
	}
	if !strings.Contains(e.out.String(), "Smoke test passed") {
		t.Fatalf("expected passing summary:\n%s", e.out.String())
	}
}

func TestSmokeFailsWhenAgentMissing(t *testing.T) {
	e := newEnv(t)
	err := e.run(t, "", "smoke", "github")
	if err == nil {
		t.Fatal("smoke against an undeployed agent must fail")
	}
	if !strings.Contains(e.out.String(), "agentctl deploy github") {
		t.Fatalf("expected deploy suggestion:\n%s", e.out.String())
	}
}

func TestSmokeReportsFailedRun(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	e.fake.Script = func(threadID string, params foundry.RunParams) []foundry.Run {
		return []foundry.Run{{
			Status:    foundry.RunStatusFailed,
			LastError: &foundry.RunError{Code: "server_error", Message: "boom"},
		}}
	}

	e.out.Reset()
	err := e.run(t, "", "smoke", "github")
	if err == nil {
		t.Fatal("smoke with failing runs must return an error")
	}
	if !strings.Contains(e.out.String(), "server_error: boom") {
		t.Fatalf("expected service error detail:\n%s", e.out.String())
	}
}

func TestChatExchangeAndQuit(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	e.fake.Reply = "I can search the Azure REST API specs."

	e.out.Reset()
	if err := e.run(t, "What can you do?\nquit\n", "chat", "github"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	output := e.out.String()
	if !strings.Contains(output, "Agent: I can search the Azure REST API specs.") {
		t.Fatalf("missing agent response:\n%s", output)
	}
	if !strings.Contains(output, "Goodbye!") {
		t.Fatalf("missing farewell:\n%s", output)
	}
}

func TestChatReservedCommandsEndSession(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	for _, word := range []string{"quit", "exit", "bye", "BYE"} {
		e.out.Reset()
		if err := e.run(t, word+"\n", "chat", "github"); err != nil {
			t.Fatalf("chat %q: %v", word, err)
		}
		if !strings.Contains(e.out.String(), "Goodbye!") {
			t.Fatalf("%q did not end the session:\n%s", word, e.out.String())
		}
	}
}

func TestChatClearStartsNewThread(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	e.out.Reset()
	input := "first question\nclear\nsecond question\nquit\n"
	if err := e.run(t, input, "chat", "github"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	threads := e.fake.ThreadIDs()
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads after clear, got %d", len(threads))
	}
	// Each thread carries exactly one user turn: clear must not replay the
	// old conversation onto the new thread.
	for _, id := range threads {
		users := 0
		for _, msg := range e.fake.Messages(id) {
			if msg.Role == "user" {
				users++
			}
		}
		if users != 1 {
			t.Fatalf("thread %s has %d user messages, want 1", id, users)
		}
	}
	if !strings.Contains(e.out.String(), "Conversation cleared") {
		t.Fatalf("missing clear confirmation:\n%s", e.out.String())
	}
}

func TestChatHelpPrintsExamples(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	e.out.Reset()
	if err := e.run(t, "help\nquit\n", "chat", "github"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(e.out.String(), "Find files containing 'KeyVault'") {
		t.Fatalf("missing help examples:\n%s", e.out.String())
	}
}

func TestChatSurvivesFailedRun(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "", "deploy", "github"); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	e.fake.Script = func(threadID string, params foundry.RunParams) []foundry.Run {
		return []foundry.Run{{
			Status:    foundry.RunStatusFailed,
			LastError: &foundry.RunError{Code: "rate_limit_exceeded", Message: "slow down"},
		}}
	}

	e.out.Reset()
	// The failed turn must not end the session; quit still works after it.
	if err := e.run(t, "hello\nquit\n", "chat", "github"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	output := e.out.String()
	if !strings.Contains(output, "rate_limit_exceeded: slow down") {
		t.Fatalf("missing run error detail:\n%s", output)
	}
	if !strings.Contains(output, "Goodbye!") {
		t.Fatalf("session did not continue past the failure:\n%s", output)
	}
}

func TestUnknownAgentKeyListsKnownKeys(t *testing.T) {
	e := newEnv(t)
	err := e.run(t, "", "deploy", "mystery")
	if err == nil {
		t.Fatal("unknown agent key must fail")
	}
	if !strings.Contains(err.Error(), "github, sql") {
		t.Fatalf("error should list known keys, got: %v", err)
	}
}

func TestAnalyzeSQLResponse(t *testing.T) {
	hints := analyzeSQLResponse("The query SELECT Name FROM SalesLT.Customer returned 5 rows.")
	joined := strings.Join(hints, ",")
	for _, want := range []string{"SELECT", "FROM", "rows", "query"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected indicator %q in %v", want, hints)
		}
	}
	if got := analyzeSQLResponse(""); got != nil {
		t.Fatalf("empty response should yield no indicators, got %v", got)
	}
}

func TestScenariosAndProfiles(t *testing.T) {
	if len(scenariosFor("sql")) != 4 {
		t.Fatalf("sql suite should have 4 scenarios, got %d", len(scenariosFor("sql")))
	}
	if len(scenariosFor("unknown")) == 0 {
		t.Fatal("unknown keys should fall back to the generic suite")
	}
	github := chatProfileFor("github")
	if github.ApprovalMode != "never" || github.MaxAttempts != 120 {
		t.Fatalf("github profile wrong: %+v", github)
	}
	fallback := chatProfileFor("unknown")
	if fallback.ApprovalMode != "always" || fallback.MaxAttempts != 60 {
		t.Fatalf("fallback profile wrong: %+v", fallback)
	}
}
