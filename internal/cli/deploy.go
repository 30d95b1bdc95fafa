package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calebmch/agentctl/pkg/config"
	"github.com/calebmch/agentctl/pkg/foundry"
)

func newDeployCommand(deps Deps, configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "deploy <agent>",
		Short: "Create or update an agent definition on the hosting service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, deps, *configPath, args[0], yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "update an existing agent without prompting")
	return cmd
}

func runDeploy(cmd *cobra.Command, deps Deps, configPath, agentKey string, yes bool) error {
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

	out.Header(fmt.Sprintf("Deploying Agent: %s", agent.Name))
	printConfigSummary(out, cfg, agent)

	apiKey, err := resolveAPIKey(ctx, deps, cfg, agent, out)
	if err != nil {
		return err
	}
	tool, err := buildTool(agent, apiKey)
	if err != nil {
		return err
	}

	service, err := deps.NewService(ctx, cfg)
	if err != nil {
		return err
	}

	params := foundry.AgentParams{
		Model:        cfg.Project.ModelDeployment,
		Name:         agent.Name,
		Instructions: agent.Instructions,
		Tools:        []foundry.ToolDefinition{tool.Definition()},
	}

	existing, err := service.FindAgentByName(ctx, agent.Name)
	switch {
	case errors.Is(err, foundry.ErrAgentNotFound):
		existing = nil
	case err != nil:
		// Lookup failures are not fatal: creating a duplicate definition is
		// recoverable, a dead deploy command is not.
		out.Warn("Could not check for an existing agent: %v", err)
		existing = nil
	}

	var deployed *foundry.Agent
	if existing != nil {
		out.Printf("Agent %q already exists (id %s).\n", existing.Name, existing.ID)
		if !yes && !confirm(cmd, out, "Update it with the current configuration?") {
			out.Println("Deployment cancelled.")
			return nil
		}
		deployed, err = service.UpdateAgent(ctx, existing.ID, params)
		if err != nil {
			return fmt.Errorf("update agent %s: %w", existing.ID, err)
		}
		out.OK("Agent updated")
	} else {
		out.Println("Creating agent...")
		deployed, err = service.CreateAgent(ctx, params)
		if err != nil {
			return fmt.Errorf("create agent %s: %w", agent.Name, err)
		}
		out.OK("Agent created")
	}

	out.Println()
	out.Println("Agent details:")
	out.Field("ID", deployed.ID)
	out.Field("Name", deployed.Name)
	out.Field("Model", deployed.Model)
	out.Field("MCP Server", tool.ServerURL())
	if allowed := tool.AllowedTools(); len(allowed) > 0 {
		out.Field("Allowed Tools", strings.Join(allowed, ", "))
	}
	out.Println()
	out.Println("Next steps:")
	out.Dim("  agentctl smoke %s   # verify the deployment", agentKey)
	out.Dim("  agentctl chat %s    # talk to the agent", agentKey)
	return nil
}

// confirm asks a yes/no question on the command's streams. Empty input and
// EOF both count as yes, matching the [Y/n] default.
func confirm(cmd *cobra.Command, out console, question string) bool {
	out.Printf("%s [Y/n] ", question)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return true
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}
