package cli

import (
	"github.com/spf13/cobra"

	"github.com/calebmch/agentctl/pkg/config"
)

// NewRootCommand builds the agentctl command tree. Pass a zero Deps for the
// real collaborators.
func NewRootCommand(deps Deps) *cobra.Command {
	deps = deps.withDefaults()

	var configPath string
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Deploy, smoke-test, and chat with MCP-wired hosted agents",
		Long: `agentctl manages conversational agents on the hosting service.

Agents are declared in a shared configuration document and wired to remote
MCP tool servers. Deploy pushes an agent definition, smoke runs a scripted
scenario suite against it, and chat opens an interactive session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration document (default "+config.DefaultPath+")")

	root.AddCommand(
		newDeployCommand(deps, &configPath),
		newSmokeCommand(deps, &configPath),
		newChatCommand(deps, &configPath),
	)
	return root
}
