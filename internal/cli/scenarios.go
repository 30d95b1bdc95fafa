package cli

// scenario is one smoke-test exchange sent to a deployed agent.
type scenario struct {
	Name        string
	Query       string
	Description string
}

// smokeScenarios maps agent keys to their scenario suites. Keys without an
// entry fall back to genericScenarios.
var smokeScenarios = map[string][]scenario{
	"github": {
		{
			Name:        "Agent Capabilities",
			Query:       "What can you do? Please describe your capabilities.",
			Description: "Basic agent response without tool usage",
		},
		{
			Name:        "Available Tools",
			Query:       "What tools do you have available? List them for me.",
			Description: "Agent's awareness of available MCP tools",
		},
		{
			Name:        "Tool Usage",
			Query:       "Please search the Azure REST API specifications for 'authentication' and summarize what you find.",
			Description: "Actual MCP tool invocation",
		},
	},
	"sql": {
		{
			Name:        "Agent Capabilities",
			Query:       "What can you do? Please describe your capabilities.",
			Description: "Basic agent response without tool usage",
		},
		{
			Name:        "List Database Tables",
			Query:       "List all tables in the database.",
			Description: "Listing all tables using the MCP tool",
		},
		{
			Name:        "Describe Table Schema",
			Query:       "Describe the schema of the SalesLT.Customer table.",
			Description: "Table schema inspection",
		},
		{
			Name:        "Query Customer Data",
			Query:       "Show me the first 5 customers from the SalesLT.Customer table.",
			Description: "Data querying capabilities",
		},
	},
}

var genericScenarios = []scenario{
	{
		Name:        "Agent Capabilities",
		Query:       "What can you do? Please describe your capabilities.",
		Description: "Basic agent response without tool usage",
	},
	{
		Name:        "Available Tools",
		Query:       "What tools do you have available? List them for me.",
		Description: "Agent's awareness of available MCP tools",
	},
}

func scenariosFor(key string) []scenario {
	if suite, ok := smokeScenarios[key]; ok {
		return suite
	}
	return genericScenarios
}

// runProfile tunes the chat poller per agent. The GitHub docs server is
// read-only, so its tool calls skip the approval gate and get a longer
// budget; SQL keeps the approval gate for safety.
type runProfile struct {
	MaxAttempts  int
	ApprovalMode string
}

var chatProfiles = map[string]runProfile{
	"github": {MaxAttempts: 120, ApprovalMode: "never"},
	"sql":    {MaxAttempts: 60, ApprovalMode: "always"},
}

func chatProfileFor(key string) runProfile {
	if profile, ok := chatProfiles[key]; ok {
		return profile
	}
	return runProfile{MaxAttempts: 60, ApprovalMode: "always"}
}

// helpExamples are the example queries printed by the chat `help` command.
var helpExamples = map[string][]string{
	"github": {
		"File Search:",
		"  • Find files containing 'KeyVault' in the Azure REST API specs",
		"  • Search for Storage Account API endpoints",
		"  • Look for authentication-related APIs",
		"",
		"Specific Searches:",
		"  • Show me the API for creating a Key Vault",
		"  • Find the latest version of the Compute API",
		"",
		"Repository Info:",
		"  • How many different Azure services have REST APIs?",
		"  • What's the structure of the repository?",
	},
	"sql": {
		"Database Structure:",
		"  • What tables are available in the database?",
		"  • Show me the schema for the Products table",
		"  • What columns does the Orders table have?",
		"",
		"Data Queries:",
		"  • Show me the top 10 products by price",
		"  • How many orders were placed last month?",
		"  • Find all customers from California",
		"",
		"Analysis:",
		"  • Which product category has the highest sales?",
		"  • Show me sales trends by month",
	},
}

func helpFor(key string) []string {
	if examples, ok := helpExamples[key]; ok {
		return examples
	}
	return []string{"Ask the agent what it can do, or which tools it has available."}
}

// sqlIndicators hint that a response came from real database activity even
// when no tool call was observed on the run.
var sqlIndicators = []string{
	"SELECT", "FROM", "WHERE", "JOIN", "INSERT", "UPDATE", "DELETE",
	"CREATE TABLE", "ALTER TABLE",
	"database", "table", "column", "rows", "query", "SQL",
}
