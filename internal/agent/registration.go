// Package agent registers the precision fermentation integration architect as
// an ADK LLM agent with three tools over the knowledge base.
package agent

import (
	"fmt"
)

// AgentName is the name the agent is registered under.
const AgentName = "pf_architect"

// AgentDescription describes the agent's purpose.
const AgentDescription = "Evaluates PF integration. Prioritizes user constraints over database constraints."

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash-exp"

// Tool names. These are part of the agent contract and must not change.
const (
	ToolGetKnowledge = "get_db_knowledge_tool"
	ToolRunSQL       = "run_sql_analysis_tool"
	ToolSaveDecision = "save_integration_decision_tool"
)

// StateKeyDecisionRecord is the session state key holding the JSON of the
// decision saved during the session.
const StateKeyDecisionRecord = "decision_record"

// Registration is the static configuration of the agent.
type Registration struct {
	Name        string
	Description string
	Model       string
	Instruction string
	Tools       []string
}

// DefaultRegistration returns the registration used by the CLI and MCP server.
func DefaultRegistration() Registration {
	return Registration{
		Name:        AgentName,
		Description: AgentDescription,
		Model:       DefaultModel,
		Instruction: SystemInstruction,
		Tools:       []string{ToolGetKnowledge, ToolRunSQL, ToolSaveDecision},
	}
}

// Validate checks that the registration names the agent, carries an
// instruction and binds each required tool exactly once.
func (r Registration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if r.Instruction == "" {
		return fmt.Errorf("agent %s: instruction is required", r.Name)
	}

	seen := make(map[string]int, len(r.Tools))
	for _, name := range r.Tools {
		seen[name]++
	}
	for name, n := range seen {
		if n > 1 {
			return fmt.Errorf("agent %s: tool %s bound %d times", r.Name, name, n)
		}
	}
	for _, required := range []string{ToolGetKnowledge, ToolRunSQL, ToolSaveDecision} {
		if seen[required] == 0 {
			return fmt.Errorf("agent %s: missing tool %s", r.Name, required)
		}
	}
	for name := range seen {
		if !knownTool(name) {
			return fmt.Errorf("agent %s: unknown tool %s", r.Name, name)
		}
	}
	return nil
}

func knownTool(name string) bool {
	switch name {
	case ToolGetKnowledge, ToolRunSQL, ToolSaveDecision:
		return true
	}
	return false
}
