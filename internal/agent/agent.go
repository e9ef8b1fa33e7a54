package agent

import (
	"fmt"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"
)

// New creates the integration architect agent for reg, backed by llm and the
// tool handlers in tools.
func New(llm model.LLM, reg Registration, tools *Tools) (agent.Agent, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %s: model is required", reg.Name)
	}

	built, err := tools.Build()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]tool.Tool, len(built))
	for _, t := range built {
		byName[t.Name()] = t
	}
	bound := make([]tool.Tool, 0, len(reg.Tools))
	for _, name := range reg.Tools {
		bound = append(bound, byName[name])
	}

	return llmagent.New(llmagent.Config{
		Name:        reg.Name,
		Description: reg.Description,
		Model:       llm,
		Instruction: reg.Instruction,
		Tools:       bound,
		// Include conversation history so follow-up questions see earlier tool results
		IncludeContents: llmagent.IncludeContentsDefault,
	})
}
