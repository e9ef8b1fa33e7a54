package model

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios/demo.yaml
var demoScenario []byte

// Scenario is a scripted conversation for the mock model, loaded from YAML.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// DelayMs is applied before every response unless a step overrides it.
	DelayMs int    `yaml:"delay_ms,omitempty"`
	Steps   []Step `yaml:"steps"`
}

// Step is one scripted model response.
type Step struct {
	// Trigger must match the request before the step is used. Empty matches
	// anything. "tool_result:<tool>" matches once that tool has returned;
	// any other value is a case-insensitive substring of the request.
	Trigger string `yaml:"trigger,omitempty"`

	// Text may reference tool results as {{<tool>.<field>}}, for example
	// {{save_integration_decision_tool.decision_id}}.
	Text      string     `yaml:"text,omitempty"`
	ToolCalls []ToolCall `yaml:"tool_calls,omitempty"`
	DelayMs   int        `yaml:"delay_ms,omitempty"`
}

// ToolCall is a function call the mock model makes.
type ToolCall struct {
	Name string         `yaml:"name"`
	Args map[string]any `yaml:"args"`
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	// #nosec G304 -- scenario path is operator supplied
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return ParseScenario(data)
}

// DemoScenario returns the built-in scenario that reviews the demo dairy site
// with a user-stated budget.
func DemoScenario() *Scenario {
	s, err := ParseScenario(demoScenario)
	if err != nil {
		panic(fmt.Sprintf("embedded demo scenario is invalid: %v", err))
	}
	return s
}

// Validate checks that every step produces output and names its tools.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %s has no steps", s.Name)
	}
	for i, step := range s.Steps {
		if step.Text == "" && len(step.ToolCalls) == 0 {
			return fmt.Errorf("step[%d]: must have either text or tool_calls", i)
		}
		for j, tc := range step.ToolCalls {
			if tc.Name == "" {
				return fmt.Errorf("step[%d].tool_calls[%d]: name is required", i, j)
			}
		}
	}
	return nil
}

func (s Step) matches(request string) bool {
	switch {
	case s.Trigger == "":
		return true
	case strings.HasPrefix(s.Trigger, "tool_result:"):
		return strings.Contains(request, "["+s.Trigger+"]")
	default:
		return strings.Contains(strings.ToLower(request), strings.ToLower(s.Trigger))
	}
}
