package model

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// MockLLM implements model.LLM by replaying a Scenario. It is used in tests
// and for offline demos.
type MockLLM struct {
	scenario *Scenario

	mu       sync.Mutex
	next     int
	requests int
}

// NewMockLLM creates a mock model for scenario.
func NewMockLLM(scenario *Scenario) (*MockLLM, error) {
	if scenario == nil {
		return nil, fmt.Errorf("mock model needs a scenario")
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &MockLLM{scenario: scenario}, nil
}

// Name returns the model identifier.
func (m *MockLLM) Name() string {
	return "mock:" + m.scenario.Name
}

// Requests returns how many times the model was called.
func (m *MockLLM) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Reset rewinds the scenario.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = 0
	m.requests = 0
}

// GenerateContent implements model.LLM.
func (m *MockLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		request, results := requestContent(req)
		step := m.nextStep(request)

		delay := time.Duration(m.scenario.DelayMs) * time.Millisecond
		if step != nil && step.DelayMs > 0 {
			delay = time.Duration(step.DelayMs) * time.Millisecond
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case <-time.After(delay):
			}
		}

		if step == nil {
			yield(textResponse("[mock scenario completed]"), nil)
			return
		}
		yield(stepResponse(step, results), nil)
	}
}

func (m *MockLLM) nextStep(request string) *Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	for i := m.next; i < len(m.scenario.Steps); i++ {
		if m.scenario.Steps[i].matches(request) {
			m.next = i + 1
			return &m.scenario.Steps[i]
		}
	}
	return nil
}

func stepResponse(step *Step, results map[string]map[string]any) *model.LLMResponse {
	parts := make([]*genai.Part, 0, 1+len(step.ToolCalls))
	if step.Text != "" {
		parts = append(parts, &genai.Part{Text: expandPlaceholders(step.Text, results)})
	}
	for i, tc := range step.ToolCalls {
		args := tc.Args
		if args == nil {
			args = map[string]any{}
		}
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   fmt.Sprintf("mock_call_%s_%d", tc.Name, i),
			Name: tc.Name,
			Args: args,
		}})
	}
	return response(parts, len(step.Text))
}

func textResponse(text string) *model.LLMResponse {
	return response([]*genai.Part{{Text: text}}, len(text))
}

func response(parts []*genai.Part, textLen int) *model.LLMResponse {
	// #nosec G115 -- mock estimates are small
	prompt, candidates := int32(50*len(parts)), int32(textLen/4)
	return &model.LLMResponse{
		Content:      &genai.Content{Role: roleModel, Parts: parts},
		FinishReason: genai.FinishReasonStop,
		TurnComplete: true,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     prompt,
			CandidatesTokenCount: candidates,
			TotalTokenCount:      prompt + candidates,
		},
	}
}

// requestContent flattens the request for trigger matching and collects the
// latest response of each tool for placeholder expansion.
func requestContent(req *model.LLMRequest) (string, map[string]map[string]any) {
	results := make(map[string]map[string]any)
	if req == nil {
		return "", results
	}

	var sb strings.Builder
	for _, c := range req.Contents {
		if c == nil {
			continue
		}
		for _, p := range c.Parts {
			if p == nil {
				continue
			}
			if p.Text != "" {
				sb.WriteString(p.Text)
				sb.WriteString("\n")
			}
			if p.FunctionResponse != nil {
				out, _ := json.Marshal(p.FunctionResponse.Response)
				fmt.Fprintf(&sb, "[tool_result:%s] %s\n", p.FunctionResponse.Name, out)
				results[p.FunctionResponse.Name] = p.FunctionResponse.Response
			}
		}
	}
	return sb.String(), results
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\.([a-zA-Z0-9_]+)\s*\}\}`)

// expandPlaceholders replaces {{tool.field}} with the field of the tool's
// latest response. Unknown references are left as they are.
func expandPlaceholders(text string, results map[string]map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		resp, ok := results[sub[1]]
		if !ok {
			return match
		}
		v, ok := resp[sub[2]]
		if !ok {
			return match
		}
		return fmt.Sprint(v)
	})
}

var _ model.LLM = (*MockLLM)(nil)
