package model

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func collect(t *testing.T, llm model.LLM, req *model.LLMRequest) *model.LLMResponse {
	t.Helper()
	var out *model.LLMResponse
	for resp, err := range llm.GenerateContent(context.Background(), req, false) {
		require.NoError(t, err)
		out = resp
	}
	require.NotNil(t, out)
	return out
}

func userRequest(text string) *model.LLMRequest {
	return &model.LLMRequest{Contents: []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}}}
}

func TestDemoScenario(t *testing.T) {
	s := DemoScenario()
	assert.Equal(t, "demo-dairy-user-budget", s.Name)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, "get_db_knowledge_tool", s.Steps[0].ToolCalls[0].Name)
	assert.Equal(t, "dairy-nl-01", s.Steps[0].ToolCalls[0].Args["site_id"])
}

func TestParseScenario_Invalid(t *testing.T) {
	_, err := ParseScenario([]byte("name: x\nsteps: []\n"))
	assert.Error(t, err)

	_, err = ParseScenario([]byte("name: x\nsteps:\n  - trigger: hello\n"))
	assert.ErrorContains(t, err, "step[0]")

	_, err = ParseScenario([]byte("steps:\n  - text: hi\n"))
	assert.ErrorContains(t, err, "name is required")
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: one\nsteps:\n  - text: done\n"), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "one", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMockLLM_FollowsTriggers(t *testing.T) {
	llm, err := NewMockLLM(&Scenario{
		Name: "triggers",
		Steps: []Step{
			{ToolCalls: []ToolCall{{Name: "lookup", Args: map[string]any{"site_id": "s1"}}}},
			{Trigger: "tool_result:save", Text: "saved as {{save.decision_id}} ({{save.missing}})"},
		},
	})
	require.NoError(t, err)

	first := collect(t, llm, userRequest("review s1"))
	require.Len(t, first.Content.Parts, 1)
	call := first.Content.Parts[0].FunctionCall
	require.NotNil(t, call)
	assert.Equal(t, "lookup", call.Name)
	assert.Equal(t, "s1", call.Args["site_id"])

	// The lookup result alone does not satisfy the save trigger.
	withLookup := userRequest("review s1")
	withLookup.Contents = append(withLookup.Contents, &genai.Content{Role: "user", Parts: []*genai.Part{{
		FunctionResponse: &genai.FunctionResponse{Name: "lookup", Response: map[string]any{"status": "success"}},
	}}})
	assert.Equal(t, "[mock scenario completed]", collect(t, llm, withLookup).Content.Parts[0].Text)

	llm.Reset()
	_ = collect(t, llm, userRequest("review s1"))
	withSave := userRequest("review s1")
	withSave.Contents = append(withSave.Contents, &genai.Content{Role: "user", Parts: []*genai.Part{{
		FunctionResponse: &genai.FunctionResponse{Name: "save", Response: map[string]any{"decision_id": "d-42"}},
	}}})
	final := collect(t, llm, withSave)
	assert.Equal(t, "saved as d-42 ({{save.missing}})", final.Content.Parts[0].Text)
	assert.Equal(t, 2, llm.Requests())
}

func TestMockLLM_RespectsCancellation(t *testing.T) {
	llm, err := NewMockLLM(&Scenario{Name: "slow", DelayMs: 10_000, Steps: []Step{{Text: "late"}}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range llm.GenerateContent(ctx, userRequest("hi"), false) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNew_Providers(t *testing.T) {
	ctx := context.Background()

	llm, err := New(ctx, Config{Provider: ProviderMock})
	require.NoError(t, err)
	assert.Equal(t, "mock:demo-dairy-user-budget", llm.Name())

	llm, err = New(ctx, Config{Provider: ProviderAnthropic, APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, llm.Name())

	_, err = New(ctx, Config{Provider: "watson"})
	assert.ErrorContains(t, err, "unknown model provider")

	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	_, err = New(ctx, Config{Provider: ProviderGemini, Model: "gemini-2.0-flash"})
	assert.ErrorContains(t, err, "API key")
}

type fakeMessages struct {
	params anthropic.MessageNewParams
	reply  *anthropic.Message
	err    error
}

func (f *fakeMessages) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.reply, f.err
}

func TestAnthropicLLM_RequestMapping(t *testing.T) {
	fake := &fakeMessages{reply: &anthropic.Message{}}
	llm := newAnthropicLLM(fake, "", 0)

	req := &model.LLMRequest{
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: "be precise"}}},
			Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        "get_db_knowledge_tool",
				Description: "lookup",
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{"site_id": {Type: genai.TypeString}},
					Required:   []string{"site_id"},
				},
			}}}},
		},
		Contents: []*genai.Content{
			{Role: "user", Parts: []*genai.Part{{Text: "review dairy-nl-01"}}},
			{Role: "model", Parts: []*genai.Part{
				{Text: "thinking out loud", Thought: true},
				{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "get_db_knowledge_tool", Args: map[string]any{"site_id": "dairy-nl-01"}}},
			}},
			{Role: "user", Parts: []*genai.Part{
				{FunctionResponse: &genai.FunctionResponse{ID: "c1", Name: "get_db_knowledge_tool", Response: map[string]any{"status": "success"}}},
			}},
			{Role: "model", Parts: []*genai.Part{}},
		},
	}
	_ = collect(t, llm, req)

	p := fake.params
	assert.Equal(t, anthropic.Model(DefaultAnthropicModel), p.Model)
	assert.Equal(t, int64(4096), p.MaxTokens)
	require.Len(t, p.System, 1)
	assert.Equal(t, "be precise", p.System[0].Text)

	require.Len(t, p.Messages, 3, "empty contents are dropped")
	assert.Equal(t, anthropic.MessageParamRoleUser, p.Messages[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, p.Messages[1].Role)
	assert.Len(t, p.Messages[1].Content, 1, "thought parts are not sent")
	assert.Equal(t, anthropic.MessageParamRoleUser, p.Messages[2].Role)

	require.Len(t, p.Tools, 1)
	require.NotNil(t, p.Tools[0].OfTool)
	assert.Equal(t, "get_db_knowledge_tool", p.Tools[0].OfTool.Name)
	assert.Equal(t, []string{"site_id"}, p.Tools[0].OfTool.InputSchema.Required)
}

func TestAnthropicLLM_ResponseMapping(t *testing.T) {
	fake := &fakeMessages{reply: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Looking up the site."},
			{Type: "tool_use", ID: "toolu_1", Name: "get_db_knowledge_tool", Input: json.RawMessage(`{"site_id":"dairy-nl-01"}`)},
		},
		StopReason: anthropic.StopReasonToolUse,
		Usage:      anthropic.Usage{InputTokens: 120, OutputTokens: 30},
	}}
	llm := newAnthropicLLM(fake, "claude-test", 1024)

	resp := collect(t, llm, userRequest("review"))
	require.Len(t, resp.Content.Parts, 2)
	assert.Equal(t, "Looking up the site.", resp.Content.Parts[0].Text)
	call := resp.Content.Parts[1].FunctionCall
	require.NotNil(t, call)
	assert.Equal(t, "toolu_1", call.ID)
	assert.Equal(t, "dairy-nl-01", call.Args["site_id"])
	assert.Equal(t, genai.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, int32(150), resp.UsageMetadata.TotalTokenCount)
	assert.Equal(t, int64(1024), fake.params.MaxTokens)
}

func TestAnthropicLLM_Error(t *testing.T) {
	llm := newAnthropicLLM(&fakeMessages{err: errors.New("overloaded")}, "", 0)
	for _, err := range llm.GenerateContent(context.Background(), userRequest("hi"), false) {
		assert.ErrorContains(t, err, "overloaded")
	}
}
