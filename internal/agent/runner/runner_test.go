package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfarch/pfarch/internal/agent"
	"github.com/pfarch/pfarch/internal/agent/audit"
	"github.com/pfarch/pfarch/internal/agent/model"
	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/knowledge"
)

func newDemoStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.Open(filepath.Join(t.TempDir(), "pfarch.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Seed(context.Background(), knowledge.DemoFixture()))
	return store
}

func newTools(t *testing.T, store *knowledge.Store) *agent.Tools {
	t.Helper()
	policy, err := decision.LookupPolicy("")
	require.NoError(t, err)
	return agent.NewTools(store, policy)
}

func TestAsk_DemoScenarioSavesDecision(t *testing.T) {
	ctx := context.Background()
	store := newDemoStore(t)
	llm, err := model.NewMockLLM(model.DemoScenario())
	require.NoError(t, err)
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")

	r, err := New(ctx, Config{
		LLM:          llm,
		Provider:     model.ProviderMock,
		Tools:        newTools(t, store),
		AuditLogPath: auditPath,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.SessionID())

	answer, err := r.Ask(ctx, "Evaluate dairy-nl-01. I have 50M, go ahead.")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	require.NotNil(t, answer.Decision)
	assert.Equal(t, decision.Go, answer.Decision.Verdict)
	assert.Equal(t, decision.SourceUser, answer.Decision.BudgetSource)
	assert.Equal(t, 50_000_000.0, answer.Decision.ResolvedBudget)
	assert.True(t, answer.Decision.Fits)

	assert.Contains(t, answer.Text, "# 4. Final Verdict")
	assert.Contains(t, answer.Text, answer.Decision.ID, "final report cites the saved decision")

	require.Len(t, answer.ToolCalls, 2)
	assert.Equal(t, agent.ToolGetKnowledge, answer.ToolCalls[0].Name)
	assert.Equal(t, agent.ToolSaveDecision, answer.ToolCalls[1].Name)
	assert.True(t, answer.ToolCalls[0].Success)
	assert.True(t, answer.ToolCalls[1].Success)

	saved, err := store.ListDecisions(ctx, "dairy-nl-01", 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, answer.Decision.ID, saved[0].ID)

	var types []audit.EventType
	file, err := os.Open(auditPath)
	require.NoError(t, err)
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e audit.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		types = append(types, e.Type)
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, types)
	assert.Equal(t, audit.EventTypeSessionStart, types[0])
	assert.Equal(t, audit.EventTypeSessionEnd, types[len(types)-1])
	assert.Contains(t, types, audit.EventTypeToolComplete)
	assert.Contains(t, types, audit.EventTypeDecisionSaved)
}

func TestAsk_NoDecisionWithoutSave(t *testing.T) {
	ctx := context.Background()
	llm, err := model.NewMockLLM(&model.Scenario{
		Name: "catalog-only",
		Steps: []model.Step{
			{ToolCalls: []model.ToolCall{{Name: agent.ToolGetKnowledge}}},
			{Trigger: "tool_result:" + agent.ToolGetKnowledge, Text: "Which site should I review?"},
		},
	})
	require.NoError(t, err)

	r, err := New(ctx, Config{LLM: llm, Tools: newTools(t, newDemoStore(t))})
	require.NoError(t, err)

	answer, err := r.Ask(ctx, "What can you evaluate?")
	require.NoError(t, err)
	assert.Nil(t, answer.Decision)
	assert.Equal(t, "Which site should I review?", answer.Text)
	require.Len(t, answer.ToolCalls, 1)
	assert.True(t, answer.ToolCalls[0].Success)
	require.NoError(t, r.Close())
}

func TestAsk_RequiresPrompt(t *testing.T) {
	llm, err := model.NewMockLLM(model.DemoScenario())
	require.NoError(t, err)
	r, err := New(context.Background(), Config{LLM: llm, Tools: newTools(t, newDemoStore(t))})
	require.NoError(t, err)

	_, err = r.Ask(context.Background(), "  ")
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)

	llm, err := model.NewMockLLM(model.DemoScenario())
	require.NoError(t, err)
	_, err = New(context.Background(), Config{LLM: llm})
	assert.Error(t, err)
}

func TestToolSucceeded(t *testing.T) {
	assert.True(t, toolSucceeded(map[string]any{"status": "success"}))
	assert.False(t, toolSucceeded(map[string]any{"status": "error"}))
	assert.False(t, toolSucceeded(map[string]any{"error": "boom"}))
	assert.True(t, toolSucceeded(nil))
}
