// Package runner drives conversations with the integration architect agent
// through the ADK runner and records them in the audit trail.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	adkagent "google.golang.org/adk/agent"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	adksession "google.golang.org/adk/session"

	"github.com/pfarch/pfarch/internal/agent"
	"github.com/pfarch/pfarch/internal/agent/audit"
	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/logging"
)

const (
	// AppName is the ADK application name.
	AppName = "pfarch"

	// DefaultUserID is used when no user ID is specified.
	DefaultUserID = "default"
)

// Config contains the runner configuration.
type Config struct {
	// LLM backs the agent.
	LLM adkmodel.LLM

	// Provider names the backend for the audit trail.
	Provider string

	// Tools are the tool handlers bound to the knowledge base.
	Tools *agent.Tools

	// Registration overrides agent.DefaultRegistration when Name is set.
	Registration agent.Registration

	// SessionID allows naming the session. Empty generates one.
	SessionID string

	// UserID defaults to DefaultUserID.
	UserID string

	// AuditLogPath is the JSONL audit file. Empty disables auditing.
	AuditLogPath string
}

// ToolCall summarizes one tool invocation during a turn.
type ToolCall struct {
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Success  bool           `json:"success"`
	Duration time.Duration  `json:"duration"`
}

// Answer is the outcome of one user turn.
type Answer struct {
	Text      string           `json:"text"`
	Decision  *decision.Record `json:"decision,omitempty"`
	ToolCalls []ToolCall       `json:"tool_calls"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Runner holds one agent session.
type Runner struct {
	adkRunner      *runner.Runner
	sessionService adksession.Service
	sessionID      string
	userID         string
	agentName      string
	modelName      string

	auditLogger *audit.Logger
	logger      *logging.Logger

	started           time.Time
	totalLLMRequests  int
	totalToolCalls    int
	totalInputTokens  int
	totalOutputTokens int
}

// New creates the agent, an in-memory session and, when configured, the
// audit logger.
func New(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("runner needs a model")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("runner needs tool handlers")
	}
	reg := cfg.Registration
	if reg.Name == "" {
		reg = agent.DefaultRegistration()
	}

	pfAgent, err := agent.New(cfg.LLM, reg, cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	r := &Runner{
		sessionService: adksession.InMemoryService(),
		sessionID:      cfg.SessionID,
		userID:         cfg.UserID,
		agentName:      reg.Name,
		modelName:      cfg.LLM.Name(),
		logger:         logging.GetLogger("agent.runner"),
		started:        time.Now(),
	}
	if r.sessionID == "" {
		r.sessionID = uuid.NewString()
	}
	if r.userID == "" {
		r.userID = DefaultUserID
	}

	r.adkRunner, err = runner.New(runner.Config{
		AppName:        AppName,
		Agent:          pfAgent,
		SessionService: r.sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ADK runner: %w", err)
	}

	if _, err := r.sessionService.Create(ctx, &adksession.CreateRequest{
		AppName:   AppName,
		UserID:    r.userID,
		SessionID: r.sessionID,
	}); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if cfg.AuditLogPath != "" {
		r.auditLogger, err = audit.NewLogger(cfg.AuditLogPath, r.sessionID)
		if err != nil {
			return nil, err
		}
		_ = r.auditLogger.LogSessionStart(cfg.Provider, r.modelName)
	}

	return r, nil
}

// SessionID returns the session identifier.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// Ask runs one user turn to completion and returns the final text and the
// decision saved during the turn, if any.
func (r *Runner) Ask(ctx context.Context, prompt string) (*Answer, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if r.auditLogger != nil {
		_ = r.auditLogger.LogUserMessage(prompt)
	}

	userContent := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}
	runConfig := adkagent.RunConfig{StreamingMode: adkagent.StreamingModeNone}

	answer := &Answer{ToolCalls: []ToolCall{}}
	pending := make(map[string]int) // tool call key -> index in answer.ToolCalls
	started := make(map[string]time.Time)
	var lastText string

	for event, err := range r.adkRunner.Run(ctx, r.userID, r.sessionID, userContent, runConfig) {
		if err != nil {
			if r.auditLogger != nil {
				_ = r.auditLogger.LogError(r.agentName, err)
			}
			return nil, fmt.Errorf("agent error: %w", err)
		}
		if event == nil {
			continue
		}

		if event.UsageMetadata != nil && (event.UsageMetadata.PromptTokenCount > 0 || event.UsageMetadata.CandidatesTokenCount > 0) {
			in := int(event.UsageMetadata.PromptTokenCount)
			out := int(event.UsageMetadata.CandidatesTokenCount)
			answer.InputTokens += in
			answer.OutputTokens += out
			r.totalLLMRequests++
			r.totalInputTokens += in
			r.totalOutputTokens += out
			if r.auditLogger != nil {
				_ = r.auditLogger.LogLLMRequest(r.modelName, in, out)
			}
		}

		if event.Content != nil {
			for _, part := range event.Content.Parts {
				if part == nil {
					continue
				}
				switch {
				case part.FunctionCall != nil:
					key := toolKey(part.FunctionCall.ID, part.FunctionCall.Name)
					started[key] = time.Now()
					pending[key] = len(answer.ToolCalls)
					answer.ToolCalls = append(answer.ToolCalls, ToolCall{Name: part.FunctionCall.Name, Args: part.FunctionCall.Args})
					r.totalToolCalls++
					if r.auditLogger != nil {
						_ = r.auditLogger.LogToolStart(event.Author, part.FunctionCall.Name, part.FunctionCall.Args)
					}

				case part.FunctionResponse != nil:
					key := toolKey(part.FunctionResponse.ID, part.FunctionResponse.Name)
					success := toolSucceeded(part.FunctionResponse.Response)
					var duration time.Duration
					if t, ok := started[key]; ok {
						duration = time.Since(t)
						delete(started, key)
					}
					if i, ok := pending[key]; ok {
						answer.ToolCalls[i].Success = success
						answer.ToolCalls[i].Duration = duration
						delete(pending, key)
					}
					if r.auditLogger != nil {
						_ = r.auditLogger.LogToolComplete(event.Author, part.FunctionResponse.Name, success, duration, part.FunctionResponse.Response)
					}

				case part.Text != "" && !part.Thought:
					lastText = part.Text
					if r.auditLogger != nil {
						_ = r.auditLogger.LogAgentText(event.Author, part.Text, event.IsFinalResponse())
					}
				}
			}
		}

		if rec := decisionFromDelta(event.Actions.StateDelta); rec != nil {
			answer.Decision = rec
		}
	}

	if answer.Decision == nil {
		answer.Decision = r.decisionFromSession(ctx)
	}
	if answer.Decision != nil && r.auditLogger != nil {
		_ = r.auditLogger.LogDecisionSaved(r.agentName, answer.Decision.ID, answer.Decision.SiteID, string(answer.Decision.Verdict))
	}

	answer.Text = lastText
	r.logger.InfoWithFields("Agent turn complete",
		logging.Field("session_id", r.sessionID),
		logging.Field("tool_calls", len(answer.ToolCalls)),
		logging.Field("decision_saved", answer.Decision != nil))
	return answer, nil
}

// Close writes the session totals and closes the audit log.
func (r *Runner) Close() error {
	if r.auditLogger == nil {
		return nil
	}
	_ = r.auditLogger.LogSessionEnd(time.Since(r.started), r.totalLLMRequests, r.totalToolCalls, r.totalInputTokens, r.totalOutputTokens)
	return r.auditLogger.Close()
}

// decisionFromSession reads the decision from session state when no event
// carried it.
func (r *Runner) decisionFromSession(ctx context.Context) *decision.Record {
	resp, err := r.sessionService.Get(ctx, &adksession.GetRequest{
		AppName:   AppName,
		UserID:    r.userID,
		SessionID: r.sessionID,
	})
	if err != nil {
		r.logger.Debug("Failed to read session %s: %v", r.sessionID, err)
		return nil
	}
	v, err := resp.Session.State().Get(agent.StateKeyDecisionRecord)
	if err != nil {
		if !errors.Is(err, adksession.ErrStateKeyNotExist) {
			r.logger.Debug("Failed to read decision from session state: %v", err)
		}
		return nil
	}
	return decisionFromDelta(map[string]any{agent.StateKeyDecisionRecord: v})
}

func decisionFromDelta(delta map[string]any) *decision.Record {
	raw, ok := delta[agent.StateKeyDecisionRecord].(string)
	if !ok || raw == "" {
		return nil
	}
	var rec decision.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil
	}
	return &rec
}

func toolKey(id, name string) string {
	if id != "" {
		return id
	}
	return name
}

// toolSucceeded treats an "error" status or key in a tool response as failure.
func toolSucceeded(resp map[string]any) bool {
	if status, ok := resp["status"].(string); ok && status == "error" {
		return false
	}
	if errMsg, ok := resp["error"]; ok && errMsg != nil {
		return false
	}
	return true
}
