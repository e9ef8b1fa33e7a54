// Package audit writes a JSONL trail of agent sessions: what the user asked,
// which tools ran with which arguments, what the model answered and which
// decision was saved.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// EventType identifies the kind of audit event.
type EventType string

const (
	EventTypeSessionStart  EventType = "session_start"
	EventTypeUserMessage   EventType = "user_message"
	EventTypeToolStart     EventType = "tool_start"
	EventTypeToolComplete  EventType = "tool_complete"
	EventTypeAgentText     EventType = "agent_text"
	EventTypeLLMRequest    EventType = "llm_request"
	EventTypeDecisionSaved EventType = "decision_saved"
	EventTypeError         EventType = "error"
	EventTypeSessionEnd    EventType = "session_end"
)

// maxTextLength bounds text fields so one verbose tool result does not bloat the log.
const maxTextLength = 4000

// Event is one line of the audit log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Agent     string         `json:"agent,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger appends events to a JSONL file. It is safe for concurrent use.
type Logger struct {
	file      *os.File
	writer    *bufio.Writer
	mutex     sync.Mutex
	sessionID string
}

// NewLogger opens path for appending, creating it if needed.
func NewLogger(path, sessionID string) (*Logger, error) {
	// #nosec G304 -- audit log path is operator supplied
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &Logger{
		file:      file,
		writer:    bufio.NewWriter(file),
		sessionID: sessionID,
	}, nil
}

// SessionID returns the session the logger writes for.
func (l *Logger) SessionID() string {
	return l.sessionID
}

func (l *Logger) write(eventType EventType, agent string, data map[string]any) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	line, err := json.Marshal(Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		SessionID: l.sessionID,
		Agent:     agent,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if _, err := l.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	// Flush per event so the trail survives a crash.
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush audit log: %w", err)
	}
	return nil
}

// LogSessionStart records the backend the session runs on.
func (l *Logger) LogSessionStart(provider, model string) error {
	return l.write(EventTypeSessionStart, "", map[string]any{
		"provider": provider,
		"model":    model,
	})
}

// LogUserMessage records the prompt.
func (l *Logger) LogUserMessage(message string) error {
	return l.write(EventTypeUserMessage, "", map[string]any{
		"message": truncateString(message, maxTextLength),
	})
}

// LogToolStart records a tool call requested by the model.
func (l *Logger) LogToolStart(agent, toolName string, args map[string]any) error {
	return l.write(EventTypeToolStart, agent, map[string]any{
		"tool_name": toolName,
		"args":      args,
	})
}

// LogToolComplete records a tool result. success is false when the tool
// reported status "error".
func (l *Logger) LogToolComplete(agent, toolName string, success bool, duration time.Duration, result map[string]any) error {
	summary := ""
	if out, err := json.Marshal(result); err == nil {
		summary = truncateString(string(out), maxTextLength)
	}
	return l.write(EventTypeToolComplete, agent, map[string]any{
		"tool_name":   toolName,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
		"result":      summary,
	})
}

// LogAgentText records text produced by the model.
func (l *Logger) LogAgentText(agent, content string, final bool) error {
	return l.write(EventTypeAgentText, agent, map[string]any{
		"content": truncateString(content, maxTextLength),
		"final":   final,
	})
}

// LogLLMRequest records token usage of one model response.
func (l *Logger) LogLLMRequest(model string, inputTokens, outputTokens int) error {
	return l.write(EventTypeLLMRequest, "", map[string]any{
		"model":         model,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
	})
}

// LogDecisionSaved records the decision persisted during the session.
func (l *Logger) LogDecisionSaved(agent, decisionID, siteID, verdict string) error {
	return l.write(EventTypeDecisionSaved, agent, map[string]any{
		"decision_id": decisionID,
		"site_id":     siteID,
		"verdict":     verdict,
	})
}

// LogError records a failure.
func (l *Logger) LogError(agent string, err error) error {
	return l.write(EventTypeError, agent, map[string]any{
		"error": err.Error(),
	})
}

// LogSessionEnd records session totals.
func (l *Logger) LogSessionEnd(duration time.Duration, llmRequests, toolCalls, inputTokens, outputTokens int) error {
	return l.write(EventTypeSessionEnd, "", map[string]any{
		"duration_ms":   duration.Milliseconds(),
		"llm_requests":  llmRequests,
		"tool_calls":    toolCalls,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
	})
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	flushErr := l.writer.Flush()
	closeErr := l.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush audit log: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close audit log file: %w", closeErr)
	}
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...[truncated]"
}
