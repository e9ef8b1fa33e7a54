package model

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const roleModel = "model"

// DefaultAnthropicModel is used when the anthropic provider is selected without a model.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

// messagesAPI is the part of the Anthropic client the adapter uses.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicLLM implements the ADK model.LLM interface on top of the
// Anthropic Messages API.
type AnthropicLLM struct {
	messages  messagesAPI
	model     string
	maxTokens int64
}

// NewAnthropicLLM creates the adapter. An empty apiKey makes the SDK read
// ANTHROPIC_API_KEY from the environment.
func NewAnthropicLLM(apiKey, modelName string, maxTokens int) *AnthropicLLM {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return newAnthropicLLM(&client.Messages, modelName, maxTokens)
}

func newAnthropicLLM(messages messagesAPI, modelName string, maxTokens int) *AnthropicLLM {
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicLLM{messages: messages, model: modelName, maxTokens: int64(maxTokens)}
}

// Name returns the model identifier.
func (a *AnthropicLLM) Name() string {
	return a.model
}

// GenerateContent implements model.LLM. Streaming is not supported; one
// complete response is yielded.
func (a *AnthropicLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: a.maxTokens,
			Messages:  toAnthropicMessages(req.Contents),
		}
		if system := systemText(req.Config); system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		params.Tools = toAnthropicTools(req.Config)

		msg, err := a.messages.New(ctx, params)
		if err != nil {
			yield(nil, fmt.Errorf("anthropic messages call failed: %w", err))
			return
		}
		yield(fromAnthropicMessage(msg), nil)
	}
}

func systemText(cfg *genai.GenerateContentConfig) string {
	if cfg == nil || cfg.SystemInstruction == nil {
		return ""
	}
	var parts []string
	for _, p := range cfg.SystemInstruction.Parts {
		if p != nil && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toAnthropicMessages maps genai contents to Anthropic messages. Function
// responses become tool_result blocks on a user message, as the Messages API
// requires.
func toAnthropicMessages(contents []*genai.Content) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(contents))
	for _, c := range contents {
		if c == nil {
			continue
		}
		var blocks []anthropic.ContentBlockParamUnion
		hasToolResult := false
		for _, p := range c.Parts {
			if p == nil {
				continue
			}
			switch {
			case p.FunctionResponse != nil:
				hasToolResult = true
				out, err := json.Marshal(p.FunctionResponse.Response)
				if err != nil {
					out = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(p.FunctionResponse.ID, string(out), false))
			case p.FunctionCall != nil:
				args := p.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(p.FunctionCall.ID, args, p.FunctionCall.Name))
			case p.Text != "" && !p.Thought:
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if c.Role == roleModel && !hasToolResult {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages
}

func toAnthropicTools(cfg *genai.GenerateContentConfig) []anthropic.ToolUnionParam {
	if cfg == nil {
		return nil
	}
	var tools []anthropic.ToolUnionParam
	for _, t := range cfg.Tools {
		if t == nil {
			continue
		}
		for _, fn := range t.FunctionDeclarations {
			if fn == nil {
				continue
			}
			schema := schemaMap(fn.Parameters, fn.ParametersJsonSchema)
			required, _ := schema["required"].([]string)
			tools = append(tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        fn.Name,
					Description: anthropic.String(fn.Description),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: schema["properties"],
						Required:   required,
					},
				},
			})
		}
	}
	return tools
}

// schemaMap returns a JSON schema object for a function declaration. ADK
// function tools fill ParametersJsonSchema; hand-written declarations use
// Parameters.
func schemaMap(schema *genai.Schema, jsonSchema any) map[string]any {
	if jsonSchema != nil {
		if data, err := json.Marshal(jsonSchema); err == nil {
			var m map[string]any
			if json.Unmarshal(data, &m) == nil {
				if req, ok := m["required"].([]any); ok {
					m["required"] = toStrings(req)
				}
				return m
			}
		}
	}
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	m := map[string]any{"type": jsonType(schema.Type)}
	if schema.Description != "" {
		m["description"] = schema.Description
	}
	if len(schema.Properties) > 0 {
		props := make(map[string]any, len(schema.Properties))
		for name, p := range schema.Properties {
			props[name] = schemaMap(p, nil)
		}
		m["properties"] = props
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.Items != nil {
		m["items"] = schemaMap(schema.Items, nil)
	}
	if len(schema.Enum) > 0 {
		m["enum"] = schema.Enum
	}
	return m
}

func toStrings(vs []any) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func jsonType(t genai.Type) string {
	switch t {
	case genai.TypeString:
		return "string"
	case genai.TypeNumber:
		return "number"
	case genai.TypeInteger:
		return "integer"
	case genai.TypeBoolean:
		return "boolean"
	case genai.TypeArray:
		return "array"
	default:
		return "object"
	}
}

func fromAnthropicMessage(msg *anthropic.Message) *model.LLMResponse {
	parts := make([]*genai.Part, 0, len(msg.Content))
	for i := range msg.Content {
		block := &msg.Content[i]
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, &genai.Part{Text: block.Text})
			}
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			}})
		}
	}

	finish := genai.FinishReasonStop
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		finish = genai.FinishReasonMaxTokens
	}

	// #nosec G115 -- token counts are bounded by the model context window
	in, out := int32(msg.Usage.InputTokens), int32(msg.Usage.OutputTokens)
	return &model.LLMResponse{
		Content:      &genai.Content{Role: roleModel, Parts: parts},
		FinishReason: finish,
		TurnComplete: true,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     in,
			CandidatesTokenCount: out,
			TotalTokenCount:      in + out,
		},
	}
}

var _ model.LLM = (*AnthropicLLM)(nil)
