package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pfarch/pfarch/internal/decision"
)

// DefaultGenAIModel is used when no classifier model is configured.
const DefaultGenAIModel = "gemini-2.0-flash"

const classifyPrompt = `You read requests about integrating precision fermentation equipment.
Decide what the user says about their investment budget.

- "authorized_unlimited": the user authorizes buying whatever equipment is needed
  ("unlimited", "buy equipment", "high budget", "money is not an issue").
- "explicit_amount": the user states a budget number. Set "amount" in dollars
  (50M = 50000000, 2.5 million = 2500000). A user with no money to spend
  ("zero budget", "$0") states an amount of 0.
- "no_mention": the user says nothing about budget.

Quote the words you relied on in "evidence".

Request:
`

var signalSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"kind": {
			Type: genai.TypeString,
			Enum: []string{
				string(decision.NoMention),
				string(decision.ExplicitAmount),
				string(decision.AuthorizedUnlimited),
			},
		},
		"amount":   {Type: genai.TypeNumber},
		"evidence": {Type: genai.TypeString},
	},
	Required: []string{"kind"},
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GenAIClassifier asks a Gemini model for a structured budget signal.
type GenAIClassifier struct {
	model    string
	generate generateFunc
}

// NewGenAIClassifier creates a classifier backed by the Gemini API.
func NewGenAIClassifier(ctx context.Context, apiKey, model string) (*GenAIClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required for the genai classifier")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGenAIModel
	}
	return &GenAIClassifier{model: model, generate: client.Models.GenerateContent}, nil
}

type signalReply struct {
	Kind     string  `json:"kind"`
	Amount   float64 `json:"amount"`
	Evidence string  `json:"evidence"`
}

// Classify implements Classifier.
func (c *GenAIClassifier) Classify(ctx context.Context, message string) (decision.Signal, error) {
	if strings.TrimSpace(message) == "" {
		return decision.Silent(), nil
	}

	resp, err := c.generate(ctx, c.model, genai.Text(classifyPrompt+message), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   signalSchema,
	})
	if err != nil {
		return decision.Signal{}, fmt.Errorf("budget classification request failed: %w", err)
	}
	if resp == nil {
		return decision.Signal{}, fmt.Errorf("budget classification returned no response")
	}

	var reply signalReply
	if err := json.Unmarshal([]byte(resp.Text()), &reply); err != nil {
		return decision.Signal{}, fmt.Errorf("failed to parse budget classification: %w", err)
	}

	switch decision.SignalKind(reply.Kind) {
	case decision.NoMention, "":
		return decision.Silent(), nil
	case decision.AuthorizedUnlimited:
		return decision.Signal{Kind: decision.AuthorizedUnlimited, Evidence: reply.Evidence}, nil
	case decision.ExplicitAmount:
		if reply.Amount < 0 {
			return decision.Signal{}, fmt.Errorf("budget classification returned negative amount %v", reply.Amount)
		}
		return decision.Signal{Kind: decision.ExplicitAmount, Amount: reply.Amount, Evidence: reply.Evidence}, nil
	default:
		return decision.Signal{}, fmt.Errorf("unknown budget signal kind %q", reply.Kind)
	}
}
