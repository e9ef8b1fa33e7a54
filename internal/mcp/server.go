// Package mcp exposes the integration architect over the Model Context
// Protocol so external assistants can query the knowledge base, run
// evaluations and save decisions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pfarch/pfarch/internal/agent"
	"github.com/pfarch/pfarch/internal/evaluator"
	"github.com/pfarch/pfarch/internal/knowledge"
	"github.com/pfarch/pfarch/internal/logging"
)

const (
	// ToolEvaluate runs a complete evaluation and returns the report.
	ToolEvaluate = "evaluate_integration"

	// PromptIntegrationReview seeds an assistant with the architect workflow.
	PromptIntegrationReview = "pf_integration_review"
)

// Tool is implemented by every handler registered with the server.
type Tool interface {
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}

// ToolFunc adapts a function to Tool.
type ToolFunc func(ctx context.Context, input json.RawMessage) (interface{}, error)

// Execute implements Tool.
func (f ToolFunc) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	return f(ctx, input)
}

// Server wraps the mcp-go server with the architect tools and prompts.
type Server struct {
	mcpServer  *server.MCPServer
	agentTools *agent.Tools
	evaluator  *evaluator.Evaluator
	tools      map[string]Tool
	version    string
	logger     *logging.Logger
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Version   string
	Tools     *agent.Tools
	Evaluator *evaluator.Evaluator
}

// NewServer creates the MCP server and registers its tools and prompts.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Tools == nil {
		return nil, fmt.Errorf("tool handlers are required")
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	mcpServer := server.NewMCPServer(
		"pfarch MCP Server",
		opts.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		agentTools: opts.Tools,
		evaluator:  opts.Evaluator,
		tools:      make(map[string]Tool),
		version:    opts.Version,
		logger:     logging.GetLogger("mcp"),
	}
	s.registerTools()
	s.registerPrompts()
	return s, nil
}

func runSQLSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "A single SELECT or WITH statement. Quoted text and comments are ignored by the read-only check",
			},
			"max_rows": map[string]interface{}{
				"type":        "integer",
				"description": fmt.Sprintf("Optional: maximum rows to return (default %d)", knowledge.DefaultMaxRows),
			},
		},
		"required": []string{"query"},
	}
}

func (s *Server) registerTools() {
	s.registerTool(
		agent.ToolGetKnowledge,
		"Look up the knowledge base. Without site_id it returns the catalog of sites and processes. With site_id it returns the site context, "+
			"the technical profile of the process, the machines the site owns, the equipment gap with its CapEx and the site economics.",
		ToolFunc(s.getKnowledge),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"site_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional: client site to evaluate (e.g. 'dairy-nl-01')",
				},
				"process_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional: process to evaluate, defaults to the site's target process",
				},
			},
		},
	)

	s.registerTool(
		agent.ToolRunSQL,
		"Run a read-only SQL query (SELECT or WITH) against the knowledge base for custom analysis",
		ToolFunc(s.runSQL),
		runSQLSchema(),
	)

	s.registerTool(
		agent.ToolSaveDecision,
		"Persist an integration decision. Must be called before the final report is presented; the returned decision_id is cited in the report.",
		ToolFunc(s.saveDecision),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"site_id":          map[string]interface{}{"type": "string", "description": "Client site"},
				"process_id":       map[string]interface{}{"type": "string", "description": "Evaluated process"},
				"budget_source":    map[string]interface{}{"type": "string", "enum": []string{"user", "database"}, "description": "Where the budget came from"},
				"resolved_budget":  map[string]interface{}{"type": "number", "description": "Budget the fit check used, in dollars"},
				"budget_unlimited": map[string]interface{}{"type": "boolean", "description": "True when the user authorized buying whatever is needed"},
				"capex_total":      map[string]interface{}{"type": "number", "description": "Total cost of the missing equipment"},
				"savings":          map[string]interface{}{"type": "number", "description": "Annual savings, current spend minus projected cost"},
				"verdict":          map[string]interface{}{"type": "string", "enum": []string{"GO", "NO-GO"}},
				"justification":    map[string]interface{}{"type": "string", "description": "Optional: reasoning behind the verdict"},
			},
			"required": []string{"site_id", "process_id", "budget_source", "capex_total", "savings", "verdict"},
		},
	)

	s.registerTool(
		ToolEvaluate,
		"Run a complete integration evaluation for a site: resolve the budget from the message, compute the equipment gap and savings, "+
			"decide GO or NO-GO, persist the decision and return the four-section report",
		ToolFunc(s.evaluate),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"site_id": map[string]interface{}{
					"type":        "string",
					"description": "Client site to evaluate",
				},
				"process_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional: process to evaluate, defaults to the site's target process",
				},
				"message": map[string]interface{}{
					"type":        "string",
					"description": "Optional: the user's request, e.g. 'we have 50M' or 'buy whatever is needed'",
				},
			},
			"required": []string{"site_id"},
		},
	)
}

func (s *Server) registerTool(name, description string, tool Tool, inputSchema map[string]interface{}) {
	s.tools[name] = tool

	schemaJSON, err := json.Marshal(inputSchema)
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal schema for tool %s: %v", name, err))
	}

	mcpTool := mcp.NewToolWithRawSchema(name, description, schemaJSON)
	s.mcpServer.AddTool(mcpTool, s.createToolHandler(tool))
}

func (s *Server) createToolHandler(tool Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", err)), nil
		}

		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
		}

		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

// decodeArgs accepts the "null" an argument-less call marshals to.
func decodeArgs(input json.RawMessage, v interface{}) error {
	if len(input) == 0 || string(input) == "null" {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) getKnowledge(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var args agent.GetKnowledgeArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	return s.agentTools.Lookup(ctx, args)
}

func (s *Server) runSQL(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var args agent.RunSQLArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	return s.agentTools.Analyze(ctx, args)
}

func (s *Server) saveDecision(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var args agent.SaveDecisionArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	result, rec, err := s.agentTools.Save(ctx, args)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.logger.Info("Decision %s saved for %s via MCP (%s)", rec.ID, rec.SiteID, rec.Verdict)
	}
	return result, nil
}

// EvaluateArgs are the arguments of evaluate_integration.
type EvaluateArgs struct {
	SiteID    string `json:"site_id"`
	ProcessID string `json:"process_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// EvaluateResult is returned by evaluate_integration.
type EvaluateResult struct {
	DecisionID   string  `json:"decision_id"`
	SiteID       string  `json:"site_id"`
	ProcessID    string  `json:"process_id"`
	BudgetSource string  `json:"budget_source"`
	CapExTotal   float64 `json:"capex_total"`
	Savings      float64 `json:"savings"`
	Fits         bool    `json:"fits"`
	Verdict      string  `json:"verdict"`
	Report       string  `json:"report"`
}

func (s *Server) evaluate(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var args EvaluateArgs
	if err := decodeArgs(input, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.SiteID) == "" {
		return nil, fmt.Errorf("site_id is required")
	}

	res, err := s.evaluator.Evaluate(ctx, evaluator.Request{
		SiteID:    args.SiteID,
		ProcessID: args.ProcessID,
		Message:   args.Message,
	})
	if err != nil {
		return nil, err
	}
	rec := res.Record
	return &EvaluateResult{
		DecisionID:   rec.ID,
		SiteID:       rec.SiteID,
		ProcessID:    rec.ProcessID,
		BudgetSource: string(rec.BudgetSource),
		CapExTotal:   rec.CapExTotal,
		Savings:      rec.Savings,
		Fits:         rec.Fits,
		Verdict:      string(rec.Verdict),
		Report:       res.Report.Markdown(),
	}, nil
}

func (s *Server) registerPrompts() {
	reviewPrompt := mcp.Prompt{
		Name:        PromptIntegrationReview,
		Description: "Evaluate whether a client site can adopt a precision-fermentation process and produce the integration report",
		Arguments: []mcp.PromptArgument{
			{Name: "site_id", Description: "Client site to evaluate", Required: true},
			{Name: "process_id", Description: "Optional process, defaults to the site's target process", Required: false},
			{Name: "message", Description: "Optional budget statement from the client, e.g. 'we have 50M'", Required: false},
		},
	}

	s.mcpServer.AddPrompt(reviewPrompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		text, err := reviewPromptText(request.Params.Arguments)
		if err != nil {
			return nil, err
		}
		return &mcp.GetPromptResult{
			Description: "Precision-fermentation integration review",
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.TextContent{
						Type: "text",
						Text: text,
					},
				},
			},
		}, nil
	})
}

func reviewPromptText(args map[string]string) (string, error) {
	siteID := strings.TrimSpace(args["site_id"])
	if siteID == "" {
		return "", fmt.Errorf("site_id is required")
	}

	var b strings.Builder
	b.WriteString(agent.SystemInstruction)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "Evaluate site %s", siteID)
	if processID := strings.TrimSpace(args["process_id"]); processID != "" {
		fmt.Fprintf(&b, " for process %s", processID)
	}
	b.WriteString(".")
	if message := strings.TrimSpace(args["message"]); message != "" {
		fmt.Fprintf(&b, " The client says: %q", message)
	} else {
		b.WriteString(" The client stated no budget.")
	}
	return b.String(), nil
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ToolNames returns the registered tool names.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}
