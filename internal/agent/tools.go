package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/knowledge"
	"github.com/pfarch/pfarch/internal/logging"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Knowledge is what the tools need from the knowledge base. *knowledge.Store
// satisfies it.
type Knowledge interface {
	Catalog(ctx context.Context) (*knowledge.Catalog, error)
	SiteContext(ctx context.Context, siteID, processID string) (*knowledge.SiteContext, error)
	TechnicalProfile(ctx context.Context, processID string) (*knowledge.TechnicalProfile, error)
	ClientMachines(ctx context.Context, siteID string) ([]knowledge.Machine, error)
	Economics(ctx context.Context, siteID, processID string) (*knowledge.Economics, error)
	Query(ctx context.Context, statement string, maxRows int) (*knowledge.QueryResult, error)
	SaveDecision(ctx context.Context, rec *decision.Record) error
}

// Tools binds the agent tool handlers to a knowledge base and a verdict policy.
type Tools struct {
	kb     Knowledge
	logger *logging.Logger

	mu     sync.RWMutex
	policy decision.Policy
}

// NewTools creates the tool handlers.
func NewTools(kb Knowledge, policy decision.Policy) *Tools {
	return &Tools{kb: kb, policy: policy, logger: logging.GetLogger("agent.tools")}
}

// Policy returns the policy saved decisions are checked against.
func (t *Tools) Policy() decision.Policy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.policy
}

// SetPolicy replaces the policy for decisions saved afterwards.
func (t *Tools) SetPolicy(p decision.Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = p
}

// Build returns the ADK tools in registration order.
func (t *Tools) Build() ([]tool.Tool, error) {
	knowledgeTool, err := functiontool.New(functiontool.Config{
		Name: ToolGetKnowledge,
		Description: `Look up the knowledge base.
Without site_id, returns the catalog of client sites and PF processes.
With site_id, returns the site context (including the database investment budget), the technical profile of the process
(unit operations with equipment and estimated cost, critical process parameters), the machines the client owns,
the equipment gap with its CapEx, and the economics (current ingredient spend and projected PF cost).
process_id defaults to the site's target process.`,
	}, t.GetKnowledge)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", ToolGetKnowledge, err)
	}

	sqlTool, err := functiontool.New(functiontool.Config{
		Name: ToolRunSQL,
		Description: `Run one read-only SQL SELECT (or WITH ... SELECT) against the knowledge base and return the rows.
Statements that modify data are rejected. max_rows defaults to `+strconv.Itoa(knowledge.DefaultMaxRows)+`.`,
	}, t.RunSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", ToolRunSQL, err)
	}

	saveTool, err := functiontool.New(functiontool.Config{
		Name: ToolSaveDecision,
		Description: `Persist the integration decision. Call this exactly once, before writing the final report.
budget_source is "user" when the user's stated budget or purchase authorization was used, "database" otherwise.
Set budget_unlimited when the user authorized buying whatever is needed.
verdict is "GO" or "NO-GO". Returns the decision_id to cite in the report.`,
	}, t.SaveDecision)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", ToolSaveDecision, err)
	}

	return []tool.Tool{knowledgeTool, sqlTool, saveTool}, nil
}

// GetKnowledgeArgs is the input schema for get_db_knowledge_tool.
type GetKnowledgeArgs struct {
	// SiteID selects the client site. Empty lists the catalog.
	SiteID string `json:"site_id,omitempty"`
	// ProcessID overrides the site's target process.
	ProcessID string `json:"process_id,omitempty"`
}

// GetKnowledgeResult is the output of get_db_knowledge_tool.
type GetKnowledgeResult struct {
	Status    string                      `json:"status"`
	Message   string                      `json:"message,omitempty"`
	Catalog   *knowledge.Catalog          `json:"catalog,omitempty"`
	Context   *knowledge.SiteContext      `json:"context,omitempty"`
	Profile   *knowledge.TechnicalProfile `json:"technical_profile,omitempty"`
	Machines  []knowledge.Machine         `json:"client_machines,omitempty"`
	Gap       *decision.Gap               `json:"equipment_gap,omitempty"`
	Economics *knowledge.Economics        `json:"economics,omitempty"`
}

// GetKnowledge is the handler for get_db_knowledge_tool.
func (t *Tools) GetKnowledge(ctx tool.Context, args GetKnowledgeArgs) (GetKnowledgeResult, error) {
	return t.Lookup(ctx, args)
}

// Lookup returns the catalog, or everything known about one site and process.
// Unknown keys come back as error results.
func (t *Tools) Lookup(ctx context.Context, args GetKnowledgeArgs) (GetKnowledgeResult, error) {
	siteID := strings.TrimSpace(args.SiteID)
	processID := strings.TrimSpace(args.ProcessID)

	if siteID == "" {
		catalog, err := t.kb.Catalog(ctx)
		if err != nil {
			return GetKnowledgeResult{}, fmt.Errorf("failed to load catalog: %w", err)
		}
		return GetKnowledgeResult{Status: statusSuccess, Catalog: catalog}, nil
	}

	sc, err := t.kb.SiteContext(ctx, siteID, processID)
	if err != nil {
		return notFoundOr(err)
	}
	profile, err := t.kb.TechnicalProfile(ctx, sc.Process.ID)
	if err != nil {
		return notFoundOr(err)
	}
	machines, err := t.kb.ClientMachines(ctx, siteID)
	if err != nil {
		return notFoundOr(err)
	}
	econ, err := t.kb.Economics(ctx, siteID, sc.Process.ID)
	if err != nil {
		return notFoundOr(err)
	}

	owned := make([]string, 0, len(machines))
	for _, m := range machines {
		owned = append(owned, m.Name)
	}
	gap := decision.AnalyzeGap(profile.RequiredEquipment(), owned)

	return GetKnowledgeResult{
		Status:    statusSuccess,
		Context:   sc,
		Profile:   profile,
		Machines:  machines,
		Gap:       &gap,
		Economics: econ,
	}, nil
}

// notFoundOr turns a missing key into a result the model can act on and
// passes any other failure through.
func notFoundOr(err error) (GetKnowledgeResult, error) {
	if errors.Is(err, knowledge.ErrNotFound) {
		return GetKnowledgeResult{Status: statusError, Message: err.Error()}, nil
	}
	return GetKnowledgeResult{}, err
}

// RunSQLArgs is the input schema for run_sql_analysis_tool.
type RunSQLArgs struct {
	Query   string `json:"query"`
	MaxRows int    `json:"max_rows,omitempty"`
}

// RunSQLResult is the output of run_sql_analysis_tool.
type RunSQLResult struct {
	Status    string   `json:"status"`
	Message   string   `json:"message,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
}

// RunSQL is the handler for run_sql_analysis_tool.
func (t *Tools) RunSQL(ctx tool.Context, args RunSQLArgs) (RunSQLResult, error) {
	return t.Analyze(ctx, args)
}

// Analyze runs a read-only query. Rejected and malformed statements come back
// as error results so the caller can rewrite them.
func (t *Tools) Analyze(ctx context.Context, args RunSQLArgs) (RunSQLResult, error) {
	if strings.TrimSpace(args.Query) == "" {
		return RunSQLResult{Status: statusError, Message: "query is required"}, nil
	}

	res, err := t.kb.Query(ctx, args.Query, args.MaxRows)
	if err != nil {
		t.logger.Debug("Analysis query rejected: %v", err)
		return RunSQLResult{Status: statusError, Message: err.Error()}, nil
	}

	return RunSQLResult{
		Status:    statusSuccess,
		Columns:   res.Columns,
		Rows:      res.Rows,
		RowCount:  len(res.Rows),
		Truncated: res.Truncated,
	}, nil
}

// SaveDecisionArgs is the input schema for save_integration_decision_tool.
type SaveDecisionArgs struct {
	SiteID          string  `json:"site_id"`
	ProcessID       string  `json:"process_id"`
	BudgetSource    string  `json:"budget_source"`
	ResolvedBudget  float64 `json:"resolved_budget,omitempty"`
	BudgetUnlimited bool    `json:"budget_unlimited,omitempty"`
	CapExTotal      float64 `json:"capex_total"`
	Savings         float64 `json:"savings"`
	Verdict         string  `json:"verdict"`
	Justification   string  `json:"justification,omitempty"`
}

// SaveDecisionResult is the output of save_integration_decision_tool.
type SaveDecisionResult struct {
	Status           string   `json:"status"`
	Message          string   `json:"message,omitempty"`
	DecisionID       string   `json:"decision_id,omitempty"`
	Fits             bool     `json:"fits"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// SaveDecision is the handler for save_integration_decision_tool. The saved
// record is written to session state under StateKeyDecisionRecord.
func (t *Tools) SaveDecision(ctx tool.Context, args SaveDecisionArgs) (SaveDecisionResult, error) {
	res, rec, err := t.Save(ctx, args)
	if err != nil || rec == nil {
		return res, err
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return SaveDecisionResult{}, fmt.Errorf("failed to serialize decision: %w", err)
	}
	actions := ctx.Actions()
	if actions.StateDelta == nil {
		actions.StateDelta = make(map[string]any)
	}
	actions.StateDelta[StateKeyDecisionRecord] = string(recJSON)
	return res, nil
}

// Save validates and persists a decision. Argument problems are returned as
// error results with a nil record; a storage failure is a Go error so the
// caller stops without a report.
func (t *Tools) Save(ctx context.Context, args SaveDecisionArgs) (SaveDecisionResult, *decision.Record, error) {
	rec, problems := t.recordFromArgs(args)
	if len(problems) > 0 {
		return SaveDecisionResult{
			Status:           statusError,
			Message:          "decision arguments are invalid",
			ValidationErrors: problems,
		}, nil, nil
	}

	// The recorded verdict is the caller's; a disagreement with the configured
	// policy is surfaced as a warning.
	policy := t.Policy()
	expected := decision.Synthesize(decision.Assess(budgetFromArgs(args), rec.CapExTotal, rec.Savings), policy)
	var warnings []string
	if expected.Verdict != rec.Verdict {
		warnings = append(warnings, fmt.Sprintf("the %s policy gives %s for these figures: %s",
			policy.Name, expected.Verdict, expected.Justification))
	}
	if rec.Justification == "" {
		rec.Justification = expected.Justification
	}

	if err := t.kb.SaveDecision(ctx, rec); err != nil {
		t.logger.Error("Failed to persist decision for site %s: %v", rec.SiteID, err)
		return SaveDecisionResult{}, nil, fmt.Errorf("failed to persist integration decision: %w", err)
	}

	t.logger.InfoWithFields("Decision saved",
		logging.Field("decision_id", rec.ID),
		logging.Field("site_id", rec.SiteID),
		logging.Field("verdict", string(rec.Verdict)))

	return SaveDecisionResult{
		Status:     statusSuccess,
		Message:    fmt.Sprintf("decision %s saved", rec.ID),
		DecisionID: rec.ID,
		Fits:       rec.Fits,
		Warnings:   warnings,
	}, rec, nil
}

func budgetFromArgs(args SaveDecisionArgs) decision.Budget {
	return decision.Budget{
		Amount:    args.ResolvedBudget,
		Unlimited: args.BudgetUnlimited,
		Source:    decision.Source(strings.ToLower(strings.TrimSpace(args.BudgetSource))),
	}
}

func (t *Tools) recordFromArgs(args SaveDecisionArgs) (*decision.Record, []string) {
	var problems []string

	siteID := strings.TrimSpace(args.SiteID)
	processID := strings.TrimSpace(args.ProcessID)
	if siteID == "" {
		problems = append(problems, "site_id is required")
	}
	if processID == "" {
		problems = append(problems, "process_id is required")
	}

	budget := budgetFromArgs(args)
	switch budget.Source {
	case decision.SourceUser, decision.SourceDatabase:
	default:
		problems = append(problems, fmt.Sprintf("budget_source must be %q or %q, got %q",
			decision.SourceUser, decision.SourceDatabase, args.BudgetSource))
	}
	if budget.Unlimited && budget.Source != decision.SourceUser {
		problems = append(problems, "budget_unlimited requires budget_source \"user\"")
	}
	if budget.Amount < 0 {
		problems = append(problems, "resolved_budget must not be negative")
	}
	if args.CapExTotal < 0 {
		problems = append(problems, "capex_total must not be negative")
	}

	verdict := decision.Verdict(strings.ToUpper(strings.TrimSpace(args.Verdict)))
	if verdict == "NOGO" || verdict == "NO_GO" || verdict == "NO GO" {
		verdict = decision.NoGo
	}
	if !verdict.Valid() {
		problems = append(problems, fmt.Sprintf("verdict must be %q or %q, got %q", decision.Go, decision.NoGo, args.Verdict))
	}

	if len(problems) > 0 {
		return nil, problems
	}

	a := decision.Assess(budget, args.CapExTotal, args.Savings)
	rec := decision.NewRecord(siteID, processID, a, decision.Outcome{
		Verdict:       verdict,
		Justification: strings.TrimSpace(args.Justification),
		Policy:        t.Policy().Name,
	})
	return rec, nil
}
