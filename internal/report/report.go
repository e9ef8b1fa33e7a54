// Package report renders an integration decision as a four-section report.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/knowledge"
)

// Section keys, in report order.
const (
	SectionTechnicalOverview   = "technical_overview"
	SectionImplementationCapEx = "implementation_capex"
	SectionEconomicAnalysis    = "economic_analysis"
	SectionFinalVerdict        = "final_verdict"
)

// ErrNotPersisted is returned when rendering a decision that was never saved.
var ErrNotPersisted = errors.New("decision record has not been persisted")

// Input is everything an evaluation produced.
type Input struct {
	Context   *knowledge.SiteContext
	Profile   *knowledge.TechnicalProfile
	Budget    decision.Budget
	Gap       decision.Gap
	Economics *knowledge.Economics
	Record    *decision.Record
}

// Field is one labelled line of a section. Items, when set, render as a
// nested list under the label.
type Field struct {
	Key   string   `json:"key"`
	Label string   `json:"label"`
	Value string   `json:"value"`
	Items []string `json:"items,omitempty"`
}

// Section is one of the four fixed report sections.
type Section struct {
	Key    string  `json:"key"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Field returns the field with the given key.
func (s Section) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Report is a rendered integration decision.
type Report struct {
	SiteID     string           `json:"site_id"`
	ProcessID  string           `json:"process_id"`
	DecisionID string           `json:"decision_id"`
	Verdict    decision.Verdict `json:"verdict"`
	Sections   []Section        `json:"sections"`
}

// Section returns the section with the given key.
func (r *Report) Section(key string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// Render builds the report. The decision record must already be persisted.
func Render(in Input) (*Report, error) {
	if !in.Record.Persisted() {
		return nil, ErrNotPersisted
	}
	if in.Context == nil || in.Profile == nil || in.Economics == nil {
		return nil, fmt.Errorf("incomplete report input")
	}

	return &Report{
		SiteID:     in.Record.SiteID,
		ProcessID:  in.Record.ProcessID,
		DecisionID: in.Record.ID,
		Verdict:    in.Record.Verdict,
		Sections: []Section{
			technicalOverview(in),
			implementationCapEx(in),
			economicAnalysis(in),
			finalVerdict(in),
		},
	}, nil
}

func technicalOverview(in Input) Section {
	p := in.Profile.Process
	ops := make([]string, 0, len(in.Profile.UnitOperations))
	for _, op := range in.Profile.UnitOperations {
		ops = append(ops, op.Name)
	}
	constraints := make([]string, 0, len(in.Profile.CriticalParameters))
	for _, cpp := range in.Profile.CriticalParameters {
		constraints = append(constraints, formatParameter(cpp))
	}
	if len(constraints) == 0 {
		constraints = append(constraints, "none recorded")
	}

	return Section{
		Key:   SectionTechnicalOverview,
		Title: "1. Technical Process Overview",
		Fields: []Field{
			{Key: "process", Label: "Process", Value: p.Name},
			{Key: "host", Label: "Host", Value: p.Host},
			{Key: "mechanism", Label: "Mechanism", Value: p.Mechanism},
			{Key: "key_operations", Label: "Key Operations", Value: strings.Join(ops, " → ")},
			{Key: "critical_constraints", Label: "Critical Constraints", Value: strings.Join(constraints, "; ")},
		},
	}
}

func implementationCapEx(in Input) Section {
	source := "Using Database Budget"
	if in.Budget.Source == decision.SourceUser {
		source = "Using User Defined Budget"
	}

	missing := make([]string, 0, len(in.Gap.Missing))
	for _, item := range in.Gap.Missing {
		missing = append(missing, item.Name+" – "+decision.FormatMoney(item.Cost))
	}
	missingValue := strconv.Itoa(len(missing)) + " item(s)"
	if len(missing) == 0 {
		missingValue = "none, all required equipment is installed"
	}

	return Section{
		Key:   SectionImplementationCapEx,
		Title: "2. Implementation & CapEx",
		Fields: []Field{
			{Key: "constraint_source", Label: "Constraint Source", Value: source},
			{Key: "budget", Label: "Budget", Value: decision.FormatBudget(in.Budget)},
			{Key: "missing_equipment", Label: "Missing Equipment", Value: missingValue, Items: missing},
			{Key: "total_investment", Label: "Total Investment Required", Value: decision.FormatMoney(in.Gap.CapEx)},
		},
	}
}

func economicAnalysis(in Input) Section {
	return Section{
		Key:   SectionEconomicAnalysis,
		Title: "3. Economic Analysis (ROI)",
		Fields: []Field{
			{Key: "current_spend", Label: "Current Ingredient Spend", Value: decision.FormatMoney(in.Economics.BaselineSpend) + " / year (" + in.Economics.Ingredient + ")"},
			{Key: "projected_cost", Label: "Projected PF Production Cost", Value: decision.FormatMoney(in.Economics.ProjectedOpEx) + " / year"},
			{Key: "annual_savings", Label: "Annual Cost Savings", Value: decision.FormatMoney(in.Record.Savings) + " / year"},
		},
	}
}

func finalVerdict(in Input) Section {
	return Section{
		Key:   SectionFinalVerdict,
		Title: "4. Final Verdict",
		Fields: []Field{
			{Key: "decision", Label: "Decision", Value: string(in.Record.Verdict)},
			{Key: "reasoning", Label: "Reasoning", Value: in.Record.Justification},
			{Key: "decision_id", Label: "Decision ID", Value: in.Record.ID},
		},
	}
}

func formatParameter(cpp knowledge.CriticalParameter) string {
	unit := ""
	if cpp.Unit != "" {
		unit = " " + cpp.Unit
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	var bound string
	switch {
	case cpp.Min != nil && cpp.Max != nil:
		bound = num(*cpp.Min) + "–" + num(*cpp.Max) + unit
	case cpp.Min != nil:
		bound = "≥ " + num(*cpp.Min) + unit
	case cpp.Max != nil:
		bound = "≤ " + num(*cpp.Max) + unit
	default:
		bound = "monitored"
	}
	return cpp.UnitOperation + " " + cpp.Parameter + " " + bound
}

// Field values printed in bold.
var emphasized = map[string]bool{
	"total_investment": true,
	"annual_savings":   true,
	"decision":         true,
}

// Markdown serializes the report in its fixed markdown layout.
func (r *Report) Markdown() string {
	var sb strings.Builder
	for i, s := range r.Sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("# " + s.Title + "\n\n")
		fields := s.Fields
		if s.Key == SectionTechnicalOverview && len(fields) >= 2 {
			sb.WriteString(fmt.Sprintf("> **%s:** %s | **%s:** %s\n\n", fields[0].Label, fields[0].Value, fields[1].Label, fields[1].Value))
			fields = fields[2:]
		}
		for _, f := range fields {
			value := f.Value
			if emphasized[f.Key] {
				value = "**" + value + "**"
			}
			sb.WriteString(fmt.Sprintf("* **%s:** %s\n", f.Label, value))
			for _, item := range f.Items {
				sb.WriteString("  * " + item + "\n")
			}
		}
	}
	return sb.String()
}

// JSON returns the machine-checkable form of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
