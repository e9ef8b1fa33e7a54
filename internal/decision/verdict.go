package decision

import (
	"fmt"
	"sort"
)

// Verdict is the final recommendation.
type Verdict string

const (
	Go   Verdict = "GO"
	NoGo Verdict = "NO-GO"
)

// Valid reports whether v is GO or NO-GO.
func (v Verdict) Valid() bool {
	return v == Go || v == NoGo
}

// Assessment gathers the independent results a policy combines.
type Assessment struct {
	Budget  Budget  `json:"budget"`
	CapEx   float64 `json:"capex"`
	Fits    bool    `json:"fits"`
	Savings float64 `json:"savings"`
}

// Assess builds an Assessment, computing fit from budget and capex.
func Assess(budget Budget, capex, savings float64) Assessment {
	return Assessment{
		Budget:  budget,
		CapEx:   capex,
		Fits:    Fits(budget, capex),
		Savings: savings,
	}
}

// Policy decides GO for an assessment. The rule combining fit and savings is a
// business choice, so it is selected by name from configuration.
type Policy struct {
	Name        string
	Description string
	Go          func(Assessment) bool
}

// DefaultPolicyName is used when configuration does not select a policy.
const DefaultPolicyName = "strict"

var policies = map[string]Policy{
	"strict": {
		Name:        "strict",
		Description: "GO only when the CapEx fits the budget and savings are not negative",
		Go: func(a Assessment) bool {
			return a.Fits && a.Savings >= 0
		},
	},
	"capex-only": {
		Name:        "capex-only",
		Description: "GO whenever the CapEx fits; negative savings are reported but accepted for strategic adoption",
		Go: func(a Assessment) bool {
			return a.Fits
		},
	},
	"positive-savings": {
		Name:        "positive-savings",
		Description: "GO only when the CapEx fits and the switch saves money",
		Go: func(a Assessment) bool {
			return a.Fits && a.Savings > 0
		},
	},
}

// LookupPolicy returns the named policy. An empty name selects the default.
func LookupPolicy(name string) (Policy, error) {
	if name == "" {
		name = DefaultPolicyName
	}
	p, ok := policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown verdict policy %q (available: %v)", name, PolicyNames())
	}
	return p, nil
}

// PolicyNames lists the registered policies in sorted order.
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outcome is a verdict with its one-line justification.
type Outcome struct {
	Verdict       Verdict `json:"verdict"`
	Justification string  `json:"justification"`
	Policy        string  `json:"policy"`
}

// Synthesize applies p to a and explains the result in one line, stating
// whether a user budget overrode the database.
func Synthesize(a Assessment, p Policy) Outcome {
	out := Outcome{Verdict: NoGo, Policy: p.Name}
	if p.Go != nil && p.Go(a) {
		out.Verdict = Go
	}

	capex := FormatMoney(a.CapEx)
	savings := FormatMoney(a.Savings)

	switch {
	case out.Verdict == Go && a.Budget.Overridden():
		out.Justification = fmt.Sprintf("Feasible due to approved investment. CapEx %s is covered by the user-defined budget (%s), overriding the database budget; annual savings %s.",
			capex, FormatBudget(a.Budget), savings)
	case out.Verdict == Go:
		out.Justification = fmt.Sprintf("CapEx %s fits the database budget of %s and annual savings are %s.",
			capex, FormatBudget(a.Budget), savings)
	case !a.Fits:
		out.Justification = fmt.Sprintf("CapEx %s exceeds the %s of %s.",
			capex, budgetLabel(a.Budget), FormatBudget(a.Budget))
	case a.Savings < 0:
		out.Justification = fmt.Sprintf("PF production would cost %s more per year than the current ingredient spend (%s budget in use).",
			FormatMoney(-a.Savings), budgetSourceLabel(a.Budget))
	default:
		out.Justification = fmt.Sprintf("The switch yields no annual savings (%s) under the %s policy (%s budget in use).",
			savings, p.Name, budgetSourceLabel(a.Budget))
	}
	return out
}

func budgetLabel(b Budget) string {
	if b.Overridden() {
		return "user-defined budget"
	}
	return "database budget"
}

func budgetSourceLabel(b Budget) string {
	if b.Overridden() {
		return "user-defined"
	}
	return "database"
}
