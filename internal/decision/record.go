package decision

import "time"

// Record is the persisted outcome of one evaluation. It is written exactly
// once; ID and CreatedAt are assigned by the persister.
type Record struct {
	ID              string    `json:"id"`
	SiteID          string    `json:"site_id"`
	ProcessID       string    `json:"process_id"`
	BudgetSource    Source    `json:"budget_source"`
	ResolvedBudget  float64   `json:"resolved_budget"`
	BudgetUnlimited bool      `json:"budget_unlimited"`
	CapExTotal      float64   `json:"capex_total"`
	Savings         float64   `json:"savings"`
	Fits            bool      `json:"fits"`
	Verdict         Verdict   `json:"verdict"`
	Justification   string    `json:"justification"`
	Policy          string    `json:"policy"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewRecord builds the unsaved record for an evaluation.
func NewRecord(siteID, processID string, a Assessment, o Outcome) *Record {
	return &Record{
		SiteID:          siteID,
		ProcessID:       processID,
		BudgetSource:    a.Budget.Source,
		ResolvedBudget:  a.Budget.Amount,
		BudgetUnlimited: a.Budget.Unlimited,
		CapExTotal:      a.CapEx,
		Savings:         a.Savings,
		Fits:            a.Fits,
		Verdict:         o.Verdict,
		Justification:   o.Justification,
		Policy:          o.Policy,
	}
}

// Persisted reports whether a persister has accepted the record.
func (r *Record) Persisted() bool {
	return r != nil && r.ID != ""
}
