// Package decision holds the deterministic rules that turn looked-up facts into
// an integration verdict: budget resolution, equipment gap and CapEx, fit,
// savings and the GO/NO-GO policy. Nothing in this package performs I/O.
package decision

// Source identifies where a resolved budget came from.
type Source string

const (
	SourceUser     Source = "user"
	SourceDatabase Source = "database"
)

// SignalKind classifies what a user said about budget.
type SignalKind string

const (
	// NoMention means the user said nothing about budget.
	NoMention SignalKind = "no_mention"
	// ExplicitAmount means the user named a number.
	ExplicitAmount SignalKind = "explicit_amount"
	// AuthorizedUnlimited means the user authorized buying whatever is needed.
	AuthorizedUnlimited SignalKind = "authorized_unlimited"
)

// Signal is the classified budget stance of a user request.
type Signal struct {
	Kind   SignalKind `json:"kind"`
	Amount float64    `json:"amount,omitempty"`
	// Evidence is the phrase the classifier matched, for logs and audit.
	Evidence string `json:"evidence,omitempty"`
}

// Silent returns a NoMention signal.
func Silent() Signal {
	return Signal{Kind: NoMention}
}

// Amount returns an ExplicitAmount signal for n.
func Amount(n float64) Signal {
	return Signal{Kind: ExplicitAmount, Amount: n}
}

// Unlimited returns an AuthorizedUnlimited signal.
func Unlimited() Signal {
	return Signal{Kind: AuthorizedUnlimited}
}

// Stated reports whether the user expressed any stance on budget.
func (s Signal) Stated() bool {
	return s.Kind == ExplicitAmount || s.Kind == AuthorizedUnlimited
}

// Budget is the resolved monetary ceiling for one evaluation.
type Budget struct {
	Amount    float64 `json:"amount"`
	Unlimited bool    `json:"unlimited"`
	Source    Source  `json:"source"`
}

// Overridden reports whether the user's stance replaced the database baseline.
func (b Budget) Overridden() bool {
	return b.Source == SourceUser
}

// ResolveBudget picks the budget for an evaluation. Any user stance wins
// outright, whether it is above or below the database value. The database
// baseline is used only when the user was silent; a missing baseline resolves
// to zero.
func ResolveBudget(signal Signal, databaseBaseline *float64) Budget {
	switch signal.Kind {
	case AuthorizedUnlimited:
		return Budget{Unlimited: true, Source: SourceUser}
	case ExplicitAmount:
		return Budget{Amount: signal.Amount, Source: SourceUser}
	}

	b := Budget{Source: SourceDatabase}
	if databaseBaseline != nil {
		b.Amount = *databaseBaseline
	}
	return b
}
