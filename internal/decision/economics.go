package decision

import (
	"math"

	"github.com/dustin/go-humanize"
)

// Fits reports whether the CapEx is covered by the budget. A user
// authorization to buy what is needed always fits, as does zero CapEx.
func Fits(b Budget, capex float64) bool {
	if b.Unlimited && b.Source == SourceUser {
		return true
	}
	if capex <= 0 {
		return true
	}
	return capex <= b.Amount
}

// Savings is the annual saving of switching to the PF process. Negative values
// mean PF production costs more than the current ingredient spend.
func Savings(baselineSpend, projectedOpEx float64) float64 {
	return baselineSpend - projectedOpEx
}

// FormatMoney renders v as dollars with thousands separators, e.g. -$30,000.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if v == math.Trunc(v) {
		return sign + "$" + humanize.FormatFloat("#,###.", v)
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", v)
}

// FormatBudget renders a budget for reports and justifications.
func FormatBudget(b Budget) string {
	if b.Unlimited {
		return "unrestricted"
	}
	return FormatMoney(b.Amount)
}
