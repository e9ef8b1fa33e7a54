package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFits(t *testing.T) {
	tests := []struct {
		name   string
		budget Budget
		capex  float64
		want   bool
	}{
		{"within user amount", Budget{Amount: 50_000_000, Source: SourceUser}, 2_000_000, true},
		{"exceeds database amount", Budget{Amount: 1_000_000, Source: SourceDatabase}, 2_000_000, false},
		{"equal to budget fits", Budget{Amount: 500, Source: SourceDatabase}, 500, true},
		{"zero capex always fits", Budget{Amount: 0, Source: SourceDatabase}, 0, true},
		{"zero budget with capex", Budget{Amount: 0, Source: SourceUser}, 1, false},
		{"unlimited user", Budget{Unlimited: true, Source: SourceUser}, 1e12, true},
		{"unlimited flag from database is not an authorization", Budget{Unlimited: true, Source: SourceDatabase}, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fits(tt.budget, tt.capex))
		})
	}
}

func TestFits_UnlimitedIgnoresCapEx(t *testing.T) {
	b := ResolveBudget(Unlimited(), ptr(1))
	for _, capex := range []float64{0, 1, 1_000, 1e9, 1e15} {
		assert.True(t, Fits(b, capex), "capex %v", capex)
	}
}

func TestSavings(t *testing.T) {
	assert.Equal(t, 30.0, Savings(100, 70))
	assert.Equal(t, -30.0, Savings(50, 80))
	assert.Equal(t, 0.0, Savings(0, 0))
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0"},
		{2_000_000, "$2,000,000"},
		{-30, "-$30"},
		{1234.5, "$1,234.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoney(tt.in))
	}
}

func TestFormatBudget(t *testing.T) {
	assert.Equal(t, "unrestricted", FormatBudget(Budget{Unlimited: true, Source: SourceUser}))
	assert.Equal(t, "$1,000,000", FormatBudget(Budget{Amount: 1_000_000, Source: SourceDatabase}))
}
