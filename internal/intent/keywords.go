package intent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pfarch/pfarch/internal/decision"
)

// Authorization phrases: the user will buy whatever the process needs.
// These beat any amount in the same message.
var defaultAuthorizationPatterns = []string{
	`\bunlimited\b`,
	`\bno\s+(?:budget\s+)?(?:limit|cap|ceiling|constraint|restriction)s?\b`,
	`\b(?:buy|purchase|acquire|procure)\s+(?:whatever|anything|everything)\b`,
	`\b(?:buy|purchase|acquire|procure)\s+(?:the\s+|all\s+(?:the\s+)?|any\s+)?(?:necessary|needed|required|missing)\s+(?:equipment|machines?|machinery|hardware)\b`,
	`\b(?:buy|purchase|acquire|procure)\s+(?:the\s+|new\s+)?(?:equipment|machines?|machinery)\b`,
	`\bwhatever\s+(?:is|it)\s+(?:needed|necessary|required|takes)\b`,
	`\b(?:money|budget|cost)\s+is\s+(?:not|no)\s+(?:an?\s+)?(?:issue|object|problem|concern|constraint)\b`,
}

// Vague phrases: the user signals a generous budget without a number. An
// explicit amount in the same message wins over these.
var defaultGenerousPatterns = []string{
	`\b(?:high|large|big|generous|deep|huge)\s+budget\b`,
	`\bdeep\s+pockets\b`,
}

// Words that make a bare number read as money when they sit next to it.
var budgetWords = regexp.MustCompile(`(?i)\b(?:budget|invest(?:ed|ment)?|capex|funds?|funding|capital|allocate[ds]?|approved?)\b`)

// Weaker money words. A bare number next to only these must be at least
// minWeakAmount, so "we have 3 lines" is not a budget.
var weakBudgetWords = regexp.MustCompile(`(?i)\b(?:have|spend|afford)\b`)

const minWeakAmount = 1000

// Phrases that state an empty budget. The authorization phrases run first, so
// "no budget limit" never reaches these.
var zeroBudget = regexp.MustCompile(`(?i)\b(?:(?:zero|no|nil)\s+(?:budget|capex|funds?|funding|money)|budget\s+(?:is|of)\s+(?:zero|nil|nothing))\b`)

var limitWord = regexp.MustCompile(`(?i)^\s*(?:limit|cap|ceiling|constraint|restriction)`)

var negation = regexp.MustCompile(`(?i)\b(?:not|cannot|can't|can’t|don't|don’t|won't|won’t|never|unable\s+to)\s+(?:\w+\s+){0,2}$`)

var amountPattern = regexp.MustCompile(`(?i)(\$|usd\s*|us\$|€|eur\s*|£)?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?\s*(thousand|million|billion|mm|mn|bn|k|m|b)?\b(\s*(?:usd|dollars|eur|euros))?`)

var yearPattern = regexp.MustCompile(`^(?:19|20|21)\d{2}$`)

// clauseBreak ends the window in which a budget word counts as next to a number.
const clauseBreak = ";,.!?:\n"

// KeywordClassifier recognizes budget stances with regular expressions.
type KeywordClassifier struct {
	authorization []*regexp.Regexp
	generous      []*regexp.Regexp
}

// NewKeywordClassifier compiles the default phrase lists plus any extra
// authorization patterns from configuration.
func NewKeywordClassifier(extraAuthorizationPatterns ...string) (*KeywordClassifier, error) {
	c := &KeywordClassifier{}
	for _, p := range append(append([]string{}, defaultAuthorizationPatterns...), extraAuthorizationPatterns...) {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid authorization pattern %q: %w", p, err)
		}
		c.authorization = append(c.authorization, re)
	}
	for _, p := range defaultGenerousPatterns {
		c.generous = append(c.generous, regexp.MustCompile("(?i)"+p))
	}
	return c, nil
}

// Classify implements Classifier. It never fails.
func (c *KeywordClassifier) Classify(_ context.Context, message string) (decision.Signal, error) {
	if evidence, ok := firstAffirmed(c.authorization, message); ok {
		return decision.Signal{Kind: decision.AuthorizedUnlimited, Evidence: evidence}, nil
	}
	if amount, evidence, ok := findAmount(message); ok {
		return decision.Signal{Kind: decision.ExplicitAmount, Amount: amount, Evidence: evidence}, nil
	}
	if evidence, ok := findZeroBudget(message); ok {
		return decision.Signal{Kind: decision.ExplicitAmount, Amount: 0, Evidence: evidence}, nil
	}
	if evidence, ok := firstAffirmed(c.generous, message); ok {
		return decision.Signal{Kind: decision.AuthorizedUnlimited, Evidence: evidence}, nil
	}
	return decision.Silent(), nil
}

// firstAffirmed returns the first match that is not preceded by a negation.
func firstAffirmed(patterns []*regexp.Regexp, message string) (string, bool) {
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(message, -1) {
			if negation.MatchString(message[:loc[0]]) {
				continue
			}
			return strings.TrimSpace(message[loc[0]:loc[1]]), true
		}
	}
	return "", false
}

// findAmount returns the amount the user stated. A number marked as money
// (currency sign or magnitude suffix) beats a bare number; a bare number
// counts only when a money word sits next to it in the same clause, and one
// next to a budget word beats one next to a weak word. Four digit years never
// count.
func findAmount(message string) (float64, string, bool) {
	var (
		bare         float64
		bareEvidence string
		bareRank     int
	)
	for _, loc := range amountPattern.FindAllStringSubmatchIndex(message, -1) {
		group := func(i int) string {
			if loc[2*i] < 0 {
				return ""
			}
			return message[loc[2*i]:loc[2*i+1]]
		}
		currency, integer, fraction, suffix, trailingCurrency := group(1), group(2), group(3), group(4), group(5)
		if !identifierBoundary(message, loc[0]) {
			continue
		}
		value, err := parseNumber(integer, fraction, suffix)
		if err != nil || value < 0 {
			continue
		}
		evidence := strings.TrimSpace(message[loc[0]:loc[1]])

		if currency != "" || suffix != "" || trailingCurrency != "" {
			return value, evidence, true
		}
		if fraction == "" && yearPattern.MatchString(integer) {
			continue
		}
		rank := moneyWordRank(message, loc[0], loc[1])
		if rank == 1 && value < minWeakAmount {
			continue
		}
		if rank > bareRank {
			bare, bareEvidence, bareRank = value, evidence, rank
		}
	}
	return bare, bareEvidence, bareRank > 0
}

// identifierBoundary rejects digits that are part of a name, as in "pf2",
// "B12" or "dairy-nl-01".
func identifierBoundary(message string, start int) bool {
	if start == 0 {
		return true
	}
	c := message[start-1]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' || c == '/')
}

// moneyWordRank looks at up to three words before and two words after
// message[start:end], without crossing a clause break. It returns 2 for a
// budget word, 1 for a weak money word and 0 otherwise.
func moneyWordRank(message string, start, end int) int {
	before := message[:start]
	if i := strings.LastIndexAny(before, clauseBreak); i >= 0 {
		before = before[i+1:]
	}
	after := message[end:]
	if i := strings.IndexAny(after, clauseBreak); i >= 0 {
		after = after[:i]
	}

	words := strings.Fields(before)
	if len(words) > 3 {
		words = words[len(words)-3:]
	}
	next := strings.Fields(after)
	if len(next) > 2 {
		next = next[:2]
	}
	window := strings.Join(append(words, next...), " ")
	switch {
	case budgetWords.MatchString(window):
		return 2
	case weakBudgetWords.MatchString(window):
		return 1
	}
	return 0
}

// findZeroBudget matches phrases such as "zero budget" or "no funding".
func findZeroBudget(message string) (string, bool) {
	for _, loc := range zeroBudget.FindAllStringIndex(message, -1) {
		if limitWord.MatchString(message[loc[1]:]) || negation.MatchString(message[:loc[0]]) {
			continue
		}
		return strings.TrimSpace(message[loc[0]:loc[1]]), true
	}
	return "", false
}

// ParseAmount parses amounts like "50M", "$2.5 million" or "1,000,000".
func ParseAmount(s string) (float64, error) {
	m := amountPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || strings.TrimSpace(m[0]) != strings.TrimSpace(s) {
		return 0, fmt.Errorf("cannot parse amount %q", s)
	}
	return parseNumber(m[2], m[3], m[4])
}

func parseNumber(integer, fraction, suffix string) (float64, error) {
	digits := strings.ReplaceAll(integer, ",", "")
	if fraction != "" {
		digits += "." + fraction
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", digits, err)
	}

	switch strings.ToLower(suffix) {
	case "k", "thousand":
		value *= 1e3
	case "m", "mm", "mn", "million":
		value *= 1e6
	case "b", "bn", "billion":
		value *= 1e9
	}
	return value, nil
}
