package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pfarch/pfarch/internal/logging"
)

// DefaultMaxRows caps analysis query results when no limit is given.
const DefaultMaxRows = 200

var (
	leadingKeyword = regexp.MustCompile(`(?i)^\s*(select|with)\b`)
	mutatingWord   = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|attach|detach|pragma|vacuum|reindex)\b`)
)

// checkReadOnly rejects anything but a single SELECT or WITH statement and
// returns the statement without surrounding whitespace, comments and trailing
// semicolons. Quoted text is ignored by the checks.
func checkReadOnly(statement string) (string, error) {
	masked := maskQuotedAndComments(statement)
	body := strings.TrimRight(masked, "; \t\r\n")
	start := len(body) - len(strings.TrimLeft(body, " \t\r\n"))
	body = body[start:]
	if body == "" {
		return "", fmt.Errorf("empty query: %w", ErrReadOnlyViolation)
	}
	if strings.Contains(body, ";") {
		return "", fmt.Errorf("multiple statements: %w", ErrReadOnlyViolation)
	}
	if !leadingKeyword.MatchString(body) {
		return "", fmt.Errorf("statement must start with SELECT or WITH: %w", ErrReadOnlyViolation)
	}
	if m := mutatingWord.FindString(body); m != "" {
		return "", fmt.Errorf("statement contains %s: %w", strings.ToUpper(m), ErrReadOnlyViolation)
	}
	return statement[start : start+len(body)], nil
}

// maskQuotedAndComments blanks the contents of string literals, quoted
// identifiers and comments. Byte offsets are preserved.
func maskQuotedAndComments(statement string) string {
	b := []byte(statement)
	blank := func(from, to int) {
		for ; from < to && from < len(b); from++ {
			b[from] = ' '
		}
	}
	for i := 0; i < len(b); {
		switch c := b[i]; {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closing := c
			if c == '[' {
				closing = ']'
			}
			j := i + 1
			for j < len(b) {
				if b[j] == closing {
					// A doubled quote is an escaped quote inside the literal.
					if closing != ']' && j+1 < len(b) && b[j+1] == closing {
						j += 2
						continue
					}
					break
				}
				j++
			}
			blank(i+1, j)
			i = j + 1
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			j := strings.IndexByte(statement[i:], '\n')
			if j < 0 {
				j = len(b) - i
			}
			blank(i, i+j)
			i += j
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			end := len(b)
			if j := strings.Index(statement[i+2:], "*/"); j >= 0 {
				end = i + 2 + j + 2
			}
			blank(i, end)
			i = end
		default:
			i++
		}
	}
	return string(b)
}

// Query runs an ad-hoc analysis query. The statement runs inside a
// transaction that is always rolled back, and at most maxRows rows are
// returned (DefaultMaxRows when maxRows <= 0).
func (s *Store) Query(ctx context.Context, statement string, maxRows int) (*QueryResult, error) {
	stmt, err := checkReadOnly(statement)
	if err != nil {
		return nil, err
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin query transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if len(result.Rows) == maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	s.logger.DebugWithFields("Analysis query",
		logging.Field("rows", len(result.Rows)),
		logging.Field("truncated", result.Truncated),
	)
	return result, nil
}
