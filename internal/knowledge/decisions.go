package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/logging"
)

// timeLayout has fixed-width fractions so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveDecision persists a decision record exactly once. On success the record
// carries its new ID and creation time.
func (s *Store) SaveDecision(ctx context.Context, rec *decision.Record) error {
	if rec == nil {
		return fmt.Errorf("nil decision record")
	}
	if rec.Persisted() {
		return fmt.Errorf("decision record %s is already persisted", rec.ID)
	}
	if !rec.Verdict.Valid() {
		return fmt.Errorf("invalid verdict %q", rec.Verdict)
	}

	id := uuid.NewString()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_decision (
			id, site_id, process_id, budget_source, resolved_budget, budget_unlimited,
			capex_total, savings, fits, verdict, justification, policy, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.SiteID, rec.ProcessID, string(rec.BudgetSource), rec.ResolvedBudget, boolInt(rec.BudgetUnlimited),
		rec.CapExTotal, rec.Savings, boolInt(rec.Fits), string(rec.Verdict), rec.Justification, rec.Policy,
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = createdAt.UTC()
	s.logger.InfoWithFields("Saved integration decision",
		logging.Field("decision_id", id),
		logging.Field("site_id", rec.SiteID),
		logging.Field("process_id", rec.ProcessID),
		logging.Field("verdict", string(rec.Verdict)),
	)
	return nil
}

// ListDecisions returns the most recent decisions, newest first. An empty
// siteID lists all sites.
func (s *Store) ListDecisions(ctx context.Context, siteID string, limit int) ([]*decision.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_id, process_id, budget_source, resolved_budget, budget_unlimited,
		       capex_total, savings, fits, verdict, justification, policy, created_at
		FROM integration_decision
		WHERE ? = '' OR site_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, siteID, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	records := []*decision.Record{}
	for rows.Next() {
		var (
			rec             decision.Record
			source, verdict string
			unlimited, fits int
			createdAt       string
		)
		if err := rows.Scan(&rec.ID, &rec.SiteID, &rec.ProcessID, &source, &rec.ResolvedBudget, &unlimited,
			&rec.CapExTotal, &rec.Savings, &fits, &verdict, &rec.Justification, &rec.Policy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		rec.BudgetSource = decision.Source(source)
		rec.Verdict = decision.Verdict(verdict)
		rec.BudgetUnlimited = unlimited != 0
		rec.Fits = fits != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
