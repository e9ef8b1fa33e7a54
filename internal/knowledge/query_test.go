package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	res, err := store.Query(ctx, `SELECT site_id, SUM(annual_spend) AS spend FROM client_financials_baseline GROUP BY site_id ORDER BY site_id;`, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"site_id", "spend"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "bakery-de-02", res.Rows[0][0])
	assert.False(t, res.Truncated)

	res, err = store.Query(ctx, `
		-- equipment per process
		WITH ops AS (SELECT process_id, equipment FROM pf_unit_operation)
		SELECT process_id, COUNT(*) FROM ops GROUP BY process_id`, 0)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestQuery_Truncates(t *testing.T) {
	store := newDemoStore(t)

	res, err := store.Query(context.Background(), `SELECT name FROM pf_unit_operation ORDER BY process_id, sequence`, 3)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
	assert.True(t, res.Truncated)
}

func TestQuery_RejectsWrites(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	statements := []string{
		``,
		`DELETE FROM client_site`,
		`UPDATE client_investment_budget SET amount = 1e12`,
		`SELECT 1; DROP TABLE client_site`,
		`WITH x AS (SELECT 1) INSERT INTO client_site (id, name) SELECT 'a', 'b' FROM x`,
		`PRAGMA table_info(client_site)`,
		`/* sneaky */ ATTACH DATABASE 'other.db' AS other`,
	}
	for _, stmt := range statements {
		_, err := store.Query(ctx, stmt, 0)
		assert.ErrorIs(t, err, ErrReadOnlyViolation, stmt)
	}

	sc, err := store.SiteContext(ctx, "dairy-nl-01", "")
	require.NoError(t, err)
	assert.Equal(t, 1_500_000.0, *sc.BaselineBudget)
}

func TestQuery_AllowsColumnNamesContainingKeywords(t *testing.T) {
	store := newDemoStore(t)
	res, err := store.Query(context.Background(), `SELECT created_at FROM integration_decision`, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestQuery_IgnoresQuotedText(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	statements := []string{
		`SELECT id FROM client_site WHERE name = 'a;b'`,
		`SELECT id FROM integration_decision WHERE justification LIKE '%update%'`,
		`SELECT id FROM client_site WHERE name = 'it''s; drop'`,
		`SELECT id AS "delete" FROM client_site -- drop everything`,
		`SELECT id FROM client_site; -- trailing note`,
	}
	for _, stmt := range statements {
		_, err := store.Query(ctx, stmt, 0)
		assert.NoError(t, err, stmt)
	}

	for _, stmt := range []string{
		`SELECT 'a;b'; DELETE FROM client_site`,
		`SELECT '--'; DROP TABLE client_site`,
		`SELECT 1 /* ; */ ; UPDATE client_site SET name = 'x'`,
	} {
		_, err := store.Query(ctx, stmt, 0)
		assert.ErrorIs(t, err, ErrReadOnlyViolation, stmt)
	}
}

func TestMaskQuotedAndComments(t *testing.T) {
	in := `SELECT 'drop;' AS x /* update */ FROM t -- delete`
	out := maskQuotedAndComments(in)
	assert.Len(t, out, len(in))
	assert.Equal(t, "SELECT '     ' AS x", strings.TrimSpace(out[:19]))
	assert.NotContains(t, out, "drop")
	assert.NotContains(t, out, "update")
	assert.NotContains(t, out, "delete")
	assert.Contains(t, out, "FROM t")
}

func TestQuery_SyntaxError(t *testing.T) {
	store := newDemoStore(t)
	_, err := store.Query(context.Background(), `SELECT FROM WHERE`, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReadOnlyViolation)
}
