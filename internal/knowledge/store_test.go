package knowledge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfarch/pfarch/internal/decision"
)

func newDemoStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pfarch.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Seed(context.Background(), DemoFixture()))
	return store
}

func TestSiteContext(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	sc, err := store.SiteContext(ctx, "dairy-nl-01", "")
	require.NoError(t, err)
	assert.Equal(t, "Friesland Whey Works", sc.Site.Name)
	assert.Equal(t, "pf-blg", sc.Process.ID)
	assert.Equal(t, "Trichoderma reesei", sc.Process.Host)
	require.NotNil(t, sc.BaselineBudget)
	assert.Equal(t, 1_500_000.0, *sc.BaselineBudget)

	sc, err = store.SiteContext(ctx, "dairy-nl-01", "pf-ova")
	require.NoError(t, err)
	assert.Equal(t, "pf-ova", sc.Process.ID)

	_, err = store.SiteContext(ctx, "nowhere", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.SiteContext(ctx, "dairy-nl-01", "pf-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSiteContext_MissingBudget(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx, &Fixture{
		Processes: []ProcessFixture{{Process: Process{ID: "pf-casein", Name: "Casein"}}},
		Sites: []SiteFixture{{
			Site: Site{ID: "pilot", Name: "Pilot plant", TargetProcessID: "pf-casein"},
		}},
	}))

	sc, err := store.SiteContext(ctx, "pilot", "")
	require.NoError(t, err)
	assert.Nil(t, sc.BaselineBudget)
}

func TestTechnicalProfile(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	profile, err := store.TechnicalProfile(ctx, "pf-blg")
	require.NoError(t, err)
	require.Len(t, profile.UnitOperations, 6)
	assert.Equal(t, "Seed train", profile.UnitOperations[0].Name)
	assert.Equal(t, "Drying", profile.UnitOperations[5].Name)
	assert.Len(t, profile.CriticalParameters, 4)

	var do *CriticalParameter
	for i := range profile.CriticalParameters {
		if profile.CriticalParameters[i].Parameter == "dissolved oxygen" {
			do = &profile.CriticalParameters[i]
		}
	}
	require.NotNil(t, do)
	assert.Nil(t, do.Max)
	require.NotNil(t, do.Min)
	assert.Equal(t, 20.0, *do.Min)

	items := profile.RequiredEquipment()
	require.Len(t, items, 6)
	assert.Equal(t, decision.Item{Name: "Seed Fermenter 500L", Cost: 250_000}, items[0])

	again, err := store.TechnicalProfile(ctx, "pf-blg")
	require.NoError(t, err)
	assert.Same(t, profile, again, "second lookup should hit the cache")

	_, err = store.TechnicalProfile(ctx, "pf-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeedPurgesProfileCache(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	before, err := store.TechnicalProfile(ctx, "pf-ova")
	require.NoError(t, err)

	fixture := DemoFixture()
	for i := range fixture.Processes {
		if fixture.Processes[i].ID == "pf-ova" {
			fixture.Processes[i].UnitOperations = fixture.Processes[i].UnitOperations[:2]
		}
	}
	require.NoError(t, store.Seed(ctx, fixture))

	after, err := store.TechnicalProfile(ctx, "pf-ova")
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Len(t, after.UnitOperations, 2)
}

func TestClientMachines(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	machines, err := store.ClientMachines(ctx, "dairy-nl-01")
	require.NoError(t, err)
	names := make([]string, 0, len(machines))
	for _, m := range machines {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"CIP Station", "Disc-Stack Centrifuge", "Spray Dryer", "Ultrafiltration Skid"}, names)

	machines, err = store.ClientMachines(ctx, "nowhere")
	require.NoError(t, err)
	assert.Empty(t, machines)
	assert.NotNil(t, machines)
}

func TestEconomics(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	econ, err := store.Economics(ctx, "dairy-nl-01", "pf-blg")
	require.NoError(t, err)
	assert.Equal(t, "whey protein concentrate", econ.Ingredient)
	assert.Equal(t, 4_200_000.0, econ.BaselineSpend)
	assert.Equal(t, 2_900_000.0, econ.ProjectedOpEx, "site-specific cost model wins")
	assert.Equal(t, "site", econ.CostModelScope)

	econ, err = store.Economics(ctx, "bakery-de-02", "pf-ova")
	require.NoError(t, err)
	assert.Equal(t, 1_400_000.0, econ.ProjectedOpEx)
	assert.Equal(t, "generic", econ.CostModelScope)

	_, err = store.Economics(ctx, "bakery-de-02", "pf-blg")
	assert.ErrorIs(t, err, ErrNotFound, "bakery has no whey spend")
}

func TestCatalog(t *testing.T) {
	store := newDemoStore(t)

	catalog, err := store.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.Sites, 2)
	require.Len(t, catalog.Processes, 2)
	assert.Equal(t, "bakery-de-02", catalog.Sites[0].ID)
	assert.Equal(t, "pf-ova", catalog.Sites[0].TargetProcessID)
	assert.Equal(t, "pf-blg", catalog.Processes[0].ID)
}

func TestSaveAndListDecisions(t *testing.T) {
	store := newDemoStore(t)
	ctx := context.Background()

	budget := decision.ResolveBudget(decision.Amount(50_000_000), nil)
	a := decision.Assess(budget, 2_700_000, 1_300_000)
	policy, err := decision.LookupPolicy("")
	require.NoError(t, err)

	first := decision.NewRecord("dairy-nl-01", "pf-blg", a, decision.Synthesize(a, policy))
	first.CreatedAt = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveDecision(ctx, first))
	assert.True(t, first.Persisted())

	second := decision.NewRecord("bakery-de-02", "pf-ova", a, decision.Synthesize(a, policy))
	require.NoError(t, store.SaveDecision(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)

	err = store.SaveDecision(ctx, first)
	assert.Error(t, err, "a record is written exactly once")

	all, err := store.ListDecisions(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	dairy, err := store.ListDecisions(ctx, "dairy-nl-01", 10)
	require.NoError(t, err)
	require.Len(t, dairy, 1)
	got := dairy[0]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, decision.SourceUser, got.BudgetSource)
	assert.Equal(t, 50_000_000.0, got.ResolvedBudget)
	assert.Equal(t, 2_700_000.0, got.CapExTotal)
	assert.True(t, got.Fits)
	assert.Equal(t, decision.Go, got.Verdict)
	assert.Equal(t, "strict", got.Policy)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
}

func TestSaveDecision_RejectsInvalidVerdict(t *testing.T) {
	store := newDemoStore(t)
	err := store.SaveDecision(context.Background(), &decision.Record{SiteID: "dairy-nl-01", Verdict: "MAYBE"})
	assert.Error(t, err)
	assert.Error(t, store.SaveDecision(context.Background(), nil))
}

func TestOpenInMemory(t *testing.T) {
	store, err := Open(":memory:", 4)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Seed(context.Background(), DemoFixture()))
	catalog, err := store.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, catalog.Sites, 2)
}
