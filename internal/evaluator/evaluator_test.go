package evaluator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/intent"
	"github.com/pfarch/pfarch/internal/knowledge"
	"github.com/pfarch/pfarch/internal/metrics"
	"github.com/pfarch/pfarch/internal/report"
)

func fptr(v float64) *float64 { return &v }

// fakeKnowledge serves a single site "s1" with process "p1".
type fakeKnowledge struct {
	budget    *float64
	required  []knowledge.UnitOperation
	machines  []knowledge.Machine
	economics *knowledge.Economics
	failAt    Stage
	calls     []Stage
}

func newFakeKnowledge() *fakeKnowledge {
	return &fakeKnowledge{
		budget: fptr(1_000_000),
		required: []knowledge.UnitOperation{
			{Sequence: 1, Name: "Fermentation", Equipment: "X", EstimatedCost: 2_000_000},
		},
		machines:  []knowledge.Machine{},
		economics: &knowledge.Economics{Ingredient: "whey", BaselineSpend: 100, ProjectedOpEx: 70},
	}
}

func (f *fakeKnowledge) fail(stage Stage) error {
	f.calls = append(f.calls, stage)
	if f.failAt == stage {
		return fmt.Errorf("lookup %s: %w", stage, knowledge.ErrNotFound)
	}
	return nil
}

func (f *fakeKnowledge) SiteContext(_ context.Context, siteID, processID string) (*knowledge.SiteContext, error) {
	if err := f.fail(StageContext); err != nil {
		return nil, err
	}
	if processID == "" {
		processID = "p1"
	}
	return &knowledge.SiteContext{
		Site:           knowledge.Site{ID: siteID, TargetProcessID: "p1"},
		Process:        knowledge.Process{ID: processID, Name: "PF protein", Host: "yeast"},
		BaselineBudget: f.budget,
	}, nil
}

func (f *fakeKnowledge) TechnicalProfile(_ context.Context, processID string) (*knowledge.TechnicalProfile, error) {
	if err := f.fail(StageTechnical); err != nil {
		return nil, err
	}
	return &knowledge.TechnicalProfile{
		Process:        knowledge.Process{ID: processID, Name: "PF protein", Host: "yeast"},
		UnitOperations: f.required,
	}, nil
}

func (f *fakeKnowledge) ClientMachines(context.Context, string) ([]knowledge.Machine, error) {
	if err := f.fail(StageEquipment); err != nil {
		return nil, err
	}
	return f.machines, nil
}

func (f *fakeKnowledge) Economics(context.Context, string, string) (*knowledge.Economics, error) {
	if err := f.fail(StageEconomics); err != nil {
		return nil, err
	}
	return f.economics, nil
}

type fakePersister struct {
	err   error
	saved []*decision.Record
}

func (p *fakePersister) SaveDecision(_ context.Context, rec *decision.Record) error {
	if p.err != nil {
		return p.err
	}
	rec.ID = fmt.Sprintf("dec-%d", len(p.saved)+1)
	p.saved = append(p.saved, rec)
	return nil
}

func countingRenderer(calls *int) Renderer {
	return func(in report.Input) (*report.Report, error) {
		*calls++
		return report.Render(in)
	}
}

func TestEvaluate_UserBudgetOverridesDatabase(t *testing.T) {
	k := newFakeKnowledge()
	p := &fakePersister{}
	e, err := New(k, p)
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Request{SiteID: "s1", Message: "I have 50M, go ahead"})
	require.NoError(t, err)

	assert.Equal(t, decision.SourceUser, res.Budget.Source)
	assert.Equal(t, 50_000_000.0, res.Budget.Amount)
	assert.Equal(t, 2_000_000.0, res.Gap.CapEx)
	assert.True(t, res.Record.Fits)
	assert.Equal(t, 30.0, res.Record.Savings)
	assert.Equal(t, decision.Go, res.Record.Verdict)
	assert.Contains(t, res.Record.Justification, "Feasible due to approved investment.")

	require.Len(t, p.saved, 1)
	assert.Same(t, res.Record, p.saved[0])
	require.NotNil(t, res.Report)
	assert.Equal(t, "dec-1", res.Report.DecisionID)
}

func TestEvaluate_SilenceUsesDatabaseBudget(t *testing.T) {
	k := newFakeKnowledge()
	e, err := New(k, &fakePersister{})
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Request{SiteID: "s1", Message: "Evaluate the switch"})
	require.NoError(t, err)
	assert.Equal(t, decision.SourceDatabase, res.Budget.Source)
	assert.Equal(t, 1_000_000.0, res.Budget.Amount)
	assert.False(t, res.Record.Fits)
	assert.Equal(t, decision.NoGo, res.Record.Verdict)
}

func TestEvaluate_PreClassifiedSignal(t *testing.T) {
	k := newFakeKnowledge()
	classifier := intent.ClassifierFunc(func(context.Context, string) (decision.Signal, error) {
		t.Fatal("classifier must not run when a signal is given")
		return decision.Signal{}, nil
	})
	e, err := New(k, &fakePersister{}, WithClassifier(classifier))
	require.NoError(t, err)

	unlimited := decision.Unlimited()
	res, err := e.Evaluate(context.Background(), Request{SiteID: "s1", Signal: &unlimited})
	require.NoError(t, err)
	assert.True(t, res.Budget.Unlimited)
	assert.True(t, res.Record.Fits)
}

func TestEvaluate_ClassifierFailureFallsBackToDatabase(t *testing.T) {
	k := newFakeKnowledge()
	classifier := intent.ClassifierFunc(func(context.Context, string) (decision.Signal, error) {
		return decision.Signal{}, errors.New("model unavailable")
	})
	e, err := New(k, &fakePersister{}, WithClassifier(classifier))
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Request{SiteID: "s1", Message: "I have 50M"})
	require.NoError(t, err)
	assert.Equal(t, decision.SourceDatabase, res.Budget.Source)
}

func TestEvaluate_StatedZeroBudgetOverridesDatabase(t *testing.T) {
	for _, msg := range []string{"Our budget is $0, we cannot spend anything", "We have zero budget"} {
		t.Run(msg, func(t *testing.T) {
			k := newFakeKnowledge()
			e, err := New(k, &fakePersister{})
			require.NoError(t, err)

			res, err := e.Evaluate(context.Background(), Request{SiteID: "s1", Message: msg})
			require.NoError(t, err)
			assert.Equal(t, decision.SourceUser, res.Budget.Source)
			assert.Zero(t, res.Budget.Amount)
			assert.False(t, res.Budget.Unlimited)
			assert.False(t, res.Record.Fits)
			assert.Equal(t, decision.NoGo, res.Record.Verdict)
		})
	}

	// Nothing to buy: a zero budget still fits.
	k := newFakeKnowledge()
	k.machines = []knowledge.Machine{{Name: "X"}}
	e, err := New(k, &fakePersister{})
	require.NoError(t, err)
	res, err := e.Evaluate(context.Background(), Request{SiteID: "s1", Message: "We have zero budget"})
	require.NoError(t, err)
	assert.Zero(t, res.Gap.CapEx)
	assert.True(t, res.Record.Fits)
	assert.Equal(t, decision.Go, res.Record.Verdict)
}

func TestEvaluate_PersistFailureProducesNoReport(t *testing.T) {
	k := newFakeKnowledge()
	p := &fakePersister{err: errors.New("disk full")}
	renders := 0
	e, err := New(k, p, WithRenderer(countingRenderer(&renders)))
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Request{SiteID: "s1", Message: "I have 50M"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrPersistFailed)
	assert.Equal(t, StagePersist, FailedStage(err))
	assert.Equal(t, 0, renders, "renderer must never run when persistence fails")
}

type idlessPersister struct{}

func (idlessPersister) SaveDecision(context.Context, *decision.Record) error { return nil }

func TestEvaluate_PersisterWithoutIDBlocksReport(t *testing.T) {
	renders := 0
	e, err := New(newFakeKnowledge(), idlessPersister{}, WithRenderer(countingRenderer(&renders)))
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), Request{SiteID: "s1"})
	assert.ErrorIs(t, err, ErrPersistFailed)
	assert.Equal(t, 0, renders)
}

func TestEvaluate_LookupFailureStopsPipeline(t *testing.T) {
	for _, stage := range []Stage{StageContext, StageTechnical, StageEquipment, StageEconomics} {
		t.Run(string(stage), func(t *testing.T) {
			k := newFakeKnowledge()
			k.failAt = stage
			p := &fakePersister{}
			e, err := New(k, p)
			require.NoError(t, err)

			res, err := e.Evaluate(context.Background(), Request{SiteID: "s1"})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, stage, FailedStage(err))
			assert.ErrorIs(t, err, knowledge.ErrNotFound)
			assert.Equal(t, stage, k.calls[len(k.calls)-1], "no stage runs after a failure")
			assert.Empty(t, p.saved)
		})
	}
}

func TestEvaluate_StagesRunInOrder(t *testing.T) {
	k := newFakeKnowledge()
	e, err := New(k, &fakePersister{})
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), Request{SiteID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageContext, StageTechnical, StageEquipment, StageEconomics}, k.calls)
}

func TestEvaluate_RequiresSite(t *testing.T) {
	e, err := New(newFakeKnowledge(), &fakePersister{})
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), Request{})
	assert.Equal(t, StageContext, FailedStage(err))
}

func TestEvaluate_Policy(t *testing.T) {
	k := newFakeKnowledge()
	k.economics = &knowledge.Economics{BaselineSpend: 50, ProjectedOpEx: 80}

	capexOnly, err := decision.LookupPolicy("capex-only")
	require.NoError(t, err)
	strict, err := New(k, &fakePersister{})
	require.NoError(t, err)
	lenient, err := New(k, &fakePersister{}, WithPolicy(capexOnly))
	require.NoError(t, err)

	req := Request{SiteID: "s1", Message: "unlimited budget"}
	res, err := strict.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, -30.0, res.Record.Savings)
	assert.Equal(t, decision.NoGo, res.Record.Verdict)

	res, err = lenient.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, decision.Go, res.Record.Verdict)
	assert.Equal(t, "capex-only", res.Record.Policy)

	strict.SetPolicy(capexOnly)
	assert.Equal(t, "capex-only", strict.Policy().Name)
	res, err = strict.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, decision.Go, res.Record.Verdict)
}

func TestEvaluate_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	k := newFakeKnowledge()
	e, err := New(k, &fakePersister{}, WithMetrics(m), WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), Request{SiteID: "s1", Message: "I have 50M"})
	require.NoError(t, err)
	k.failAt = StageEconomics
	_, err = e.Evaluate(context.Background(), Request{SiteID: "s1"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("GO", "user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("economics")))

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 2, names["evaluate"])
	assert.Equal(t, 2, names["classify"])
	assert.Equal(t, 1, names["persist"])
	assert.Equal(t, 1, names["render"])
	assert.Equal(t, 2, names["economics"])
}

func TestEvaluate_DemoKnowledgeBase(t *testing.T) {
	store, err := knowledge.Open(filepath.Join(t.TempDir(), "pfarch.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Seed(context.Background(), knowledge.DemoFixture()))

	e, err := New(store, store)
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), Request{SiteID: "dairy-nl-01"})
	require.NoError(t, err)
	assert.Equal(t, decision.SourceDatabase, res.Budget.Source)
	assert.Equal(t, 2_700_000.0, res.Gap.CapEx)
	assert.Equal(t, 1_300_000.0, res.Record.Savings)
	assert.Equal(t, decision.NoGo, res.Record.Verdict)

	res, err = e.Evaluate(context.Background(), Request{SiteID: "dairy-nl-01", Message: "I have 50M, go ahead"})
	require.NoError(t, err)
	assert.Equal(t, decision.Go, res.Record.Verdict)
	assert.Contains(t, res.Report.Markdown(), "Using User Defined Budget")

	saved, err := store.ListDecisions(context.Background(), "dairy-nl-01", 10)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}
