// Package evaluator runs one integration evaluation end to end: look up the
// site and process, resolve the budget, compute gap, CapEx, fit and savings,
// decide, persist the decision, and only then render the report.
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/intent"
	"github.com/pfarch/pfarch/internal/knowledge"
	"github.com/pfarch/pfarch/internal/logging"
	"github.com/pfarch/pfarch/internal/metrics"
	"github.com/pfarch/pfarch/internal/report"
)

// KnowledgeSource answers the read-only lookups of an evaluation.
type KnowledgeSource interface {
	SiteContext(ctx context.Context, siteID, processID string) (*knowledge.SiteContext, error)
	TechnicalProfile(ctx context.Context, processID string) (*knowledge.TechnicalProfile, error)
	ClientMachines(ctx context.Context, siteID string) ([]knowledge.Machine, error)
	Economics(ctx context.Context, siteID, processID string) (*knowledge.Economics, error)
}

// DecisionPersister saves decision records. SaveDecision assigns the ID.
type DecisionPersister interface {
	SaveDecision(ctx context.Context, rec *decision.Record) error
}

// Renderer turns a persisted evaluation into a report.
type Renderer func(in report.Input) (*report.Report, error)

// Request asks for one evaluation.
type Request struct {
	SiteID string `json:"site_id" yaml:"site_id"`
	// ProcessID defaults to the site's target process.
	ProcessID string `json:"process_id,omitempty" yaml:"process_id"`
	// Message is the user's free-form request; its budget stance is classified.
	Message string `json:"message,omitempty" yaml:"message"`
	// Signal, when set, is used instead of classifying Message.
	Signal *decision.Signal `json:"signal,omitempty" yaml:"signal"`
}

// Result is a completed evaluation.
type Result struct {
	Signal    decision.Signal
	Context   *knowledge.SiteContext
	Profile   *knowledge.TechnicalProfile
	Budget    decision.Budget
	Gap       decision.Gap
	Economics *knowledge.Economics
	Record    *decision.Record
	Report    *report.Report
}

// Evaluator runs evaluations. It is safe for concurrent use.
type Evaluator struct {
	knowledge  KnowledgeSource
	persister  DecisionPersister
	classifier intent.Classifier
	render     Renderer
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *logging.Logger

	mu     sync.RWMutex
	policy decision.Policy
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClassifier sets the budget classifier. The default is the keyword classifier.
func WithClassifier(c intent.Classifier) Option {
	return func(e *Evaluator) { e.classifier = c }
}

// WithPolicy sets the verdict policy. The default is decision.DefaultPolicyName.
func WithPolicy(p decision.Policy) Option {
	return func(e *Evaluator) { e.policy = p }
}

// WithRenderer replaces report.Render.
func WithRenderer(r Renderer) Option {
	return func(e *Evaluator) { e.render = r }
}

// WithMetrics records evaluation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithTracer sets the tracer for evaluation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Evaluator) { e.tracer = t }
}

// New creates an Evaluator.
func New(k KnowledgeSource, p DecisionPersister, opts ...Option) (*Evaluator, error) {
	if k == nil || p == nil {
		return nil, fmt.Errorf("knowledge source and decision persister are required")
	}
	policy, err := decision.LookupPolicy(decision.DefaultPolicyName)
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		knowledge: k,
		persister: p,
		policy:    policy,
		render:    report.Render,
		tracer:    otel.Tracer("pfarch/evaluator"),
		logger:    logging.GetLogger("evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		kc, err := intent.NewKeywordClassifier()
		if err != nil {
			return nil, err
		}
		e.classifier = kc
	}
	return e, nil
}

// Policy returns the verdict policy in use.
func (e *Evaluator) Policy() decision.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// SetPolicy replaces the verdict policy for evaluations that start afterwards.
func (e *Evaluator) SetPolicy(p decision.Policy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
	e.logger.Info("Verdict policy set to %s", p.Name)
}

// Evaluate runs the stages strictly in order. A lookup failure stops the
// evaluation with a *StageError. The report is rendered only after the
// decision record has been persisted.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "evaluate", trace.WithAttributes(
		attribute.String("pfarch.site_id", req.SiteID),
		attribute.String("pfarch.process_id", req.ProcessID),
	))
	defer span.End()
	logger := e.logger.WithContext(ctx).WithField("site_id", req.SiteID)

	defer func() {
		seconds := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.metrics.ObserveFailure(string(FailedStage(err)), seconds)
			logger.ErrorWithFields("Evaluation failed", logging.Field("error", err.Error()))
			return
		}
		span.SetAttributes(attribute.String("pfarch.verdict", string(res.Record.Verdict)))
		e.metrics.ObserveEvaluation(string(res.Record.Verdict), string(res.Budget.Source), res.Gap.CapEx, seconds)
	}()

	if req.SiteID == "" {
		return nil, &StageError{Stage: StageContext, Err: fmt.Errorf("site id is required")}
	}
	res = &Result{}

	// 1. Context and budget.
	err = e.stage(ctx, StageContext, func(ctx context.Context) error {
		sc, err := e.knowledge.SiteContext(ctx, req.SiteID, req.ProcessID)
		if err != nil {
			return err
		}
		res.Context = sc
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Signal = e.classify(ctx, req)
	res.Budget = decision.ResolveBudget(res.Signal, res.Context.BaselineBudget)
	processID := res.Context.Process.ID
	logger.InfoWithFields("Resolved budget",
		logging.Field("process_id", processID),
		logging.Field("budget_source", string(res.Budget.Source)),
		logging.Field("budget", decision.FormatBudget(res.Budget)),
	)

	// 2. Technical profile.
	err = e.stage(ctx, StageTechnical, func(ctx context.Context) error {
		p, err := e.knowledge.TechnicalProfile(ctx, processID)
		if err != nil {
			return err
		}
		res.Profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 3. Equipment gap and fit.
	err = e.stage(ctx, StageEquipment, func(ctx context.Context) error {
		machines, err := e.knowledge.ClientMachines(ctx, req.SiteID)
		if err != nil {
			return err
		}
		available := make([]string, 0, len(machines))
		for _, m := range machines {
			available = append(available, m.Name)
		}
		res.Gap = decision.AnalyzeGap(res.Profile.RequiredEquipment(), available)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 4. Economics.
	err = e.stage(ctx, StageEconomics, func(ctx context.Context) error {
		econ, err := e.knowledge.Economics(ctx, req.SiteID, processID)
		if err != nil {
			return err
		}
		res.Economics = econ
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 5. Verdict.
	a := decision.Assess(res.Budget, res.Gap.CapEx, decision.Savings(res.Economics.BaselineSpend, res.Economics.ProjectedOpEx))
	outcome := decision.Synthesize(a, e.Policy())
	res.Record = decision.NewRecord(req.SiteID, processID, a, outcome)
	logger.InfoWithFields("Synthesized verdict",
		logging.Field("capex", a.CapEx),
		logging.Field("fits", a.Fits),
		logging.Field("savings", a.Savings),
		logging.Field("verdict", string(outcome.Verdict)),
		logging.Field("policy", outcome.Policy),
	)

	// 6. Persist. Nothing is rendered unless this succeeds.
	err = e.stage(ctx, StagePersist, func(ctx context.Context) error {
		if err := e.persister.SaveDecision(ctx, res.Record); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistFailed, err)
		}
		if !res.Record.Persisted() {
			return fmt.Errorf("%w: persister did not assign an id", ErrPersistFailed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 7. Render.
	err = e.stage(ctx, StageRender, func(ctx context.Context) error {
		r, err := e.render(report.Input{
			Context:   res.Context,
			Profile:   res.Profile,
			Budget:    res.Budget,
			Gap:       res.Gap,
			Economics: res.Economics,
			Record:    res.Record,
		})
		if err != nil {
			return err
		}
		res.Report = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// classify never fails the evaluation: a classifier error means the user's
// budget stance is unknown, which resolves to the database budget.
func (e *Evaluator) classify(ctx context.Context, req Request) decision.Signal {
	if req.Signal != nil {
		return *req.Signal
	}
	ctx, span := e.tracer.Start(ctx, string(StageClassify))
	defer span.End()

	signal, err := e.classifier.Classify(ctx, req.Message)
	if err != nil {
		span.RecordError(err)
		e.logger.WithContext(ctx).WarnWithFields("Budget classification failed, using database budget",
			logging.Field("site_id", req.SiteID),
			logging.Field("error", err.Error()),
		)
		return decision.Silent()
	}
	span.SetAttributes(attribute.String("pfarch.signal", string(signal.Kind)))
	return signal
}

func (e *Evaluator) stage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, string(stage))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
