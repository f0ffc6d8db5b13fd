package verify

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/veridoc/internal/cache"
	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/providers"
)

// Discipline selects how a batch is scheduled.
type Discipline string

const (
	Concurrent Discipline = "concurrent"
	Sequential Discipline = "sequential"
)

// ParseDiscipline accepts "concurrent" or "sequential"; empty means concurrent.
func ParseDiscipline(s string) (Discipline, error) {
	switch Discipline(strings.ToLower(strings.TrimSpace(s))) {
	case "", Concurrent:
		return Concurrent, nil
	case Sequential:
		return Sequential, nil
	}
	return "", fmt.Errorf("unknown discipline %q (want concurrent or sequential)", s)
}

// Composer builds the prompt text for a unit.
type Composer interface {
	Compose(u project.Unit, p *project.Project) string
}

// ResponseCache stores backend responses keyed by prompt and parameters.
type ResponseCache interface {
	Get(k cache.Key) (string, bool)
	Put(k cache.Key, response string) error
}

// Metrics observes finished units and batches.
type Metrics interface {
	ObserveUnit(o Outcome)
	ObserveBatch(r *BatchResult)
}

// Coordinator runs verification batches. A Coordinator may run several
// batches, but not concurrently with itself when they share an output root.
type Coordinator struct {
	backend     providers.Backend
	cfg         providers.Config
	target      Target
	composer    Composer
	reports     *ReportWriter
	sink        Sink
	cache       ResponseCache
	metrics     Metrics
	log         *zap.Logger
	stream      bool
	concurrency int
	lookup      envsubst.Lookup
	savePrompt  bool
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSink sets the event sink (default Discard).
func WithSink(s Sink) Option { return func(c *Coordinator) { c.sink = s } }

// WithLogger sets the logger (default no-op).
func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithCache enables response caching.
func WithCache(rc ResponseCache) Option { return func(c *Coordinator) { c.cache = rc } }

// WithMetrics records unit and batch metrics.
func WithMetrics(m Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithStreaming asks streaming-capable backends to stream. Backends that
// cannot stream ignore it.
func WithStreaming(on bool) Option { return func(c *Coordinator) { c.stream = on } }

// WithConcurrency bounds the concurrent discipline. n <= 0 means no bound.
func WithConcurrency(n int) Option { return func(c *Coordinator) { c.concurrency = n } }

// WithSavePrompt writes the composed prompt next to each report.
func WithSavePrompt(on bool) Option { return func(c *Coordinator) { c.savePrompt = on } }

// WithLookup sets the variable lookup used for the output root.
func WithLookup(l envsubst.Lookup) Option { return func(c *Coordinator) { c.lookup = l } }

// WithClock overrides the time source for report stamps and timings.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// New creates a Coordinator for one backend. cfg describes that backend and
// is used for report naming and cache keys.
func New(backend providers.Backend, cfg providers.Config, composer Composer, opts ...Option) *Coordinator {
	model := cfg.Model
	if model == "" {
		model = providers.DefaultModel(cfg.Provider)
	}
	c := &Coordinator{
		backend:  backend,
		cfg:      cfg,
		target:   Target{Provider: string(cfg.Provider), Model: model, Tag: cfg.Tag},
		composer: composer,
		sink:     Discard,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.reports = NewReportWriter(c.lookup, c.savePrompt)
	c.reports.now = c.now
	return c
}

// Target returns the provider, model and tag reports are attributed to.
func (c *Coordinator) Target() Target { return c.target }

// Reports exposes the writer, for callers that need report paths.
func (c *Coordinator) Reports() *ReportWriter { return c.reports }

// Run executes the named units (all units when names is empty) under the
// given discipline. The returned error is non-nil only for configuration
// problems detected before any unit starts; unit failures are reported in
// the BatchResult.
func (c *Coordinator) Run(ctx context.Context, p *project.Project, names []string, d Discipline) (*BatchResult, error) {
	runID := uuid.NewString()
	units, err := c.prepare(p, names, d)
	if err != nil {
		c.emit(Event{Kind: EventError, RunID: runID, Message: err.Error()})
		return nil, err
	}

	res := &BatchResult{
		RunID:      runID,
		Project:    p.Name,
		Discipline: d,
		StartedAt:  c.now(),
		Total:      len(units),
	}
	log := c.log.With(zap.String("run_id", runID), zap.String("project", p.Name))
	log.Info("batch started", zap.Int("units", len(units)), zap.String("discipline", string(d)))
	c.emit(Event{
		Kind:    EventBatchStart,
		RunID:   runID,
		Total:   len(units),
		Message: fmt.Sprintf("Starting %s verification of %d units", d, len(units)),
	})

	if d == Sequential {
		res.Outcomes = c.runSequential(ctx, runID, p, units)
	} else {
		res.Outcomes = c.runConcurrent(ctx, runID, p, units)
	}

	res.FinishedAt = c.now()
	res.Succeeded, res.Failed = aggregate(res.Outcomes)
	if c.metrics != nil {
		c.metrics.ObserveBatch(res)
	}
	log.Info("batch finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", res.Duration()))
	c.emit(Event{
		Kind:    EventBatchComplete,
		RunID:   runID,
		Total:   res.Total,
		Result:  res,
		Message: fmt.Sprintf("Completed: %d succeeded, %d failed", res.Succeeded, res.Failed),
	})
	return res, nil
}

func (c *Coordinator) prepare(p *project.Project, names []string, d Discipline) ([]project.Unit, error) {
	if p == nil {
		return nil, &project.ConfigError{Err: errors.New("no project")}
	}
	if d != Concurrent && d != Sequential {
		return nil, &project.ConfigError{Field: "discipline", Err: fmt.Errorf("unknown discipline %q", d)}
	}
	if c.backend == nil {
		return nil, &project.ConfigError{Field: "ai_config", Err: errors.New("no backend configured")}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for _, dup := range p.DuplicateNames() {
		c.log.Warn("duplicate unit name, last definition wins", zap.String("unit", dup))
	}
	return p.Select(names)
}

func (c *Coordinator) runConcurrent(ctx context.Context, runID string, p *project.Project, units []project.Unit) []Outcome {
	outcomes := make([]Outcome, len(units))
	// A plain Group: one unit's failure must not cancel its siblings.
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, u := range units {
		g.Go(func() error {
			outcomes[i] = c.runUnit(ctx, runID, p, u)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (c *Coordinator) runSequential(ctx context.Context, runID string, p *project.Project, units []project.Unit) []Outcome {
	outcomes := make([]Outcome, 0, len(units))
	for i, u := range units {
		c.emit(Event{
			Kind:    EventUnitProgress,
			RunID:   runID,
			Unit:    u.Name,
			Current: i + 1,
			Total:   len(units),
			Message: fmt.Sprintf("Processing %d/%d: %s", i+1, len(units), u.Name),
		})
		if err := ctx.Err(); err != nil {
			lc := newLifecycle(u.Name)
			outcomes = append(outcomes, c.fail(runID, lc, c.newOutcome(u.Name), c.now(), err))
			continue
		}
		outcomes = append(outcomes, c.runUnit(ctx, runID, p, u))
	}
	return outcomes
}

func (c *Coordinator) newOutcome(unit string) Outcome {
	return Outcome{Unit: unit, Provider: c.target.Provider, Model: c.target.Model, Tag: c.target.Tag}
}

// runUnit drives one unit through its lifecycle. It never panics and always
// returns an outcome.
func (c *Coordinator) runUnit(ctx context.Context, runID string, p *project.Project, u project.Unit) (out Outcome) {
	start := c.now()
	lc := newLifecycle(u.Name)
	out = c.newOutcome(u.Name)
	log := c.log.With(zap.String("run_id", runID), zap.String("unit", u.Name))

	defer func() {
		if r := recover(); r != nil {
			log.Error("unit panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = c.fail(runID, lc, c.newOutcome(u.Name), start, fmt.Errorf("panic: %v", r))
		}
	}()

	c.emit(Event{Kind: EventVerificationStart, RunID: runID, Unit: u.Name, State: lc.state,
		Message: "Starting verification: " + u.Name})

	c.step(runID, lc, StatePromptBuilding, EventPromptBuilding, "Building prompt for "+u.Name)
	composed := c.composer.Compose(u, p)
	log.Debug("prompt composed", zap.Int("bytes", len(composed)))

	c.step(runID, lc, StateAIProcessing, EventAIProcessing,
		fmt.Sprintf("Sending to %s (%s)", c.target.Provider, c.target.Model))
	analysis, gen, err := c.generate(ctx, runID, u.Name, composed)
	out.Cached, out.Streamed = gen.cached, gen.streamed
	if err != nil {
		log.Warn("backend failed", zap.Error(err))
		return c.fail(runID, lc, out, start, err)
	}

	c.step(runID, lc, StateSaving, EventSavingReport, "Saving report for "+u.Name)
	reportPath, promptPath, err := c.reports.Write(p, u, c.target, analysis, composed)
	if err != nil {
		log.Warn("saving report failed", zap.Error(err))
		return c.fail(runID, lc, out, start, err)
	}

	_ = lc.advance(StateDone)
	out.Success = true
	out.Report = analysis
	out.ReportPath = reportPath
	out.PromptPath = promptPath
	out.Duration = c.now().Sub(start)
	log.Info("unit verified", zap.String("report", reportPath), zap.Bool("cached", out.Cached))
	if c.metrics != nil {
		c.metrics.ObserveUnit(out)
	}
	done := out
	c.emit(Event{Kind: EventVerificationComplete, RunID: runID, Unit: u.Name, State: StateDone,
		Outcome: &done, Message: "Completed verification: " + u.Name})
	return out
}

func (c *Coordinator) step(runID string, lc *lifecycle, to UnitState, kind EventKind, msg string) {
	if err := lc.advance(to); err != nil {
		panic(err)
	}
	c.emit(Event{Kind: kind, RunID: runID, Unit: lc.unit, State: to, Message: msg})
}

func (c *Coordinator) fail(runID string, lc *lifecycle, out Outcome, start time.Time, err error) Outcome {
	stage := lc.state
	_ = lc.advance(StateFailed)
	ue := &UnitError{Unit: lc.unit, Stage: stage, Err: err}
	out.Success = false
	out.Report = ""
	out.ReportPath = ""
	out.PromptPath = ""
	out.Error = err.Error()
	out.FailedAt = stage
	out.Duration = c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.ObserveUnit(out)
	}
	failed := out
	c.emit(Event{Kind: EventVerificationError, RunID: runID, Unit: lc.unit, State: StateFailed,
		Outcome: &failed, Message: ue.Error()})
	return out
}

type generation struct {
	cached   bool
	streamed bool
}

func (c *Coordinator) cacheKey(composed string) cache.Key {
	return cache.Key{
		Provider:    c.target.Provider,
		Model:       c.target.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Prompt:      composed,
	}
}

func (c *Coordinator) generate(ctx context.Context, runID, unit, composed string) (string, generation, error) {
	var gen generation
	if c.cache != nil {
		if hit, ok := c.cache.Get(c.cacheKey(composed)); ok {
			gen.cached = true
			c.emit(Event{Kind: EventCacheHit, RunID: runID, Unit: unit, State: StateAIProcessing,
				Message: "Using cached response for " + unit})
			return hit, gen, nil
		}
	}

	text, streamed, err := c.call(ctx, runID, unit, composed)
	gen.streamed = streamed
	if err != nil {
		return "", gen, err
	}
	if strings.TrimSpace(text) == "" {
		return "", gen, fmt.Errorf("%s returned an empty response", c.backend.Name())
	}
	if c.cache != nil {
		if err := c.cache.Put(c.cacheKey(composed), text); err != nil {
			c.log.Warn("caching response failed", zap.String("unit", unit), zap.Error(err))
		}
	}
	return text, gen, nil
}

func (c *Coordinator) call(ctx context.Context, runID, unit, composed string) (string, bool, error) {
	s, ok := c.backend.(providers.Streamer)
	if !c.stream || !ok {
		text, err := c.backend.Generate(ctx, composed)
		return text, false, err
	}

	c.emit(Event{Kind: EventStreamingStart, RunID: runID, Unit: unit, State: StateAIProcessing,
		Message: "Streaming response for " + unit})
	var partial strings.Builder
	text, err := s.GenerateStream(ctx, composed, func(delta string) {
		partial.WriteString(delta)
		c.emit(Event{Kind: EventStreamingContent, RunID: runID, Unit: unit, State: StateAIProcessing,
			Content: partial.String()})
	})
	if err == nil {
		c.emit(Event{Kind: EventStreamingComplete, RunID: runID, Unit: unit, State: StateAIProcessing,
			Message: "Streaming complete for " + unit})
		return text, true, nil
	}

	c.log.Warn("streaming failed, retrying without streaming", zap.String("unit", unit), zap.Error(err))
	c.emit(Event{Kind: EventStreamingFallback, RunID: runID, Unit: unit, State: StateAIProcessing,
		Message: fmt.Sprintf("Streaming failed (%v), falling back to a single request", err)})
	text, err = c.backend.Generate(ctx, composed)
	return text, false, err
}

func (c *Coordinator) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = c.now()
	}
	c.sink.Emit(e)
}
