// Package calibrator runs the calibration control loop: benchmark feedback
// into the field, a double-kick search for a candidate, the resonance gate,
// and the impulse that switches regimes when progress stalls.
package calibrator

import (
	"context"
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/eval"
	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/search"
	"github.com/LashSesh/qso/internal/space"
	"github.com/LashSesh/qso/internal/telemetry"
)

// #region calibrator

// Calibrator owns one current configuration, its triplet, the field, the
// impulse state and the history. It is not safe for concurrent use.
type Calibrator struct {
	cfg        Config
	capability Capability
	source     BenchmarkSource
	estimator  search.PerformanceEstimator
	logger     *zap.Logger
	recorder   telemetry.Recorder
	now        func() time.Time

	encoder   *field.Encoder
	gate      *gate.Gate
	kick      *search.DoubleKick
	invariant *eval.Harness

	space   *space.Space
	field   *field.Field
	impulse *cri.Impulse

	initialized bool
	current     space.Configuration
	perf        performance.Triplet
	steps       int
	history     []HistoryEntry

	// initBenchmarks is the snapshot Initialize ran on, kept for the ledger.
	initBenchmarks performance.Benchmarks
}

// Option customizes a Calibrator.
type Option func(*Calibrator)

// WithCapability sets the availability handle. Default: available when
// Config.Enabled is true.
func WithCapability(c Capability) Option {
	return func(cal *Calibrator) { cal.capability = c }
}

// WithSource sets the benchmark source. Default: a FamilyDirSource over
// Config.BenchmarkDir.
func WithSource(s BenchmarkSource) Option {
	return func(cal *Calibrator) { cal.source = s }
}

// WithEstimator replaces the heuristic candidate estimator.
func WithEstimator(e search.PerformanceEstimator) Option {
	return func(cal *Calibrator) { cal.estimator = e }
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(cal *Calibrator) { cal.logger = l }
}

// WithRecorder sets the metrics recorder. Default: telemetry.Nop.
func WithRecorder(r telemetry.Recorder) Option {
	return func(cal *Calibrator) { cal.recorder = r }
}

// WithClock overrides the history timestamp source.
func WithClock(now func() time.Time) Option {
	return func(cal *Calibrator) { cal.now = now }
}

// New builds an uninitialized calibrator.
func New(cfg Config, opts ...Option) *Calibrator {
	if cfg.NumNeighbors <= 0 {
		cfg.NumNeighbors = search.DefaultNumNeighbors
	}
	if cfg.Field.Dimension <= 0 {
		cfg.Field = field.DefaultConfig()
	}
	heuristics := search.NewHeuristicEstimator(cfg.Heuristics)
	heuristics.Weights = cfg.Weights
	c := &Calibrator{
		cfg:        cfg,
		capability: StaticCapability(cfg.Enabled),
		source:     benchmark.FamilyDirSource{Dir: cfg.BenchmarkDir},
		estimator:  heuristics,
		logger:     zap.NewNop(),
		recorder:   telemetry.Nop{},
		now:        time.Now,
		encoder:    field.NewEncoder(cfg.Field.Dimension),
		gate:       gate.NewGate(cfg.Gate),
		kick:       search.NewDoubleKick(heuristics, cfg.NumNeighbors),
		invariant:  eval.NewHarness(cfg.Eval),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c
}

// reset discards all loop state.
func (c *Calibrator) reset() {
	c.space = space.New(rand.New(rand.NewSource(c.cfg.Seed)))
	c.field = field.New(c.cfg.Field)
	c.impulse = cri.NewImpulse(c.cfg.Impulse)
	c.initialized = false
	c.current = space.Configuration{}
	c.perf = performance.Triplet{}
	c.steps = 0
	c.history = nil
	c.initBenchmarks = nil
}

// stepRand seeds the neighbor draws of one step from the run seed and the
// step number, so a resumed run draws what an uninterrupted one would.
func stepRand(seed int64, step int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(step)))
}

// Config returns the settings the calibrator was built with.
func (c *Calibrator) Config() Config {
	return c.cfg
}

// #endregion calibrator

// #region initialize

// Initialize sets the starting configuration (space.Default when seed is
// nil), derives the initial triplet from the benchmarks, and performs one
// field update and one impulse update. Any previous state is discarded. On
// error the calibrator is left uninitialized.
func (c *Calibrator) Initialize(ctx context.Context, seed *space.Configuration) error {
	start := space.Default()
	if seed != nil {
		start = seed.Clone()
	}
	if start.Params == nil {
		start.Params = space.Extensions{}
	}
	if err := space.Validate(start); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	benchmarks, err := c.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("initialize: load benchmarks: %w", err)
	}

	c.reset()
	injection, perf := c.encoder.EncodeBenchmarks(benchmarks, c.cfg.Weights)
	if err := c.field.Update(injection); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := c.space.SetCurrent(start); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	c.impulse.Update(perf)

	c.current = start
	c.perf = perf
	c.initBenchmarks = benchmarks
	c.initialized = true
	c.logger.Info("calibrator initialized",
		zap.String("config", start.String()),
		zap.Stringer("performance", perf),
		zap.Strings("benchmarks", slices.Sorted(maps.Keys(benchmarks))),
	)
	return nil
}

// #endregion initialize

// #region step

// Step runs one calibration step. All work happens on copies of the field,
// impulse and space; they replace the live state only once the whole step
// has succeeded, so an error leaves the calibrator unchanged.
func (c *Calibrator) Step(ctx context.Context) (StepResult, error) {
	if !c.capability.IsAvailable() {
		c.recorder.RecordStep(telemetry.OutcomeDisabled, false, 0, performance.Triplet{})
		return StepResult{Enabled: false, Message: disabledMessage}, nil
	}
	if !c.initialized {
		return StepResult{}, ErrNotInitialized
	}

	step := c.steps + 1
	res := StepResult{Step: step, Enabled: true}

	// 1. Benchmarks.
	benchmarks, err := c.source.Load(ctx)
	if err != nil {
		c.recorder.RecordError("load_benchmarks")
		return StepResult{}, fmt.Errorf("step %d: load benchmarks: %w", step, err)
	}
	res.Benchmarks = benchmarks
	res.BenchmarksLoaded = slices.Sorted(maps.Keys(benchmarks))

	f := c.field.Clone()
	imp := c.impulse.Clone()
	sp := c.space.WithRand(stepRand(c.cfg.Seed, step))
	cur, perf := c.current.Clone(), c.perf

	// 2. Feedback into the field.
	injection, _ := c.encoder.EncodeBenchmarks(benchmarks, c.cfg.Weights)
	if err := f.Update(injection); err != nil {
		c.recorder.RecordError("feedback")
		return StepResult{}, fmt.Errorf("step %d: feedback: %w", step, err)
	}
	f.UpdateSubmodules(perf, cur.Algorithm)

	// 3. Candidate search.
	candidate := c.kick.Apply(cur, perf, sp)
	res.CandidateConfig = candidate

	// 4. Candidate estimate.
	est, err := c.estimator.Estimate(ctx, cur, perf, candidate, benchmarks)
	if err != nil {
		c.recorder.RecordError("estimate")
		return StepResult{}, fmt.Errorf("step %d: estimate: %w", step, err)
	}
	res.EstimatedPerformance = est.Triplet
	res.Evidence = est.Evidence
	candidateInjection := c.encoder.Encode(est.Triplet)

	// 5. Proof of resonance.
	decision, err := c.gate.DetailedCheck(cur, perf, candidate, est.Triplet, f, candidateInjection)
	if err != nil {
		c.recorder.RecordError("gate")
		return StepResult{}, fmt.Errorf("step %d: gate: %w", step, err)
	}
	res.PoRResult = decision.Overall
	res.PoRDetailed = decision
	res.Accepted = decision.Overall && est.Evidence
	if res.Accepted {
		if err := sp.SetCurrent(candidate); err != nil {
			c.recorder.RecordError("gate")
			return StepResult{}, fmt.Errorf("step %d: accept candidate: %w", step, err)
		}
		cur, perf = candidate, est.Triplet
	}

	// 6. Resonance impulse.
	res.JT = imp.Update(perf)
	if imp.ShouldTrigger(f.Norm()) {
		next := imp.Apply(cur)
		if err := sp.SetCurrent(next); err != nil {
			c.recorder.RecordError("impulse")
			return StepResult{}, fmt.Errorf("step %d: regime switch: %w", step, err)
		}
		cur = next
		res.CRITriggered = true
		res.NewRegimeConfig = &next
	}

	// 7. History and diagnostics.
	res.CurrentPerformance = perf
	res.CRIDiagnostics = imp.Diagnostics()
	res.Invariants = c.invariant.Run(eval.Snapshot{Field: f, Config: cur, Performance: perf, JT: res.JT})
	entry := HistoryEntry{
		Step:         step,
		Config:       cur.Clone(),
		Performance:  perf,
		JT:           res.JT,
		PoRAccepted:  res.Accepted,
		CRITriggered: res.CRITriggered,
		Timestamp:    float64(c.now().UnixNano()) / 1e9,
	}

	c.field, c.impulse, c.space = f, imp, sp
	c.current, c.perf = cur, perf
	c.steps = step
	c.history = append(c.history, entry)

	c.log(res)
	outcome := telemetry.OutcomeRejected
	if res.Accepted {
		outcome = telemetry.OutcomeAccepted
	}
	c.recorder.RecordStep(outcome, res.CRITriggered, res.JT, perf)
	return res, nil
}

func (c *Calibrator) log(res StepResult) {
	c.logger.Info("calibration step",
		zap.Int("step", res.Step),
		zap.Bool("accepted", res.Accepted),
		zap.Float64("j_t", res.JT),
		zap.Bool("cri_triggered", res.CRITriggered),
	)
	if !res.Accepted {
		reason := res.PoRDetailed.Reason
		if !res.Evidence {
			reason = "no benchmark evidence"
		}
		c.logger.Debug("candidate rejected", zap.Int("step", res.Step), zap.String("reason", reason))
	}
	if !res.Invariants.Passed {
		c.logger.Warn("post-step invariants failed", zap.Int("step", res.Step), zap.String("reason", res.Invariants.Reason))
	}
}

// Run executes n steps in order and stops at the first error, returning
// the results gathered so far.
func (c *Calibrator) Run(ctx context.Context, n int) ([]StepResult, error) {
	results := make([]StepResult, 0, max(n, 0))
	for range n {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := c.Step(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// #endregion step

// #region accessors

// Best returns the current configuration, which is the loop's best guess at
// the fixpoint.
func (c *Calibrator) Best() (space.Configuration, error) {
	if !c.initialized {
		return space.Configuration{}, ErrNotInitialized
	}
	return c.current.Clone(), nil
}

// Performance returns the current triplet.
func (c *Calibrator) Performance() (performance.Triplet, error) {
	if !c.initialized {
		return performance.Triplet{}, ErrNotInitialized
	}
	return c.perf, nil
}

// Initialized reports whether Initialize or LoadState has succeeded.
func (c *Calibrator) Initialized() bool {
	return c.initialized
}

// StepCount is the number of completed steps, including restored ones.
func (c *Calibrator) StepCount() int {
	return c.steps
}

// History returns a copy of the recorded steps, oldest first.
func (c *Calibrator) History() []HistoryEntry {
	out := make([]HistoryEntry, len(c.history))
	for i, h := range c.history {
		h.Config = h.Config.Clone()
		out[i] = h
	}
	return out
}

// Field returns a copy of the calibration field.
func (c *Calibrator) Field() *field.Field {
	return c.field.Clone()
}

// Diagnostics returns the impulse's view of J(t).
func (c *Calibrator) Diagnostics() cri.Diagnostics {
	return c.impulse.Diagnostics()
}

// #endregion accessors
