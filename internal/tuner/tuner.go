// Package tuner is the high-level auto-tuning API: it keeps a calibrator's
// state on disk between calls, ingests benchmark records and turns steps
// into configuration proposals.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/settings"
	"github.com/LashSesh/qso/internal/space"
	"github.com/LashSesh/qso/internal/state"
)

// disabledJT is J of the neutral triplet, reported by no-op proposals.
const disabledJT = 0.125

// #region proposal

// Proposal is the outcome of one tuning step.
type Proposal struct {
	Config               space.Configuration `json:"config"`
	CurrentPerformance   performance.Triplet `json:"current_performance"`
	EstimatedPerformance performance.Triplet `json:"estimated_performance"`
	PoRAccepted          bool                `json:"por_accepted"`
	CRITriggered         bool                `json:"cri_triggered"`
	DeltaPhi             float64             `json:"delta_phi"` // change in triplet norm over the step
	Step                 int                 `json:"step"`
	JT                   float64             `json:"j_t"`
	PoRDetails           *gate.Decision      `json:"por_details,omitempty"`
	CRIDiagnostics       *cri.Diagnostics    `json:"cri_diagnostics,omitempty"`
}

// noOp is returned while the capability is off.
func noOp() Proposal {
	return Proposal{
		Config:               space.Default(),
		CurrentPerformance:   performance.Neutral(),
		EstimatedPerformance: performance.Neutral(),
		JT:                   disabledJT,
	}
}

// #endregion proposal

// #region tuner

// Tuner wraps one calibrator and its state and history files.
type Tuner struct {
	settings settings.Settings
	logger   *zap.Logger
	calOpts  []calibrator.Option
	ledger   *calibrator.Ledger
	cal      *calibrator.Calibrator
}

// Option customizes a Tuner.
type Option func(*Tuner)

// WithLogger sets the logger passed to the calibrator as well.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tuner) { t.logger = l }
}

// WithCalibratorOptions forwards options to every calibrator the tuner
// builds. They are applied after the tuner's own.
func WithCalibratorOptions(opts ...calibrator.Option) Option {
	return func(t *Tuner) { t.calOpts = append(t.calOpts, opts...) }
}

// WithLedger mirrors initialization and every proposal into store.
func WithLedger(store *state.Store) Option {
	return func(t *Tuner) { t.ledger = &calibrator.Ledger{Store: store} }
}

// New builds a tuner. Nothing is read from disk until Initialize.
func New(s settings.Settings, opts ...Option) *Tuner {
	t := &Tuner{settings: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.cal = t.newCalibrator()
	return t
}

func (t *Tuner) newCalibrator() *calibrator.Calibrator {
	return t.settings.Calibrator(t.logger, t.calOpts...)
}

// Calibrator exposes the wrapped calibrator.
func (t *Tuner) Calibrator() *calibrator.Calibrator {
	return t.cal
}

// Enabled reports whether the capability is on.
func (t *Tuner) Enabled() bool {
	return t.settings.Enabled
}

// Initialize resumes from the state file when it exists (and from the
// history file when that exists too). Otherwise it initializes from seed and
// saves the new state. Disabled, it returns the default configuration and
// touches nothing.
func (t *Tuner) Initialize(ctx context.Context, seed *space.Configuration) (space.Configuration, error) {
	if !t.Enabled() {
		return space.Default(), nil
	}
	if t.cal.Initialized() {
		return t.cal.Best()
	}

	resumed, err := t.resume()
	if err != nil {
		return space.Configuration{}, err
	}
	if !resumed {
		if err := t.cal.Initialize(ctx, seed); err != nil {
			return space.Configuration{}, err
		}
		if err := t.cal.SaveState(t.settings.StateFile); err != nil {
			return space.Configuration{}, err
		}
		if t.ledger != nil {
			if _, err := t.ledger.RecordInit(t.cal); err != nil {
				return space.Configuration{}, err
			}
		}
	}
	return t.cal.Best()
}

func (t *Tuner) resume() (bool, error) {
	if !exists(t.settings.StateFile) {
		return false, nil
	}
	if err := t.cal.LoadState(t.settings.StateFile); err != nil {
		return false, err
	}
	if exists(t.settings.HistoryFile) {
		if err := t.cal.LoadHistory(t.settings.HistoryFile); err != nil {
			return false, err
		}
	}
	t.logger.Debug("resumed calibration state",
		zap.String("state_file", t.settings.StateFile),
		zap.Int("step", t.cal.StepCount()),
	)
	return true, nil
}

// Ingest validates rec and writes it into the record directory.
func (t *Tuner) Ingest(rec benchmark.Record) (string, error) {
	path, err := benchmark.Write(t.settings.RecordDir, rec)
	if err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}
	t.logger.Info("benchmark ingested", zap.String("system", rec.System), zap.String("path", path))
	return path, nil
}

// Propose runs one step and saves state and history. While disabled it
// returns a no-op proposal; the ledger, if any, still notes the call.
func (t *Tuner) Propose(ctx context.Context) (Proposal, error) {
	if !t.Enabled() {
		if t.ledger != nil {
			res, err := t.cal.Step(ctx)
			if err != nil {
				return Proposal{}, err
			}
			if _, err := t.ledger.RecordStep(t.cal, res); err != nil {
				return Proposal{}, err
			}
		}
		return noOp(), nil
	}
	if !t.cal.Initialized() {
		return Proposal{}, calibrator.ErrNotInitialized
	}

	before, _ := t.cal.Performance()
	res, err := t.cal.Step(ctx)
	if err != nil {
		return Proposal{}, err
	}
	best, _ := t.cal.Best()
	p := Proposal{
		Config:               best,
		CurrentPerformance:   res.CurrentPerformance,
		EstimatedPerformance: res.EstimatedPerformance,
		PoRAccepted:          res.Accepted,
		CRITriggered:         res.CRITriggered,
		DeltaPhi:             res.CurrentPerformance.Norm() - before.Norm(),
		Step:                 res.Step,
		JT:                   res.JT,
		PoRDetails:           &res.PoRDetailed,
		CRIDiagnostics:       &res.CRIDiagnostics,
	}

	if err := t.cal.SaveState(t.settings.StateFile); err != nil {
		return p, err
	}
	if err := t.cal.SaveHistory(t.settings.HistoryFile); err != nil {
		return p, err
	}
	if t.ledger != nil {
		if _, err := t.ledger.RecordStep(t.cal, res); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Run proposes up to n times. It stops early once psi reaches minQuality
// (the tuner setting when minQuality <= 0) or when psi has moved less than
// the plateau range over the last plateau window.
func (t *Tuner) Run(ctx context.Context, n int, minQuality float64) ([]Proposal, error) {
	if minQuality <= 0 {
		minQuality = t.settings.Tuner.MinQuality
	}
	window := t.settings.Tuner.PlateauWindow
	var out []Proposal
	for range n {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p, err := t.Propose(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, p)
		if p.CurrentPerformance.Psi >= minQuality {
			break
		}
		if window > 0 && len(out) >= window && psiRange(out[len(out)-window:]) < t.settings.Tuner.PlateauRange {
			break
		}
	}
	return out, nil
}

func psiRange(ps []Proposal) float64 {
	psi := make([]float64, len(ps))
	for i, p := range ps {
		psi[i] = p.CurrentPerformance.Psi
	}
	lo, _ := stats.Min(psi)
	hi, _ := stats.Max(psi)
	return hi - lo
}

// Reset deletes the state and history files and starts over with a fresh,
// uninitialized calibrator.
func (t *Tuner) Reset() error {
	for _, path := range []string{t.settings.StateFile, t.settings.HistoryFile} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reset: %w", err)
		}
	}
	t.cal = t.newCalibrator()
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// #endregion tuner
