package calibrator

import (
	"context"
	"errors"

	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/eval"
	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/search"
)

// ErrNotInitialized is returned by every operation that needs a current
// configuration before Initialize or LoadState.
var ErrNotInitialized = errors.New("calibrator not initialized")

// Default file names and benchmark directory.
const (
	DefaultBenchmarkDir = "metatron-qso-rs/ci"
	DefaultStateFile    = "scs_state.json"
	DefaultHistoryFile  = "scs_history.json"
)

// #region config

// Config collects every tunable of the control loop.
type Config struct {
	Enabled      bool
	BenchmarkDir string
	StateFile    string
	HistoryFile  string
	NumNeighbors int
	Seed         int64

	Field      field.Config
	Gate       gate.Criteria
	Impulse    cri.ImpulseConfig
	Heuristics search.Heuristics
	Weights    performance.Weights
	Eval       eval.Config
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		BenchmarkDir: DefaultBenchmarkDir,
		StateFile:    DefaultStateFile,
		HistoryFile:  DefaultHistoryFile,
		NumNeighbors: search.DefaultNumNeighbors,
		Field:        field.DefaultConfig(),
		Gate:         gate.DefaultCriteria(),
		Impulse:      cri.DefaultImpulseConfig(),
		Heuristics:   search.DefaultHeuristics(),
		Weights:      performance.DefaultWeights(),
		Eval:         eval.DefaultConfig(),
	}
}

// #endregion config

// #region collaborators

// Capability reports whether calibration may run at all.
type Capability interface {
	IsAvailable() bool
}

// StaticCapability is a fixed availability flag.
type StaticCapability bool

// IsAvailable implements Capability.
func (c StaticCapability) IsAvailable() bool { return bool(c) }

// BenchmarkSource supplies the benchmark snapshot for one step.
type BenchmarkSource interface {
	Load(ctx context.Context) (performance.Benchmarks, error)
}

// #endregion collaborators
