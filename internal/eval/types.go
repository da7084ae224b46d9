package eval

import (
	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// #region eval-config
// Config holds tolerances for the post-step checks.
type Config struct {
	NormTolerance    float64 `yaml:"norm_tolerance" json:"norm_tolerance"`         // |‖state‖ - 1| allowed for a non-zero field
	MaxSubmoduleNorm float64 `yaml:"max_submodule_norm" json:"max_submodule_norm"` // 0 means sqrt(dimension)
}

// DefaultConfig returns the stock tolerances.
func DefaultConfig() Config {
	return Config{NormTolerance: 1e-9}
}

// #endregion eval-config

// #region snapshot
// Snapshot is the committed state one step leaves behind.
type Snapshot struct {
	Field       *field.Field
	Config      space.Configuration
	Performance performance.Triplet
	JT          float64
}

// #endregion snapshot

// #region eval-result
// Metric captures a single check.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// Result is the output of Run.
type Result struct {
	Passed  bool     `json:"passed"`
	Metrics []Metric `json:"metrics"`
	Reason  string   `json:"reason"`
}

// #endregion eval-result
