package field

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// resonanceEpsilon stabilizes normalization of near-zero vectors.
const resonanceEpsilon = 1e-10

// #region errors

// DimensionMismatchError reports a vector whose length differs from the field.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: field has %d, injection has %d", e.Want, e.Got)
}

// ErrNonFinite rejects an injection holding NaN or an infinity.
var ErrNonFinite = errors.New("non-finite injection component")

// #endregion errors

// #region config

// Config holds the field's coefficients.
type Config struct {
	Dimension int       `yaml:"dimension"`
	Alpha     float64   `yaml:"alpha"` // memory decay in (0, 1)
	Gamma     float64   `yaml:"gamma"` // injection weight
	Beta      []float64 `yaml:"beta"`  // one weight per submodule
}

// DefaultConfig returns a 16-dim field with three submodules.
func DefaultConfig() Config {
	return Config{
		Dimension: 16,
		Alpha:     0.95,
		Gamma:     0.5,
		Beta:      []float64{0.1, 0.1, 0.1},
	}
}

// #endregion config

// #region field

// Field accumulates encoded performance history. After every Update its
// state has unit L2 norm, or is the zero vector.
type Field struct {
	Dimension  int
	Alpha      float64
	Gamma      float64
	Beta       []float64
	State      []float64
	Submodules [][]float64
}

// New returns a zero field shaped by cfg.
func New(cfg Config) *Field {
	f := &Field{
		Dimension: cfg.Dimension,
		Alpha:     cfg.Alpha,
		Gamma:     cfg.Gamma,
		Beta:      slices.Clone(cfg.Beta),
		State:     make([]float64, cfg.Dimension),
	}
	f.Submodules = make([][]float64, len(cfg.Beta))
	for i := range f.Submodules {
		f.Submodules[i] = make([]float64, cfg.Dimension)
	}
	return f
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	out := &Field{
		Dimension: f.Dimension,
		Alpha:     f.Alpha,
		Gamma:     f.Gamma,
		Beta:      slices.Clone(f.Beta),
		State:     slices.Clone(f.State),
	}
	out.Submodules = make([][]float64, len(f.Submodules))
	for i, s := range f.Submodules {
		out.Submodules[i] = slices.Clone(s)
	}
	return out
}

// Norm is the L2 norm of the state.
func (f *Field) Norm() float64 {
	return floats.Norm(f.State, 2)
}

// Update absorbs an injection: alpha*state + sum(beta_i*sub_i) + gamma*injection,
// then normalizes. The state stays zero only when that sum is exactly zero.
func (f *Field) Update(injection []float64) error {
	if len(injection) != f.Dimension {
		return &DimensionMismatchError{Want: f.Dimension, Got: len(injection)}
	}
	for i, v := range injection {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}

	next := make([]float64, f.Dimension)
	floats.AddScaled(next, f.Alpha, f.State)
	for i, beta := range f.Beta {
		if i < len(f.Submodules) {
			floats.AddScaled(next, beta, f.Submodules[i])
		}
	}
	floats.AddScaled(next, f.Gamma, injection)

	if n := floats.Norm(next, 2); n > 0 {
		floats.Scale(1/n, next)
	}
	f.State = next
	return nil
}

// UpdateSubmodules blends the triplet's encoding into the submodule owned by
// the algorithm family (80% retained, 20% new).
func (f *Field) UpdateSubmodules(t performance.Triplet, algorithm string) {
	if len(f.Submodules) == 0 {
		return
	}
	idx := SubmoduleIndex(algorithm) % len(f.Submodules)

	enc := make([]float64, f.Dimension)
	head := []float64{t.Psi, t.Rho, t.Omega, t.HarmonicMean(), t.GeometricMean()}
	copy(enc, head)
	for i := len(head); i < f.Dimension; i++ {
		enc[i] = math.Sin(2*math.Pi*float64(i)/float64(f.Dimension)) * t.Psi
	}

	sub := f.Submodules[idx]
	floats.Scale(0.8, sub)
	floats.AddScaled(sub, 0.2, enc)
}

// ResonanceWith is the cosine similarity between the state and the injection,
// each normalized with a small epsilon. Range [-1, 1].
func (f *Field) ResonanceWith(injection []float64) (float64, error) {
	if len(injection) != f.Dimension {
		return 0, &DimensionMismatchError{Want: f.Dimension, Got: len(injection)}
	}
	sn := floats.Norm(f.State, 2) + resonanceEpsilon
	in := floats.Norm(injection, 2) + resonanceEpsilon
	return floats.Dot(f.State, injection) / (sn * in), nil
}

// SubmoduleIndex maps an algorithm family to its submodule slot before the
// modulo by submodule count. Several families share a slot.
func SubmoduleIndex(algorithm string) int {
	switch algorithm {
	case space.AlgorithmVQE, space.AlgorithmGrover:
		return 0
	case space.AlgorithmQAOA, space.AlgorithmBoson:
		return 1
	case space.AlgorithmQuantumWalk, space.AlgorithmVQC:
		return 2
	}
	return 0
}

// #endregion field
