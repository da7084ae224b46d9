package field

import (
	"math"

	"github.com/LashSesh/qso/internal/performance"
)

// Encoder turns a performance triplet into a field injection.
type Encoder struct {
	Dimension int
}

// NewEncoder returns an encoder producing vectors of length dim.
func NewEncoder(dim int) *Encoder {
	return &Encoder{Dimension: dim}
}

// Encode is deterministic: the same triplet always yields the same vector.
// Slots 0..8 carry the triplet and its derived scalars; the rest is a
// harmonic basis weighted by psi, rho and omega.
func (e *Encoder) Encode(t performance.Triplet) []float64 {
	v := make([]float64, e.Dimension)
	head := []float64{
		t.Psi, t.Rho, t.Omega,
		t.HarmonicMean(), t.GeometricMean(), t.Norm(),
		t.Psi * t.Rho, t.Psi * t.Omega, t.J(),
	}
	copy(v, head)
	for i := len(head); i < e.Dimension; i++ {
		phase := 2 * math.Pi * float64(i) / float64(e.Dimension)
		v[i] = 0.4*math.Sin(phase)*t.Psi +
			0.3*math.Cos(phase)*t.Rho +
			0.3*math.Sin(2*phase)*t.Omega
	}
	return v
}

// EncodeBenchmarks aggregates the benchmarks and encodes the result.
func (e *Encoder) EncodeBenchmarks(b performance.Benchmarks, w performance.Weights) ([]float64, performance.Triplet) {
	t := performance.Compute(b, w)
	return e.Encode(t), t
}
