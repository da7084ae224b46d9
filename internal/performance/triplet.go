package performance

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned when a triplet component falls outside [0, 1].
var ErrOutOfRange = errors.New("performance component out of range")

// #region triplet

// Triplet summarizes observed performance as quality (psi), stability (rho)
// and efficiency (omega), each in [0, 1].
type Triplet struct {
	Psi   float64 `json:"psi"`
	Rho   float64 `json:"rho"`
	Omega float64 `json:"omega"`
}

// NewTriplet validates each component.
func NewTriplet(psi, rho, omega float64) (Triplet, error) {
	for _, c := range []struct {
		name string
		v    float64
	}{{"psi", psi}, {"rho", rho}, {"omega", omega}} {
		if math.IsNaN(c.v) || c.v < 0 || c.v > 1 {
			return Triplet{}, fmt.Errorf("%s=%g: %w", c.name, c.v, ErrOutOfRange)
		}
	}
	return Triplet{Psi: psi, Rho: rho, Omega: omega}, nil
}

// Neutral is the cold-start triplet used when no benchmark contributes.
func Neutral() Triplet {
	return Triplet{Psi: 0.5, Rho: 0.5, Omega: 0.5}
}

// Validate reports whether t was built within range (e.g. after decoding).
func (t Triplet) Validate() error {
	_, err := NewTriplet(t.Psi, t.Rho, t.Omega)
	return err
}

// Norm is the Euclidean norm of (psi, rho, omega).
func (t Triplet) Norm() float64 {
	return math.Sqrt(t.Psi*t.Psi + t.Rho*t.Rho + t.Omega*t.Omega)
}

// HarmonicMean is 0 when any component is 0.
func (t Triplet) HarmonicMean() float64 {
	if t.Psi == 0 || t.Rho == 0 || t.Omega == 0 {
		return 0
	}
	return 3 / (1/t.Psi + 1/t.Rho + 1/t.Omega)
}

// GeometricMean is the cube root of psi*rho*omega.
func (t Triplet) GeometricMean() float64 {
	return math.Cbrt(t.Psi * t.Rho * t.Omega)
}

// J is the global functional psi*rho*omega.
func (t Triplet) J() float64 {
	return t.Psi * t.Rho * t.Omega
}

func (t Triplet) String() string {
	return fmt.Sprintf("(psi=%.4f, rho=%.4f, omega=%.4f)", t.Psi, t.Rho, t.Omega)
}

// #endregion triplet

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
