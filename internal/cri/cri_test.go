package cri

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// withJ returns a triplet whose J equals j (psi = j, rho = omega = 1).
func withJ(j float64) performance.Triplet {
	return performance.Triplet{Psi: j, Rho: 1, Omega: 1}
}

func TestGlobalStateTruncatesToTwoWindows(t *testing.T) {
	g := NewGlobalState(5)
	for i := 0; i < 25; i++ {
		g.Update(withJ(float64(i) / 100))
	}
	h := g.History()
	require.Len(t, h, 10)
	assert.InDelta(t, 0.15, h[0], 1e-12)
	assert.InDelta(t, 0.24, g.Current(), 1e-12)
}

func TestStagnationNeedsFullWindow(t *testing.T) {
	values := []float64{0, 1, 0.5, 0.5, 0.5}
	for n := 0; n < 5; n++ {
		g := NewGlobalState(5)
		for i := 0; i < n; i++ {
			g.Update(withJ(values[i]))
		}
		if g.IsStagnating(0.01) {
			t.Fatalf("history of %d entries must not stagnate", n)
		}
	}
}

func TestStagnationFlatHistory(t *testing.T) {
	g := NewGlobalState(5)
	for i := 0; i < 5; i++ {
		g.Update(withJ(0.125))
	}
	assert.True(t, g.IsStagnating(0.01))
	assert.False(t, g.IsDegrading(0.05), "needs two windows")
}

func TestStagnationNotWhenImproving(t *testing.T) {
	g := NewGlobalState(5)
	for i := 0; i < 5; i++ {
		g.Update(withJ(0.2))
	}
	for i := 0; i < 5; i++ {
		g.Update(withJ(0.3))
	}
	assert.False(t, g.IsStagnating(0.01), "recent window improved by more than the threshold")
}

func TestStagnationNotWhenNoisy(t *testing.T) {
	g := NewGlobalState(5)
	for _, v := range []float64{0, 1, 0, 1, 0} {
		g.Update(withJ(v))
	}
	assert.False(t, g.IsStagnating(0.01))
}

func TestDegrading(t *testing.T) {
	g := NewGlobalState(5)
	for i := 0; i < 5; i++ {
		g.Update(withJ(0.5))
	}
	for i := 0; i < 5; i++ {
		g.Update(withJ(0.4))
	}
	assert.True(t, g.IsDegrading(0.05))
	assert.False(t, g.IsDegrading(0.2))
}

func TestShouldTriggerConditions(t *testing.T) {
	imp := NewImpulse(DefaultImpulseConfig())
	for i := 0; i < 9; i++ {
		imp.Update(withJ(0.125))
	}
	assert.False(t, imp.ShouldTrigger(1), "fewer than min steps")

	imp.Update(withJ(0.125))
	assert.True(t, imp.ShouldTrigger(1))
	assert.False(t, imp.ShouldTrigger(0.29), "field norm below floor")
	assert.False(t, imp.ShouldTrigger(0), "zero field")
}

func TestShouldTriggerNotWhenImproving(t *testing.T) {
	imp := NewImpulse(DefaultImpulseConfig())
	for i := 0; i < 12; i++ {
		imp.Update(withJ(float64(i) / 12))
	}
	assert.False(t, imp.ShouldTrigger(1))
}

func TestApplyResetsCounter(t *testing.T) {
	imp := NewImpulse(DefaultImpulseConfig())
	for i := 0; i < 12; i++ {
		imp.Update(withJ(0.1))
	}
	require.Equal(t, 12, imp.StepsSinceImpulse())
	next := imp.Apply(space.Default())
	assert.Equal(t, 0, imp.StepsSinceImpulse())
	assert.False(t, imp.ShouldTrigger(1))
	assert.True(t, space.IsValid(next))
}

func TestAlternativeRegimeTables(t *testing.T) {
	tests := []struct {
		name      string
		in        space.Configuration
		algorithm string
		depth     int
		ansatz    string
		optimizer string
		learnRate float64
	}{
		{
			name:      "vqe to qaoa",
			in:        space.Default(),
			algorithm: space.AlgorithmQAOA, depth: 3,
			ansatz: space.AnsatzEfficientSU2, optimizer: space.OptimizerLBFGS, learnRate: 0.1,
		},
		{
			name: "qaoa to vqe",
			in: func() space.Configuration {
				c := space.Default()
				c.Algorithm = space.AlgorithmQAOA
				c.AnsatzType = space.AnsatzEfficientSU2
				c.Optimizer = space.OptimizerLBFGS
				c.AnsatzDepth = 7
				return c
			}(),
			algorithm: space.AlgorithmVQE, depth: 2,
			ansatz: space.AnsatzHardwareEfficient, optimizer: space.OptimizerGradientDescent, learnRate: 0.005,
		},
		{
			name: "walk keeps depth",
			in: func() space.Configuration {
				c := space.Default()
				c.Algorithm = space.AlgorithmQuantumWalk
				c.AnsatzType = space.AnsatzHardwareEfficient
				c.Optimizer = space.OptimizerCOBYLA
				c.AnsatzDepth = 6
				return c
			}(),
			algorithm: space.AlgorithmVQE, depth: 6,
			ansatz: space.AnsatzMetatron, optimizer: space.OptimizerAdam, learnRate: 0.01,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AlternativeRegime(tt.in)
			assert.Equal(t, tt.algorithm, got.Algorithm)
			assert.Equal(t, tt.depth, got.AnsatzDepth)
			assert.Equal(t, tt.ansatz, got.AnsatzType)
			assert.Equal(t, tt.optimizer, got.Optimizer)
			assert.Equal(t, tt.learnRate, got.LearningRate)
		})
	}
}

func TestAlternativeRegimeFallsBackToDefault(t *testing.T) {
	c := space.Default()
	c.Algorithm = space.AlgorithmGrover
	c.MaxIterations = 0 // invalid and untouched by the switch
	got := AlternativeRegime(c)
	assert.True(t, got.Equal(space.Default()))
}

func TestDiagnosticsAndRestore(t *testing.T) {
	imp := NewImpulse(DefaultImpulseConfig())
	for i := 0; i < 12; i++ {
		imp.Update(withJ(0.1 * float64(i%3)))
	}
	d := imp.Diagnostics()
	assert.Equal(t, 12, d.StepsSinceImpulse)
	assert.Equal(t, 10, d.HistoryLength)
	assert.Len(t, d.JTHistory, 10)
	assert.InDelta(t, imp.Global().Current(), d.CurrentJT, 1e-12)

	restored := NewImpulse(DefaultImpulseConfig())
	require.NoError(t, restored.Restore(d))
	assert.Equal(t, d, restored.Diagnostics())

	assert.Error(t, restored.Restore(Diagnostics{StepsSinceImpulse: -1}))
}

func TestDiagnosticsEmpty(t *testing.T) {
	d := NewImpulse(DefaultImpulseConfig()).Diagnostics()
	assert.Equal(t, 0, d.HistoryLength)
	assert.NotNil(t, d.JTHistory)
	assert.False(t, math.IsNaN(d.CurrentJT))
}

func TestCloneIsIndependent(t *testing.T) {
	imp := NewImpulse(DefaultImpulseConfig())
	imp.Update(withJ(0.2))
	c := imp.Clone()
	c.Update(withJ(0.4))
	assert.Equal(t, 1, imp.StepsSinceImpulse())
	assert.Len(t, imp.Global().History(), 1)
	assert.Len(t, c.Global().History(), 2)
}
