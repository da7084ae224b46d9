package cri

import (
	"slices"

	"github.com/montanaflynn/stats"

	"github.com/LashSesh/qso/internal/performance"
)

// DefaultWindow is the number of J(t) values in one comparison window.
const DefaultWindow = 5

// GlobalState tracks the functional J(t) = psi*rho*omega over at most two
// windows.
type GlobalState struct {
	Window  int
	history []float64
}

// NewGlobalState returns an empty tracker. A non-positive window means
// DefaultWindow.
func NewGlobalState(window int) *GlobalState {
	if window <= 0 {
		window = DefaultWindow
	}
	return &GlobalState{Window: window}
}

// Update appends J for t and returns it.
func (g *GlobalState) Update(t performance.Triplet) float64 {
	j := t.J()
	g.history = append(g.history, j)
	if limit := 2 * g.Window; len(g.history) > limit {
		g.history = slices.Clone(g.history[len(g.history)-limit:])
	}
	return j
}

// Current returns the latest J, or 0 before any update.
func (g *GlobalState) Current() float64 {
	if len(g.history) == 0 {
		return 0
	}
	return g.history[len(g.history)-1]
}

// History returns a copy of the retained J values, oldest first.
func (g *GlobalState) History() []float64 {
	return slices.Clone(g.history)
}

// IsStagnating is true when the last window barely varies and is not
// improving on the window before it (when one exists).
func (g *GlobalState) IsStagnating(threshold float64) bool {
	if len(g.history) < g.Window {
		return false
	}
	recent := g.recent()
	if v, _ := stats.PopulationVariance(recent); v > threshold {
		return false
	}
	if len(g.history) >= 2*g.Window {
		rm, _ := stats.Mean(recent)
		om, _ := stats.Mean(g.older())
		if rm > om+threshold {
			return false
		}
	}
	return true
}

// IsDegrading is true when the last window's mean sits more than threshold
// below the previous window's.
func (g *GlobalState) IsDegrading(threshold float64) bool {
	if len(g.history) < 2*g.Window {
		return false
	}
	rm, _ := stats.Mean(g.recent())
	om, _ := stats.Mean(g.older())
	return rm < om-threshold
}

func (g *GlobalState) recent() []float64 {
	return g.history[len(g.history)-g.Window:]
}

func (g *GlobalState) older() []float64 {
	n := len(g.history)
	return g.history[n-2*g.Window : n-g.Window]
}

func (g *GlobalState) clone() *GlobalState {
	return &GlobalState{Window: g.Window, history: slices.Clone(g.history)}
}
