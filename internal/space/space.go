package space

import (
	"math"
	"math/rand"
)

// #region space

// Space tracks the current configuration and samples its neighborhood.
// It is not safe for concurrent use.
type Space struct {
	rng     *rand.Rand
	current *Configuration
	history []Configuration
}

// New creates a Space drawing neighbors from rng. A nil rng is seeded with 0.
func New(rng *rand.Rand) *Space {
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	return &Space{rng: rng}
}

// SetCurrent records c as the current configuration after validating it.
func (s *Space) SetCurrent(c Configuration) error {
	if err := Validate(c); err != nil {
		return err
	}
	cc := c.Clone()
	s.current = &cc
	s.history = append(s.history, cc)
	return nil
}

// Current returns the current configuration, if one was set.
func (s *Space) Current() (Configuration, bool) {
	if s.current == nil {
		return Configuration{}, false
	}
	return s.current.Clone(), true
}

// History returns every configuration passed to SetCurrent, oldest first.
func (s *Space) History() []Configuration {
	out := make([]Configuration, len(s.history))
	for i, c := range s.history {
		out[i] = c.Clone()
	}
	return out
}

// Clone returns a copy sharing the random source. Neighbor draws on either
// copy advance the same sequence.
func (s *Space) Clone() *Space {
	out := &Space{rng: s.rng, history: s.History()}
	if s.current != nil {
		c := s.current.Clone()
		out.current = &c
	}
	return out
}

// WithRand returns a copy that draws neighbors from rng.
func (s *Space) WithRand(rng *rand.Rand) *Space {
	out := s.Clone()
	out.rng = rng
	return out
}

// #endregion space

// #region neighbors

// mutable lists the fields a single neighbor draw may perturb.
var mutable = []string{
	"ansatz_depth", "learning_rate", "max_iterations",
	"num_random_starts", "optimizer", "ansatz_type",
}

var iterationSteps = []int{-20, -10, 0, 10, 20}

// GenerateNeighbors draws k neighbors of c, each differing in at most one
// field. Draws that fail validation are dropped, so fewer than k may return.
func (s *Space) GenerateNeighbors(c Configuration, k int) []Configuration {
	out := make([]Configuration, 0, max(k, 0))
	for range k {
		n := c.Clone()
		switch mutable[s.rng.Intn(len(mutable))] {
		case "ansatz_depth":
			n.AnsatzDepth = clampInt(c.AnsatzDepth+s.rng.Intn(3)-1, 1, 10)
		case "learning_rate":
			factor := 0.8 + 0.4*s.rng.Float64()
			n.LearningRate = clampFloat(c.LearningRate*factor, 0.001, 0.1)
		case "max_iterations":
			n.MaxIterations = clampInt(c.MaxIterations+iterationSteps[s.rng.Intn(len(iterationSteps))], 10, 500)
		case "num_random_starts":
			n.NumRandomStarts = clampInt(c.NumRandomStarts+s.rng.Intn(3)-1, 1, 5)
		case "optimizer":
			n.Optimizer = Optimizers[s.rng.Intn(len(Optimizers))]
		case "ansatz_type":
			n.AnsatzType = AnsatzTypes[s.rng.Intn(len(AnsatzTypes))]
		}
		if IsValid(n) {
			out = append(out, n)
		}
	}
	return out
}

// #endregion neighbors

// #region distance

// Distance is a diagnostic metric: one unit per differing discrete field plus
// normalized absolute differences of the numeric fields.
func Distance(a, b Configuration) float64 {
	var d float64
	if a.Algorithm != b.Algorithm {
		d++
	}
	if a.AnsatzType != b.AnsatzType {
		d++
	}
	if a.Optimizer != b.Optimizer {
		d++
	}
	d += math.Abs(float64(a.AnsatzDepth-b.AnsatzDepth)) / 10
	d += math.Abs(a.LearningRate-b.LearningRate) / 0.1
	d += math.Abs(float64(a.MaxIterations-b.MaxIterations)) / 100
	d += math.Abs(float64(a.NumRandomStarts-b.NumRandomStarts)) / 5
	return d
}

// #endregion distance

// #region helpers

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// #endregion helpers
