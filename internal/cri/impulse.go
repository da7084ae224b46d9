package cri

import (
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// diagnosticsTail caps j_t_history in Diagnostics.
const diagnosticsTail = 10

// #region config

// ImpulseConfig controls when a regime switch fires.
type ImpulseConfig struct {
	MinSteps             int     `yaml:"min_steps" json:"min_steps"`
	StagnationThreshold  float64 `yaml:"stagnation_threshold" json:"stagnation_threshold"`
	DegradationThreshold float64 `yaml:"degradation_threshold" json:"degradation_threshold"`
	MinFieldResonance    float64 `yaml:"min_field_resonance" json:"min_field_resonance"`
	Window               int     `yaml:"window" json:"window"`
}

// DefaultImpulseConfig returns the stock trigger settings.
func DefaultImpulseConfig() ImpulseConfig {
	return ImpulseConfig{
		MinSteps:             10,
		StagnationThreshold:  0.01,
		DegradationThreshold: 0.05,
		MinFieldResonance:    0.3,
		Window:               DefaultWindow,
	}
}

// #endregion config

// #region impulse

// Impulse decides on and performs regime switches.
type Impulse struct {
	config ImpulseConfig
	global *GlobalState
	since  int
}

// NewImpulse creates an impulse with an empty J history.
func NewImpulse(config ImpulseConfig) *Impulse {
	return &Impulse{config: config, global: NewGlobalState(config.Window)}
}

// Config returns the trigger settings.
func (i *Impulse) Config() ImpulseConfig {
	return i.config
}

// Global exposes the J(t) tracker.
func (i *Impulse) Global() *GlobalState {
	return i.global
}

// StepsSinceImpulse counts updates since the last switch.
func (i *Impulse) StepsSinceImpulse() int {
	return i.since
}

// Update records one step's performance and returns J.
func (i *Impulse) Update(t performance.Triplet) float64 {
	i.since++
	return i.global.Update(t)
}

// ShouldTrigger reports whether enough steps have passed, J(t) is stuck, and
// the field carries enough energy (its L2 norm) to justify a jump.
func (i *Impulse) ShouldTrigger(fieldNorm float64) bool {
	if i.since < i.config.MinSteps {
		return false
	}
	stuck := i.global.IsStagnating(i.config.StagnationThreshold) ||
		i.global.IsDegrading(i.config.DegradationThreshold)
	if !stuck {
		return false
	}
	return fieldNorm >= i.config.MinFieldResonance
}

// Apply resets the step counter and maps c into an alternative regime.
func (i *Impulse) Apply(c space.Configuration) space.Configuration {
	i.since = 0
	return AlternativeRegime(c)
}

// Clone returns an independent copy.
func (i *Impulse) Clone() *Impulse {
	return &Impulse{config: i.config, global: i.global.clone(), since: i.since}
}

// #endregion impulse

// #region regime

var ansatzRotation = map[string]string{
	space.AnsatzMetatron:          space.AnsatzEfficientSU2,
	space.AnsatzEfficientSU2:      space.AnsatzHardwareEfficient,
	space.AnsatzHardwareEfficient: space.AnsatzMetatron,
}

var optimizerRotation = map[string]string{
	space.OptimizerAdam:            space.OptimizerLBFGS,
	space.OptimizerLBFGS:           space.OptimizerGradientDescent,
	space.OptimizerGradientDescent: space.OptimizerAdam,
	space.OptimizerCOBYLA:          space.OptimizerAdam,
}

// AlternativeRegime swaps the algorithm family and rotates ansatz and
// optimizer through fixed tables. The result falls back to space.Default
// when invalid.
func AlternativeRegime(c space.Configuration) space.Configuration {
	n := c.Clone()
	switch c.Algorithm {
	case space.AlgorithmVQE:
		n.Algorithm = space.AlgorithmQAOA
		n.AnsatzDepth = 3
	case space.AlgorithmQAOA:
		n.Algorithm = space.AlgorithmVQE
		n.AnsatzDepth = 2
	default:
		n.Algorithm = space.AlgorithmVQE
	}

	n.AnsatzType = lookup(ansatzRotation, c.AnsatzType, space.AnsatzMetatron)
	n.Optimizer = lookup(optimizerRotation, c.Optimizer, space.OptimizerAdam)

	switch n.Optimizer {
	case space.OptimizerAdam:
		n.LearningRate = 0.01
	case space.OptimizerLBFGS:
		n.LearningRate = 0.1
	default:
		n.LearningRate = 0.005
	}

	if !space.IsValid(n) {
		return space.Default()
	}
	return n
}

func lookup(table map[string]string, key, fallback string) string {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

// #endregion regime
