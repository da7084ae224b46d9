package space

import (
	"maps"
	"strings"
)

// #region enums

// Algorithm families the shell knows how to calibrate.
const (
	AlgorithmVQE         = "VQE"
	AlgorithmQAOA        = "QAOA"
	AlgorithmQuantumWalk = "QuantumWalk"
	AlgorithmGrover      = "Grover"
	AlgorithmBoson       = "Boson"
	AlgorithmVQC         = "VQC"
	AlgorithmIntegration = "Integration"
)

// Ansatz types.
const (
	AnsatzHardwareEfficient = "HardwareEfficient"
	AnsatzEfficientSU2      = "EfficientSU2"
	AnsatzMetatron          = "Metatron"
)

// Optimizers.
const (
	OptimizerAdam            = "Adam"
	OptimizerLBFGS           = "LBFGS"
	OptimizerGradientDescent = "GradientDescent"
	OptimizerCOBYLA          = "COBYLA"
)

// Algorithms lists the valid algorithm families in canonical order.
var Algorithms = []string{
	AlgorithmVQE, AlgorithmQAOA, AlgorithmQuantumWalk, AlgorithmGrover,
	AlgorithmBoson, AlgorithmVQC, AlgorithmIntegration,
}

// AnsatzTypes lists the valid ansatz types in canonical order.
var AnsatzTypes = []string{AnsatzHardwareEfficient, AnsatzEfficientSU2, AnsatzMetatron}

// Optimizers lists the valid optimizers in canonical order.
var Optimizers = []string{OptimizerAdam, OptimizerLBFGS, OptimizerGradientDescent, OptimizerCOBYLA}

// #endregion enums

// #region bounds

// Bounds on the numeric fields of a Configuration.
const (
	MinDepth        = 1
	MaxDepth        = 10
	MaxLearningRate = 1.0
	MinIterations   = 1
	MinStarts       = 1
	MaxStarts       = 10
)

// #endregion bounds

// #region configuration

// Configuration is one point in the calibration space. Treat it as a value:
// accepted configurations are replaced, never edited in place.
type Configuration struct {
	Algorithm       string     `json:"algorithm"`
	AnsatzType      string     `json:"ansatz_type"`
	AnsatzDepth     int        `json:"ansatz_depth"`
	Optimizer       string     `json:"optimizer"`
	LearningRate    float64    `json:"learning_rate"`
	MaxIterations   int        `json:"max_iterations"`
	NumRandomStarts int        `json:"num_random_starts"`
	DephasingRate   *float64   `json:"dephasing_rate"`
	ShotCount       *int       `json:"shot_count"`
	Params          Extensions `json:"params"`
	Name            string     `json:"name,omitempty"`
	Timestamp       string     `json:"timestamp,omitempty"`
}

// Default returns the baseline configuration used when no seed is given.
func Default() Configuration {
	return Configuration{
		Algorithm:       AlgorithmVQE,
		AnsatzType:      AnsatzMetatron,
		AnsatzDepth:     2,
		Optimizer:       OptimizerAdam,
		LearningRate:    0.01,
		MaxIterations:   100,
		NumRandomStarts: 1,
		Params:          Extensions{},
		Name:            "default",
	}
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	out := c
	if c.DephasingRate != nil {
		v := *c.DephasingRate
		out.DephasingRate = &v
	}
	if c.ShotCount != nil {
		v := *c.ShotCount
		out.ShotCount = &v
	}
	out.Params = maps.Clone(c.Params)
	if out.Params == nil {
		out.Params = Extensions{}
	}
	return out
}

// Equal reports whether two configurations describe the same point.
// Metadata (name, timestamp) is ignored.
func (c Configuration) Equal(o Configuration) bool {
	if c.Algorithm != o.Algorithm || c.AnsatzType != o.AnsatzType ||
		c.AnsatzDepth != o.AnsatzDepth || c.Optimizer != o.Optimizer ||
		c.LearningRate != o.LearningRate || c.MaxIterations != o.MaxIterations ||
		c.NumRandomStarts != o.NumRandomStarts {
		return false
	}
	if !equalPtr(c.DephasingRate, o.DephasingRate) || !equalPtr(c.ShotCount, o.ShotCount) {
		return false
	}
	if len(c.Params) != len(o.Params) {
		return false
	}
	return maps.Equal(c.Params, o.Params)
}

// String renders a compact summary for logs.
func (c Configuration) String() string {
	var b strings.Builder
	b.WriteString(c.Algorithm)
	b.WriteString("/")
	b.WriteString(c.AnsatzType)
	b.WriteString("/")
	b.WriteString(c.Optimizer)
	return b.String()
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// #endregion configuration

// #region extensions

// Extensions carries algorithm-specific scalar parameters. Keys are
// lower_snake_case identifiers and values must be finite.
type Extensions map[string]float64

// #endregion extensions
