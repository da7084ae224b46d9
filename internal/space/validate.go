package space

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// #region errors

// InvalidConfigurationError lists every rule a configuration violates.
type InvalidConfigurationError struct {
	Problems []string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

// #endregion errors

// #region validate

var extensionKey = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// IsValid reports whether every field of c lies inside its allowed set or bound.
func IsValid(c Configuration) bool {
	return len(problems(c)) == 0
}

// Validate returns an *InvalidConfigurationError naming each violated rule,
// or nil when c is valid.
func Validate(c Configuration) error {
	if p := problems(c); len(p) > 0 {
		return &InvalidConfigurationError{Problems: p}
	}
	return nil
}

func problems(c Configuration) []string {
	var out []string
	if !slices.Contains(Algorithms, c.Algorithm) {
		out = append(out, fmt.Sprintf("algorithm %q not in %v", c.Algorithm, Algorithms))
	}
	if !slices.Contains(AnsatzTypes, c.AnsatzType) {
		out = append(out, fmt.Sprintf("ansatz_type %q not in %v", c.AnsatzType, AnsatzTypes))
	}
	if !slices.Contains(Optimizers, c.Optimizer) {
		out = append(out, fmt.Sprintf("optimizer %q not in %v", c.Optimizer, Optimizers))
	}
	if c.AnsatzDepth < MinDepth || c.AnsatzDepth > MaxDepth {
		out = append(out, fmt.Sprintf("ansatz_depth %d outside [%d, %d]", c.AnsatzDepth, MinDepth, MaxDepth))
	}
	if math.IsNaN(c.LearningRate) || c.LearningRate <= 0 || c.LearningRate > MaxLearningRate {
		out = append(out, fmt.Sprintf("learning_rate %g outside (0, %g]", c.LearningRate, MaxLearningRate))
	}
	if c.MaxIterations < MinIterations {
		out = append(out, fmt.Sprintf("max_iterations %d must be >= %d", c.MaxIterations, MinIterations))
	}
	if c.NumRandomStarts < MinStarts || c.NumRandomStarts > MaxStarts {
		out = append(out, fmt.Sprintf("num_random_starts %d outside [%d, %d]", c.NumRandomStarts, MinStarts, MaxStarts))
	}
	if c.DephasingRate != nil {
		if d := *c.DephasingRate; math.IsNaN(d) || d < 0 || d > 1 {
			out = append(out, fmt.Sprintf("dephasing_rate %g outside [0, 1]", d))
		}
	}
	if c.ShotCount != nil && *c.ShotCount < 1 {
		out = append(out, fmt.Sprintf("shot_count %d must be >= 1", *c.ShotCount))
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !extensionKey.MatchString(k) {
			out = append(out, fmt.Sprintf("params key %q is not a lower_snake_case identifier", k))
		}
		if v := c.Params[k]; math.IsNaN(v) || math.IsInf(v, 0) {
			out = append(out, fmt.Sprintf("params[%s] is not finite", k))
		}
	}
	return out
}

// #endregion validate
