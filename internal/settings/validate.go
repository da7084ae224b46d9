package settings

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ValidationError lists every invalid setting.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid settings: " + strings.Join(e.Problems, "; ")
}

var logFormats = []string{"", "console", "json"}

// Validate collects every problem rather than stopping at the first.
func (s Settings) Validate() error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }

	if s.BenchmarkDir == "" {
		add("benchmark_dir must be set")
	}
	if s.StateFile == "" {
		add("state_file must be set")
	}
	if s.HistoryFile == "" {
		add("history_file must be set")
	}
	if s.NumNeighbors < 1 {
		add("num_neighbors must be >= 1, got %d", s.NumNeighbors)
	}

	if _, err := zapcore.ParseLevel(s.Log.Level); err != nil {
		add("log.level %q is not a zap level", s.Log.Level)
	}
	if !slices.Contains(logFormats, s.Log.Format) {
		add("log.format %q must be console or json", s.Log.Format)
	}

	if f := s.Field; f.Dimension < 1 {
		add("field.dimension must be >= 1, got %d", f.Dimension)
	}
	if a := s.Field.Alpha; !(a > 0 && a < 1) {
		add("field.alpha must be in (0, 1), got %g", a)
	}
	if s.Field.Gamma <= 0 {
		add("field.gamma must be positive, got %g", s.Field.Gamma)
	}
	for i, b := range s.Field.Beta {
		if b < 0 || math.IsNaN(b) {
			add("field.beta[%d] must be non-negative, got %g", i, b)
		}
	}

	if s.Gate.StabilityTolerance < 0 {
		add("gate.stability_tolerance must be non-negative, got %g", s.Gate.StabilityTolerance)
	}
	if e := s.Gate.MinEfficiency; e < 0 || e > 1 {
		add("gate.min_efficiency must be in [0, 1], got %g", e)
	}
	if r := s.Gate.MinFieldResonance; r < -1 || r > 1 {
		add("gate.min_field_resonance must be in [-1, 1], got %g", r)
	}

	if s.Impulse.MinSteps < 1 {
		add("impulse.min_steps must be >= 1, got %d", s.Impulse.MinSteps)
	}
	if s.Impulse.StagnationThreshold < 0 || s.Impulse.DegradationThreshold < 0 {
		add("impulse thresholds must be non-negative")
	}
	if s.Impulse.Window < 0 {
		add("impulse.window must be non-negative, got %d", s.Impulse.Window)
	}

	for family, w := range s.Weights {
		if w < 0 || math.IsNaN(w) {
			add("weights[%s] must be non-negative, got %g", family, w)
		}
	}

	if q := s.Tuner.MinQuality; !(q > 0 && q <= 1) {
		add("tuner.min_quality must be in (0, 1], got %g", q)
	}
	if s.Tuner.PlateauWindow < 2 {
		add("tuner.plateau_window must be >= 2, got %d", s.Tuner.PlateauWindow)
	}
	if s.Watch.Debounce <= 0 {
		add("watch.debounce must be positive, got %s", s.Watch.Debounce)
	}

	if len(p) > 0 {
		slices.Sort(p)
		return &ValidationError{Problems: p}
	}
	return nil
}
