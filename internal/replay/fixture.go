package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/filelock"
	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Seed            int64                   `json:"seed"`
	StartConfig     *space.Configuration    `json:"start_config,omitempty"`
	Settings        FixtureSettings         `json:"settings"`
	InitBenchmarks  performance.Benchmarks  `json:"init_benchmarks,omitempty"`
	Snapshots       []FixtureSnapshot       `json:"snapshots"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureSettings overrides calibrator defaults. Zero values keep the default.
type FixtureSettings struct {
	Gate           *gate.Criteria     `json:"gate,omitempty"`
	Impulse        *cri.ImpulseConfig `json:"impulse,omitempty"`
	NumNeighbors   int                `json:"num_neighbors,omitempty"`
	FieldDimension int                `json:"field_dimension,omitempty"`
}

// FixtureSnapshot is the benchmark set one step sees.
type FixtureSnapshot struct {
	StepID     string                 `json:"step_id"`
	Benchmarks performance.Benchmarks `json:"benchmarks"`
}

// FixtureExpectedResult captures the expected outcome per step.
type FixtureExpectedResult struct {
	StepID       string `json:"step_id"`
	Accepted     bool   `json:"accepted"`
	CRITriggered bool   `json:"cri_triggered"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.StartConfig != nil {
		if err := space.Validate(*f.StartConfig); err != nil {
			return nil, fmt.Errorf("fixture %s: start_config: %w", path, err)
		}
	}
	return &f, nil
}

// SaveFixture writes f as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := filelock.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// CalibratorConfig applies the fixture's seed and settings over base. The
// result is always enabled.
func (f *Fixture) CalibratorConfig(base calibrator.Config) calibrator.Config {
	cfg := base
	cfg.Enabled = true
	cfg.Seed = f.Seed
	s := f.Settings
	if s.Gate != nil {
		cfg.Gate = *s.Gate
	}
	if s.Impulse != nil {
		cfg.Impulse = *s.Impulse
	}
	if s.NumNeighbors > 0 {
		cfg.NumNeighbors = s.NumNeighbors
	}
	if s.FieldDimension > 0 {
		cfg.Field.Dimension = s.FieldDimension
	}
	return cfg
}

// #endregion fixture-loader
