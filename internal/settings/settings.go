// Package settings loads the calibration shell's configuration: stock
// defaults, overlaid by an optional YAML file, overlaid by SCS_* environment
// variables.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/eval"
	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/search"
)

// #region types

// Settings is the full shell configuration.
type Settings struct {
	Enabled      bool   `yaml:"enabled"`
	BenchmarkDir string `yaml:"benchmark_dir"`
	RecordDir    string `yaml:"record_dir"`
	StateFile    string `yaml:"state_file"`
	HistoryFile  string `yaml:"history_file"`
	Ledger       string `yaml:"ledger"`
	Seed         int64  `yaml:"seed"`
	NumNeighbors int    `yaml:"num_neighbors"`

	Log    Log    `yaml:"log"`
	Tuner  Tuner  `yaml:"tuner"`
	Server Server `yaml:"server"`
	Watch  Watch  `yaml:"watch"`

	Field      field.Config        `yaml:"field"`
	Gate       gate.Criteria       `yaml:"gate"`
	Impulse    cri.ImpulseConfig   `yaml:"impulse"`
	Heuristics search.Heuristics   `yaml:"heuristics"`
	Weights    performance.Weights `yaml:"weights"`
	Eval       eval.Config         `yaml:"eval"`
}

// Log selects the zap configuration.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Tuner holds the stopping rules of a multi-step tuning run.
type Tuner struct {
	MinQuality    float64 `yaml:"min_quality"`
	PlateauWindow int     `yaml:"plateau_window"`
	PlateauRange  float64 `yaml:"plateau_range"`
}

// Server holds the listen addresses of serve.
type Server struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// Watch holds the benchmark watcher's settings.
type Watch struct {
	Debounce time.Duration `yaml:"debounce"`
}

// #endregion types

// #region defaults

// Default returns the stock settings.
func Default() Settings {
	cal := calibrator.DefaultConfig()
	return Settings{
		Enabled:      cal.Enabled,
		BenchmarkDir: cal.BenchmarkDir,
		RecordDir:    "benchmarks",
		StateFile:    cal.StateFile,
		HistoryFile:  cal.HistoryFile,
		NumNeighbors: cal.NumNeighbors,
		Log:          Log{Level: "info", Format: "console"},
		Tuner:        Tuner{MinQuality: 0.9, PlateauWindow: 5, PlateauRange: 0.01},
		Server:       Server{GRPCAddr: "127.0.0.1:7443", HTTPAddr: "127.0.0.1:7080"},
		Watch:        Watch{Debounce: 500 * time.Millisecond},
		Field:        cal.Field,
		Gate:         cal.Gate,
		Impulse:      cal.Impulse,
		Heuristics:   cal.Heuristics,
		Weights:      cal.Weights,
		Eval:         cal.Eval,
	}
}

// #endregion defaults

// #region load

// Load builds settings from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, then validates them.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if err := s.MergeFile(path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MergeFile overlays the YAML file at path. Keys the file omits keep their
// current value; unknown keys are an error.
func (s *Settings) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := s.Merge(data); err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}
	return nil
}

// Merge overlays YAML data.
func (s *Settings) Merge(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Environment variables read by ApplyEnv.
const (
	EnvEnabled      = "SCS_ENABLED"
	EnvBenchmarkDir = "SCS_BENCHMARK_DIR"
	EnvRecordDir    = "SCS_RECORD_DIR"
	EnvStateFile    = "SCS_STATE_FILE"
	EnvHistoryFile  = "SCS_HISTORY_FILE"
	EnvLedger       = "SCS_LEDGER"
	EnvSeed         = "SCS_SEED"
	EnvLogLevel     = "SCS_LOG_LEVEL"
	EnvLogFormat    = "SCS_LOG_FORMAT"
)

// ApplyEnv overlays the SCS_* variables found by lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvBenchmarkDir, &s.BenchmarkDir},
		{EnvRecordDir, &s.RecordDir},
		{EnvStateFile, &s.StateFile},
		{EnvHistoryFile, &s.HistoryFile},
		{EnvLedger, &s.Ledger},
		{EnvLogLevel, &s.Log.Level},
		{EnvLogFormat, &s.Log.Format},
	}
	for _, e := range strs {
		if v, ok := lookup(e.key); ok {
			*e.dst = v
		}
	}
	if v, ok := lookup(EnvEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvEnabled, v, err)
		}
		s.Enabled = b
	}
	if v, ok := lookup(EnvSeed); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvSeed, v, err)
		}
		s.Seed = n
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// #endregion load

// #region convert

// ToCalibrator converts to the calibrator's configuration.
func (s Settings) ToCalibrator() calibrator.Config {
	return calibrator.Config{
		Enabled:      s.Enabled,
		BenchmarkDir: s.BenchmarkDir,
		StateFile:    s.StateFile,
		HistoryFile:  s.HistoryFile,
		NumNeighbors: s.NumNeighbors,
		Seed:         s.Seed,
		Field:        s.Field,
		Gate:         s.Gate,
		Impulse:      s.Impulse,
		Heuristics:   s.Heuristics,
		Weights:      s.Weights,
		Eval:         s.Eval,
	}
}

// Calibrator builds a calibrator wired to these settings' capability,
// benchmark source and logger. opts are applied last.
func (s Settings) Calibrator(logger *zap.Logger, opts ...calibrator.Option) *calibrator.Calibrator {
	base := []calibrator.Option{
		calibrator.WithCapability(s.Capability()),
		calibrator.WithSource(s.Source(logger)),
	}
	if logger != nil {
		base = append(base, calibrator.WithLogger(logger))
	}
	return calibrator.New(s.ToCalibrator(), append(base, opts...)...)
}

// Capability reports availability from the enabled flag.
func (s Settings) Capability() calibrator.Capability {
	return calibrator.StaticCapability(s.Enabled)
}

// Source returns the family baselines in BenchmarkDir followed by the
// records ingested into RecordDir, which win per system. An empty RecordDir
// reads baselines only.
func (s Settings) Source(logger *zap.Logger) calibrator.BenchmarkSource {
	family := benchmark.FamilyDirSource{Dir: s.BenchmarkDir}
	if s.RecordDir == "" {
		return family
	}
	return benchmark.MergedSource{family, benchmark.RecordDirSource{Dir: s.RecordDir, Logger: logger}}
}

// #endregion convert
