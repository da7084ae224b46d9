package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/LashSesh/qso/internal/performance"
)

// #region family-dir

// FamilyFile pairs a benchmark family with its baseline file name.
type FamilyFile struct {
	Family string
	File   string
}

// FamilyFiles lists the baseline files FamilyDirSource reads.
var FamilyFiles = []FamilyFile{
	{performance.FamilyVQE, "vqe_baseline.json"},
	{performance.FamilyQAOA, "qaoa_baseline.json"},
	{performance.FamilyQuantumWalk, "quantum_walk_baseline.json"},
	{performance.FamilyAdvanced, "advanced_algorithms_baseline.json"},
	{performance.FamilyVQC, "vqc_baseline.json"},
	{performance.FamilyCrossSystem, "cross_system_baseline.json"},
	{performance.FamilyIntegration, "integration_baseline.json"},
}

// FamilyDirSource reads one baseline file per family from Dir. Missing
// files (and a missing Dir) are skipped; malformed JSON is an error.
type FamilyDirSource struct {
	Dir string
}

// Load implements the calibrator's benchmark source.
func (s FamilyDirSource) Load(ctx context.Context) (performance.Benchmarks, error) {
	out := performance.Benchmarks{}
	for _, ff := range FamilyFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.Dir, ff.File)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m, err := decodePayload(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[ff.Family] = m
	}
	return out, nil
}

// decodePayload decodes a family file with plain float64 numbers, the shape
// the performance extractors expect.
func decodePayload(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode benchmark json: %w", err)
	}
	if m == nil {
		return nil, &ValidationError{Problems: []string{"payload must be a JSON object"}}
	}
	return m, nil
}

// #endregion family-dir

// #region record-dir

// RecordDirSource loads schema records from Dir and feeds the latest record
// per system to the calibrator.
type RecordDirSource struct {
	Dir     string
	Pattern string
	Logger  *zap.Logger
}

// Load implements the calibrator's benchmark source.
func (s RecordDirSource) Load(ctx context.Context) (performance.Benchmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.Dir); errors.Is(err, fs.ErrNotExist) {
		return performance.Benchmarks{}, nil
	}
	records, skipped, err := LoadDir(s.Dir, s.Pattern)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		for _, sk := range skipped {
			s.Logger.Warn("skipping benchmark file", zap.String("path", sk.Path), zap.Error(sk.Err))
		}
	}
	return GroupBySystem(records), nil
}

// #endregion record-dir

// #region merged

// Loader is anything that yields a benchmark snapshot.
type Loader interface {
	Load(ctx context.Context) (performance.Benchmarks, error)
}

// MergedSource loads every source in order; a later source's family
// replaces an earlier one's. The first error aborts the load.
type MergedSource []Loader

// Load implements the calibrator's benchmark source.
func (m MergedSource) Load(ctx context.Context) (performance.Benchmarks, error) {
	out := performance.Benchmarks{}
	for _, src := range m {
		b, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, b)
	}
	return out, nil
}

// #endregion merged

// #region in-memory

// StaticSource always serves the same snapshot.
type StaticSource struct {
	Benchmarks performance.Benchmarks
}

// Load returns a shallow copy of the snapshot.
func (s StaticSource) Load(ctx context.Context) (performance.Benchmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cloneBenchmarks(s.Benchmarks), nil
}

// SequenceSource serves snapshots in order, one per Load. After the last
// snapshot it keeps serving the last one; with none it serves an empty set.
type SequenceSource struct {
	mu        sync.Mutex
	snapshots []performance.Benchmarks
	next      int
}

// NewSequenceSource returns a source over snapshots.
func NewSequenceSource(snapshots ...performance.Benchmarks) *SequenceSource {
	return &SequenceSource{snapshots: snapshots}
}

// Load returns the next snapshot.
func (s *SequenceSource) Load(ctx context.Context) (performance.Benchmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return performance.Benchmarks{}, nil
	}
	i := min(s.next, len(s.snapshots)-1)
	s.next++
	return cloneBenchmarks(s.snapshots[i]), nil
}

// Served counts Load calls so far.
func (s *SequenceSource) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func cloneBenchmarks(b performance.Benchmarks) performance.Benchmarks {
	out := make(performance.Benchmarks, len(b))
	for k, v := range b {
		out[k] = maps.Clone(v)
	}
	return out
}

// #endregion in-memory
