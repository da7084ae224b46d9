package calibrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/filelock"
	"github.com/LashSesh/qso/internal/space"
)

// #region state

// SaveState writes the current configuration, triplet, field and impulse
// diagnostics to path under an exclusive lock.
func (c *Calibrator) SaveState(path string) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	fieldJSON, err := json.Marshal(c.field)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	cur, perf, diag := c.current.Clone(), c.perf, c.impulse.Diagnostics()
	data, err := json.MarshalIndent(stateFile{
		StepCount:          c.steps,
		CurrentConfig:      &cur,
		CurrentPerformance: &perf,
		Field:              fieldJSON,
		CRIDiagnostics:     &diag,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := filelock.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState restores a state written by SaveState. The file is fully
// decoded and checked before anything is replaced; on error the calibrator
// is unchanged. History is not part of the state file; see LoadHistory.
func (c *Calibrator) LoadState(path string) error {
	data, err := filelock.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("load state: decode %s: %w", path, err)
	}
	if sf.CurrentConfig == nil || sf.CurrentPerformance == nil {
		return fmt.Errorf("load state: %s: missing current_config or current_performance", path)
	}
	if sf.StepCount < 0 {
		return fmt.Errorf("load state: %s: negative step_count %d", path, sf.StepCount)
	}
	cur := sf.CurrentConfig.Clone()
	if cur.Params == nil {
		cur.Params = space.Extensions{}
	}
	if err := space.Validate(cur); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := sf.CurrentPerformance.Validate(); err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	var f *field.Field
	if len(sf.Field) > 0 && string(sf.Field) != "null" {
		f = new(field.Field)
		if err := json.Unmarshal(sf.Field, f); err != nil {
			return fmt.Errorf("load state: field: %w", err)
		}
		if f.Dimension != c.cfg.Field.Dimension {
			return fmt.Errorf("load state: %w", &field.DimensionMismatchError{Want: c.cfg.Field.Dimension, Got: f.Dimension})
		}
	}

	if f == nil {
		f = field.New(c.cfg.Field)
	}
	imp := cri.NewImpulse(c.cfg.Impulse)
	if sf.CRIDiagnostics != nil {
		if err := imp.Restore(*sf.CRIDiagnostics); err != nil {
			return fmt.Errorf("load state: %w", err)
		}
	}

	history := c.history
	c.reset()
	if err := c.space.SetCurrent(cur); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	c.field, c.impulse = f, imp
	c.current = cur
	c.perf = *sf.CurrentPerformance
	c.steps = sf.StepCount
	c.history = history
	c.initialized = true
	return nil
}

// #endregion state

// #region history

// SaveHistory writes every recorded step to path under an exclusive lock.
func (c *Calibrator) SaveHistory(path string) error {
	h := c.history
	if h == nil {
		h = []HistoryEntry{}
	}
	data, err := json.MarshalIndent(historyFile{History: h}, "", "  ")
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := filelock.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// LoadHistory replaces the in-memory history with the entries in path.
func (c *Calibrator) LoadHistory(path string) error {
	h, err := ReadHistory(path)
	if err != nil {
		return err
	}
	c.history = h
	return nil
}

// ReadHistory decodes a history file without touching a calibrator.
func ReadHistory(path string) ([]HistoryEntry, error) {
	data, err := filelock.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	var hf historyFile
	if err := json.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("load history: decode %s: %w", path, err)
	}
	for i, e := range hf.History {
		if e.Step <= 0 {
			return nil, fmt.Errorf("load history: entry %d: %w", i, errBadStep)
		}
	}
	return hf.History, nil
}

var errBadStep = errors.New("step must be positive")

// #endregion history
