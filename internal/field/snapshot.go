package field

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// Snapshot is the file form of a Field.
type Snapshot struct {
	Dimension       int         `json:"dimension"`
	FieldState      []float64   `json:"field_state"`
	Alpha           float64     `json:"alpha"`
	Gamma           float64     `json:"gamma"`
	BetaWeights     []float64   `json:"beta_weights"`
	SubmoduleStates [][]float64 `json:"submodule_states"`
}

// Snapshot copies the field into its file form.
func (f *Field) Snapshot() Snapshot {
	c := f.Clone()
	return Snapshot{
		Dimension:       c.Dimension,
		FieldState:      c.State,
		Alpha:           c.Alpha,
		Gamma:           c.Gamma,
		BetaWeights:     c.Beta,
		SubmoduleStates: c.Submodules,
	}
}

// FromSnapshot rebuilds a field, checking every vector against the dimension.
func FromSnapshot(s Snapshot) (*Field, error) {
	if len(s.FieldState) != s.Dimension {
		return nil, fmt.Errorf("field_state: %w", &DimensionMismatchError{Want: s.Dimension, Got: len(s.FieldState)})
	}
	if len(s.SubmoduleStates) != len(s.BetaWeights) {
		return nil, fmt.Errorf("field snapshot has %d submodules for %d beta weights", len(s.SubmoduleStates), len(s.BetaWeights))
	}
	f := &Field{
		Dimension: s.Dimension,
		Alpha:     s.Alpha,
		Gamma:     s.Gamma,
		Beta:      slices.Clone(s.BetaWeights),
		State:     slices.Clone(s.FieldState),
	}
	for i, sub := range s.SubmoduleStates {
		if len(sub) != s.Dimension {
			return nil, fmt.Errorf("submodule %d: %w", i, &DimensionMismatchError{Want: s.Dimension, Got: len(sub)})
		}
		f.Submodules = append(f.Submodules, slices.Clone(sub))
	}
	return f, nil
}

// MarshalJSON encodes the field through its snapshot.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Snapshot())
}

// UnmarshalJSON decodes and validates a snapshot into f.
func (f *Field) UnmarshalJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	g, err := FromSnapshot(s)
	if err != nil {
		return err
	}
	*f = *g
	return nil
}

// Save writes the field to path as indented JSON.
func (f *Field) Save(path string) error {
	data, err := json.MarshalIndent(f.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal field: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write field %s: %w", path, err)
	}
	return nil
}

// Load reads a field written by Save.
func Load(path string) (*Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field %s: %w", path, err)
	}
	var f Field
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode field %s: %w", path, err)
	}
	return &f, nil
}
