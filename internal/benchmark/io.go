package benchmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LashSesh/qso/internal/space"
)

// DefaultPattern matches record files in LoadDir.
const DefaultPattern = "*.json"

// maxConfigIDLength truncates generated ids.
const maxConfigIDLength = 64

// #region load

// LoadFile reads a single record or a batch of the form
// {"benchmarks": [...]}. A batch fails as a whole on its first bad entry.
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if batch, ok := m["benchmarks"]; ok {
		if _, single := m["system"]; !single {
			items, ok := batch.([]any)
			if !ok {
				return nil, &ValidationError{Problems: []string{"'benchmarks' must be an array"}}
			}
			out := make([]Record, 0, len(items))
			for i, item := range items {
				obj, ok := item.(map[string]any)
				if !ok {
					return nil, &ValidationError{Problems: []string{fmt.Sprintf("benchmarks[%d]: must be object", i)}}
				}
				rec, err := ValidateMap(obj)
				if err != nil {
					return nil, fmt.Errorf("benchmarks[%d]: %w", i, err)
				}
				out = append(out, rec)
			}
			return out, nil
		}
	}

	rec, err := ValidateMap(m)
	if err != nil {
		return nil, err
	}
	return []Record{rec}, nil
}

// Skipped names a file LoadDir could not use and why.
type Skipped struct {
	Path string
	Err  error
}

// LoadDir walks dir and loads every file whose base name matches pattern,
// in lexical order. Files that fail to decode or validate are skipped and
// reported; only I/O errors abort the load.
func LoadDir(dir, pattern string) ([]Record, []Skipped, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, nil, fmt.Errorf("load dir: %w", err)
	}

	var (
		records []Record
		skipped []Skipped
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		recs, err := LoadFile(path)
		if err != nil {
			var perr *fs.PathError
			if errors.As(err, &perr) {
				return err
			}
			skipped = append(skipped, Skipped{Path: path, Err: err})
			return nil
		}
		records = append(records, recs...)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load dir %s: %w", dir, err)
	}
	return records, skipped, nil
}

// #endregion load

// #region write

// Write validates rec and stores it under dir as
// <system>_<config_id>_<unix>.json. Missing timestamp and config_id are
// filled in. The directory is created when absent.
func Write(dir string, rec Record) (string, error) {
	now := time.Now().UTC()
	if rec.Timestamp == nil {
		rec.Timestamp = now.Format(time.RFC3339Nano)
	}
	if rec.ConfigID == "" {
		rec.ConfigID = ConfigIDFromMap(rec.Config)
	}
	if rec.RawResults == nil {
		rec.RawResults = map[string]any{}
	}
	if rec.Aux == nil {
		rec.Aux = map[string]any{}
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	base := fmt.Sprintf("%s_%s_%d", rec.System, rec.ConfigID, now.Unix())
	for n := 0; ; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

// #endregion write

// #region config-id

// ConfigID renders a short id such as vqe_metatron_d2_adam_lr1e2.
func ConfigID(c space.Configuration) string {
	return ConfigIDFromMap(map[string]any{
		"algorithm":     c.Algorithm,
		"ansatz_type":   c.AnsatzType,
		"ansatz_depth":  c.AnsatzDepth,
		"optimizer":     c.Optimizer,
		"learning_rate": c.LearningRate,
	})
}

// ConfigIDFromMap builds the id from whichever of algorithm, ansatz_type,
// ansatz_depth, optimizer, learning_rate and (for QAOA) depth are present.
func ConfigIDFromMap(c map[string]any) string {
	var parts []string
	if s, ok := c["algorithm"].(string); ok {
		parts = append(parts, strings.ToLower(s))
	}
	if s, ok := c["ansatz_type"].(string); ok {
		parts = append(parts, strings.ReplaceAll(strings.ToLower(s), "efficient", "eff"))
	}
	if v, ok := c["ansatz_depth"]; ok {
		if d, ok := toInt(v); ok {
			parts = append(parts, fmt.Sprintf("d%d", d))
		}
	}
	if s, ok := c["optimizer"].(string); ok {
		parts = append(parts, strings.ToLower(s))
	}
	if v, ok := c["learning_rate"]; ok {
		if lr, ok := toFloat(v); ok {
			parts = append(parts, "lr"+strings.ReplaceAll(fmt.Sprintf("%.0e", lr), "-0", ""))
		}
	}
	if c["algorithm"] == space.AlgorithmQAOA {
		if v, ok := c["depth"]; ok {
			if p, ok := toInt(v); ok {
				parts = append(parts, fmt.Sprintf("p%d", p))
			}
		}
	}

	id := strings.Join(parts, "_")
	if len(id) > maxConfigIDLength {
		id = id[:maxConfigIDLength]
	}
	if id == "" {
		id = "config_unnamed"
	}
	return id
}

// #endregion config-id
