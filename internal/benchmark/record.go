package benchmark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// #region types

// Metrics is the performance triplet a benchmark run reports.
type Metrics struct {
	Psi   float64 `json:"psi" validate:"gte=0,lte=1"`
	Rho   float64 `json:"rho" validate:"gte=0,lte=1"`
	Omega float64 `json:"omega" validate:"gte=0,lte=1"`
}

// Record is one benchmark run in the shared record schema.
type Record struct {
	System     string         `json:"system" validate:"required"`
	ConfigID   string         `json:"config_id" validate:"required"`
	Timestamp  any            `json:"timestamp"`
	Config     map[string]any `json:"config" validate:"required"`
	Metrics    Metrics        `json:"metrics"`
	RawResults map[string]any `json:"raw_results"`
	Aux        map[string]any `json:"aux"`
}

// Time interprets Timestamp as RFC 3339 text or unix seconds. ok is false
// when neither applies.
func (r Record) Time() (t time.Time, ok bool) {
	switch v := r.Timestamp.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			sec, frac := math.Modf(f)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
		}
	}
	return time.Time{}, false
}

// ValidationError lists every rule a record violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "benchmark validation: " + strings.Join(e.Problems, "; ")
}

// #endregion types

// #region validator

var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
	recordValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// structProblems runs the tag rules and renders each failure in the same
// dotted form the map checks use.
func structProblems(r *Record) []string {
	err := recordValidate.Struct(r)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.TrimPrefix(fe.Namespace(), "Record.")
		switch fe.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("'%s' must be non-empty", name))
		case "gte", "lte":
			out = append(out, fmt.Sprintf("'%s' must be in range [0, 1], got %v", name, fe.Value()))
		default:
			out = append(out, fmt.Sprintf("'%s' failed %s", name, fe.Tag()))
		}
	}
	return out
}

// #endregion validator

// #region validate

var requiredFields = []string{"system", "config_id", "timestamp", "config", "metrics"}

// Validate parses raw JSON and checks it against the record schema.
// Malformed JSON is a plain error; rule violations are a *ValidationError.
func Validate(raw []byte) (Record, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return Record{}, err
	}
	return ValidateMap(m)
}

// ValidateMap checks a decoded record. Every violated rule is collected.
func ValidateMap(m map[string]any) (Record, error) {
	var problems []string
	for _, f := range requiredFields {
		if _, ok := m[f]; !ok {
			problems = append(problems, "missing required field: "+f)
		}
	}
	if len(problems) > 0 {
		return Record{}, &ValidationError{Problems: problems}
	}

	if _, ok := m["system"].(string); !ok {
		problems = append(problems, "'system' must be non-empty string")
	}
	if _, ok := m["config_id"].(string); !ok {
		problems = append(problems, "'config_id' must be non-empty string")
	}
	switch m["timestamp"].(type) {
	case string, float64, json.Number, int, int64:
	default:
		problems = append(problems, "'timestamp' must be string or number")
	}

	config, ok := m["config"].(map[string]any)
	if !ok {
		problems = append(problems, "'config' must be object")
	} else {
		if _, ok := config["algorithm"]; !ok {
			problems = append(problems, "'config' must contain 'algorithm' field")
		}
		problems = append(problems, configProblems(config)...)
	}

	if metrics, ok := m["metrics"].(map[string]any); !ok {
		problems = append(problems, "'metrics' must be object")
	} else {
		for _, k := range []string{"psi", "rho", "omega"} {
			v, present := metrics[k]
			if !present {
				problems = append(problems, "'metrics' missing required field: "+k)
				continue
			}
			if _, ok := toFloat(v); !ok {
				problems = append(problems, fmt.Sprintf("'metrics.%s' must be number", k))
			}
		}
	}

	for _, k := range []string{"raw_results", "aux"} {
		if v, present := m[k]; present && v != nil {
			if _, ok := v.(map[string]any); !ok {
				problems = append(problems, fmt.Sprintf("'%s' must be object if present", k))
			}
		}
	}
	if len(problems) > 0 {
		return Record{}, &ValidationError{Problems: problems}
	}

	rec, err := toRecord(m)
	if err != nil {
		return Record{}, err
	}
	if p := structProblems(&rec); len(p) > 0 {
		return Record{}, &ValidationError{Problems: p}
	}
	return rec, nil
}

// Validate re-checks a record built in code.
func (r Record) Validate() error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = Validate(data)
	return err
}

func configProblems(c map[string]any) []string {
	var out []string
	if v, ok := c["ansatz_depth"]; ok {
		if d, isInt := toInt(v); !isInt || d < 1 || d > 10 {
			out = append(out, fmt.Sprintf("'config.ansatz_depth' must be integer in [1, 10], got %v", v))
		}
	}
	if v, ok := c["learning_rate"]; ok {
		if lr, isNum := toFloat(v); !isNum || lr <= 0 || lr > 1 {
			out = append(out, fmt.Sprintf("'config.learning_rate' must be in (0, 1], got %v", v))
		}
	}
	if v, ok := c["max_iterations"]; ok {
		if n, isInt := toInt(v); !isInt || n < 1 {
			out = append(out, fmt.Sprintf("'config.max_iterations' must be positive integer, got %v", v))
		}
	}
	return out
}

// #endregion validate

// #region decode

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode benchmark json: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ValidationError{Problems: []string{"record must be a JSON object"}}
	}
	return m, nil
}

// toRecord round-trips m through JSON so numbers land as float64.
func toRecord(m map[string]any) (Record, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// toInt accepts integral values. Decoded JSON must use an integer literal:
// 2 passes, 2.0 does not.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	}
	return 0, false
}

// #endregion decode
