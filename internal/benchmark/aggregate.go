package benchmark

import (
	"maps"
	"slices"

	"github.com/montanaflynn/stats"

	"github.com/LashSesh/qso/internal/performance"
)

// Query selects records in Filter. Zero fields match everything.
type Query struct {
	System    string
	ConfigID  string
	Algorithm string
	MinPsi    float64
	MinRho    float64
	MinOmega  float64
}

// Filter returns the records matching q, in input order.
func Filter(records []Record, q Query) []Record {
	var out []Record
	for _, r := range records {
		if q.System != "" && r.System != q.System {
			continue
		}
		if q.ConfigID != "" && r.ConfigID != q.ConfigID {
			continue
		}
		if q.Algorithm != "" && r.Config["algorithm"] != q.Algorithm {
			continue
		}
		if r.Metrics.Psi < q.MinPsi || r.Metrics.Rho < q.MinRho || r.Metrics.Omega < q.MinOmega {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Stat summarizes one metric.
type Stat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summary is the result of Aggregate.
type Summary struct {
	Count   int      `json:"count"`
	Systems []string `json:"systems"`
	Psi     Stat     `json:"psi"`
	Rho     Stat     `json:"rho"`
	Omega   Stat     `json:"omega"`
}

// Aggregate computes per-metric statistics. The population standard
// deviation is used. An empty input yields a zero Summary.
func Aggregate(records []Record) Summary {
	if len(records) == 0 {
		return Summary{Systems: []string{}}
	}
	var psi, rho, omega []float64
	systems := map[string]struct{}{}
	for _, r := range records {
		psi = append(psi, r.Metrics.Psi)
		rho = append(rho, r.Metrics.Rho)
		omega = append(omega, r.Metrics.Omega)
		systems[r.System] = struct{}{}
	}
	return Summary{
		Count:   len(records),
		Systems: slices.Sorted(maps.Keys(systems)),
		Psi:     summarize(psi),
		Rho:     summarize(rho),
		Omega:   summarize(omega),
	}
}

func summarize(values []float64) Stat {
	var s Stat
	s.Mean, _ = stats.Mean(values)
	s.Std, _ = stats.StandardDeviationPopulation(values)
	s.Min, _ = stats.Min(values)
	s.Max, _ = stats.Max(values)
	return s
}

// GroupBySystem keeps the latest record per system and shapes each as a
// payload carrying a metrics block, keyed by system. Records with
// comparable timestamps are ordered by time; otherwise later input wins.
func GroupBySystem(records []Record) performance.Benchmarks {
	latest := map[string]Record{}
	for _, r := range records {
		prev, ok := latest[r.System]
		if ok && newer(prev, r) {
			continue
		}
		latest[r.System] = r
	}

	out := make(performance.Benchmarks, len(latest))
	for system, r := range latest {
		out[system] = map[string]any{
			"config_id": r.ConfigID,
			"config":    maps.Clone(r.Config),
			"metrics": map[string]any{
				"psi":   r.Metrics.Psi,
				"rho":   r.Metrics.Rho,
				"omega": r.Metrics.Omega,
			},
		}
	}
	return out
}

// newer reports whether a is strictly newer than b.
func newer(a, b Record) bool {
	ta, okA := a.Time()
	tb, okB := b.Time()
	return okA && okB && ta.After(tb)
}
