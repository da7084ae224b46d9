package gate

// #region criteria
// Criteria holds the Proof-of-Resonance thresholds.
type Criteria struct {
	MinQualityDelta    float64 `yaml:"min_quality_delta" json:"min_quality_delta"`
	StabilityTolerance float64 `yaml:"stability_tolerance" json:"stability_tolerance"`
	MinEfficiency      float64 `yaml:"min_efficiency" json:"min_efficiency"`
	MinFieldResonance  float64 `yaml:"min_field_resonance" json:"min_field_resonance"`
}

// DefaultCriteria accepts any non-regressing candidate that is efficient
// enough and not anti-aligned with the field.
func DefaultCriteria() Criteria {
	return Criteria{
		MinQualityDelta:    0.0,
		StabilityTolerance: 0.1,
		MinEfficiency:      0.3,
		MinFieldResonance:  0.0,
	}
}

// #endregion criteria

// #region decision

// Actions reported in Decision.Action.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// Decision is the detailed outcome of a gate check.
type Decision struct {
	QualityPassed    bool    `json:"quality_passed"`
	QualityDelta     float64 `json:"quality_delta"`
	QualityThreshold float64 `json:"quality_threshold"`

	StabilityPassed    bool    `json:"stability_passed"`
	StabilityDelta     float64 `json:"stability_delta"`
	StabilityThreshold float64 `json:"stability_threshold"`

	EfficiencyPassed    bool    `json:"efficiency_passed"`
	Efficiency          float64 `json:"efficiency"`
	EfficiencyThreshold float64 `json:"efficiency_threshold"`

	// FieldChecked is false when no field or injection was supplied; the
	// resonance criterion then passes vacuously.
	FieldChecked       bool    `json:"field_checked"`
	FieldPassed        bool    `json:"field_passed"`
	FieldResonance     float64 `json:"field_resonance"`
	ResonanceThreshold float64 `json:"resonance_threshold"`

	Overall bool   `json:"overall"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
}

// #endregion decision
