// Package models holds the records produced by the lab analysis pipeline.
package models

// LabValue is one numeric result read from a lab report.
type LabValue struct {
	TestName     string   `json:"test_name"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	ReferenceMin *float64 `json:"reference_min"`
	ReferenceMax *float64 `json:"reference_max"`
	IsAbnormal   bool     `json:"is_abnormal"`
}

// DeriveAbnormal returns whether value is outside [min, max]. When either
// bound is missing the asserted flag is kept.
func DeriveAbnormal(value float64, min, max *float64, asserted bool) bool {
	if min == nil || max == nil {
		return asserted
	}
	return value < *min || value > *max
}

// Interpretation is the clinical reading of a set of lab values.
type Interpretation struct {
	Interpretation  string           `json:"interpretation"`
	Abnormalities   []map[string]any `json:"abnormalities"`
	Recommendations []string         `json:"recommendations"`
	Reasoning       string           `json:"reasoning"`
	ReferenceRanges []map[string]any `json:"reference_ranges"`
	ConfidenceScore *float64         `json:"confidence_score"`
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}
