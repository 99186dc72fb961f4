package pipeline

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kamilpajak/labsight/pkg/models"
)

// ValidateLabValues turns raw model candidates into lab values. Candidates
// missing test_name, value or unit, or whose numbers cannot be coerced, are
// dropped. is_abnormal is recomputed when both bounds are present.
func ValidateLabValues(candidates []any) []models.LabValue {
	out := make([]models.LabValue, 0, len(candidates))
	for _, c := range candidates {
		if v, ok := validateCandidate(c); ok {
			out = append(out, v)
		}
	}
	return out
}

func validateCandidate(c any) (models.LabValue, bool) {
	m, ok := c.(map[string]any)
	if !ok {
		return models.LabValue{}, false
	}

	name := textField(m, "test_name")
	unit := textField(m, "unit")
	if name == "" || unit == "" {
		return models.LabValue{}, false
	}

	raw, present := m["value"]
	if !present || raw == nil {
		return models.LabValue{}, false
	}
	value, ok := toNumber(raw)
	if !ok {
		return models.LabValue{}, false
	}

	min, ok := optionalNumber(m, "reference_min")
	if !ok {
		return models.LabValue{}, false
	}
	max, ok := optionalNumber(m, "reference_max")
	if !ok {
		return models.LabValue{}, false
	}

	asserted, _ := m["is_abnormal"].(bool)
	return models.LabValue{
		TestName:     name,
		Value:        value,
		Unit:         unit,
		ReferenceMin: min,
		ReferenceMax: max,
		IsAbnormal:   models.DeriveAbnormal(value, min, max, asserted),
	}, true
}

func textField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// optionalNumber returns nil for an absent, null or empty bound. ok is false
// when a bound is present but not numeric.
func optionalNumber(m map[string]any, key string) (*float64, bool) {
	raw, present := m[key]
	if !present || raw == nil {
		return nil, true
	}
	if s, isString := raw.(string); isString && strings.TrimSpace(s) == "" {
		return nil, true
	}
	f, ok := toNumber(raw)
	if !ok {
		return nil, false
	}
	return &f, true
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
