package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/kamilpajak/labsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCandidates(t *testing.T, s string) []any {
	t.Helper()
	var out []any
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestValidateLabValues_GlucoseScenario(t *testing.T) {
	got := ValidateLabValues(decodeCandidates(t, `[
		{"test_name":"Glucose","value":115,"unit":"mg/dL","reference_min":70,"reference_max":100,"is_abnormal":true}
	]`))

	require.Len(t, got, 1)
	assert.Equal(t, models.LabValue{
		TestName:     "Glucose",
		Value:        115,
		Unit:         "mg/dL",
		ReferenceMin: models.Float(70),
		ReferenceMax: models.Float(100),
		IsAbnormal:   true,
	}, got[0])
}

func TestValidateLabValues_DropsInvalid(t *testing.T) {
	got := ValidateLabValues(decodeCandidates(t, `[
		{"test_name":"Glucose","value":115,"unit":"mg/dL"},
		{"test_name":"","value":1,"unit":"x"},
		{"value":1,"unit":"x"},
		{"test_name":"Hb","unit":"g/dL"},
		{"test_name":"Hb","value":null,"unit":"g/dL"},
		{"test_name":"Hb","value":13.5},
		{"test_name":"Hb","value":13.5,"unit":"  "},
		{"test_name":"Urine protein","value":"negative","unit":"mg/dL"},
		{"test_name":"LDL","value":"<100","unit":"mg/dL"},
		{"test_name":"TSH","value":2.1,"unit":"mIU/L","reference_min":"low"},
		{"test_name":"TSH","value":2.1,"unit":"mIU/L","reference_max":{"v":4}},
		{"test_name":"Na","value":true,"unit":"mmol/L"},
		"not an object",
		42,
		null
	]`))

	require.Len(t, got, 1)
	assert.Equal(t, "Glucose", got[0].TestName)
}

func TestValidateLabValues_Coercion(t *testing.T) {
	got := ValidateLabValues(decodeCandidates(t, `[
		{"test_name":" Creatinine ","value":" 1.2 ","unit":"mg/dL","reference_min":"0.6","reference_max":"1.3"},
		{"test_name":"K","value":"4","unit":"mmol/L","reference_min":"","reference_max":null},
		{"test_name":"WBC","value":11.2,"unit":"10^3/uL","reference_min":4,"is_abnormal":"yes"}
	]`))

	require.Len(t, got, 3)

	assert.Equal(t, "Creatinine", got[0].TestName)
	assert.Equal(t, 1.2, got[0].Value)
	require.NotNil(t, got[0].ReferenceMin)
	assert.Equal(t, 0.6, *got[0].ReferenceMin)
	assert.False(t, got[0].IsAbnormal)

	assert.Equal(t, 4.0, got[1].Value)
	assert.Nil(t, got[1].ReferenceMin)
	assert.Nil(t, got[1].ReferenceMax)

	assert.False(t, got[2].IsAbnormal, "non-boolean assertion counts as false")
}

func TestValidateLabValues_AbnormalRecomputed(t *testing.T) {
	got := ValidateLabValues(decodeCandidates(t, `[
		{"test_name":"Glucose","value":115,"unit":"mg/dL","reference_min":70,"reference_max":100,"is_abnormal":false},
		{"test_name":"Hb","value":14,"unit":"g/dL","reference_min":12,"reference_max":16,"is_abnormal":true},
		{"test_name":"Ferritin","value":8,"unit":"ng/mL","reference_min":15,"is_abnormal":true},
		{"test_name":"CRP","value":12,"unit":"mg/L","is_abnormal":true}
	]`))

	require.Len(t, got, 4)
	for _, v := range got {
		if v.ReferenceMin != nil && v.ReferenceMax != nil {
			assert.Equal(t, v.Value < *v.ReferenceMin || v.Value > *v.ReferenceMax, v.IsAbnormal, v.TestName)
		}
	}
	assert.True(t, got[0].IsAbnormal)
	assert.False(t, got[1].IsAbnormal)
	assert.True(t, got[2].IsAbnormal, "single bound trusts the model")
	assert.True(t, got[3].IsAbnormal, "no bounds trusts the model")
}

func TestValidateLabValues_Idempotent(t *testing.T) {
	inputs := []string{
		`[{"test_name":"Glucose","value":"115","unit":"mg/dL","reference_min":70,"reference_max":100,"is_abnormal":false}]`,
		`[{"test_name":" Na ","value":140,"unit":"mmol/L","is_abnormal":true},{"test_name":"bad","value":"x","unit":"u"}]`,
		`[]`,
	}
	for _, in := range inputs {
		once := ValidateLabValues(decodeCandidates(t, in))

		data, err := json.Marshal(once)
		require.NoError(t, err)
		twice := ValidateLabValues(decodeCandidates(t, string(data)))

		assert.Equal(t, once, twice, in)
	}
}

func TestValidateLabValues_EmptyIsNotNil(t *testing.T) {
	got := ValidateLabValues(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
