package domain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRawMeasurement_CaseInsensitive(t *testing.T) {
	m := domain.NewRawMeasurement(map[string]float64{
		"blood_glucose": 107.38,
		"HbA1C":         4.93,
		"Systolic_BP":   109.25,
		"Diastolic_BP":  74.10,
		"LDL":           129.20,
		"HDL":           52.11,
		"Triglycerides": 68.84,
		"Haemoglobin":   10.17,
		"MCV":           61.54,
	})

	assert.Equal(t, sampleMeasurement(), m)
}

func TestNewRawMeasurement_MissingFieldsDefaultToZero(t *testing.T) {
	m := domain.NewRawMeasurement(map[string]float64{"ldl": 130})

	assert.Equal(t, 130.0, m.LDL)
	assert.Equal(t, 0.0, m.HDL)
	assert.Equal(t, 0.0, m.BloodGlucose)
	assert.Equal(t, 0.0, m.MCV)
}

func TestNewRawMeasurement_IgnoresUnknownFields(t *testing.T) {
	m := domain.NewRawMeasurement(map[string]float64{"weight": 80, "mcv": 85})

	assert.Equal(t, domain.RawMeasurement{MCV: 85}, m)
}

func TestNewRawMeasurement_DoesNotMutateInput(t *testing.T) {
	in := map[string]float64{"LDL": 100}
	domain.NewRawMeasurement(in)

	assert.Equal(t, map[string]float64{"LDL": 100}, in)
}

func TestNormalizeKeys_LowerCaseSpellingWins(t *testing.T) {
	out := domain.NormalizeKeys(map[string]float64{
		"LDL": 1,
		"ldl": 2,
		"Ldl": 3,
	})

	assert.Equal(t, map[string]float64{"ldl": 2}, out)
}

func TestCoerceValues(t *testing.T) {
	var raw map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(`{
		"ldl": 129.2,
		"hdl": "52.11",
		"mcv": "abc",
		"haemoglobin": null,
		"hba1c": true,
		"systolic_bp": "Infinity"
	}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&raw))

	values := domain.CoerceValues(raw)

	assert.Equal(t, 129.2, values["ldl"])
	assert.Equal(t, 52.11, values["hdl"])
	assert.Equal(t, 0.0, values["mcv"])
	assert.Equal(t, 0.0, values["haemoglobin"])
	assert.Equal(t, 0.0, values["hba1c"])
	assert.Equal(t, 0.0, values["systolic_bp"])
}

func TestRawMeasurement_Values(t *testing.T) {
	values := sampleMeasurement().Values()

	assert.Len(t, values, 9)
	assert.Equal(t, sampleMeasurement(), domain.NewRawMeasurement(values))
}
