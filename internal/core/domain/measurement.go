package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Raw measurement field names (lower case, as expected after normalization)
const (
	FieldBloodGlucose  = "blood_glucose"
	FieldHbA1c         = "hba1c"
	FieldSystolicBP    = "systolic_bp"
	FieldDiastolicBP   = "diastolic_bp"
	FieldLDL           = "ldl"
	FieldHDL           = "hdl"
	FieldTriglycerides = "triglycerides"
	FieldHaemoglobin   = "haemoglobin"
	FieldMCV           = "mcv"
)

// RawMeasurementFields returns the nine raw measurement names in their canonical order
func RawMeasurementFields() []string {
	return []string{
		FieldBloodGlucose,
		FieldHbA1c,
		FieldSystolicBP,
		FieldDiastolicBP,
		FieldLDL,
		FieldHDL,
		FieldTriglycerides,
		FieldHaemoglobin,
		FieldMCV,
	}
}

// RawMeasurement holds the nine clinical values supplied with one prediction request.
// Values are taken as-is, no unit conversion is applied.
type RawMeasurement struct {
	BloodGlucose  float64 `json:"blood_glucose"`
	HbA1c         float64 `json:"hba1c"`
	SystolicBP    float64 `json:"systolic_bp"`
	DiastolicBP   float64 `json:"diastolic_bp"`
	LDL           float64 `json:"ldl"`
	HDL           float64 `json:"hdl"`
	Triglycerides float64 `json:"triglycerides"`
	Haemoglobin   float64 `json:"haemoglobin"`
	MCV           float64 `json:"mcv"`
}

// NewRawMeasurement builds a RawMeasurement from a name -> value mapping.
// Names are matched case-insensitively; absent names default to 0.0 and
// unknown names are ignored.
func NewRawMeasurement(values map[string]float64) RawMeasurement {
	normalized := NormalizeKeys(values)

	return RawMeasurement{
		BloodGlucose:  normalized[FieldBloodGlucose],
		HbA1c:         normalized[FieldHbA1c],
		SystolicBP:    normalized[FieldSystolicBP],
		DiastolicBP:   normalized[FieldDiastolicBP],
		LDL:           normalized[FieldLDL],
		HDL:           normalized[FieldHDL],
		Triglycerides: normalized[FieldTriglycerides],
		Haemoglobin:   normalized[FieldHaemoglobin],
		MCV:           normalized[FieldMCV],
	}
}

// NormalizeKeys lower-cases every key of values into a new map.
// When several keys collapse onto the same lower-case name, the key that is
// already lower case wins; otherwise the lexically last spelling wins.
func NormalizeKeys(values map[string]float64) map[string]float64 {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]float64, len(values))
	exact := make(map[string]bool, len(values))
	for _, k := range keys {
		lower := strings.ToLower(k)
		if exact[lower] {
			continue
		}
		normalized[lower] = values[k]
		if k == lower {
			exact[lower] = true
		}
	}
	return normalized
}

// CoerceValues converts a decoded JSON object into numeric values.
// Numbers are kept, finite numeric strings are parsed, anything else becomes 0.0.
func CoerceValues(raw map[string]interface{}) map[string]float64 {
	values := make(map[string]float64, len(raw))
	for k, v := range raw {
		values[k] = coerceFloat(v)
	}
	return values
}

func coerceFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Values returns the measurement keyed by canonical field name
func (m RawMeasurement) Values() map[string]float64 {
	return map[string]float64{
		FieldBloodGlucose:  m.BloodGlucose,
		FieldHbA1c:         m.HbA1c,
		FieldSystolicBP:    m.SystolicBP,
		FieldDiastolicBP:   m.DiastolicBP,
		FieldLDL:           m.LDL,
		FieldHDL:           m.HDL,
		FieldTriglycerides: m.Triglycerides,
		FieldHaemoglobin:   m.Haemoglobin,
		FieldMCV:           m.MCV,
	}
}
