package domain

// Derived feature names, as expected by the trained classifier
const (
	FeatureGlucoseHbA1cRatio = "glucose_hba1c_ratio"
	FeaturePulsePressure     = "pulse_pressure"
	FeatureMAP               = "MAP"
	FeatureHypertensionFlag  = "hypertension_flag"
	FeatureTotalCholesterol  = "total_cholesterol"
	FeatureLDLHDLRatio       = "ldl_hdl_ratio"
	FeatureTGHDLRatio        = "tg_hdl_ratio"
	FeatureNonHDL            = "non_hdl"
	FeatureAnaemiaFlag       = "anaemia_flag"
	FeatureMicrocytosisFlag  = "microcytosis_flag"
	FeatureHbMCVRatio        = "hb_mcv_ratio"
	FeatureRiskScore         = "risk_score"
)

// Clinical thresholds used by the flag features
const (
	HypertensionSystolicMin  = 140.0
	HypertensionDiastolicMin = 90.0
	AnaemiaHaemoglobinMax    = 12.0 // flag when strictly below
	MicrocytosisMCVMax       = 80.0 // flag when strictly below
)

// DerivedFeatureNames returns the engineered feature names in derivation order
func DerivedFeatureNames() []string {
	return []string{
		FeatureGlucoseHbA1cRatio,
		FeaturePulsePressure,
		FeatureMAP,
		FeatureHypertensionFlag,
		FeatureTotalCholesterol,
		FeatureLDLHDLRatio,
		FeatureTGHDLRatio,
		FeatureNonHDL,
		FeatureAnaemiaFlag,
		FeatureMicrocytosisFlag,
		FeatureHbMCVRatio,
		FeatureRiskScore,
	}
}

// FeatureNames returns every name present in an extended feature vector
func FeatureNames() []string {
	return append(RawMeasurementFields(), DerivedFeatureNames()...)
}

// FeatureVector is the named input handed to the classifier.
// The classifier aligns features by name, never by position.
type FeatureVector map[string]float64

// ExtendedFeatureSet is a RawMeasurement plus its engineered attributes.
// Ratios follow IEEE-754 division, so a zero denominator yields ±Inf or NaN.
type ExtendedFeatureSet struct {
	RawMeasurement

	GlucoseHbA1cRatio float64 `json:"glucose_hba1c_ratio"`
	PulsePressure     float64 `json:"pulse_pressure"`
	MAP               float64 `json:"MAP"`
	HypertensionFlag  int     `json:"hypertension_flag"`
	TotalCholesterol  float64 `json:"total_cholesterol"`
	LDLHDLRatio       float64 `json:"ldl_hdl_ratio"`
	TGHDLRatio        float64 `json:"tg_hdl_ratio"`
	NonHDL            float64 `json:"non_hdl"`
	AnaemiaFlag       int     `json:"anaemia_flag"`
	MicrocytosisFlag  int     `json:"microcytosis_flag"`
	HbMCVRatio        float64 `json:"hb_mcv_ratio"`
	RiskScore         float64 `json:"risk_score"`
}

// Derive computes the engineered attributes for m.
// It is a pure function: the input is copied and no state is kept between calls.
func Derive(m RawMeasurement) ExtendedFeatureSet {
	f := ExtendedFeatureSet{RawMeasurement: m}

	f.GlucoseHbA1cRatio = m.BloodGlucose / m.HbA1c

	f.PulsePressure = m.SystolicBP - m.DiastolicBP
	f.MAP = (m.SystolicBP + 2*m.DiastolicBP) / 3
	f.HypertensionFlag = flag(m.SystolicBP >= HypertensionSystolicMin || m.DiastolicBP >= HypertensionDiastolicMin)

	f.TotalCholesterol = m.LDL + m.HDL + (m.Triglycerides / 5)
	f.LDLHDLRatio = m.LDL / m.HDL
	f.TGHDLRatio = m.Triglycerides / m.HDL
	f.NonHDL = f.TotalCholesterol - m.HDL

	f.AnaemiaFlag = flag(m.Haemoglobin < AnaemiaHaemoglobinMax)
	f.MicrocytosisFlag = flag(m.MCV < MicrocytosisMCVMax)
	f.HbMCVRatio = m.Haemoglobin / m.MCV

	f.RiskScore = (m.BloodGlucose / 200) + (m.LDL / 160) + (m.Triglycerides / 200) + (m.SystolicBP / 140)

	return f
}

func flag(cond bool) int {
	if cond {
		return 1
	}
	return 0
}

// Vector returns the full feature set keyed by feature name
func (f ExtendedFeatureSet) Vector() FeatureVector {
	v := FeatureVector(f.RawMeasurement.Values())

	v[FeatureGlucoseHbA1cRatio] = f.GlucoseHbA1cRatio
	v[FeaturePulsePressure] = f.PulsePressure
	v[FeatureMAP] = f.MAP
	v[FeatureHypertensionFlag] = float64(f.HypertensionFlag)
	v[FeatureTotalCholesterol] = f.TotalCholesterol
	v[FeatureLDLHDLRatio] = f.LDLHDLRatio
	v[FeatureTGHDLRatio] = f.TGHDLRatio
	v[FeatureNonHDL] = f.NonHDL
	v[FeatureAnaemiaFlag] = float64(f.AnaemiaFlag)
	v[FeatureMicrocytosisFlag] = float64(f.MicrocytosisFlag)
	v[FeatureHbMCVRatio] = f.HbMCVRatio
	v[FeatureRiskScore] = f.RiskScore

	return v
}
