package model

import (
	"sort"
	"strings"
	"time"
)

// RiskLevel orders clinical urgency. Priority follows the consolidation
// ordering used by the orchestrator: CRITICAL > HIGH > MODERATE > LOW.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskModerate RiskLevel = "MODERATE"
	RiskLow      RiskLevel = "LOW"
)

func (r RiskLevel) Priority() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskModerate:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// LifeThreatening reports whether the risk level belongs to the emergent
// partition during consolidation.
func (r RiskLevel) LifeThreatening() bool {
	return r == RiskCritical || r == RiskHigh
}

// Diagnosis is the closed set of diagnosis kinds the agents can emit.
type Diagnosis string

const (
	DxSTEMI               Diagnosis = "STEMI"
	DxNSTEMI              Diagnosis = "NSTEMI"
	DxUnstableAngina      Diagnosis = "Unstable Angina"
	DxStableAngina        Diagnosis = "Stable Angina"
	DxPericarditis        Diagnosis = "Pericarditis"
	DxMyocarditis         Diagnosis = "Myocarditis"
	DxGERD                Diagnosis = "GERD"
	DxPUD                 Diagnosis = "Peptic Ulcer Disease"
	DxEsophagealSpasm     Diagnosis = "Esophageal Spasm"
	DxBiliaryColic        Diagnosis = "Biliary Colic"
	DxPancreatitis        Diagnosis = "Pancreatitis"
	DxPE                  Diagnosis = "Pulmonary Embolism"
	DxMassivePE           Diagnosis = "Massive Pulmonary Embolism"
	DxPneumothorax        Diagnosis = "Pneumothorax"
	DxPneumonia           Diagnosis = "Pneumonia"
	DxPleuritis           Diagnosis = "Pleuritis"
	DxCostochondritis     Diagnosis = "Costochondritis"
	DxMuscleStrain        Diagnosis = "Muscle Strain"
	DxRibFracture         Diagnosis = "Rib Fracture"
	DxPanicAttack         Diagnosis = "Panic Attack"
	DxAnxiety             Diagnosis = "Anxiety"
	DxSepsis              Diagnosis = "Sepsis"
	DxNonCardiacChestPain Diagnosis = "Non-Cardiac Chest Pain"
	DxUnknown             Diagnosis = "Unknown"
)

// Specialty tags the agent that produced a result.
type Specialty string

const (
	SpecialtySafety     Specialty = "safety"
	SpecialtyCardiology Specialty = "cardiology"
	SpecialtyGastro     Specialty = "gastroenterology"
	SpecialtyMSK        Specialty = "musculoskeletal"
	SpecialtyPulmonary  Specialty = "pulmonary"
	SpecialtyTreatment  Specialty = "treatment"
)

// Vital names form a closed set; anything else at the boundary is rejected.
const (
	VitalHeartRate  = "heart_rate"
	VitalBPSys      = "bp_sys"
	VitalBPDia      = "bp_dia"
	VitalRespRate   = "respiratory_rate"
	VitalSpO2       = "oxygen_saturation"
	VitalTempF      = "temperature"
	VitalHRV        = "hrv_rmssd"
	VitalSpO2Stream = "spo2"
)

// vitalRange holds the sanity clamps. Values outside the range are treated
// as missing rather than clamped to the bound.
type vitalRange struct{ lo, hi float64 }

var vitalRanges = map[string]vitalRange{
	VitalHeartRate:  {20, 250},
	VitalBPSys:      {30, 300},
	VitalBPDia:      {10, 200},
	VitalRespRate:   {4, 60},
	VitalSpO2:       {50, 100},
	VitalSpO2Stream: {50, 100},
	VitalTempF:      {80, 115},
	VitalHRV:        {1, 300},
}

// VitalInRange reports whether a value passes the sanity clamp for the
// named vital. Unknown names are always out of range.
func VitalInRange(name string, value float64) bool {
	r, ok := vitalRanges[name]
	if !ok {
		return false
	}
	return value >= r.lo && value <= r.hi
}

// SanitizeVitals drops unknown names and out-of-range values.
func SanitizeVitals(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for name, v := range in {
		if VitalInRange(name, v) {
			out[name] = v
		}
	}
	return out
}

// Lab names form a closed set. Series order is chronological.
const (
	LabTroponin   = "Troponin"
	LabDDimer     = "D-dimer"
	LabWBC        = "WBC"
	LabLipase     = "Lipase"
	LabAmylase    = "Amylase"
	LabALT        = "ALT"
	LabAST        = "AST"
	LabHemoglobin = "Hemoglobin"
	LabCreatinine = "Creatinine"
	LabBNP        = "BNP"
	LabCKMB       = "CK-MB"
	LabPlatelets  = "Platelets"
)

// LabPoint is one timestamped lab measurement.
type LabPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// PatientRecord is the immutable snapshot a single assessment runs over.
type PatientRecord struct {
	PatientID      string                `json:"patient_id"`
	HadmID         string                `json:"hadm_id,omitempty"`
	Age            int                   `json:"age"`
	Sex            string                `json:"sex"`
	ChiefComplaint string                `json:"chief_complaint"`
	Vitals         map[string]float64    `json:"vitals"`
	Labs           map[string][]LabPoint `json:"labs"`
	ICDCodes       []string              `json:"icd_codes"`
	Allergies      []string              `json:"allergies,omitempty"`
	AdmissionTime  time.Time             `json:"admission_time"`
}

// HasAllergy reports a case-insensitive substring match against the
// recorded allergy list.
func (r PatientRecord) HasAllergy(substance string) bool {
	for _, a := range r.Allergies {
		if strings.Contains(strings.ToLower(a), strings.ToLower(substance)) {
			return true
		}
	}
	return false
}

// Vital returns the named vital if present and within sanity range.
func (r PatientRecord) Vital(name string) (float64, bool) {
	v, ok := r.Vitals[name]
	if !ok || !VitalInRange(name, v) {
		return 0, false
	}
	return v, true
}

// VitalOr returns the named vital or def when missing.
func (r PatientRecord) VitalOr(name string, def float64) float64 {
	if v, ok := r.Vital(name); ok {
		return v
	}
	return def
}

// LabSeries returns the chronological series for a lab, sorted by time.
func (r PatientRecord) LabSeries(name string) []LabPoint {
	series := r.Labs[name]
	if len(series) < 2 {
		return series
	}
	out := make([]LabPoint, len(series))
	copy(out, series)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// LatestLab returns the most recent value for a lab.
func (r PatientRecord) LatestLab(name string) (float64, bool) {
	series := r.LabSeries(name)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].Value, true
}

// HasICD reports whether the record carries the given ICD code.
func (r PatientRecord) HasICD(code string) bool {
	for _, c := range r.ICDCodes {
		if c == code {
			return true
		}
	}
	return false
}

// DiagnosisResult is emitted by every agent, at every recursion depth.
type DiagnosisResult struct {
	Diagnosis       Diagnosis              `json:"diagnosis"`
	Confidence      float64                `json:"confidence"`
	Risk            RiskLevel              `json:"risk_level"`
	Reasoning       string                 `json:"reasoning"`
	Recommendations []string               `json:"recommendations"`
	Evidence        map[string]interface{} `json:"supporting_evidence,omitempty"`
	AgentName       string                 `json:"agent_name"`
	Depth           int                    `json:"depth"`
	Children        []DiagnosisResult      `json:"children,omitempty"`
}

// AssessmentState is the consolidated output of one orchestrator run.
// Primary points into AgentResults, never an independent copy.
type AssessmentState struct {
	Record       PatientRecord     `json:"-"`
	AgentResults []DiagnosisResult `json:"agent_results"`
	Primary      *DiagnosisResult  `json:"primary"`
	SafetyAlerts []string          `json:"safety_alerts"`
	Confidence   float64           `json:"confidence"`
}

// VitalSample is one streaming observation from a wearable or phone sensor.
// Pointer fields distinguish absent from zero.
type VitalSample struct {
	Timestamp  time.Time `json:"timestamp"`
	PatientID  string    `json:"patient_id"`
	HeartRate  *float64  `json:"heart_rate,omitempty"`
	HRV        *float64  `json:"hrv_rmssd,omitempty"`
	SpO2       *float64  `json:"spo2,omitempty"`
	RespRate   *float64  `json:"respiratory_rate,omitempty"`
	BPSys      *float64  `json:"bp_sys,omitempty"`
	BPDia      *float64  `json:"bp_dia,omitempty"`
	DataSource string    `json:"data_source,omitempty"`
}

// Metrics returns the present, in-range fields keyed by metric name.
// Out-of-range values are dropped, matching the boundary policy for
// the synchronous path.
func (s VitalSample) Metrics() map[string]float64 {
	out := make(map[string]float64, 6)
	put := func(name string, v *float64) {
		if v != nil && VitalInRange(name, *v) {
			out[name] = *v
		}
	}
	put(VitalHeartRate, s.HeartRate)
	put(VitalHRV, s.HRV)
	put(VitalSpO2Stream, s.SpO2)
	put(VitalRespRate, s.RespRate)
	put(VitalBPSys, s.BPSys)
	put(VitalBPDia, s.BPDia)
	return out
}
