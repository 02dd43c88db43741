// Package triage maps a consolidated assessment onto an ESI-style acuity
// level, an ordinal priority score, and the operational assignments that
// follow from the level (disposition, nursing ratio, wait target,
// anticipated resources).
package triage

import (
	"fmt"

	"mediq/internal/features"
	"mediq/internal/model"
)

// Result is the complete triage decision for one assessment.
type Result struct {
	Level         int      `json:"esi_level"`
	PriorityScore int      `json:"priority_score"`
	Disposition   string   `json:"disposition"`
	NursingRatio  string   `json:"nursing_ratio"`
	MaxWait       string   `json:"max_wait"`
	Resources     []string `json:"anticipated_resources"`
	CriticalFlags []string `json:"critical_flags,omitempty"`
	WarningFlags  []string `json:"warning_flags,omitempty"`
	Reasoning     []string `json:"reasoning"`
}

// Base priority scores per ESI level. Modifiers add on top, capped at 100.
var baseScore = map[int]int{1: 100, 2: 85, 3: 60, 4: 40, 5: 20}

var nursingRatio = map[int]string{
	1: "1:1",
	2: "1:2-3",
	3: "1:4",
	4: "1:5-6",
	5: "1:6+",
}

var maxWait = map[int]string{
	1: "Immediate",
	2: "<10 minutes",
	3: "10-60 minutes",
	4: "1-2 hours",
	5: "2-24 hours",
}

// Assign runs the ESI decision ladder over a consolidated assessment.
// It is a pure function: same state in, same result out.
func Assign(state model.AssessmentState) Result {
	rec := state.Record
	primary := state.Primary

	res := Result{}
	res.CriticalFlags, res.WarningFlags = vitalFlags(rec)

	switch {
	case isImmediate(rec, primary, res.CriticalFlags):
		res.Level = 1
		res.Reasoning = append(res.Reasoning, "Immediate life-saving intervention required")
	case isHighRisk(rec, primary):
		res.Level = 2
		res.Reasoning = append(res.Reasoning, "High-risk presentation, should not wait")
	default:
		res.Resources = anticipatedResources(rec, primary)
		switch n := len(res.Resources); {
		case n >= 2:
			res.Level = 3
		case n == 1:
			res.Level = 4
		default:
			res.Level = 5
		}
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("%d anticipated resources", len(res.Resources)))
	}

	res.Resources = levelResources(res.Level, res.Resources)
	res.PriorityScore = priorityScore(res.Level, rec, primary, res.CriticalFlags, res.WarningFlags)
	res.NursingRatio = nursingRatio[res.Level]
	res.MaxWait = maxWait[res.Level]
	res.Disposition = disposition(res.Level, primary)
	return res
}

// isImmediate is the ESI step-1 check: unstable now, or a diagnosis that
// demands intervention within minutes.
func isImmediate(rec model.PatientRecord, primary *model.DiagnosisResult, criticalFlags []string) bool {
	if primary != nil {
		if primary.Diagnosis == model.DxSTEMI || primary.Diagnosis == model.DxMassivePE {
			return true
		}
		if primary.Risk == model.RiskCritical {
			return true
		}
	}
	if rec.VitalOr(model.VitalBPSys, 120) < 80 {
		return true
	}
	if rec.VitalOr(model.VitalSpO2, 100) < 85 {
		return true
	}
	hr := rec.VitalOr(model.VitalHeartRate, 70)
	return hr < 40 || hr > 150
}

// isHighRisk is the ESI step-2 check.
func isHighRisk(rec model.PatientRecord, primary *model.DiagnosisResult) bool {
	if primary != nil {
		if primary.Risk == model.RiskHigh {
			return true
		}
		if primary.Diagnosis == model.DxNSTEMI || primary.Diagnosis == model.DxUnstableAngina {
			return true
		}
		if rec.Age > 75 && primary.Diagnosis != model.DxUnknown {
			return true
		}
	}
	if rec.VitalOr(model.VitalBPSys, 120) < 90 {
		return true
	}
	return rec.VitalOr(model.VitalSpO2, 100) < 90
}

// nonCardiacLowRisk lists diagnoses that, with a normal troponin, need
// only an EKG rather than the full chest-pain workup.
var nonCardiacLowRisk = map[model.Diagnosis]bool{
	model.DxGERD:                true,
	model.DxEsophagealSpasm:     true,
	model.DxCostochondritis:     true,
	model.DxMuscleStrain:        true,
	model.DxRibFracture:         true,
	model.DxPleuritis:           true,
	model.DxPanicAttack:         true,
	model.DxAnxiety:             true,
	model.DxNonCardiacChestPain: true,
}

// anticipatedResources estimates the step-3 resource count. Chest pain
// defaults to the full rule-out workup unless the differential has
// already landed on a benign etiology with a normal troponin.
func anticipatedResources(rec model.PatientRecord, primary *model.DiagnosisResult) []string {
	hasDx := primary != nil && primary.Diagnosis != model.DxUnknown
	if !hasDx && rec.ChiefComplaint == "" {
		return nil
	}
	if hasDx && primary.Risk == model.RiskLow && nonCardiacLowRisk[primary.Diagnosis] &&
		features.LatestTroponin(rec) < features.TroponinElevated {
		return []string{"ECG"}
	}
	return []string{"ECG", "Cardiac biomarkers", "Basic metabolic panel"}
}

// levelResources replaces or augments the anticipated list with the
// interventions the assigned level implies.
func levelResources(level int, anticipated []string) []string {
	switch level {
	case 1:
		return []string{
			"Cardiac catheterization lab activation",
			"ICU bed",
			"Arterial line",
			"Two large-bore IVs",
		}
	case 2:
		return []string{
			"Continuous telemetry",
			"Serial troponins",
			"Urgent cardiology consult",
			"Chest x-ray",
			"Echocardiogram",
		}
	case 3:
		return append(anticipated, "Continuous telemetry")
	default:
		return anticipated
	}
}

// vitalFlags derives bedside warning banners from raw vitals. Critical
// flags add ten priority points each, warnings five.
func vitalFlags(rec model.PatientRecord) (critical, warning []string) {
	if v, ok := rec.Vital(model.VitalBPSys); ok {
		switch {
		case v < 90:
			critical = append(critical, fmt.Sprintf("Hypotension (SBP %.0f)", v))
		case v < 100:
			warning = append(warning, fmt.Sprintf("Borderline blood pressure (SBP %.0f)", v))
		}
	}
	if v, ok := rec.Vital(model.VitalSpO2); ok {
		switch {
		case v < 90:
			critical = append(critical, fmt.Sprintf("Hypoxia (SpO2 %.0f%%)", v))
		case v < 92:
			warning = append(warning, fmt.Sprintf("Borderline oxygenation (SpO2 %.0f%%)", v))
		}
	}
	if v, ok := rec.Vital(model.VitalHeartRate); ok {
		switch {
		case v > 150 || v < 40:
			critical = append(critical, fmt.Sprintf("Extreme heart rate (%.0f bpm)", v))
		case v > 120:
			warning = append(warning, fmt.Sprintf("Tachycardia (%.0f bpm)", v))
		}
	}
	if v, ok := rec.Vital(model.VitalRespRate); ok {
		switch {
		case v > 30:
			critical = append(critical, fmt.Sprintf("Severe tachypnea (RR %.0f)", v))
		case v > 24:
			warning = append(warning, fmt.Sprintf("Tachypnea (RR %.0f)", v))
		}
	}
	if v, ok := rec.Vital(model.VitalTempF); ok && v >= 103 {
		warning = append(warning, fmt.Sprintf("High fever (%.1fF)", v))
	}
	return critical, warning
}

// priorityScore layers acuity modifiers over the level's base score.
func priorityScore(level int, rec model.PatientRecord, primary *model.DiagnosisResult, critical, warning []string) int {
	score := baseScore[level]
	switch {
	case rec.Age > 75:
		score += 5
	case rec.Age > 65:
		score += 2
	}
	score += 10 * len(critical)
	score += 5 * len(warning)
	if primary != nil && primary.Confidence > 0.8 {
		score += 3
	}
	if score > 100 {
		score = 100
	}
	return score
}

func disposition(level int, primary *model.DiagnosisResult) string {
	switch level {
	case 1:
		return "Resuscitation bay, immediate physician at bedside"
	case 2:
		if primary != nil &&
			(primary.Diagnosis == model.DxNSTEMI || primary.Diagnosis == model.DxUnstableAngina) {
			return "Admit Telemetry Floor (likely)"
		}
		return "Admit vs Observation"
	case 3:
		return "ED evaluation, observation vs discharge"
	case 4:
		return "Fast track, discharge expected"
	default:
		return "Fast track or clinic referral"
	}
}
