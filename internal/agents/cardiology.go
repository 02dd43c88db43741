package agents

import (
	"fmt"

	"mediq/internal/features"
	"mediq/internal/model"
)

// NewCardiologyAgent builds the cardiology specialty. Its differential
// keys almost entirely off the troponin value and trend; an ACS
// sub-agent with a HEART-style score refines uncertain cases.
func NewCardiologyAgent(params Params) Agent {
	return newFractal(cardiologyStrategy{}, params)
}

type cardiologyStrategy struct{}

func (cardiologyStrategy) name() string               { return "cardiology" }
func (cardiologyStrategy) specialty() model.Specialty { return model.SpecialtyCardiology }

func (cardiologyStrategy) hypotheses(rec model.PatientRecord, depth int) []model.DiagnosisResult {
	trop := features.LatestTroponin(rec)
	trend := features.TroponinTrend(rec)
	rising := trend == features.TrendRising

	switch {
	case trop >= features.TroponinHigh:
		conf := 0.7
		if rising {
			conf = 0.85
		}
		return []model.DiagnosisResult{{
			Diagnosis:  model.DxNSTEMI,
			Confidence: conf,
			Risk:       model.RiskHigh,
			Reasoning:  fmt.Sprintf("Troponin %.2f ng/mL markedly elevated, trend %s", trop, trend),
			Recommendations: []string{
				"Serial troponins q3h",
				"Continuous telemetry monitoring",
				"Cardiology consult",
			},
			Evidence:  map[string]interface{}{"troponin": trop, "trend": string(trend)},
			AgentName: "cardiology",
			Depth:     depth,
		}}
	case trop >= features.TroponinElevated:
		conf := 0.5
		if rising {
			conf = 0.7
		}
		return []model.DiagnosisResult{{
			Diagnosis:  model.DxNSTEMI,
			Confidence: conf,
			Risk:       model.RiskHigh,
			Reasoning:  fmt.Sprintf("Troponin %.2f ng/mL above reference, trend %s", trop, trend),
			Recommendations: []string{
				"Serial troponins q3h",
				"12-lead EKG and telemetry",
			},
			Evidence:  map[string]interface{}{"troponin": trop, "trend": string(trend)},
			AgentName: "cardiology",
			Depth:     depth,
		}}
	default:
		return []model.DiagnosisResult{{
			Diagnosis:  model.DxStableAngina,
			Confidence: 0.3,
			Risk:       model.RiskModerate,
			Reasoning:  fmt.Sprintf("Troponin %.2f ng/mL within normal limits", trop),
			Recommendations: []string{
				"Outpatient stress testing",
				"Risk factor modification",
			},
			Evidence:  map[string]interface{}{"troponin": trop},
			AgentName: "cardiology",
			Depth:     depth,
		}}
	}
}

// subspecialties escalates to the ACS sub-agent while an ischemic
// hypothesis exists but has not yet reached committing confidence.
func (cardiologyStrategy) subspecialties(hyps []model.DiagnosisResult) []string {
	for _, h := range hyps {
		ischemic := h.Diagnosis == model.DxNSTEMI || h.Diagnosis == model.DxUnstableAngina
		if ischemic && h.Confidence < 0.85 {
			return []string{"acs"}
		}
	}
	return nil
}

func (cardiologyStrategy) child(tag string) strategy {
	if tag == "acs" {
		return acsStrategy{}
	}
	return nil
}

func (cardiologyStrategy) fallback(rec model.PatientRecord, depth int) model.DiagnosisResult {
	return model.DiagnosisResult{
		Diagnosis:  model.DxUnknown,
		Confidence: 0.1,
		Risk:       model.RiskModerate,
		Reasoning:  "Insufficient data for cardiac differential",
		AgentName:  "cardiology",
		Depth:      depth,
	}
}

// acsStrategy is the acute-coronary-syndrome sub-agent. It computes a
// HEART-style score and splits NSTEMI from unstable angina on troponin.
type acsStrategy struct{}

func (acsStrategy) name() string               { return "cardiology/acs" }
func (acsStrategy) specialty() model.Specialty { return model.SpecialtyCardiology }

// heartScore approximates the HEART score from the record. EKG findings
// are not available in this data set and contribute zero.
func heartScore(rec model.PatientRecord) int {
	// History component: every patient here presents with chest pain,
	// which scores moderately suspicious.
	score := 2

	switch {
	case rec.Age >= 65:
		score += 2
	case rec.Age >= 45:
		score++
	}

	switch rf := features.CardiacRiskFactors(rec); {
	case rf >= 3:
		score += 2
	case rf >= 1:
		score++
	}

	switch trop := features.LatestTroponin(rec); {
	case trop >= 3*features.TroponinNormal:
		score += 2
	case trop >= features.TroponinNormal:
		score++
	}

	return score
}

func (s acsStrategy) hypotheses(rec model.PatientRecord, depth int) []model.DiagnosisResult {
	trop := features.LatestTroponin(rec)
	trend := features.TroponinTrend(rec)
	heart := heartScore(rec)

	if trop >= features.TroponinElevated {
		conf := 0.7
		if trend == features.TrendRising {
			conf = 0.85
		}
		risk := model.RiskModerate
		if heart >= 7 {
			risk = model.RiskHigh
		}
		return []model.DiagnosisResult{{
			Diagnosis:  model.DxNSTEMI,
			Confidence: conf,
			Risk:       risk,
			Reasoning:  fmt.Sprintf("Elevated troponin %.2f ng/mL with HEART score %d", trop, heart),
			Recommendations: []string{
				"Dual antiplatelet therapy per ACS protocol",
				"Anticoagulation with enoxaparin or heparin",
				"Early invasive strategy evaluation",
			},
			Evidence:  map[string]interface{}{"troponin": trop, "heart_score": heart, "trend": string(trend)},
			AgentName: s.name(),
			Depth:     depth,
		}}
	}

	return []model.DiagnosisResult{{
		Diagnosis:  model.DxUnstableAngina,
		Confidence: 0.6,
		Risk:       model.RiskModerate,
		Reasoning:  fmt.Sprintf("Anginal presentation with normal troponin, HEART score %d", heart),
		Recommendations: []string{
			"Serial troponins to exclude infarction",
			"Stress testing prior to discharge",
		},
		Evidence:  map[string]interface{}{"heart_score": heart},
		AgentName: s.name(),
		Depth:     depth,
	}}
}

func (acsStrategy) subspecialties([]model.DiagnosisResult) []string { return nil }
func (acsStrategy) child(string) strategy                           { return nil }

func (s acsStrategy) fallback(rec model.PatientRecord, depth int) model.DiagnosisResult {
	return model.DiagnosisResult{
		Diagnosis:  model.DxUnknown,
		Confidence: 0.1,
		Risk:       model.RiskModerate,
		Reasoning:  "Insufficient data for ACS stratification",
		AgentName:  s.name(),
		Depth:      depth,
	}
}
