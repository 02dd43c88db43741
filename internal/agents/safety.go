package agents

import (
	"context"
	"fmt"

	"mediq/internal/features"
	"mediq/internal/model"
)

// SafetyAgent screens every record for immediately life-threatening
// patterns before the specialty differential is even considered. It
// never recurses: each rule is a hard trigger, not a hypothesis.
type SafetyAgent struct{}

func NewSafetyAgent() *SafetyAgent { return &SafetyAgent{} }

func (a *SafetyAgent) Name() string               { return "safety_screening" }
func (a *SafetyAgent) Specialty() model.Specialty { return model.SpecialtySafety }

func (a *SafetyAgent) Analyze(ctx context.Context, rec model.PatientRecord) (model.DiagnosisResult, error) {
	if err := ctx.Err(); err != nil {
		return model.DiagnosisResult{}, err
	}

	if res, ok := a.checkSTEMI(rec); ok {
		return res, nil
	}
	if res, ok := a.checkMassivePE(rec); ok {
		return res, nil
	}
	if res, ok := a.checkSepsis(rec); ok {
		return res, nil
	}

	// Nothing tripped. Zero confidence keeps this sentinel from ever
	// winning consolidation.
	return model.DiagnosisResult{
		Diagnosis:  model.DxUnknown,
		Confidence: 0,
		Risk:       model.RiskLow,
		Reasoning:  "No immediate life threats identified on safety screen",
		AgentName:  a.Name(),
	}, nil
}

func (a *SafetyAgent) checkSTEMI(rec model.PatientRecord) (model.DiagnosisResult, bool) {
	trop := features.LatestTroponin(rec)
	if trop < features.TroponinHigh || features.TroponinTrend(rec) != features.TrendRising {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:  model.DxSTEMI,
		Confidence: 0.95,
		Risk:       model.RiskCritical,
		Reasoning:  fmt.Sprintf("Markedly elevated troponin %.2f ng/mL with rising trend", trop),
		Recommendations: []string{
			"Activate cardiac catheterization lab immediately",
			"Obtain 12-lead EKG now",
			"Aspirin 325mg chewed unless contraindicated",
		},
		Evidence:  map[string]interface{}{"troponin": trop, "trend": string(features.TrendRising)},
		AgentName: a.Name(),
	}, true
}

func (a *SafetyAgent) checkMassivePE(rec model.PatientRecord) (model.DiagnosisResult, bool) {
	sbp := rec.VitalOr(model.VitalBPSys, 120)
	spo2 := rec.VitalOr(model.VitalSpO2, 100)
	if sbp >= 90 || spo2 >= 90 {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:  model.DxMassivePE,
		Confidence: 0.85,
		Risk:       model.RiskCritical,
		Reasoning:  fmt.Sprintf("Hypotension (SBP %.0f) with severe hypoxia (SpO2 %.0f%%)", sbp, spo2),
		Recommendations: []string{
			"Stat CT pulmonary angiogram",
			"Prepare for possible thrombolysis",
			"Supplemental oxygen, large-bore IV access",
		},
		Evidence:  map[string]interface{}{"bp_sys": sbp, "oxygen_saturation": spo2},
		AgentName: a.Name(),
	}, true
}

// checkSepsis scores a qSOFA-style screen. Temperature contributes a
// half point in either direction of derangement.
func (a *SafetyAgent) checkSepsis(rec model.PatientRecord) (model.DiagnosisResult, bool) {
	score := 0.0
	if rec.VitalOr(model.VitalRespRate, 16) >= 22 {
		score++
	}
	if rec.VitalOr(model.VitalBPSys, 120) <= 100 {
		score++
	}
	if temp := rec.VitalOr(model.VitalTempF, 98.6); temp >= 101 || temp <= 96.8 {
		score += 0.5
	}
	if score < 2 {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:  model.DxSepsis,
		Confidence: 0.75,
		Risk:       model.RiskCritical,
		Reasoning:  fmt.Sprintf("qSOFA-style screen positive (score %.1f)", score),
		Recommendations: []string{
			"Draw blood cultures before antibiotics",
			"Begin broad-spectrum antibiotics within one hour",
			"30 mL/kg crystalloid bolus for hypotension",
		},
		Evidence:  map[string]interface{}{"qsofa_score": score},
		AgentName: a.Name(),
	}, true
}
