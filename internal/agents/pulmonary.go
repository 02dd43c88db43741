package agents

import (
	"mediq/internal/features"
	"mediq/internal/model"
)

// NewPulmonaryAgent builds the respiratory specialty. Pulmonary embolism
// gets special handling: once its score clears 0.4 it overrides any
// higher-scoring benign hypothesis, since a missed PE is the costly error.
func NewPulmonaryAgent(params Params) Agent {
	return newFractal(pulmonaryStrategy{}, params)
}

type pulmonaryStrategy struct{}

func (pulmonaryStrategy) name() string               { return "pulmonary" }
func (pulmonaryStrategy) specialty() model.Specialty { return model.SpecialtyPulmonary }

func (p pulmonaryStrategy) hypotheses(rec model.PatientRecord, depth int) []model.DiagnosisResult {
	f := features.ExtractPulmonary(rec)

	var hyps []model.DiagnosisResult
	for _, scorer := range []func(features.Pulmonary, int) (model.DiagnosisResult, bool){
		p.scorePE,
		p.scorePneumothorax,
		p.scorePneumonia,
		p.scorePleuritis,
	} {
		if h, ok := scorer(f, depth); ok {
			hyps = append(hyps, h)
		}
	}
	return hyps
}

func (pulmonaryStrategy) scorePE(f features.Pulmonary, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.LegSwelling {
		score += 0.30
	}
	if f.HeartRateOver100 {
		score += 0.20
	}
	if f.RecentSurgery || f.Immobilization {
		score += 0.25
	}
	if f.Hemoptysis {
		score += 0.15
	}
	if f.Dyspnea && f.SuddenOnset {
		score += 0.25
	}
	if f.Hypoxia {
		score += 0.30
	}
	if f.Pleuritic {
		score += 0.15
	}
	if f.ElevatedDDimer {
		score += 0.20
	}
	if f.Age > 60 {
		score += 0.10
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}

	risk := model.RiskHigh
	if score > 0.6 {
		risk = model.RiskCritical
	}
	return model.DiagnosisResult{
		Diagnosis:  model.DxPE,
		Confidence: capScore(score),
		Risk:       risk,
		Reasoning:  "Acute dyspnea with hypoxia and thrombotic risk factors",
		Recommendations: []string{
			"CT pulmonary angiogram",
			"Anticoagulation pending imaging if risk permits",
			"Continuous pulse oximetry",
		},
		AgentName: "pulmonary",
		Depth:     depth,
	}, true
}

func (pulmonaryStrategy) scorePneumothorax(f features.Pulmonary, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.SuddenOnset {
		score += 0.35
	}
	if f.Dyspnea {
		score += 0.25
	}
	if f.Pleuritic {
		score += 0.20
	}
	if f.Unilateral {
		score += 0.20
	}
	if f.Age >= 15 && f.Age <= 35 {
		score += 0.15
	}
	if f.Hypoxia {
		score += 0.20
	}
	if f.Tachypnea {
		score += 0.15
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}

	risk := model.RiskModerate
	if score > 0.6 {
		risk = model.RiskHigh
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxPneumothorax,
		Confidence:      capScore(score),
		Risk:            risk,
		Reasoning:       "Sudden unilateral pleuritic pain with dyspnea",
		Recommendations: []string{"Upright chest x-ray", "Bedside ultrasound for lung sliding"},
		AgentName:       "pulmonary",
		Depth:           depth,
	}, true
}

func (pulmonaryStrategy) scorePneumonia(f features.Pulmonary, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.Fever {
		score += 0.30
	}
	if f.Cough {
		score += 0.25
	}
	if f.Dyspnea {
		score += 0.20
	}
	if f.ElevatedWBC {
		score += 0.25
	}
	if f.Tachypnea {
		score += 0.15
	}
	if f.Pleuritic {
		score += 0.15
	}
	if f.Age >= 65 {
		score += 0.15
	}
	if f.Hypoxia {
		score += 0.20
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}

	risk := model.RiskLow
	if score > 0.6 {
		risk = model.RiskModerate
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxPneumonia,
		Confidence:      capScore(score),
		Risk:            risk,
		Reasoning:       "Febrile respiratory illness with leukocytosis",
		Recommendations: []string{"Chest x-ray", "Blood cultures if admitted", "Empiric antibiotics per CAP guidelines"},
		AgentName:       "pulmonary",
		Depth:           depth,
	}, true
}

// scorePleuritis carries a lower evidence floor than its siblings: it is
// the benign remainder once the dangerous mimics are scored.
func (pulmonaryStrategy) scorePleuritis(f features.Pulmonary, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.Pleuritic {
		score += 0.40
	}
	if f.Unilateral {
		score += 0.20
	}
	if f.Dyspnea && !f.Hypoxia {
		score += 0.15
	}
	if f.Fever && !f.ElevatedWBC {
		score += 0.15
	}
	if !f.Hypoxia {
		score += 0.10
	}
	if score <= 0.25 {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxPleuritis,
		Confidence:      capScore(score),
		Risk:            model.RiskLow,
		Reasoning:       "Pleuritic pain without hypoxia or infectious markers",
		Recommendations: []string{"NSAIDs", "Follow-up if symptoms persist beyond one week"},
		AgentName:       "pulmonary",
		Depth:           depth,
	}, true
}

// override keeps PE as the working diagnosis whenever its score clears
// 0.4, even if a benign hypothesis outranks it on raw confidence.
func (pulmonaryStrategy) override(hyps []model.DiagnosisResult) *model.DiagnosisResult {
	for i := range hyps {
		if hyps[i].Diagnosis == model.DxPE && hyps[i].Confidence > 0.4 {
			return &hyps[i]
		}
	}
	return nil
}

func (pulmonaryStrategy) subspecialties([]model.DiagnosisResult) []string { return nil }
func (pulmonaryStrategy) child(string) strategy                           { return nil }

func (pulmonaryStrategy) fallback(rec model.PatientRecord, depth int) model.DiagnosisResult {
	return model.DiagnosisResult{
		Diagnosis:  model.DxUnknown,
		Confidence: 0.1,
		Risk:       model.RiskLow,
		Reasoning:  "No respiratory pattern identified",
		AgentName:  "pulmonary",
		Depth:      depth,
	}
}
