package agents

import (
	"mediq/internal/features"
	"mediq/internal/model"
)

// NewMSKAgent builds the musculoskeletal specialty covering chest-wall
// etiologies. Reproducible tenderness is the dominant discriminator.
func NewMSKAgent(params Params) Agent {
	return newFractal(mskStrategy{}, params)
}

type mskStrategy struct{}

func (mskStrategy) name() string               { return "musculoskeletal" }
func (mskStrategy) specialty() model.Specialty { return model.SpecialtyMSK }

func (m mskStrategy) hypotheses(rec model.PatientRecord, depth int) []model.DiagnosisResult {
	f := features.ExtractMSK(rec)

	var hyps []model.DiagnosisResult
	for _, scorer := range []func(features.MSK, int) (model.DiagnosisResult, bool){
		m.scoreCostochondritis,
		m.scoreStrain,
		m.scoreRibFracture,
	} {
		if h, ok := scorer(f, depth); ok {
			hyps = append(hyps, h)
		}
	}
	return hyps
}

func (mskStrategy) scoreCostochondritis(f features.MSK, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.Reproducible {
		score += 0.40
	}
	if f.Tenderness {
		score += 0.25
	}
	if f.Sharp {
		score += 0.15
	}
	if f.BreathingWorse {
		score += 0.15
	}
	if f.MovementWorse {
		score += 0.10
	}
	switch {
	case f.Age >= 20 && f.Age <= 40:
		score += 0.20
	case f.Age >= 41 && f.Age <= 60:
		score += 0.10
	}
	if f.NormalTroponin {
		score += 0.15
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxCostochondritis,
		Confidence:      capScore(score),
		Risk:            model.RiskLow,
		Reasoning:       "Reproducible chest-wall tenderness in typical demographic",
		Recommendations: []string{"NSAIDs for pain control", "Reassurance, avoid provoking movements"},
		AgentName:       "musculoskeletal",
		Depth:           depth,
	}, true
}

func (mskStrategy) scoreStrain(f features.MSK, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.RecentExertion || f.RecentTrauma {
		score += 0.35
	}
	if f.MovementWorse {
		score += 0.30
	}
	if f.Reproducible {
		score += 0.20
	}
	if f.Unilateral {
		score += 0.15
	}
	if f.Sharp {
		score += 0.10
	}
	if f.Age < 40 {
		score += 0.15
	}
	if f.NormalTroponin {
		score += 0.10
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxMuscleStrain,
		Confidence:      capScore(score),
		Risk:            model.RiskLow,
		Reasoning:       "Movement-related pain after exertion suggests intercostal strain",
		Recommendations: []string{"Rest and NSAIDs", "Return precautions for worsening pain"},
		AgentName:       "musculoskeletal",
		Depth:           depth,
	}, true
}

func (mskStrategy) scoreRibFracture(f features.MSK, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.RecentTrauma {
		score += 0.50
	}
	if f.BreathingWorse {
		score += 0.25
	}
	if f.Tenderness {
		score += 0.20
	}
	if f.Sharp {
		score += 0.15
	}
	if f.Age >= 65 {
		score += 0.20
	}
	if f.Swelling {
		score += 0.15
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}

	risk := model.RiskLow
	if score > 0.7 {
		risk = model.RiskModerate
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxRibFracture,
		Confidence:      capScore(score),
		Risk:            risk,
		Reasoning:       "Post-traumatic pleuritic pain with point tenderness",
		Recommendations: []string{"Chest x-ray with rib views", "Incentive spirometry", "Multimodal analgesia"},
		AgentName:       "musculoskeletal",
		Depth:           depth,
	}, true
}

func (mskStrategy) subspecialties([]model.DiagnosisResult) []string { return nil }
func (mskStrategy) child(string) strategy                           { return nil }

func (mskStrategy) fallback(rec model.PatientRecord, depth int) model.DiagnosisResult {
	return model.DiagnosisResult{
		Diagnosis:  model.DxNonCardiacChestPain,
		Confidence: 0.1,
		Risk:       model.RiskLow,
		Reasoning:  "No musculoskeletal pattern identified",
		AgentName:  "musculoskeletal",
		Depth:      depth,
	}
}
