package agents

import (
	"mediq/internal/features"
	"mediq/internal/model"
)

// NewGastroAgent builds the gastroenterology specialty. Five weighted
// scorers cover the GI mimics of cardiac chest pain; hypotheses below
// the evidence floor are never emitted.
func NewGastroAgent(params Params) Agent {
	return newFractal(gastroStrategy{}, params)
}

type gastroStrategy struct{}

func (gastroStrategy) name() string               { return "gastroenterology" }
func (gastroStrategy) specialty() model.Specialty { return model.SpecialtyGastro }

func (g gastroStrategy) hypotheses(rec model.PatientRecord, depth int) []model.DiagnosisResult {
	f := features.ExtractGastro(rec)

	var hyps []model.DiagnosisResult
	for _, scorer := range []func(features.Gastro, int) (model.DiagnosisResult, bool){
		g.scoreGERD,
		g.scoreSpasm,
		g.scorePUD,
		g.scoreBiliary,
		g.scorePancreatitis,
	} {
		if h, ok := scorer(f, depth); ok {
			hyps = append(hyps, h)
		}
	}
	return hyps
}

func (gastroStrategy) scoreGERD(f features.Gastro, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.Burning {
		score += 0.25
	}
	if f.MealRelated {
		score += 0.20
	}
	if f.Positional {
		score += 0.20
	}
	if f.AntacidRelief {
		score += 0.25
	}
	if f.HistoryGERD {
		score += 0.30
	}
	if f.Age >= 40 && f.Age <= 70 {
		score += 0.10
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}

	risk := model.RiskLow
	recs := []string{"Trial of PPI therapy", "Dietary modification counseling"}
	if f.Dysphagia || f.Age > 60 {
		// Alarm features warrant endoscopy before symptomatic treatment.
		risk = model.RiskModerate
		recs = append([]string{"Urgent EGD for alarm features"}, recs...)
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxGERD,
		Confidence:      capScore(score),
		Risk:            risk,
		Reasoning:       "Burning, positional, meal-related pattern consistent with reflux",
		Recommendations: recs,
		Evidence:        map[string]interface{}{"score": capScore(score), "alarm": f.Dysphagia || f.Age > 60},
		AgentName:       "gastroenterology",
		Depth:           depth,
	}, true
}

func (gastroStrategy) scoreSpasm(f features.Gastro, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.Dysphagia {
		score += 0.35
	}
	if f.Burning {
		score += 0.15
	}
	if f.NormalTroponin {
		score += 0.20
	}
	if score > 0.7 {
		score = 0.7
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxEsophagealSpasm,
		Confidence:      score,
		Risk:            model.RiskLow,
		Reasoning:       "Dysphagia with retrosternal discomfort suggests esophageal dysmotility",
		Recommendations: []string{"Esophageal manometry referral", "Calcium channel blocker trial"},
		AgentName:       "gastroenterology",
		Depth:           depth,
	}, true
}

func (gastroStrategy) scorePUD(f features.Gastro, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.Epigastric {
		score += 0.30
	}
	if f.Burning {
		score += 0.20
	}
	if f.HistoryPUD {
		score += 0.35
	}
	if f.NSAIDUse {
		score += 0.25
	}
	if f.Nausea {
		score += 0.15
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}

	risk := model.RiskLow
	if f.HistoryPUD {
		risk = model.RiskModerate
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxPUD,
		Confidence:      capScore(score),
		Risk:            risk,
		Reasoning:       "Epigastric, meal-related pain pattern consistent with peptic ulcer",
		Recommendations: []string{"H. pylori testing", "Discontinue NSAIDs", "PPI therapy"},
		AgentName:       "gastroenterology",
		Depth:           depth,
	}, true
}

func (gastroStrategy) scoreBiliary(f features.Gastro, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	if f.RUQ {
		score += 0.35
	}
	if f.Female {
		score += 0.15
	}
	if f.Age >= 40 {
		score += 0.10
	}
	if f.MealRelated {
		score += 0.25
	}
	if f.BackRadiation {
		score += 0.20
	}
	if f.HistoryGallstones {
		score += 0.40
	}
	if f.WBCOver11 {
		score += 0.15
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxBiliaryColic,
		Confidence:      capScore(score),
		Risk:            model.RiskModerate,
		Reasoning:       "Right upper quadrant postprandial pain pattern",
		Recommendations: []string{"Right upper quadrant ultrasound", "LFTs and lipase"},
		AgentName:       "gastroenterology",
		Depth:           depth,
	}, true
}

// scorePancreatitis requires at least one hard criterion (characteristic
// pain or enzyme elevation) before risk factors can contribute.
func (gastroStrategy) scorePancreatitis(f features.Gastro, depth int) (model.DiagnosisResult, bool) {
	score := 0.0
	criteria := 0
	if f.Epigastric && f.BackRadiation {
		score += 0.35
		criteria++
	}
	if f.LipaseElevated {
		score += 0.50
		criteria++
	} else if f.AmylaseElevated {
		score += 0.45
		criteria++
	}
	if criteria == 0 {
		return model.DiagnosisResult{}, false
	}
	if f.AlcoholUse {
		score += 0.20
	}
	if f.HistoryGallstones {
		score += 0.25
	}
	if score <= 0.3 {
		return model.DiagnosisResult{}, false
	}

	risk := model.RiskModerate
	if score > 0.7 {
		risk = model.RiskHigh
	}
	return model.DiagnosisResult{
		Diagnosis:       model.DxPancreatitis,
		Confidence:      capScore(score),
		Risk:            risk,
		Reasoning:       "Epigastric pain radiating to back with supporting enzymes",
		Recommendations: []string{"Serum lipase", "Aggressive IV fluid resuscitation", "NPO status"},
		Evidence:        map[string]interface{}{"criteria_met": criteria},
		AgentName:       "gastroenterology",
		Depth:           depth,
	}, true
}

func (gastroStrategy) subspecialties([]model.DiagnosisResult) []string { return nil }
func (gastroStrategy) child(string) strategy                           { return nil }

func (gastroStrategy) fallback(rec model.PatientRecord, depth int) model.DiagnosisResult {
	return model.DiagnosisResult{
		Diagnosis:  model.DxUnknown,
		Confidence: 0.1,
		Risk:       model.RiskLow,
		Reasoning:  "No gastrointestinal pattern identified",
		AgentName:  "gastroenterology",
		Depth:      depth,
	}
}
