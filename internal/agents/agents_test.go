package agents

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"mediq/internal/model"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestUncertainty(t *testing.T) {
	tests := []struct {
		name  string
		confs []float64
		want  float64
	}{
		{"empty", nil, 1.0},
		{"single", []float64{0.9}, 1.0},
		{"all zero", []float64{0, 0, 0}, 1.0},
		{"uniform", []float64{0.5, 0.5}, 1.0},
		{"dominant", []float64{0.9, 0.1}, 0.469},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Uncertainty(tt.confs)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Uncertainty(%v) = %.3f, want %.3f", tt.confs, got, tt.want)
			}
		})
	}
}

// countingStrategy records child spawns so the recursion gate can be
// observed directly.
type countingStrategy struct {
	conf    float64
	spawned *int
}

func (countingStrategy) name() string               { return "counting" }
func (countingStrategy) specialty() model.Specialty { return model.SpecialtyCardiology }

func (s countingStrategy) hypotheses(model.PatientRecord, int) []model.DiagnosisResult {
	return []model.DiagnosisResult{
		{Diagnosis: model.DxUnknown, Confidence: s.conf, Risk: model.RiskLow},
		{Diagnosis: model.DxGERD, Confidence: s.conf, Risk: model.RiskLow},
	}
}

func (countingStrategy) subspecialties([]model.DiagnosisResult) []string { return []string{"sub"} }

func (s countingStrategy) child(string) strategy {
	*s.spawned++
	return nil
}

func (countingStrategy) fallback(model.PatientRecord, int) model.DiagnosisResult {
	return model.DiagnosisResult{Diagnosis: model.DxUnknown, Risk: model.RiskLow}
}

func TestRecursionGate(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		maxDepth  int
		recurses  bool
	}{
		{"flat distribution recurses", 0.85, 3, true},
		{"threshold one disables recursion", 1.0, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawned := 0
			f := newFractal(countingStrategy{conf: 0.5, spawned: &spawned},
				Params{MaxDepth: tt.maxDepth, ConfidenceThreshold: tt.threshold})
			if _, err := f.Analyze(context.Background(), model.PatientRecord{}); err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if got := spawned > 0; got != tt.recurses {
				t.Errorf("recursed = %v, want %v", got, tt.recurses)
			}
		})
	}
}

func TestSafetyAgent(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		rec      model.PatientRecord
		wantDx   model.Diagnosis
		wantRisk model.RiskLevel
	}{
		{
			name: "rising high troponin flags STEMI",
			rec: model.PatientRecord{
				Labs: map[string][]model.LabPoint{
					model.LabTroponin: {
						{Time: now.Add(-2 * time.Hour), Value: 0.4},
						{Time: now, Value: 0.8},
					},
				},
			},
			wantDx:   model.DxSTEMI,
			wantRisk: model.RiskCritical,
		},
		{
			name: "shock with hypoxia flags massive PE",
			rec: model.PatientRecord{
				Vitals: map[string]float64{
					model.VitalBPSys: 82,
					model.VitalSpO2:  84,
				},
			},
			wantDx:   model.DxMassivePE,
			wantRisk: model.RiskCritical,
		},
		{
			name: "qSOFA two points flags sepsis",
			rec: model.PatientRecord{
				Vitals: map[string]float64{
					model.VitalRespRate: 24,
					model.VitalBPSys:    95,
				},
			},
			wantDx:   model.DxSepsis,
			wantRisk: model.RiskCritical,
		},
		{
			name:     "clean record returns zero-confidence sentinel",
			rec:      model.PatientRecord{},
			wantDx:   model.DxUnknown,
			wantRisk: model.RiskLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewSafetyAgent().Analyze(context.Background(), tt.rec)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if res.Diagnosis != tt.wantDx || res.Risk != tt.wantRisk {
				t.Errorf("got %s/%s, want %s/%s", res.Diagnosis, res.Risk, tt.wantDx, tt.wantRisk)
			}
			if tt.wantDx == model.DxUnknown && res.Confidence != 0 {
				t.Errorf("sentinel confidence = %v, want 0", res.Confidence)
			}
		})
	}
}

func TestCardiologyACSRefinement(t *testing.T) {
	rec := demoRecord(t, "DEMO_NSTEMI_001")

	res, err := NewCardiologyAgent(DefaultParams()).Analyze(context.Background(), rec)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Diagnosis != model.DxNSTEMI {
		t.Fatalf("diagnosis = %s, want NSTEMI", res.Diagnosis)
	}
	if res.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85 for rising troponin", res.Confidence)
	}
	// The ACS child rates the case MODERATE on its HEART score, but the
	// parent's own elevated-troponin hypothesis carries HIGH and a child
	// never lowers the risk below that.
	if res.Risk != model.RiskHigh {
		t.Errorf("risk = %s, want HIGH", res.Risk)
	}
	if len(res.Children) == 0 {
		t.Error("expected ACS sub-agent result attached as child")
	}
}

func TestHeartScore(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		rec  model.PatientRecord
		want int
	}{
		{
			// History 2, age 58 gives 1, one risk factor 1, troponin
			// at 7x normal gives 2.
			name: "nondescript chest pain still carries history points",
			rec: model.PatientRecord{
				Age:            58,
				ChiefComplaint: "chest pain",
				ICDCodes:       []string{"4019"},
				Labs: map[string][]model.LabPoint{
					model.LabTroponin: {{Time: now, Value: 0.28}},
				},
			},
			want: 6,
		},
		{
			// History 2, troponin defaults to the reference limit for 1.
			name: "young patient without risk factors",
			rec: model.PatientRecord{
				Age:            30,
				ChiefComplaint: "chest pain",
			},
			want: 3,
		},
		{
			// History 2, age 2, three risk factors 2, troponin 2.
			name: "elderly with stacked risk factors",
			rec: model.PatientRecord{
				Age:            72,
				ChiefComplaint: "chest pressure",
				ICDCodes:       []string{"4019", "25000", "25002"},
				Labs: map[string][]model.LabPoint{
					model.LabTroponin: {{Time: now, Value: 0.30}},
				},
			},
			want: 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := heartScore(tt.rec); got != tt.want {
				t.Errorf("heartScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGastroPancreatitisRequiresHardCriterion(t *testing.T) {
	// Alcohol use and gallstone history alone never reach a hypothesis.
	rec := model.PatientRecord{
		ChiefComplaint: "chest pain after drinking alcohol",
		ICDCodes:       []string{"5751"},
	}
	hyps := gastroStrategy{}.hypotheses(rec, 0)
	for _, h := range hyps {
		if h.Diagnosis == model.DxPancreatitis {
			t.Fatal("pancreatitis emitted without pain pattern or enzyme criterion")
		}
	}

	// Adding an elevated lipase crosses the threshold.
	rec.Labs = map[string][]model.LabPoint{
		model.LabLipase: {{Time: time.Now(), Value: 400}},
	}
	hyps = gastroStrategy{}.hypotheses(rec, 0)
	found := false
	for _, h := range hyps {
		if h.Diagnosis == model.DxPancreatitis {
			found = true
			if h.Risk != model.RiskHigh {
				t.Errorf("risk = %s, want HIGH for score above 0.7", h.Risk)
			}
		}
	}
	if !found {
		t.Fatal("pancreatitis not emitted despite elevated lipase")
	}
}

func TestGastroGERDAlarmFeatures(t *testing.T) {
	rec := model.PatientRecord{
		Age:            67,
		ChiefComplaint: "burning chest pain after meals, relieved by antacids",
		Labs: map[string][]model.LabPoint{
			model.LabTroponin: {{Time: time.Now(), Value: 0.01}},
		},
	}
	hyps := gastroStrategy{}.hypotheses(rec, 0)
	for _, h := range hyps {
		if h.Diagnosis == model.DxGERD {
			if h.Risk != model.RiskModerate {
				t.Errorf("risk = %s, want MODERATE with alarm age", h.Risk)
			}
			return
		}
	}
	t.Fatal("GERD not emitted for classic reflux presentation")
}

func TestGastroGERDEmitsOnBurningAlone(t *testing.T) {
	// Burning quality plus the middle-age bracket clears the evidence
	// floor even without meal relation or antacid relief.
	rec := model.PatientRecord{
		Age:            45,
		ChiefComplaint: "burning chest pain",
	}
	hyps := gastroStrategy{}.hypotheses(rec, 0)
	for _, h := range hyps {
		if h.Diagnosis == model.DxGERD {
			if math.Abs(h.Confidence-0.35) > 1e-9 {
				t.Errorf("confidence = %v, want 0.35", h.Confidence)
			}
			if h.Risk != model.RiskLow {
				t.Errorf("risk = %s, want LOW without alarm features", h.Risk)
			}
			return
		}
	}
	t.Fatal("GERD not emitted for burning pain in a 45-year-old")
}

func TestGastroBiliaryClassicPresentation(t *testing.T) {
	// Middle-aged woman with postprandial RUQ pain radiating to the back
	// stacks every biliary feature and saturates the score.
	rec := model.PatientRecord{
		Age:            50,
		Sex:            "F",
		ChiefComplaint: "right upper quadrant pain after eating, radiating to the back",
	}
	hyps := gastroStrategy{}.hypotheses(rec, 0)
	for _, h := range hyps {
		if h.Diagnosis == model.DxBiliaryColic {
			if h.Confidence != 1.0 {
				t.Errorf("confidence = %v, want capped at 1.0", h.Confidence)
			}
			if h.Risk != model.RiskModerate {
				t.Errorf("risk = %s, want MODERATE", h.Risk)
			}
			return
		}
	}
	t.Fatal("biliary colic not emitted for the classic presentation")
}

func TestMSKStrainAfterTrauma(t *testing.T) {
	// Trauma counts toward the inciting-event term just like exertion.
	rec := model.PatientRecord{
		Age:            30,
		ChiefComplaint: "chest pain after a fall, hurts when moving, left side only",
		Labs: map[string][]model.LabPoint{
			model.LabTroponin: {{Time: time.Now(), Value: 0.01}},
		},
	}
	hyps := mskStrategy{}.hypotheses(rec, 0)
	for _, h := range hyps {
		if h.Diagnosis == model.DxMuscleStrain {
			if h.Confidence != 1.0 {
				t.Errorf("confidence = %v, want capped at 1.0", h.Confidence)
			}
			return
		}
	}
	t.Fatal("muscle strain not emitted for a post-fall presentation")
}

func TestMSKCostochondritis(t *testing.T) {
	rec := demoRecord(t, "DEMO_MSK_001")
	res, err := NewMSKAgent(DefaultParams()).Analyze(context.Background(), rec)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Diagnosis != model.DxCostochondritis {
		t.Errorf("diagnosis = %s, want Costochondritis", res.Diagnosis)
	}
	if res.Risk != model.RiskLow {
		t.Errorf("risk = %s, want LOW", res.Risk)
	}
}

func TestPulmonaryPEOverride(t *testing.T) {
	strat := pulmonaryStrategy{}

	// At exactly 0.4 the override must not fire.
	hyps := []model.DiagnosisResult{
		{Diagnosis: model.DxPneumonia, Confidence: 1.0, Risk: model.RiskModerate},
		{Diagnosis: model.DxPE, Confidence: 0.4, Risk: model.RiskHigh},
	}
	if got := strat.override(hyps); got != nil {
		t.Errorf("override fired at exactly 0.4, want nil")
	}

	hyps[1].Confidence = 0.41
	got := strat.override(hyps)
	if got == nil || got.Diagnosis != model.DxPE {
		t.Errorf("override = %v, want PE above 0.4", got)
	}
}

func TestPulmonaryPECritical(t *testing.T) {
	rec := demoRecord(t, "DEMO_PE_001")
	res, err := NewPulmonaryAgent(DefaultParams()).Analyze(context.Background(), rec)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Diagnosis != model.DxPE {
		t.Errorf("diagnosis = %s, want Pulmonary Embolism", res.Diagnosis)
	}
	if res.Risk != model.RiskCritical {
		t.Errorf("risk = %s, want CRITICAL", res.Risk)
	}
}

type fixedAgent struct {
	agentName string
	result    model.DiagnosisResult
	err       error
	panics    bool
}

func (a fixedAgent) Name() string               { return a.agentName }
func (a fixedAgent) Specialty() model.Specialty { return model.SpecialtyCardiology }

func (a fixedAgent) Analyze(context.Context, model.PatientRecord) (model.DiagnosisResult, error) {
	if a.panics {
		panic("boom")
	}
	return a.result, a.err
}

func TestOrchestratorLifeThreatWins(t *testing.T) {
	// A confident benign diagnosis never outranks an emergent one.
	orch := NewOrchestrator(testLogger(),
		fixedAgent{agentName: "benign", result: model.DiagnosisResult{
			Diagnosis: model.DxGERD, Confidence: 0.95, Risk: model.RiskLow,
		}},
		fixedAgent{agentName: "emergent", result: model.DiagnosisResult{
			Diagnosis: model.DxPE, Confidence: 0.5, Risk: model.RiskHigh,
		}},
	)
	state, err := orch.Assess(context.Background(), model.PatientRecord{PatientID: "P1"})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if state.Primary.Diagnosis != model.DxPE {
		t.Errorf("primary = %s, want PE despite lower confidence", state.Primary.Diagnosis)
	}
}

func TestOrchestratorIsolatesFailures(t *testing.T) {
	orch := NewOrchestrator(testLogger(),
		fixedAgent{agentName: "faulty", panics: true},
		fixedAgent{agentName: "healthy", result: model.DiagnosisResult{
			Diagnosis: model.DxGERD, Confidence: 0.6, Risk: model.RiskLow,
		}},
	)
	state, err := orch.Assess(context.Background(), model.PatientRecord{PatientID: "P1"})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if state.Primary.Diagnosis != model.DxGERD {
		t.Errorf("primary = %s, want GERD from surviving agent", state.Primary.Diagnosis)
	}
	found := false
	for _, alert := range state.SafetyAlerts {
		if alert == "AGENT_ERROR:faulty" {
			found = true
		}
	}
	if !found {
		t.Errorf("safety alerts = %v, want AGENT_ERROR:faulty", state.SafetyAlerts)
	}
	if len(state.AgentResults) != 1 {
		t.Errorf("agent results = %d, want 1", len(state.AgentResults))
	}
}

func TestOrchestratorAllFailed(t *testing.T) {
	orch := NewOrchestrator(testLogger(), fixedAgent{agentName: "faulty", panics: true})
	state, err := orch.Assess(context.Background(), model.PatientRecord{PatientID: "P1"})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if state.Primary == nil || state.Primary.Diagnosis != model.DxUnknown {
		t.Fatalf("primary = %v, want Unknown placeholder", state.Primary)
	}
	if state.Primary.Confidence != 0 || state.Primary.Risk != model.RiskLow {
		t.Errorf("placeholder = %v/%v, want 0/LOW", state.Primary.Confidence, state.Primary.Risk)
	}
}

func TestOrchestratorEndToEnd(t *testing.T) {
	tests := []struct {
		patientID string
		wantDx    model.Diagnosis
		wantRisk  model.RiskLevel
	}{
		{"DEMO_PE_001", model.DxPE, model.RiskCritical},
		{"DEMO_NSTEMI_001", model.DxNSTEMI, model.RiskHigh},
		{"DEMO_PNA_001", model.DxPneumonia, model.RiskModerate},
		{"DEMO_MSK_001", model.DxCostochondritis, model.RiskLow},
	}
	orch := NewDefaultOrchestrator(testLogger(), DefaultParams())
	for _, tt := range tests {
		t.Run(tt.patientID, func(t *testing.T) {
			rec := demoRecord(t, tt.patientID)
			state, err := orch.Assess(context.Background(), rec)
			if err != nil {
				t.Fatalf("Assess: %v", err)
			}
			if state.Primary.Diagnosis != tt.wantDx {
				t.Errorf("primary = %s, want %s", state.Primary.Diagnosis, tt.wantDx)
			}
			if state.Primary.Risk != tt.wantRisk {
				t.Errorf("risk = %s, want %s", state.Primary.Risk, tt.wantRisk)
			}
		})
	}
}

func TestOrchestratorDeterministic(t *testing.T) {
	orch := NewDefaultOrchestrator(testLogger(), DefaultParams())
	rec := demoRecord(t, "DEMO_NSTEMI_001")

	first, err := orch.Assess(context.Background(), rec)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := orch.Assess(context.Background(), rec)
		if err != nil {
			t.Fatalf("Assess: %v", err)
		}
		if again.Primary.Diagnosis != first.Primary.Diagnosis ||
			again.Primary.Confidence != first.Primary.Confidence ||
			again.Primary.Risk != first.Primary.Risk {
			t.Fatalf("run %d diverged: %v vs %v", i, again.Primary, first.Primary)
		}
	}
}

func demoRecord(t *testing.T, patientID string) model.PatientRecord {
	t.Helper()
	for _, rec := range model.DemoRecords() {
		if rec.PatientID == patientID {
			return rec
		}
	}
	t.Fatalf("no demo record %s", patientID)
	return model.PatientRecord{}
}
