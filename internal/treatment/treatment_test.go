package treatment

import (
	"testing"
	"time"

	"mediq/internal/model"
)

func labNow(v float64) []model.LabPoint {
	return []model.LabPoint{{Time: time.Now(), Value: v}}
}

func TestContraindications(t *testing.T) {
	tests := []struct {
		name string
		rec  model.PatientRecord
		want []string
	}{
		{"none", model.PatientRecord{Age: 50}, nil},
		{"advanced age", model.PatientRecord{Age: 80}, []string{ReasonAdvancedAge}},
		{
			"renal impairment",
			model.PatientRecord{Age: 50, Labs: map[string][]model.LabPoint{model.LabCreatinine: labNow(2.4)}},
			[]string{ReasonRenalImpairment},
		},
		{
			"thrombocytopenia",
			model.PatientRecord{Age: 50, Labs: map[string][]model.LabPoint{model.LabPlatelets: labNow(32)}},
			[]string{ReasonThrombocytopenia},
		},
		{
			"hypotension",
			model.PatientRecord{Age: 50, Vitals: map[string]float64{model.VitalBPSys: 84}},
			[]string{ReasonHypotension},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Contraindications(tt.rec)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestPlanForNSTEMI(t *testing.T) {
	rec := model.PatientRecord{Age: 58, Vitals: map[string]float64{model.VitalBPSys: 145}}
	plan := PlanFor(rec, model.DiagnosisResult{Diagnosis: model.DxNSTEMI, Risk: model.RiskHigh})

	names := map[string]bool{}
	for _, m := range plan.Medications {
		names[m.Name] = true
	}
	for _, want := range []string{"Aspirin", "Ticagrelor", "Atorvastatin", "Metoprolol tartrate", "Lisinopril"} {
		if !names[want] {
			t.Errorf("medications missing %s: %v", want, plan.Medications)
		}
	}
	if len(plan.WithheldMeds) != 0 {
		t.Errorf("withheld = %v, want none for a clean record", plan.WithheldMeds)
	}
	if len(plan.Monitoring) == 0 || len(plan.FollowUp) == 0 || len(plan.PatientEducation) == 0 {
		t.Error("plan missing monitoring, follow-up, or education content")
	}
}

func TestPlanWithholdsOnContraindication(t *testing.T) {
	rec := model.PatientRecord{
		Age:    58,
		Vitals: map[string]float64{model.VitalBPSys: 85},
	}
	plan := PlanFor(rec, model.DiagnosisResult{Diagnosis: model.DxNSTEMI, Risk: model.RiskHigh})

	withheld := map[string]string{}
	for _, w := range plan.WithheldMeds {
		withheld[w.Name] = w.Reason
	}
	if withheld["Metoprolol tartrate"] != ReasonHypotension {
		t.Errorf("metoprolol not withheld for hypotension: %v", plan.WithheldMeds)
	}
	if withheld["Lisinopril"] != ReasonHypotension {
		t.Errorf("lisinopril not withheld for hypotension: %v", plan.WithheldMeds)
	}
	for _, m := range plan.Medications {
		if m.Name == "Metoprolol tartrate" || m.Name == "Lisinopril" {
			t.Errorf("%s prescribed despite hypotension", m.Name)
		}
	}
}

func TestPlanRespectsAllergy(t *testing.T) {
	rec := model.PatientRecord{Age: 58, Allergies: []string{"Aspirin (hives)"}}
	plan := PlanFor(rec, model.DiagnosisResult{Diagnosis: model.DxSTEMI, Risk: model.RiskCritical})

	for _, m := range plan.Medications {
		if m.Name == "Aspirin" {
			t.Fatal("aspirin prescribed despite documented allergy")
		}
	}
	found := false
	for _, w := range plan.WithheldMeds {
		if w.Name == "Aspirin" && w.Reason == ReasonAllergy {
			found = true
		}
	}
	if !found {
		t.Errorf("withheld = %v, want aspirin allergy entry", plan.WithheldMeds)
	}
}

func TestPlanForPE(t *testing.T) {
	rec := model.PatientRecord{Age: 62}
	plan := PlanFor(rec, model.DiagnosisResult{Diagnosis: model.DxPE, Risk: model.RiskCritical})

	if len(plan.Medications) != 1 || plan.Medications[0].Name != "Apixaban" {
		t.Errorf("medications = %v, want apixaban only", plan.Medications)
	}
}

func TestPlanGenericCarriesAgentRecommendations(t *testing.T) {
	plan := PlanFor(model.PatientRecord{}, model.DiagnosisResult{
		Diagnosis:       model.DxGERD,
		Risk:            model.RiskLow,
		Recommendations: []string{"Trial of PPI therapy"},
	})
	found := false
	for _, a := range plan.ImmediateActions {
		if a == "Trial of PPI therapy" {
			found = true
		}
	}
	if !found {
		t.Errorf("immediate actions = %v, want agent recommendation carried forward", plan.ImmediateActions)
	}
}
