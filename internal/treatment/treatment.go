// Package treatment builds guideline-based treatment plans for the
// diagnoses the assessment pipeline can land on. Every candidate
// medication passes through patient-specific contraindication screening
// before it reaches the plan; withheld drugs are reported with the
// reason so the clinician sees what was considered.
package treatment

import (
	"fmt"

	"mediq/internal/model"
)

// Contraindication reasons derived from the record.
const (
	ReasonAdvancedAge      = "advanced_age"
	ReasonRenalImpairment  = "renal_impairment"
	ReasonThrombocytopenia = "severe_thrombocytopenia"
	ReasonHypotension      = "hypotension"
	ReasonAsthma           = "asthma"
	ReasonLiverInjury      = "hepatic_injury"
	ReasonAllergy          = "documented_allergy"
)

// Medication is one agent in the plan.
type Medication struct {
	Name      string `json:"name"`
	Dose      string `json:"dose"`
	Route     string `json:"route"`
	Frequency string `json:"frequency"`
	Rationale string `json:"rationale"`
}

// Withheld records a candidate drug removed by screening.
type Withheld struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Plan is the full treatment recommendation for one diagnosis.
type Plan struct {
	Diagnosis         model.Diagnosis `json:"diagnosis"`
	ImmediateActions  []string        `json:"immediate_actions"`
	Medications       []Medication    `json:"medications"`
	WithheldMeds      []Withheld      `json:"withheld_medications,omitempty"`
	Monitoring        []string        `json:"monitoring"`
	FollowUp          []string        `json:"follow_up"`
	PatientEducation  []string        `json:"patient_education"`
	Contraindications []string        `json:"contraindications,omitempty"`
}

// Contraindications screens the record for conditions that modify drug
// selection.
func Contraindications(rec model.PatientRecord) []string {
	var out []string
	if rec.Age > 75 {
		out = append(out, ReasonAdvancedAge)
	}
	if cr, ok := rec.LatestLab(model.LabCreatinine); ok && cr > 2.0 {
		out = append(out, ReasonRenalImpairment)
	}
	if plt, ok := rec.LatestLab(model.LabPlatelets); ok && plt < 50 {
		out = append(out, ReasonThrombocytopenia)
	}
	if sbp, ok := rec.Vital(model.VitalBPSys); ok && sbp < 90 {
		out = append(out, ReasonHypotension)
	}
	if rec.HasICD("493") {
		out = append(out, ReasonAsthma)
	}
	if alt, ok := rec.LatestLab(model.LabALT); ok && alt > 120 {
		out = append(out, ReasonLiverInjury)
	} else if ast, ok := rec.LatestLab(model.LabAST); ok && ast > 120 {
		out = append(out, ReasonLiverInjury)
	}
	return out
}

// candidate pairs a medication with the reasons that would exclude it.
type candidate struct {
	med      Medication
	excluded []string
	allergen string
}

// PlanFor builds the plan for the primary diagnosis. Diagnoses without a
// dedicated protocol get a generic symptomatic plan that carries the
// agent's own recommendations forward.
func PlanFor(rec model.PatientRecord, primary model.DiagnosisResult) Plan {
	contra := Contraindications(rec)

	plan := Plan{Diagnosis: primary.Diagnosis, Contraindications: contra}
	var candidates []candidate

	switch primary.Diagnosis {
	case model.DxSTEMI:
		plan.ImmediateActions = []string{
			"Activate cardiac catheterization lab, door-to-balloon under 90 minutes",
			"Aspirin 325mg chewed immediately",
			"Unfractionated heparin bolus per ACS protocol",
			"Supplemental oxygen only if SpO2 below 90%",
		}
		candidates = acsMedications()
		plan.Monitoring = []string{
			"Continuous 12-lead ST-segment monitoring",
			"Troponin and CK-MB q6h for 24 hours",
			"Daily EKG for 72 hours",
			"Echocardiogram within 48 hours for EF assessment",
		}
		plan.FollowUp = []string{
			"Cardiology follow-up within 1 week of discharge",
			"Cardiac rehabilitation referral before discharge",
			"Repeat lipid panel at 4-6 weeks",
		}
		plan.PatientEducation = []string{
			"Call 911 immediately for recurrent chest pain",
			"Smoking cessation counseling and resources",
			"Dual antiplatelet therapy must not be interrupted without cardiology input",
		}
	case model.DxNSTEMI, model.DxUnstableAngina:
		plan.ImmediateActions = []string{
			"Continuous telemetry monitoring",
			"Serial troponins q3h until peak established",
			"Anticoagulation with enoxaparin or heparin",
			"Cardiology consult for early invasive strategy decision",
		}
		candidates = acsMedications()
		plan.Monitoring = []string{
			"Telemetry for arrhythmia surveillance",
			"Troponin q3h x3, then q6h until trending down",
			"Daily BMP while on anticoagulation",
		}
		plan.FollowUp = []string{
			"Cardiology follow-up within 1-2 weeks",
			"Stress testing or angiography per risk stratification",
		}
		plan.PatientEducation = []string{
			"Recognize anginal equivalents: jaw pain, arm heaviness, dyspnea",
			"Medication adherence, especially antiplatelet agents",
			"Risk factor modification: diet, exercise, smoking cessation",
		}
	case model.DxMassivePE, model.DxPE:
		plan.ImmediateActions = []string{
			"CT pulmonary angiogram to confirm",
			"Supplemental oxygen titrated to SpO2 above 92%",
		}
		if primary.Diagnosis == model.DxMassivePE {
			plan.ImmediateActions = append(plan.ImmediateActions,
				"Evaluate for systemic thrombolysis or catheter-directed therapy",
				"Large-bore IV access, prepare for hemodynamic support")
		}
		candidates = []candidate{{
			med: Medication{
				Name: "Apixaban", Dose: "10mg", Route: "PO", Frequency: "BID x7 days, then 5mg BID",
				Rationale: "Factor Xa inhibition per AMPLIFY dosing",
			},
			excluded: []string{ReasonThrombocytopenia, ReasonRenalImpairment},
		}}
		plan.Monitoring = []string{
			"Continuous pulse oximetry for 24 hours",
			"Repeat vitals q2h until hemodynamically stable",
			"CBC and renal function at 48-72 hours on anticoagulation",
		}
		plan.FollowUp = []string{
			"Hematology or PE clinic follow-up within 2 weeks",
			"Anticoagulation duration review at 3 months",
		}
		plan.PatientEducation = []string{
			"Bleeding precautions while anticoagulated",
			"Return immediately for worsening dyspnea or syncope",
			"Avoid prolonged immobilization",
		}
	default:
		plan.ImmediateActions = []string{"Symptomatic management per specialty recommendations"}
		plan.ImmediateActions = append(plan.ImmediateActions, primary.Recommendations...)
		plan.Monitoring = []string{"Routine vitals per assigned acuity level"}
		plan.FollowUp = []string{
			fmt.Sprintf("Outpatient follow-up for %s within 1-2 weeks", primary.Diagnosis),
		}
		plan.PatientEducation = []string{
			"Return to the emergency department for new or worsening chest pain",
		}
	}

	plan.Medications, plan.WithheldMeds = screen(rec, candidates, contra)
	return plan
}

// acsMedications is the shared secondary-prevention bundle for acute
// coronary syndromes.
func acsMedications() []candidate {
	return []candidate{
		{
			med: Medication{
				Name: "Aspirin", Dose: "81mg", Route: "PO", Frequency: "daily",
				Rationale: "Antiplatelet backbone for secondary prevention",
			},
			allergen: "aspirin",
		},
		{
			med: Medication{
				Name: "Ticagrelor", Dose: "90mg", Route: "PO", Frequency: "BID",
				Rationale: "P2Y12 inhibition, mortality benefit in PLATO",
			},
			excluded: []string{ReasonThrombocytopenia},
		},
		{
			med: Medication{
				Name: "Atorvastatin", Dose: "80mg", Route: "PO", Frequency: "nightly",
				Rationale: "High-intensity statin for plaque stabilization",
			},
			excluded: []string{ReasonLiverInjury},
			allergen: "statin",
		},
		{
			med: Medication{
				Name: "Metoprolol tartrate", Dose: "25mg", Route: "PO", Frequency: "BID",
				Rationale: "Beta blockade reduces infarct demand",
			},
			excluded: []string{ReasonAsthma, ReasonHypotension},
		},
		{
			med: Medication{
				Name: "Lisinopril", Dose: "5mg", Route: "PO", Frequency: "daily",
				Rationale: "ACE inhibition for ventricular remodeling",
			},
			excluded: []string{ReasonRenalImpairment, ReasonHypotension},
		},
	}
}

// screen removes candidates blocked by a contraindication or a
// documented allergy.
func screen(rec model.PatientRecord, candidates []candidate, contra []string) ([]Medication, []Withheld) {
	active := make(map[string]bool, len(contra))
	for _, c := range contra {
		active[c] = true
	}

	var meds []Medication
	var withheld []Withheld
	for _, c := range candidates {
		if c.allergen != "" && rec.HasAllergy(c.allergen) {
			withheld = append(withheld, Withheld{Name: c.med.Name, Reason: ReasonAllergy})
			continue
		}
		blocked := ""
		for _, reason := range c.excluded {
			if active[reason] {
				blocked = reason
				break
			}
		}
		if blocked != "" {
			withheld = append(withheld, Withheld{Name: c.med.Name, Reason: blocked})
			continue
		}
		meds = append(meds, c.med)
	}
	return meds, withheld
}
