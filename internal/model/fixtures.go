package model

import "time"

// DemoRecords returns representative chest-pain presentations used by the
// examples and the end-to-end tests. Values mirror typical ED workups for
// each etiology.
func DemoRecords() []PatientRecord {
	now := time.Now()
	labAt := func(offset time.Duration, v float64) LabPoint {
		return LabPoint{Time: now.Add(offset), Value: v}
	}

	return []PatientRecord{
		{
			PatientID:      "DEMO_PE_001",
			Age:            62,
			Sex:            "F",
			ChiefComplaint: "chest pain with sudden shortness of breath",
			Vitals: map[string]float64{
				VitalHeartRate: 115,
				VitalBPSys:     95,
				VitalBPDia:     65,
				VitalRespRate:  28,
				VitalSpO2:      88,
				VitalTempF:     98.9,
			},
			Labs: map[string][]LabPoint{
				LabDDimer:   {labAt(-time.Hour, 850)},
				LabTroponin: {labAt(-time.Hour, 0.02)},
			},
			AdmissionTime: now,
		},
		{
			PatientID:      "DEMO_NSTEMI_001",
			Age:            58,
			Sex:            "M",
			ChiefComplaint: "crushing chest pain radiating to left arm",
			Vitals: map[string]float64{
				VitalHeartRate: 88,
				VitalBPSys:     145,
				VitalBPDia:     92,
				VitalRespRate:  18,
				VitalSpO2:      97,
				VitalTempF:     98.6,
			},
			Labs: map[string][]LabPoint{
				LabTroponin: {labAt(-3*time.Hour, 0.12), labAt(-time.Hour, 0.28)},
			},
			ICDCodes:      []string{"4019"},
			AdmissionTime: now,
		},
		{
			PatientID:      "DEMO_PNA_001",
			Age:            68,
			Sex:            "M",
			ChiefComplaint: "chest discomfort with productive cough",
			Vitals: map[string]float64{
				VitalHeartRate: 92,
				VitalBPSys:     140,
				VitalBPDia:     88,
				VitalRespRate:  22,
				VitalSpO2:      93,
				VitalTempF:     101.8,
			},
			Labs: map[string][]LabPoint{
				LabWBC: {labAt(-time.Hour, 16.5)},
			},
			AdmissionTime: now,
		},
		{
			PatientID:      "DEMO_MSK_001",
			Age:            35,
			Sex:            "F",
			ChiefComplaint: "sharp chest pain, worse with deep breathing and touch",
			Vitals: map[string]float64{
				VitalHeartRate: 75,
				VitalBPSys:     118,
				VitalBPDia:     72,
				VitalRespRate:  16,
				VitalSpO2:      99,
				VitalTempF:     98.4,
			},
			Labs: map[string][]LabPoint{
				LabTroponin: {labAt(-time.Hour, 0.01)},
			},
			AdmissionTime: now,
		},
	}
}
