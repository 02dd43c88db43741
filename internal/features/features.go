// Package features derives per-specialty clinical feature maps from a
// patient record: chief-complaint keywords, ICD history lookups, vital
// thresholds, and lab trends. The specialty scorers consume these maps
// and nothing else, so extraction rules live in one place.
package features

import (
	"strings"

	"mediq/internal/model"
)

// Troponin reference points (ng/mL).
const (
	TroponinNormal   = 0.04
	TroponinElevated = 0.05
	TroponinHigh     = 0.5
)

// Trend classifies the direction of a serial lab.
type Trend string

const (
	TrendRising       Trend = "rising"
	TrendFalling      Trend = "falling"
	TrendStable       Trend = "stable"
	TrendInsufficient Trend = "insufficient_data"
)

// SeriesTrend splits the series at its midpoint, averages each half, and
// compares the halves: second/first > 1.2 is rising, < 0.8 falling.
func SeriesTrend(series []model.LabPoint) Trend {
	if len(series) < 2 {
		return TrendInsufficient
	}
	mid := len(series) / 2
	first := mean(series[:mid])
	second := mean(series[mid:])
	switch {
	case first == 0:
		if second > 0 {
			return TrendRising
		}
		return TrendStable
	case second > first*1.2:
		return TrendRising
	case second < first*0.8:
		return TrendFalling
	default:
		return TrendStable
	}
}

func mean(points []model.LabPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}

// TroponinTrend is SeriesTrend over the record's troponin series.
func TroponinTrend(rec model.PatientRecord) Trend {
	return SeriesTrend(rec.LabSeries(model.LabTroponin))
}

// LatestTroponin returns the most recent troponin, defaulting to the
// upper limit of normal when the lab was never drawn.
func LatestTroponin(rec model.PatientRecord) float64 {
	if v, ok := rec.LatestLab(model.LabTroponin); ok {
		return v
	}
	return TroponinNormal
}

// Cardiac risk-factor ICD codes (hypertension, diabetes).
var cardiacRiskICD = map[string]string{
	"4019":  "hypertension",
	"25000": "diabetes",
	"25001": "diabetes_type1",
	"25002": "diabetes_type2",
}

// CardiacRiskFactors counts distinct HTN/DM codes on the record.
func CardiacRiskFactors(rec model.PatientRecord) int {
	n := 0
	for _, code := range rec.ICDCodes {
		if _, ok := cardiacRiskICD[code]; ok {
			n++
		}
	}
	return n
}

// Complaint wraps a lowercased chief complaint for keyword checks.
type Complaint struct {
	text string
}

func NewComplaint(raw string) Complaint {
	return Complaint{text: strings.ToLower(raw)}
}

func (c Complaint) has(words ...string) bool {
	for _, w := range words {
		if strings.Contains(c.text, w) {
			return true
		}
	}
	return false
}

func (c Complaint) Sharp() bool        { return c.has("sharp", "stabbing") }
func (c Complaint) ClassicCardiac() bool {
	return c.has("crushing", "pressure", "squeezing", "radiat", "left arm", "jaw")
}
func (c Complaint) Burning() bool      { return c.has("burning", "heartburn") }
func (c Complaint) Dyspnea() bool      { return c.has("breath", "dyspnea", "sob") }
func (c Complaint) Cough() bool        { return c.has("cough") }
func (c Complaint) SuddenOnset() bool  { return c.has("sudden", "acute") }
func (c Complaint) Pleuritic() bool    { return c.Sharp() && c.has("breath") }
func (c Complaint) MovementWorse() bool  { return c.has("movement", "moving", "turning") }
func (c Complaint) BreathingWorse() bool { return c.has("breath") }
func (c Complaint) Tenderness() bool     { return c.has("tender", "touch") }
func (c Complaint) Epigastric() bool     { return c.has("epigastric", "upper stomach") }
func (c Complaint) RUQ() bool            { return c.has("right upper") }
func (c Complaint) MealRelated() bool    { return c.has("meal", "after eating", "food") }
func (c Complaint) AntacidRelief() bool  { return c.has("antacid") }
func (c Complaint) Positional() bool     { return c.has("lying", "positional", "bending") }
func (c Complaint) Dysphagia() bool      { return c.has("swallow", "dysphagia") }
func (c Complaint) Nausea() bool         { return c.has("nausea", "vomit") }
func (c Complaint) BackRadiation() bool  { return c.has("back") }
func (c Complaint) LegSwelling() bool    { return c.has("leg swelling", "calf") }
func (c Complaint) Hemoptysis() bool     { return c.has("coughing blood", "hemoptysis") }
func (c Complaint) Trauma() bool         { return c.has("fall", "accident", "trauma", "injury") }
func (c Complaint) Exertion() bool       { return c.has("lifting", "exertion", "workout", "exercise") }
func (c Complaint) Unilateral() bool     { return c.has("one side", "left side", "right side", "unilateral") }

// Gastro holds the gastroenterology feature set.
type Gastro struct {
	MealRelated       bool
	Burning           bool
	Positional        bool
	AntacidRelief     bool
	Epigastric        bool
	RUQ               bool
	BackRadiation     bool
	Nausea            bool
	Dysphagia         bool
	HistoryGERD       bool
	HistoryPUD        bool
	HistoryGallstones bool
	AlcoholUse        bool
	NSAIDUse          bool
	Age               int
	Female            bool
	LipaseElevated    bool
	AmylaseElevated   bool
	WBCOver11         bool
	NormalTroponin    bool
}

var gastroICD = map[string]string{
	"5300": "esophagitis",
	"5301": "gerd",
	"5310": "gastric_ulcer",
	"5311": "duodenal_ulcer",
	"5750": "cholecystitis",
	"5751": "cholelithiasis",
	"5770": "pancreatitis",
}

// ExtractGastro materializes the GI feature map from ICD history, labs,
// and complaint keywords.
func ExtractGastro(rec model.PatientRecord) Gastro {
	c := NewComplaint(rec.ChiefComplaint)
	f := Gastro{
		MealRelated:   c.MealRelated(),
		Burning:       c.Burning(),
		Positional:    c.Positional(),
		AntacidRelief: c.AntacidRelief(),
		Epigastric:    c.Epigastric(),
		RUQ:           c.RUQ(),
		BackRadiation: c.BackRadiation(),
		Nausea:        c.Nausea(),
		Dysphagia:     c.Dysphagia(),
		AlcoholUse:    c.has("alcohol", "drinking"),
		NSAIDUse:      c.has("nsaid", "ibuprofen", "naproxen"),
		Age:           rec.Age,
		Female:        strings.EqualFold(rec.Sex, "f"),
	}

	for _, code := range rec.ICDCodes {
		switch gastroICD[code] {
		case "gerd", "esophagitis":
			f.HistoryGERD = true
			f.Burning = true
			f.Positional = true
		case "gastric_ulcer", "duodenal_ulcer":
			f.HistoryPUD = true
			f.Epigastric = true
		case "cholecystitis", "cholelithiasis":
			f.HistoryGallstones = true
			f.RUQ = true
		case "pancreatitis":
			f.Epigastric = true
			f.BackRadiation = true
		}
	}

	if v, ok := rec.LatestLab(model.LabLipase); ok && v > 180 {
		f.LipaseElevated = true
	}
	if v, ok := rec.LatestLab(model.LabAmylase); ok && v > 300 {
		f.AmylaseElevated = true
	}
	if v, ok := rec.LatestLab(model.LabWBC); ok && v > 11 {
		f.WBCOver11 = true
	}
	if LatestTroponin(rec) < TroponinNormal {
		f.NormalTroponin = true
	}
	return f
}

// MSK holds the musculoskeletal feature set.
type MSK struct {
	Reproducible   bool
	Tenderness     bool
	Sharp          bool
	BreathingWorse bool
	MovementWorse  bool
	RecentTrauma   bool
	RecentExertion bool
	Unilateral     bool
	Swelling       bool
	Age            int
	NormalTroponin bool
}

var mskICD = map[string]string{
	"7330": "osteoporosis",
	"7242": "lumbago",
	"8070": "rib_fracture",
	"8071": "rib_fracture",
	"7335": "costochondritis",
	"7291": "myalgia",
	"0539": "zoster",
}

// ExtractMSK materializes the chest-wall feature map.
func ExtractMSK(rec model.PatientRecord) MSK {
	c := NewComplaint(rec.ChiefComplaint)
	f := MSK{
		Sharp:          c.Sharp(),
		BreathingWorse: c.BreathingWorse(),
		MovementWorse:  c.MovementWorse(),
		Tenderness:     c.Tenderness(),
		Reproducible:   c.Tenderness(),
		RecentTrauma:   c.Trauma(),
		RecentExertion: c.Exertion(),
		Unilateral:     c.Unilateral(),
		Swelling:       c.has("swelling", "bruis"),
		Age:            rec.Age,
	}

	for _, code := range rec.ICDCodes {
		switch mskICD[code] {
		case "rib_fracture":
			f.RecentTrauma = true
			f.Tenderness = true
		case "costochondritis":
			f.Reproducible = true
			f.Tenderness = true
			f.BreathingWorse = true
		case "lumbago", "myalgia":
			f.MovementWorse = true
		case "zoster":
			f.Unilateral = true
		}
	}

	if LatestTroponin(rec) < TroponinNormal {
		f.NormalTroponin = true
	}
	return f
}

// Pulmonary holds the respiratory feature set.
type Pulmonary struct {
	Dyspnea        bool
	Pleuritic      bool
	Cough          bool
	Hemoptysis     bool
	Fever          bool
	Tachypnea      bool
	Hypoxia        bool
	Unilateral     bool
	RecentSurgery  bool
	Immobilization bool
	LegSwelling    bool
	SuddenOnset    bool
	ElevatedWBC    bool
	ElevatedDDimer bool
	HeartRateOver100 bool
	Age            int
}

var pulmICD = map[string]string{
	"4151": "pulmonary_embolism",
	"5121": "pneumothorax",
	"486":  "pneumonia",
	"487":  "influenza",
	"491":  "chronic_bronchitis",
	"492":  "emphysema",
	"493":  "asthma",
	"511":  "pleurisy",
}

// ExtractPulmonary materializes the respiratory feature map.
func ExtractPulmonary(rec model.PatientRecord) Pulmonary {
	c := NewComplaint(rec.ChiefComplaint)
	f := Pulmonary{
		Dyspnea:     c.Dyspnea(),
		Cough:       c.Cough(),
		SuddenOnset: c.SuddenOnset(),
		Pleuritic:   c.Pleuritic(),
		Hemoptysis:  c.Hemoptysis(),
		LegSwelling: c.LegSwelling(),
		Unilateral:  c.Unilateral(),
		Age:         rec.Age,
	}

	f.Tachypnea = rec.VitalOr(model.VitalRespRate, 16) > 20
	f.Hypoxia = rec.VitalOr(model.VitalSpO2, 100) < 94
	f.Fever = rec.VitalOr(model.VitalTempF, 98.6) > 100.4
	f.HeartRateOver100 = rec.VitalOr(model.VitalHeartRate, 70) > 100

	for _, code := range rec.ICDCodes {
		switch pulmICD[code] {
		case "pulmonary_embolism":
			f.RecentSurgery = true
		case "pneumothorax":
			f.SuddenOnset = true
		case "pneumonia", "influenza":
			f.Cough = true
			f.Fever = true
		case "pleurisy":
			f.Pleuritic = true
		}
	}

	if v, ok := rec.LatestLab(model.LabWBC); ok && v > 12 {
		f.ElevatedWBC = true
	}
	if v, ok := rec.LatestLab(model.LabDDimer); ok && v > 500 {
		f.ElevatedDDimer = true
	}
	return f
}
