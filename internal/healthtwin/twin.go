// Package healthtwin maintains per-patient personalized baselines for
// streaming vitals. Each (patient, metric) pair carries Welford running
// statistics plus observed extremes and percentile estimates, so anomaly
// detection compares a reading against that patient's own normal rather
// than population reference ranges.
package healthtwin

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mediq/internal/model"
)

// Baseline holds the learned statistics for one metric of one patient.
type Baseline struct {
	Mean        float64   `json:"mean"`
	M2          float64   `json:"m2"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	P5          float64   `json:"p5"`
	P95         float64   `json:"p95"`
	SampleCount int64     `json:"sample_count"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// StdDev returns the population standard deviation, 0 below two samples.
func (b Baseline) StdDev() float64 {
	if b.SampleCount < 2 {
		return 0
	}
	return math.Sqrt(b.M2 / float64(b.SampleCount))
}

// Severity buckets for anomaly z-scores.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps a severity onto [0,1] for risk aggregation.
func (s Severity) Score() float64 {
	switch s {
	case SeverityLow:
		return 0.25
	case SeverityModerate:
		return 0.5
	case SeverityHigh:
		return 0.75
	case SeverityCritical:
		return 1.0
	}
	return 0
}

func severityForSigma(sigma float64) Severity {
	switch {
	case sigma > 3.5:
		return SeverityCritical
	case sigma > 3.0:
		return SeverityHigh
	case sigma > 2.5:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// Anomaly describes one reading outside the patient's personal band.
type Anomaly struct {
	Metric    string   `json:"metric"`
	Value     float64  `json:"value"`
	Baseline  float64  `json:"baseline"`
	StdDev    float64  `json:"std_dev"`
	Sigma     float64  `json:"sigma"`
	Direction string   `json:"direction"`
	Severity  Severity `json:"severity"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %.4g (baseline %.4g +/- %.4g, %.1f sigma %s, %s)",
		a.Metric, a.Value, a.Baseline, a.StdDev, a.Sigma, a.Direction, a.Severity)
}

// Risk aggregates anomalies into a single [0,1] score: the mean of the
// severity scores, capped at 1.
func Risk(anomalies []Anomaly) float64 {
	if len(anomalies) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range anomalies {
		sum += a.Severity.Score()
	}
	return math.Min(sum/float64(len(anomalies)), 1.0)
}

// BaselineStatus tracks how mature a patient's twin is.
type BaselineStatus string

const (
	StatusLearning    BaselineStatus = "LEARNING"
	StatusPreliminary BaselineStatus = "PRELIMINARY"
	StatusEstablished BaselineStatus = "ESTABLISHED"
	StatusMature      BaselineStatus = "MATURE"
)

const (
	// reservoirCap bounds the per-metric sample pool used for
	// percentile estimation.
	reservoirCap = 1000
	// percentileEvery controls how often P5/P95 are recomputed.
	percentileEvery = 100
	// minSamples must accrue before a metric reports anomalies.
	minSamples = 5
)

// metricState pairs the persisted baseline with the in-memory
// percentile reservoir. The reservoir is rebuilt from live traffic
// after a restart.
type metricState struct {
	Baseline
	reservoir []float64
}

// Twin owns every patient's baselines. All methods are safe for
// concurrent use.
type Twin struct {
	mu       sync.RWMutex
	patients map[string]map[string]*metricState
	store    Store
	logger   *logrus.Logger
	rng      *rand.Rand
}

// NewTwin builds a twin over the given store. A nil store keeps all
// state in memory only.
func NewTwin(store Store, logger *logrus.Logger) *Twin {
	return &Twin{
		patients: make(map[string]map[string]*metricState),
		store:    store,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ensure loads a patient's baselines from the store on first touch.
// Caller holds the write lock.
func (t *Twin) ensure(ctx context.Context, patientID string) (map[string]*metricState, error) {
	if pm, ok := t.patients[patientID]; ok {
		return pm, nil
	}
	pm := make(map[string]*metricState)
	if t.store != nil {
		loaded, err := t.store.Load(ctx, patientID)
		if err != nil {
			return nil, fmt.Errorf("load baselines: %w", err)
		}
		for metric, b := range loaded {
			pm[metric] = &metricState{Baseline: b}
		}
	}
	t.patients[patientID] = pm
	return pm, nil
}

// Observe folds one sample's metrics into the twin and returns the
// anomalies the sample produced. Detection runs against the baseline as
// it stood before this sample, so a deranged reading cannot hide by
// shifting its own reference.
func (t *Twin) Observe(ctx context.Context, patientID string, metrics map[string]float64, at time.Time) ([]Anomaly, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pm, err := t.ensure(ctx, patientID)
	if err != nil {
		return nil, err
	}

	anomalies := detect(pm, metrics)

	for metric, value := range metrics {
		st, ok := pm[metric]
		if !ok {
			st = &metricState{Baseline: Baseline{
				Min: value, Max: value, P5: value, P95: value, FirstSeen: at,
			}}
			pm[metric] = st
		}
		st.update(value, at, t.rng)
	}

	if t.store != nil {
		snapshot := make(map[string]Baseline, len(pm))
		for metric, st := range pm {
			snapshot[metric] = st.Baseline
		}
		if err := t.store.Save(ctx, patientID, snapshot); err != nil {
			// Detection already ran on the in-memory state; a persistence
			// failure degrades durability, not correctness.
			t.logger.WithError(err).WithField("patient_id", patientID).
				Warn("Failed to persist baselines")
		}
	}
	return anomalies, nil
}

func detect(pm map[string]*metricState, metrics map[string]float64) []Anomaly {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var anomalies []Anomaly
	for _, name := range names {
		st, ok := pm[name]
		if !ok || st.SampleCount < minSamples {
			continue
		}
		stddev := st.StdDev()
		if stddev == 0 {
			continue
		}
		value := metrics[name]
		diff := value - st.Mean
		sigma := math.Abs(diff) / stddev
		if sigma <= 2.0 {
			continue
		}
		direction := "above"
		if diff < 0 {
			direction = "below"
		}
		anomalies = append(anomalies, Anomaly{
			Metric:    name,
			Value:     value,
			Baseline:  st.Mean,
			StdDev:    stddev,
			Sigma:     sigma,
			Direction: direction,
			Severity:  severityForSigma(sigma),
		})
	}
	return anomalies
}

func (st *metricState) update(value float64, at time.Time, rng *rand.Rand) {
	st.SampleCount++
	delta := value - st.Mean
	st.Mean += delta / float64(st.SampleCount)
	st.M2 += delta * (value - st.Mean)

	if value < st.Min || st.SampleCount == 1 {
		st.Min = value
	}
	if value > st.Max || st.SampleCount == 1 {
		st.Max = value
	}
	if st.FirstSeen.IsZero() {
		st.FirstSeen = at
	}
	st.LastUpdated = at

	if len(st.reservoir) < reservoirCap {
		st.reservoir = append(st.reservoir, value)
	} else if idx := rng.Int63n(st.SampleCount); idx < reservoirCap {
		st.reservoir[idx] = value
	}
	if st.SampleCount%percentileEvery == 0 {
		st.P5, st.P95 = percentiles(st.reservoir)
	}
}

func percentiles(values []float64) (p5, p95 float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	at := func(q float64) float64 {
		return sorted[int(q*float64(len(sorted)-1))]
	}
	return at(0.05), at(0.95)
}

// Snapshot returns a copy of the patient's baselines, nil when the
// patient is unknown.
func (t *Twin) Snapshot(patientID string) map[string]Baseline {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pm, ok := t.patients[patientID]
	if !ok {
		return nil
	}
	out := make(map[string]Baseline, len(pm))
	for metric, st := range pm {
		out[metric] = st.Baseline
	}
	return out
}

// HardFlags applies the non-statistical safety checks that fire even
// when a reading sits within two sigma: sustained HRV collapse, heart
// rate beyond the patient's historical ceiling, SpO2 under their floor.
func (t *Twin) HardFlags(patientID string, metrics map[string]float64) []string {
	snapshot := t.Snapshot(patientID)
	if snapshot == nil {
		return nil
	}

	var flags []string
	if hrv, ok := metrics[model.VitalHRV]; ok {
		if b, ok := snapshot[model.VitalHRV]; ok && b.SampleCount >= minSamples && b.Mean > 0 {
			if hrv < b.Mean*0.85 {
				flags = append(flags, fmt.Sprintf(
					"HRV dropped %.0f%% below baseline (%.1f vs %.1f)",
					(1-hrv/b.Mean)*100, hrv, b.Mean))
			}
		}
	}
	if hr, ok := metrics[model.VitalHeartRate]; ok {
		if b, ok := snapshot[model.VitalHeartRate]; ok && b.SampleCount >= minSamples {
			if hr > b.Max+15 {
				flags = append(flags, fmt.Sprintf(
					"Heart rate %.0f exceeds personal maximum %.0f by more than 15 bpm", hr, b.Max))
			}
		}
	}
	if spo2, ok := metrics[model.VitalSpO2Stream]; ok {
		if b, ok := snapshot[model.VitalSpO2Stream]; ok && b.SampleCount >= minSamples {
			if spo2 < b.Min-2 {
				flags = append(flags, fmt.Sprintf(
					"SpO2 %.0f%% more than 2 points under personal minimum %.0f%%", spo2, b.Min))
			}
		}
	}
	return flags
}

// Status reports baseline maturity and a [0,1] confidence blending
// observation span and sample volume.
func (t *Twin) Status(patientID string) (BaselineStatus, float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pm, ok := t.patients[patientID]
	if !ok || len(pm) == 0 {
		return StatusLearning, 0
	}

	var firstSeen time.Time
	var samples int64
	for _, st := range pm {
		if firstSeen.IsZero() || st.FirstSeen.Before(firstSeen) {
			firstSeen = st.FirstSeen
		}
		if st.SampleCount > samples {
			samples = st.SampleCount
		}
	}

	days := time.Since(firstSeen).Hours() / 24
	var status BaselineStatus
	switch {
	case days >= 90:
		status = StatusMature
	case days >= 30:
		status = StatusEstablished
	case days >= 7:
		status = StatusPreliminary
	default:
		status = StatusLearning
	}

	confidence := (math.Min(days/90, 1) + math.Min(float64(samples)/1000, 1)) / 2
	return status, confidence
}
