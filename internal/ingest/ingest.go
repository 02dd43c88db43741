// Package ingest runs the realtime vitals pipeline: sanitize each
// sample, fold it into the patient's health twin, escalate anomalous
// readings through the language model, and fan out prevention alerts.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"mediq/internal/healthtwin"
	"mediq/internal/model"
	"mediq/internal/notify"
	"mediq/pkg/logging"
)

// ErrNoUsableMetrics is returned when sanitation drops every field of a
// sample.
var ErrNoUsableMetrics = errors.New("sample contains no usable metrics")

// Result is the outcome of ingesting one sample.
type Result struct {
	Metrics    map[string]float64     `json:"metrics"`
	Anomalies  []healthtwin.Anomaly   `json:"anomalies,omitempty"`
	HardFlags  []string               `json:"hard_flags,omitempty"`
	Assessment *model.DiagnosisResult `json:"assessment,omitempty"`
	Alert      *notify.Alert          `json:"alert,omitempty"`
	Suppressed bool                   `json:"suppressed,omitempty"`
}

// Ingestor wires the pipeline stages together.
type Ingestor struct {
	buffers    *Buffers
	twin       *healthtwin.Twin
	assessor   Assessor
	dispatcher *notify.Dispatcher
	alerts     notify.AlertStore
	cooldown   *Cooldown
	hub        *notify.Hub
	logger     logging.Logger
}

// Options carries the optional collaborators. Any nil field disables
// the corresponding stage.
type Options struct {
	Assessor   Assessor
	Dispatcher *notify.Dispatcher
	Alerts     notify.AlertStore
	Hub        *notify.Hub
}

func NewIngestor(buffers *Buffers, twin *healthtwin.Twin, cooldown *Cooldown,
	opts Options, logger logging.Logger) *Ingestor {
	return &Ingestor{
		buffers:    buffers,
		twin:       twin,
		assessor:   opts.Assessor,
		dispatcher: opts.Dispatcher,
		alerts:     opts.Alerts,
		cooldown:   cooldown,
		hub:        opts.Hub,
		logger:     logger,
	}
}

// Ingest processes one sample end to end.
func (in *Ingestor) Ingest(ctx context.Context, sample model.VitalSample) (Result, error) {
	if sample.PatientID == "" {
		return Result{}, errors.New("patient id is required")
	}
	metrics := sample.Metrics()
	if len(metrics) == 0 {
		return Result{}, ErrNoUsableMetrics
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	in.buffers.Append(sample)

	// Hard flags compare against the envelope as it stood before this
	// sample, otherwise a new personal maximum could never trip its own
	// check.
	flags := in.twin.HardFlags(sample.PatientID, metrics)
	anomalies, err := in.twin.Observe(ctx, sample.PatientID, metrics, sample.Timestamp)
	if err != nil {
		return Result{}, err
	}

	result := Result{Metrics: metrics, Anomalies: anomalies, HardFlags: flags}
	if len(anomalies) == 0 && len(flags) == 0 {
		return result, nil
	}

	assessment := in.assess(ctx, sample, anomalies, flags)
	result.Assessment = &assessment

	in.logger.WithFields(logging.Fields{
		"patient_id": sample.PatientID,
		"diagnosis":  assessment.Diagnosis,
		"risk_level": assessment.Risk,
		"anomalies":  len(anomalies),
		"hard_flags": len(flags),
	}).Warn("Vitals escalation")

	if !assessment.Risk.LifeThreatening() {
		return result, nil
	}

	if !in.cooldown.Allow(sample.PatientID, assessment.Risk, sample.Timestamp) {
		result.Suppressed = true
		in.logger.WithField("patient_id", sample.PatientID).
			Info("Alert suppressed by cooldown")
		return result, nil
	}

	alert := notify.Alert{
		PatientID:  sample.PatientID,
		Diagnosis:  assessment.Diagnosis,
		Confidence: assessment.Confidence,
		Risk:       assessment.Risk,
		Vitals:     metrics,
		CreatedAt:  sample.Timestamp,
	}
	if in.dispatcher != nil {
		alert.Actions = in.dispatcher.Dispatch(ctx, alert)
	}
	if in.alerts != nil {
		saved, err := in.alerts.Save(ctx, alert)
		if err != nil {
			in.logger.WithError(err).WithField("patient_id", sample.PatientID).
				Error("Failed to persist alert")
		} else {
			alert = saved
		}
	}
	if in.hub != nil {
		in.hub.Broadcast("prevention_alert", alert)
	}
	result.Alert = &alert
	return result, nil
}

// assess consults the language model, falling back to a conservative
// rule when the model is unavailable, times out, or returns garbage.
func (in *Ingestor) assess(ctx context.Context, sample model.VitalSample,
	anomalies []healthtwin.Anomaly, flags []string) model.DiagnosisResult {
	if in.assessor != nil {
		recent := in.buffers.Recent(sample.PatientID, 20)
		assessment, err := in.assessor.Assess(ctx, sample, recent, anomalies, flags)
		if err == nil {
			return assessment
		}
		in.logger.WithError(err).WithField("patient_id", sample.PatientID).
			Warn("LLM assessment failed, using fallback")
	}
	return fallbackAssessment(anomalies, flags)
}

// fallbackAssessment errs on the side of escalation: it only runs when
// something already looked wrong, so the floor is HIGH.
func fallbackAssessment(anomalies []healthtwin.Anomaly, flags []string) model.DiagnosisResult {
	risk := healthtwin.Risk(anomalies)

	var reasons []string
	for _, a := range anomalies {
		reasons = append(reasons, a.String())
	}
	reasons = append(reasons, flags...)
	reasoning := strings.Join(reasons, "; ")

	if risk > 0.30 {
		conf := risk
		if conf < 0.5 {
			conf = 0.5
		}
		return model.DiagnosisResult{
			Diagnosis:  model.DxNSTEMI,
			Confidence: conf,
			Risk:       model.RiskCritical,
			Reasoning:  "Suspected acute coronary event: " + reasoning,
			AgentName:  "realtime_fallback",
		}
	}
	return model.DiagnosisResult{
		Diagnosis:  model.DxUnstableAngina,
		Confidence: 0.5,
		Risk:       model.RiskHigh,
		Reasoning:  "Deviation from personal baseline: " + reasoning,
		AgentName:  "realtime_fallback",
	}
}
