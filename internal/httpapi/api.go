// Package httpapi exposes the assessment pipeline over REST plus a
// websocket progress stream.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mediq/internal/agents"
	"mediq/internal/healthtwin"
	"mediq/internal/ingest"
	"mediq/internal/model"
	"mediq/internal/notify"
	"mediq/internal/treatment"
	"mediq/internal/triage"
	"mediq/pkg/logging"
)

// API bundles the pipeline components behind the HTTP surface.
type API struct {
	orchestrator *agents.Orchestrator
	ingestor     *ingest.Ingestor
	buffers      *ingest.Buffers
	twin         *healthtwin.Twin
	alerts       notify.AlertStore
	hub          *notify.Hub
	metrics      *Metrics
	logger       logging.Logger
}

// Options carries the optional collaborators. Handlers whose
// collaborator is nil respond 503.
type Options struct {
	Ingestor *ingest.Ingestor
	Buffers  *ingest.Buffers
	Twin     *healthtwin.Twin
	Alerts   notify.AlertStore
	Hub      *notify.Hub
	Metrics  *Metrics
}

func New(orchestrator *agents.Orchestrator, opts Options, logger logging.Logger) *API {
	return &API{
		orchestrator: orchestrator,
		ingestor:     opts.Ingestor,
		buffers:      opts.Buffers,
		twin:         opts.Twin,
		alerts:       opts.Alerts,
		hub:          opts.Hub,
		metrics:      opts.Metrics,
		logger:       logger,
	}
}

// Register mounts all routes on the router.
func (a *API) Register(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/assess", a.Assess)
		api.GET("/demo", a.Demo)
		api.POST("/vitals", a.IngestVitals)
		api.GET("/vitals/:patient_id", a.VitalsSnapshot)
		api.GET("/alerts/:patient_id", a.ListAlerts)
	}
	if a.hub != nil {
		router.GET("/ws/progress", a.hub.HandleWS)
	}
}

// AssessResponse is the full output of one assessment run.
type AssessResponse struct {
	PatientID  string                `json:"patient_id"`
	Assessment model.AssessmentState `json:"assessment"`
	Triage     triage.Result         `json:"triage"`
	Treatment  treatment.Plan        `json:"treatment"`
}

// Assess runs the specialty panel, triage and treatment planning for a
// submitted patient record.
func (a *API) Assess(c *gin.Context) {
	var rec model.PatientRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rec.PatientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patient_id is required"})
		return
	}
	if rec.ChiefComplaint == "" && len(rec.Vitals) == 0 && len(rec.Labs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record carries no clinical data"})
		return
	}

	state, err := a.orchestrator.Assess(c.Request.Context(), rec)
	if err != nil {
		a.logger.WithError(err).WithField("patient_id", rec.PatientID).Error("Assessment failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assessment failed"})
		return
	}

	tri := triage.Assign(state)
	var plan treatment.Plan
	if state.Primary != nil {
		plan = treatment.PlanFor(rec, *state.Primary)
	}

	if a.metrics != nil && state.Primary != nil {
		a.metrics.Assessments.WithLabelValues(
			string(state.Primary.Risk), strconv.Itoa(tri.Level)).Inc()
	}

	c.JSON(http.StatusOK, AssessResponse{
		PatientID:  rec.PatientID,
		Assessment: state,
		Triage:     tri,
		Treatment:  plan,
	})
}

// Demo lists the bundled example records.
func (a *API) Demo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"records": model.DemoRecords()})
}

// IngestVitals feeds one streaming sample through the realtime pipeline.
func (a *API) IngestVitals(c *gin.Context) {
	if a.ingestor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vitals ingestion not configured"})
		return
	}

	var sample model.VitalSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.ingestor.Ingest(c.Request.Context(), sample)
	if err != nil {
		if a.metrics != nil {
			a.metrics.Samples.WithLabelValues("rejected").Inc()
		}
		if errors.Is(err, ingest.ErrNoUsableMetrics) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if sample.PatientID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a.logger.WithError(err).WithField("patient_id", sample.PatientID).Error("Ingest failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}

	if a.metrics != nil {
		a.metrics.Samples.WithLabelValues("ok").Inc()
		for _, an := range res.Anomalies {
			a.metrics.Anomalies.WithLabelValues(an.Metric).Inc()
		}
		switch {
		case res.Alert != nil:
			a.metrics.Alerts.WithLabelValues("dispatched").Inc()
		case res.Suppressed:
			a.metrics.Alerts.WithLabelValues("suppressed").Inc()
		}
	}

	c.JSON(http.StatusOK, res)
}

// VitalsSnapshot returns the recent sample window plus the patient's
// learned baselines and their maturity.
func (a *API) VitalsSnapshot(c *gin.Context) {
	if a.buffers == nil || a.twin == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vitals ingestion not configured"})
		return
	}
	patientID := c.Param("patient_id")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	recent := a.buffers.Recent(patientID, limit)
	baselines := a.twin.Snapshot(patientID)
	if len(recent) == 0 && baselines == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown patient"})
		return
	}
	status, confidence := a.twin.Status(patientID)

	c.JSON(http.StatusOK, gin.H{
		"patient_id":          patientID,
		"recent":              recent,
		"baselines":           baselines,
		"baseline_status":     status,
		"baseline_confidence": confidence,
	})
}

// ListAlerts returns the alert history for a patient, newest first.
func (a *API) ListAlerts(c *gin.Context) {
	if a.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert log not configured"})
		return
	}
	patientID := c.Param("patient_id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	alerts, err := a.alerts.ListByPatient(c.Request.Context(), patientID, limit)
	if err != nil {
		a.logger.WithError(err).WithField("patient_id", patientID).Error("Failed to list alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"patient_id": patientID, "alerts": alerts})
}
