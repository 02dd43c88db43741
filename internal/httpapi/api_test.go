package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mediq/internal/agents"
	"mediq/internal/healthtwin"
	"mediq/internal/ingest"
	"mediq/internal/model"
	"mediq/internal/notify"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRouter(t *testing.T) (*gin.Engine, *API) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := testLogger()

	twin := healthtwin.NewTwin(healthtwin.NewMemoryStore(), logger)
	buffers := ingest.NewBuffers(300)
	alerts := notify.NewMemoryAlertLog(100)
	ingestor := ingest.NewIngestor(buffers, twin, ingest.NewCooldown(5*time.Minute), ingest.Options{
		Alerts: alerts,
	}, logger)

	api := New(agents.NewDefaultOrchestrator(logger, agents.DefaultParams()), Options{
		Ingestor: ingestor,
		Buffers:  buffers,
		Twin:     twin,
		Alerts:   alerts,
	}, logger)

	router := gin.New()
	api.Register(router)
	return router, api
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAssessEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	var rec model.PatientRecord
	for _, r := range model.DemoRecords() {
		if r.PatientID == "DEMO_NSTEMI_001" {
			rec = r
		}
	}
	if rec.PatientID == "" {
		t.Fatal("demo record missing")
	}

	w := doJSON(t, router, http.MethodPost, "/api/assess", rec)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp AssessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Assessment.Primary == nil {
		t.Fatal("no primary diagnosis")
	}
	if resp.Assessment.Primary.Diagnosis != model.DxNSTEMI {
		t.Errorf("primary = %s, want NSTEMI", resp.Assessment.Primary.Diagnosis)
	}
	if resp.Triage.Level != 2 {
		t.Errorf("esi level = %d, want 2", resp.Triage.Level)
	}
	if len(resp.Treatment.Medications) == 0 {
		t.Error("expected a medication bundle for NSTEMI")
	}
}

func TestAssessEndpointRejectsBadInput(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing patient id", model.PatientRecord{ChiefComplaint: "chest pain"}},
		{"no clinical data", model.PatientRecord{PatientID: "P1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/assess", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/assess", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed json status = %d, want 400", w.Code)
	}
}

func TestDemoEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/demo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Records []model.PatientRecord `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 4 {
		t.Errorf("records = %d, want 4", len(resp.Records))
	}
}

func TestVitalsIngestAndSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)

	hr := 72.0
	for i := 0; i < 10; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/vitals", model.VitalSample{
			PatientID: "P1",
			Timestamp: time.Now(),
			HeartRate: &hr,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ingest status = %d, body = %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, router, http.MethodGet, "/api/vitals/P1?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d", w.Code)
	}
	var resp struct {
		Recent         []model.VitalSample            `json:"recent"`
		Baselines      map[string]healthtwin.Baseline `json:"baselines"`
		BaselineStatus string                         `json:"baseline_status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Recent) != 5 {
		t.Errorf("recent = %d, want 5", len(resp.Recent))
	}
	if _, ok := resp.Baselines[model.VitalHeartRate]; !ok {
		t.Error("heart rate baseline missing from snapshot")
	}
	if resp.BaselineStatus == "" {
		t.Error("baseline status missing")
	}
}

func TestVitalsEndpointErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/vitals", model.VitalSample{PatientID: "P1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty sample status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/vitals/NOBODY", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown patient status = %d, want 404", w.Code)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	router, api := newTestRouter(t)

	alert := notify.Alert{
		PatientID: "P1",
		Diagnosis: model.DxNSTEMI,
		Risk:      model.RiskCritical,
		CreatedAt: time.Now(),
	}
	if _, err := api.alerts.Save(context.Background(), alert); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/alerts/P1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Alerts []notify.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].Diagnosis != model.DxNSTEMI {
		t.Errorf("alerts = %+v, want one NSTEMI alert", resp.Alerts)
	}
}
