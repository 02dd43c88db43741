package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"mediq/internal/model"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeNotifier struct {
	name   string
	action string
	err    error
	calls  int
}

func (f *fakeNotifier) Name() string   { return f.name }
func (f *fakeNotifier) Action() string { return f.action }

func (f *fakeNotifier) Notify(context.Context, Alert) error {
	f.calls++
	return f.err
}

func TestDispatcherCollectsSuccessfulActions(t *testing.T) {
	sms := &fakeNotifier{name: "sms", action: "SMS sent to emergency contact"}
	er := &fakeNotifier{name: "er_email", action: "Emergency department notified", err: errors.New("smtp down")}
	push := &fakeNotifier{name: "push", action: "Push notification delivered"}

	d := NewDispatcher(testLogger(), sms, er, push)
	actions := d.Dispatch(context.Background(), Alert{PatientID: "P1"})

	if sms.calls != 1 || er.calls != 1 || push.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want 1 each", sms.calls, er.calls, push.calls)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %v, want the two successful channels", actions)
	}
	// Registration order is preserved even though delivery is parallel.
	if actions[0] != sms.action || actions[1] != push.action {
		t.Errorf("actions = %v, want [%q %q]", actions, sms.action, push.action)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewSMSNotifier(srv.URL)
	err := n.Notify(context.Background(), Alert{
		PatientID: "P1",
		Diagnosis: model.DxNSTEMI,
		Risk:      model.RiskHigh,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(gotBody, "P1") || !strings.Contains(gotBody, "NSTEMI") {
		t.Errorf("payload = %q, missing alert fields", gotBody)
	}
}

func TestWebhookNotifierGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewPushNotifier(srv.URL).Notify(context.Background(), Alert{PatientID: "P1"}); err == nil {
		t.Fatal("expected error for non-2xx gateway response")
	}
}

func TestMemoryAlertLogBounded(t *testing.T) {
	log := NewMemoryAlertLog(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := log.Save(ctx, Alert{
			PatientID: "P1",
			Diagnosis: model.DxUnstableAngina,
			CreatedAt: time.Now(),
			Actions:   []string{fmt.Sprintf("alert-%d", i)},
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	alerts, err := log.ListByPatient(ctx, "P1", 10)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("len = %d, want 3 after eviction", len(alerts))
	}
	// Newest first.
	if alerts[0].Actions[0] != "alert-4" {
		t.Errorf("first = %v, want newest alert", alerts[0].Actions)
	}
}

func TestMemoryAlertLogRequiresPatient(t *testing.T) {
	log := NewMemoryAlertLog(10)
	if _, err := log.Save(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error for missing patient id")
	}
}

func TestSQLAlertStoreSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO mediq.prevention_alerts").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	store := NewSQLAlertStore(db)
	saved, err := store.Save(context.Background(), Alert{
		PatientID:  "P1",
		Diagnosis:  model.DxNSTEMI,
		Confidence: 0.85,
		Risk:       model.RiskHigh,
		Vitals:     map[string]float64{"heart_rate": 120},
		Actions:    []string{"SMS sent to emergency contact"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected generated alert id")
	}
	if !saved.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", saved.CreatedAt, now)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLAlertStoreListByPatient(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "patient_id", "diagnosis", "confidence", "risk_level", "vitals", "actions", "created_at",
	}).AddRow("a1", "P1", "NSTEMI", 0.85, "HIGH",
		[]byte(`{"heart_rate":120}`), []byte(`["SMS sent to emergency contact"]`), time.Now())
	mock.ExpectQuery("SELECT id").
		WithArgs("P1", 50).
		WillReturnRows(rows)

	store := NewSQLAlertStore(db)
	alerts, err := store.ListByPatient(context.Background(), "P1", 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("len = %d, want 1", len(alerts))
	}
	if alerts[0].Diagnosis != model.DxNSTEMI || alerts[0].Vitals["heart_rate"] != 120 {
		t.Errorf("alert = %+v, fields not decoded", alerts[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHubBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(testLogger())

	router := gin.New()
	router.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration happens in the HTTP handler before it returns, but
	// give the server a moment under race conditions.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast("chatbot_activation", Alert{PatientID: "P1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Envelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "chatbot_activation" {
		t.Errorf("type = %q, want chatbot_activation", msg.Type)
	}
}
