// Package notify handles prevention-alert fan-out: persisting alerts,
// notifying emergency channels, and streaming progress events to
// connected dashboards.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediq/internal/model"
)

// Alert is one escalation produced by the realtime monitoring pipeline.
type Alert struct {
	ID         string             `json:"id"`
	PatientID  string             `json:"patient_id"`
	Diagnosis  model.Diagnosis    `json:"diagnosis"`
	Confidence float64            `json:"confidence"`
	Risk       model.RiskLevel    `json:"risk_level"`
	Vitals     map[string]float64 `json:"vitals"`
	Actions    []string           `json:"actions"`
	CreatedAt  time.Time          `json:"created_at"`
}

// AlertStore persists alerts and serves the per-patient history.
type AlertStore interface {
	Save(ctx context.Context, alert Alert) (Alert, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]Alert, error)
}

// MemoryAlertLog is a bounded in-memory AlertStore used when no
// database is configured. Oldest alerts are evicted first.
type MemoryAlertLog struct {
	mu     sync.RWMutex
	alerts []Alert
	cap    int
}

func NewMemoryAlertLog(capacity int) *MemoryAlertLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAlertLog{cap: capacity}
}

func (l *MemoryAlertLog) Save(_ context.Context, alert Alert) (Alert, error) {
	if alert.PatientID == "" {
		return Alert{}, errors.New("patient id is required")
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, alert)
	if len(l.alerts) > l.cap {
		l.alerts = l.alerts[len(l.alerts)-l.cap:]
	}
	return alert, nil
}

func (l *MemoryAlertLog) ListByPatient(_ context.Context, patientID string, limit int) ([]Alert, error) {
	if patientID == "" {
		return nil, errors.New("patient id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Alert
	for i := len(l.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if l.alerts[i].PatientID == patientID {
			out = append(out, l.alerts[i])
		}
	}
	return out, nil
}

// SQLAlertStore persists alerts to PostgreSQL.
type SQLAlertStore struct {
	db *sql.DB
}

func NewSQLAlertStore(db *sql.DB) *SQLAlertStore {
	return &SQLAlertStore{db: db}
}

func (s *SQLAlertStore) Save(ctx context.Context, alert Alert) (Alert, error) {
	if s == nil || s.db == nil {
		return Alert{}, errors.New("alert store unavailable")
	}
	if alert.PatientID == "" {
		return Alert{}, errors.New("patient id is required")
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	vitalsJSON, err := json.Marshal(alert.Vitals)
	if err != nil {
		return Alert{}, fmt.Errorf("encode vitals: %w", err)
	}
	actionsJSON, err := json.Marshal(alert.Actions)
	if err != nil {
		return Alert{}, fmt.Errorf("encode actions: %w", err)
	}

	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO mediq.prevention_alerts (
			id,
			patient_id,
			diagnosis,
			confidence,
			risk_level,
			vitals,
			actions,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`,
		alert.ID,
		alert.PatientID,
		string(alert.Diagnosis),
		alert.Confidence,
		string(alert.Risk),
		vitalsJSON,
		actionsJSON,
	).Scan(&createdAt)
	if err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}

	alert.CreatedAt = createdAt
	return alert, nil
}

func (s *SQLAlertStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]Alert, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("alert store unavailable")
	}
	if patientID == "" {
		return nil, errors.New("patient id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id,
			patient_id,
			diagnosis,
			confidence,
			risk_level,
			vitals,
			actions,
			created_at
		FROM mediq.prevention_alerts
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var diagnosis, risk string
		var vitalsJSON, actionsJSON []byte
		if err := rows.Scan(&a.ID, &a.PatientID, &diagnosis, &a.Confidence,
			&risk, &vitalsJSON, &actionsJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Diagnosis = model.Diagnosis(diagnosis)
		a.Risk = model.RiskLevel(risk)
		if len(vitalsJSON) > 0 {
			if err := json.Unmarshal(vitalsJSON, &a.Vitals); err != nil {
				return nil, fmt.Errorf("decode vitals: %w", err)
			}
		}
		if len(actionsJSON) > 0 {
			if err := json.Unmarshal(actionsJSON, &a.Actions); err != nil {
				return nil, fmt.Errorf("decode actions: %w", err)
			}
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
