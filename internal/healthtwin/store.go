package healthtwin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Store abstracts baseline persistence.
type Store interface {
	Load(ctx context.Context, patientID string) (map[string]Baseline, error)
	Save(ctx context.Context, patientID string, baselines map[string]Baseline) error
	CleanupStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// MemoryStore keeps baselines in process memory. Used when no database
// is configured, and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Baseline
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Baseline)}
}

func (s *MemoryStore) Load(_ context.Context, patientID string) (map[string]Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Baseline, len(s.data[patientID]))
	for metric, b := range s.data[patientID] {
		out[metric] = b
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, patientID string, baselines map[string]Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]Baseline, len(baselines))
	for metric, b := range baselines {
		cp[metric] = b
	}
	s.data[patientID] = cp
	return nil
}

func (s *MemoryStore) CleanupStale(_ context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var removed int64
	for patientID, metrics := range s.data {
		for metric, b := range metrics {
			if b.LastUpdated.Before(cutoff) {
				delete(metrics, metric)
				removed++
			}
		}
		if len(metrics) == 0 {
			delete(s.data, patientID)
		}
	}
	return removed, nil
}

// SQLStore persists baselines to PostgreSQL.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context, patientID string) (map[string]Baseline, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("baseline store unavailable")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric, mean, m2, min_value, max_value, p5, p95, sample_count, first_seen, last_updated
		 FROM mediq.vitals_baselines
		 WHERE patient_id = $1`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("query baselines: %w", err)
	}
	defer rows.Close()

	baselines := make(map[string]Baseline)
	for rows.Next() {
		var metric string
		var b Baseline
		if err := rows.Scan(&metric, &b.Mean, &b.M2, &b.Min, &b.Max,
			&b.P5, &b.P95, &b.SampleCount, &b.FirstSeen, &b.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		baselines[metric] = b
	}
	return baselines, rows.Err()
}

func (s *SQLStore) Save(ctx context.Context, patientID string, baselines map[string]Baseline) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("baseline store unavailable")
	}
	if len(baselines) == 0 {
		return nil
	}

	// One INSERT ... ON CONFLICT DO UPDATE covering every metric.
	var b strings.Builder
	b.WriteString(`INSERT INTO mediq.vitals_baselines (patient_id, metric, mean, m2, min_value, max_value, p5, p95, sample_count, first_seen, last_updated) VALUES `)
	args := make([]any, 0, len(baselines)*10)
	i := 0
	for metric, m := range baselines {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i*10 + 1
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base, base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args, patientID, metric, m.Mean, m.M2, m.Min, m.Max,
			m.P5, m.P95, m.SampleCount, m.FirstSeen)
		i++
	}
	b.WriteString(` ON CONFLICT (patient_id, metric) DO UPDATE SET mean = EXCLUDED.mean, m2 = EXCLUDED.m2, min_value = EXCLUDED.min_value, max_value = EXCLUDED.max_value, p5 = EXCLUDED.p5, p95 = EXCLUDED.p95, sample_count = EXCLUDED.sample_count, last_updated = NOW()`)

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("upsert baselines: %w", err)
	}
	return nil
}

func (s *SQLStore) CleanupStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("baseline store unavailable")
	}
	cutoff := time.Now().Add(-maxAge)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM mediq.vitals_baselines WHERE last_updated < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup baselines: %w", err)
	}
	return result.RowsAffected()
}
