package ingest

import (
	"sync"
	"time"

	"mediq/internal/model"
)

// Cooldown rate-limits alert fan-out per patient so a noisy sensor does
// not page the same people every few seconds. CRITICAL alerts always
// pass.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Cooldown{window: window, last: make(map[string]time.Time)}
}

// Allow reports whether an alert may fire now, and records the firing
// when it does.
func (c *Cooldown) Allow(patientID string, risk model.RiskLevel, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if risk != model.RiskCritical {
		if last, ok := c.last[patientID]; ok && now.Sub(last) < c.window {
			return false
		}
	}
	c.last[patientID] = now
	return true
}
