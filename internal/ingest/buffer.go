package ingest

import (
	"sync"

	"mediq/internal/model"
)

// Buffers keeps a bounded per-patient window of recent samples. The
// window feeds escalation prompts and the vitals snapshot endpoint.
type Buffers struct {
	mu   sync.RWMutex
	size int
	data map[string][]model.VitalSample
}

func NewBuffers(size int) *Buffers {
	if size <= 0 {
		size = 300
	}
	return &Buffers{size: size, data: make(map[string][]model.VitalSample)}
}

// Append records a sample, evicting the oldest once the window is full.
func (b *Buffers) Append(sample model.VitalSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	window := append(b.data[sample.PatientID], sample)
	if len(window) > b.size {
		window = window[len(window)-b.size:]
	}
	b.data[sample.PatientID] = window
}

// Recent returns up to n of the newest samples, oldest first.
func (b *Buffers) Recent(patientID string, n int) []model.VitalSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	window := b.data[patientID]
	if n <= 0 || n > len(window) {
		n = len(window)
	}
	out := make([]model.VitalSample, n)
	copy(out, window[len(window)-n:])
	return out
}

// Len reports the current window size for a patient.
func (b *Buffers) Len(patientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data[patientID])
}
