package simulation

import (
	"sync"
	"time"
)

// MarchSnapshot summarises observed marches.
type MarchSnapshot struct {
	Marches      int
	Hits         int
	Misses       int
	Average      time.Duration
	Max          time.Duration
	Last         time.Duration
	AverageSteps float64
	MaxSteps     int
}

// HitRatio is the share of marches that ended on a surface.
func (s MarchSnapshot) HitRatio() float64 {
	if s.Marches == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Marches)
}

// MarchMonitor accumulates timing and step statistics for completed marches.
type MarchMonitor struct {
	mu       sync.Mutex
	marches  int
	hits     int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	steps    int
	maxSteps int
}

// NewMarchMonitor constructs an empty monitor ready to collect samples.
func NewMarchMonitor() *MarchMonitor {
	return &MarchMonitor{}
}

// Observe records one march result and how long it took.
func (m *MarchMonitor) Observe(result Result, duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marches++
	if result.Hit() {
		m.hits++
	}
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.steps += result.Steps
	if result.Steps > m.maxSteps {
		m.maxSteps = result.Steps
	}
}

// Snapshot returns a copy of the aggregated statistics.
func (m *MarchMonitor) Snapshot() MarchSnapshot {
	if m == nil {
		return MarchSnapshot{}
	}
	m.mu.Lock()
	snap := MarchSnapshot{
		Marches:  m.marches,
		Hits:     m.hits,
		Misses:   m.marches - m.hits,
		Max:      m.max,
		Last:     m.last,
		MaxSteps: m.maxSteps,
	}
	total, steps := m.total, m.steps
	m.mu.Unlock()

	if snap.Marches > 0 {
		snap.Average = total / time.Duration(snap.Marches)
		snap.AverageSteps = float64(steps) / float64(snap.Marches)
	}
	return snap
}

// Reset clears the accumulated statistics, typically after a scene reset.
func (m *MarchMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.marches, m.hits, m.steps, m.maxSteps = 0, 0, 0, 0
	m.total, m.max, m.last = 0, 0, 0
	m.mu.Unlock()
}
