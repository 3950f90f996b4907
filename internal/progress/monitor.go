// Package progress tracks throughput over a sliding time window and
// flags silent stalls in long-running jobs.
package progress

import (
	"time"
)

const (
	// retention of progress samples
	defaultWindow = 30 * time.Minute
	// stall checks run at most this often
	defaultCheckInterval = 5 * time.Minute
	// window that must show zero movement to count as a stall
	defaultStallWindow = 5 * time.Minute
	// window for the low-rate stall criterion
	defaultRateWindow = 10 * time.Minute
)

type sample struct {
	at        time.Time
	completed int
}

// Status is a point-in-time snapshot of run progress.
type Status struct {
	Completed     int
	Total         int
	Percent       float64
	RatePerMinute float64
	ETA           time.Duration
	ETAKnown      bool
	Stalled       bool
}

// Monitor keeps recent progress samples and derives rate, ETA and stall
// state. It is not goroutine safe; callers observe from a single
// coordinating goroutine.
type Monitor struct {
	total         int
	window        time.Duration
	checkInterval time.Duration
	stallWindow   time.Duration
	rateWindow    time.Duration
	minRate       float64 // items per minute; 0 disables the rate criterion

	samples   []sample
	stalled   bool
	lastCheck time.Time

	now func() time.Time
}

func NewMonitor(total int, minRate float64) *Monitor {
	return &Monitor{
		total:         total,
		window:        defaultWindow,
		checkInterval: defaultCheckInterval,
		stallWindow:   defaultStallWindow,
		rateWindow:    defaultRateWindow,
		minRate:       minRate,
		now:           time.Now,
	}
}

// SetStallWindow overrides the zero-movement window used for stall
// checks. Non-positive values keep the default.
func (m *Monitor) SetStallWindow(d time.Duration) {
	if d > 0 {
		m.stallWindow = d
	}
}

// Observe records the cumulative completed count and returns the current
// status snapshot.
func (m *Monitor) Observe(completed int) Status {
	now := m.now()
	m.samples = append(m.samples, sample{at: now, completed: completed})
	m.prune(now)
	m.checkStall(now)

	status := Status{
		Completed: completed,
		Total:     m.total,
		Stalled:   m.stalled,
	}
	if m.total > 0 {
		status.Percent = float64(completed) / float64(m.total) * 100
	}

	status.RatePerMinute = m.rate(m.window, now)
	if status.RatePerMinute > 0 {
		remaining := float64(m.total - completed)
		status.ETA = time.Duration(remaining / status.RatePerMinute * float64(time.Minute))
		status.ETAKnown = true
	}
	return status
}

func (m *Monitor) prune(now time.Time) {
	cutoff := now.Add(-m.window)
	firstKept := 0
	for firstKept < len(m.samples) && m.samples[firstKept].at.Before(cutoff) {
		firstKept++
	}
	if firstKept > 0 {
		m.samples = append([]sample(nil), m.samples[firstKept:]...)
	}
}

// rate computes items/minute from the oldest retained sample inside the
// given window to the newest.
func (m *Monitor) rate(window time.Duration, now time.Time) float64 {
	cutoff := now.Add(-window)
	var oldest, newest *sample
	for i := range m.samples {
		s := &m.samples[i]
		if s.at.Before(cutoff) {
			continue
		}
		if oldest == nil {
			oldest = s
		}
		newest = s
	}
	if oldest == nil || newest == nil || oldest == newest {
		return 0
	}
	elapsed := newest.at.Sub(oldest.at).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(newest.completed-oldest.completed) / elapsed
}

// checkStall re-evaluates the stall flag at most once per check interval.
// Stalled when the completed count stayed flat over the stall window, or
// the recent rate dropped below the configured minimum.
func (m *Monitor) checkStall(now time.Time) {
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.checkInterval {
		return
	}
	m.lastCheck = now

	cutoff := now.Add(-m.stallWindow)
	var coverage bool // saw a sample old enough to judge the window
	minCount, maxCount := -1, -1
	for _, s := range m.samples {
		if s.at.After(cutoff) {
			if minCount == -1 || s.completed < minCount {
				minCount = s.completed
			}
			if s.completed > maxCount {
				maxCount = s.completed
			}
		} else {
			coverage = true
		}
	}

	if coverage && minCount != -1 && minCount == maxCount {
		m.stalled = true
		return
	}

	if m.minRate > 0 && coverage {
		if m.rate(m.rateWindow, now) < m.minRate {
			m.stalled = true
			return
		}
	}

	m.stalled = false
}
