package checkpoint

import "time"

// Trigger decides when a periodic save is due: after EveryBatches
// resolved batches or after Interval elapsed since the last save,
// whichever comes first. Callers must drive it from one goroutine so
// saves stay ordered.
type Trigger struct {
	EveryBatches int
	Interval     time.Duration

	batchesSince int
	lastSave     time.Time
	now          func() time.Time
}

func NewTrigger(everyBatches int, interval time.Duration) *Trigger {
	t := &Trigger{
		EveryBatches: everyBatches,
		Interval:     interval,
		now:          time.Now,
	}
	t.lastSave = t.now()
	return t
}

// Tick records one resolved batch and reports whether a save is due.
func (t *Trigger) Tick() bool {
	t.batchesSince++
	if t.EveryBatches > 0 && t.batchesSince >= t.EveryBatches {
		return true
	}
	return t.Interval > 0 && t.now().Sub(t.lastSave) >= t.Interval
}

// Reset marks a completed save.
func (t *Trigger) Reset() {
	t.batchesSince = 0
	t.lastSave = t.now()
}
