package runtime

import (
	"sync/atomic"
	"time"
)

// CircuitStats is a point-in-time view of a circuit's counters.
type CircuitStats struct {
	Name        string       `json:"name"`
	ID          string       `json:"id"`
	State       CircuitState `json:"state"`
	Emitted     uint64       `json:"emitted"`
	Cascaded    uint64       `json:"cascaded"`
	Delivered   uint64       `json:"delivered"`
	Failed      uint64       `json:"failed"`
	Dropped     uint64       `json:"dropped"`
	Activations uint64       `json:"activations"`
	Rebuilds    uint64       `json:"rebuilds"`
	Parks       uint64       `json:"parks"`
	CreatedAt   time.Time    `json:"created_at"`
	CollectedAt time.Time    `json:"collected_at"`
}

// circuitCounters back CircuitStats. Producers touch emitted and dropped;
// everything else is written by the worker and read by Stats.
type circuitCounters struct {
	emitted     atomic.Uint64
	cascaded    atomic.Uint64
	delivered   atomic.Uint64
	failed      atomic.Uint64
	dropped     atomic.Uint64
	activations atomic.Uint64
	rebuilds    atomic.Uint64
	parks       atomic.Uint64
}

func (c *circuitCounters) snapshot() CircuitStats {
	return CircuitStats{
		Emitted:     c.emitted.Load(),
		Cascaded:    c.cascaded.Load(),
		Delivered:   c.delivered.Load(),
		Failed:      c.failed.Load(),
		Dropped:     c.dropped.Load(),
		Activations: c.activations.Load(),
		Rebuilds:    c.rebuilds.Load(),
		Parks:       c.parks.Load(),
		CollectedAt: time.Now(),
	}
}
