package starboard

import "sync/atomic"

// Metrics is the observability sink the pipeline reports to. It is
// instrumentation only; pipeline correctness never depends on it.
type Metrics interface {
	IncAdd()
	IncRemove()
	IncPublish()
	IncPublishError()
	IncDrop()
}

// Counters is the default Metrics implementation, a set of atomic
// process-lifetime counters.
type Counters struct {
	adds          atomic.Int64
	removes       atomic.Int64
	publishes     atomic.Int64
	publishErrors atomic.Int64
	drops         atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Adds          int64
	Removes       int64
	Publishes     int64
	PublishErrors int64
	Drops         int64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncAdd()          { c.adds.Add(1) }
func (c *Counters) IncRemove()       { c.removes.Add(1) }
func (c *Counters) IncPublish()      { c.publishes.Add(1) }
func (c *Counters) IncPublishError() { c.publishErrors.Add(1) }
func (c *Counters) IncDrop()         { c.drops.Add(1) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Adds:          c.adds.Load(),
		Removes:       c.removes.Load(),
		Publishes:     c.publishes.Load(),
		PublishErrors: c.publishErrors.Load(),
		Drops:         c.drops.Load(),
	}
}
