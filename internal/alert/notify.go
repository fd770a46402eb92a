package alert

import (
	"sync/atomic"

	"github.com/xtxerr/vigil/internal/logging"
	"github.com/xtxerr/vigil/internal/types"
)

// Notification is the structured fire signal handed to the notification
// subsystem. Actual delivery to the channels happens outside the core.
type Notification struct {
	Event    types.AlertEvent
	Channels []string
}

// Dispatcher is a bounded outbound queue decoupling ingest latency from
// notification delivery. Publishing never blocks: when the queue is full
// the notification is dropped and counted.
type Dispatcher struct {
	ch      chan Notification
	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher with the given queue capacity.
func NewDispatcher(capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Dispatcher{ch: make(chan Notification, capacity)}
}

// Publish enqueues a notification without blocking.
// Returns false if the queue was full and the notification was dropped.
func (d *Dispatcher) Publish(n Notification) bool {
	select {
	case d.ch <- n:
		return true
	default:
		d.dropped.Add(1)
		logging.Component("alert").Warn("notification queue full, dropping",
			"rule", n.Event.RuleName, "dropped_total", d.dropped.Load())
		return false
	}
}

// Notifications returns the receive side of the queue for the external
// notification consumer.
func (d *Dispatcher) Notifications() <-chan Notification {
	return d.ch
}

// Dropped returns the number of notifications dropped so far.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close closes the queue. Call only after all publishers have stopped.
func (d *Dispatcher) Close() {
	close(d.ch)
}
