// Package eventbus fans a stream of ocpp.Event values out to the CSV
// writers, the Redis Pub/Sub mirror, and the live dashboard feed. The
// primary Bus delivers synchronously and single-threaded so that the
// CSV writers see events in the exact order the CSMS dispatcher
// emitted them — the unified table's monotonic "step" counter and
// properties P1/P2/P6 depend on that ordering surviving the bus.
package eventbus

import (
	"sync"

	"github.com/aegischarge/simulator/internal/ocpp"
)

// Handler consumes one event. It must not block for long: it runs on
// the publisher's goroutine.
type Handler func(ocpp.Event)

// Bus is a single-process, synchronous, ordered publisher. Unlike the
// teacher's buffered-channel EventBus, it calls subscribers in-line —
// this module's correctness invariants are about row ORDER, not about
// decoupling producer from consumer.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h to receive every future Publish call, in
// registration order.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to every subscriber in registration order,
// synchronously. Handlers that themselves need to fan out further
// (Redis, the live feed) are expected to do so without reordering.
func (b *Bus) Publish(ev ocpp.Event) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
