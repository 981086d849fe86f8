// Package bridge carries activity events from the sensor supervisor to the
// UI session without ever blocking the supervisor.
package bridge

import (
	"sync"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Listener receives activity events in publish order.
type Listener interface {
	OnActivity(event types.ActivityEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(event types.ActivityEvent)

// OnActivity calls f(event).
func (f ListenerFunc) OnActivity(event types.ActivityEvent) {
	f(event)
}

// Stats counts what the bridge has done with published events.
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
}

// Bridge delivers events to at most one listener on a dedicated goroutine.
// Publish appends to an unbounded queue, so a slow listener never stalls the
// publisher; events published while no listener is registered are dropped.
type Bridge struct {
	mu       sync.Mutex
	listener Listener
	queue    []types.ActivityEvent
	// generation changes whenever the listener changes so that a batch taken
	// for an old listener is not handed to a new one.
	generation uint64
	closed     bool
	stats      Stats

	wake chan struct{}
	done chan struct{}
}

// Ensure Bridge implements ActivityPublisher
var _ interfaces.ActivityPublisher = (*Bridge)(nil)

// New creates a bridge and starts its delivery goroutine.
func New() *Bridge {
	b := &Bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go b.deliver()
	return b
}

// Register makes l the only listener. Events queued for a previous listener
// are discarded.
func (b *Bridge) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Dropped += uint64(len(b.queue))
	b.queue = nil
	b.listener = l
	b.generation++
}

// Unregister removes the listener. Pending events are dropped.
func (b *Bridge) Unregister() {
	b.Register(nil)
}

// Publish queues event for the listener. It never blocks.
func (b *Bridge) Publish(event types.ActivityEvent) {
	b.mu.Lock()
	b.stats.Published++
	if b.listener == nil || b.closed {
		b.stats.Dropped++
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, event)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
		// A wakeup is already pending
	}
}

// Stats returns a copy of the counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Close stops accepting events, delivers what is already queued and waits for
// the delivery goroutine to exit. Close is idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-b.done
}

func (b *Bridge) deliver() {
	defer close(b.done)

	for range b.wake {
		for {
			b.mu.Lock()
			batch := b.queue
			b.queue = nil
			listener := b.listener
			generation := b.generation
			closed := b.closed
			b.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}

			for i, event := range batch {
				b.mu.Lock()
				current := b.generation == generation
				if !current {
					b.stats.Dropped += uint64(len(batch) - i)
				}
				b.mu.Unlock()
				if !current {
					break
				}

				listener.OnActivity(event)

				b.mu.Lock()
				b.stats.Delivered++
				b.mu.Unlock()
			}
		}
	}
}
