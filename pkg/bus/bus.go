// Package bus is the single bounded in-process queue that source, init,
// and target workers publish and subscribe through. Publish never
// blocks: a full bus counts and drops rather than waiting for room.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/event"
)

// Callback is a subscriber invoked once per matching message. A
// panicking or erroring callback is logged and does not affect sibling
// subscribers for the same message.
type Callback func(event.Message) error

// Stats are the bus's own counters, exposed by value so a reader never
// blocks the producer side.
type Stats struct {
	MessagesSent      int64
	MessagesProcessed int64
	MessagesDropped   int64
	SubscribersCount  int
}

// Bus is a single bounded FIFO with one producer-queue and many typed
// subscribers. Capacity is fixed at construction (default 10000 per
// spec.md §4.5).
type Bus struct {
	ch chan event.Message

	mu          sync.RWMutex
	closed      bool
	subscribers map[event.Kind][]Callback

	statsMu sync.Mutex
	stats   Stats

	log zerolog.Logger
}

const DefaultCapacity = 10000

// New returns a bus with the given capacity (DefaultCapacity if capacity
// is <= 0).
func New(capacity int, log zerolog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ch:          make(chan event.Message, capacity),
		subscribers: make(map[event.Kind][]Callback),
		log:         log,
	}
}

// Capacity returns the bus's fixed buffer size.
func (b *Bus) Capacity() int { return cap(b.ch) }

// UsageFraction returns size/capacity, the figure back-pressure
// decisions (§4.6/§4.8's 90% threshold) are based on.
func (b *Bus) UsageFraction() float64 {
	return float64(len(b.ch)) / float64(cap(b.ch))
}

// Subscribe registers cb for every message of the given kind.
func (b *Bus) Subscribe(kind event.Kind, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], cb)
}

// Unsubscribe removes the first subscriber of kind whose function has the
// same code pointer as cb (see fnPointer). Go has no function equality,
// so callbacks are compared by code, not by value: two closures built
// from the same function literal, or two method values of the same
// method on different receivers, compare equal, and Unsubscribe removes
// whichever of them was subscribed first. A callback built from a
// different function literal than the subscribed one never matches.
func (b *Bus) Unsubscribe(kind event.Kind, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cbs := b.subscribers[kind]
	target := fnPointer(cb)
	for i, existing := range cbs {
		if fnPointer(existing) == target {
			b.subscribers[kind] = append(cbs[:i], cbs[i+1:]...)
			return
		}
	}
}

// Publish returns immediately. On a full queue it increments
// MessagesDropped and returns false; a closed bus always returns false.
func (b *Bus) Publish(msg event.Message) bool {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return false
	}

	select {
	case b.ch <- msg:
		b.statsMu.Lock()
		b.stats.MessagesSent++
		b.statsMu.Unlock()
		return true
	default:
		b.statsMu.Lock()
		b.stats.MessagesDropped++
		b.statsMu.Unlock()
		b.log.Warn().Str("kind", string(msg.Kind)).Msg("bus full, message dropped")
		return false
	}
}

// Process drains the queue for up to timeout, invoking every subscriber
// registered for each message's kind. A subscriber error is logged and
// does not stop delivery to sibling subscribers or to the next message.
func (b *Bus) Process(ctx context.Context, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-b.ch:
			b.dispatch(msg)
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) dispatch(msg event.Message) {
	b.mu.RLock()
	cbs := append([]Callback(nil), b.subscribers[msg.Kind]...)
	b.mu.RUnlock()

	for _, cb := range cbs {
		if err := b.invoke(cb, msg); err != nil {
			b.log.Error().Err(err).Str("kind", string(msg.Kind)).Msg("bus subscriber failed")
		}
	}
	b.statsMu.Lock()
	b.stats.MessagesProcessed++
	b.statsMu.Unlock()
}

func (b *Bus) invoke(cb Callback, msg event.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("bus subscriber panicked")
		}
	}()
	return cb(msg)
}

// RequestShutdown publishes a Shutdown envelope and flips the bus closed
// so subsequent Publish calls are rejected.
func (b *Bus) RequestShutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	select {
	case b.ch <- event.Message{Kind: event.KindShutdown}:
	default:
	}
}

// Run is the bus's own dedicated worker loop: it calls Process
// repeatedly until ctx is cancelled.
func (b *Bus) Run(ctx context.Context, tick time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			b.Process(ctx, tick)
		}
	}
}

// StatsSnapshot returns a snapshot of the bus's counters.
func (b *Bus) StatsSnapshot() Stats {
	b.statsMu.Lock()
	s := b.stats
	b.statsMu.Unlock()

	b.mu.RLock()
	count := 0
	for _, cbs := range b.subscribers {
		count += len(cbs)
	}
	b.mu.RUnlock()
	s.SubscribersCount = count
	return s
}
