package eventbus

import (
	"sync"

	"Flowgraph-Apps/internal/logging"
)

const (
	// DefaultCapacity is the ring size.
	DefaultCapacity = 500
	// DefaultSubscriberBuffer is the channel size of a Subscription.
	DefaultSubscriberBuffer = 64
)

// Sink observes every event emitted locally.
type Sink func(FlowEvent)

// Option configures a Bus.
type Option func(*Bus)

// WithCapacity sets the ring size; values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.ring = make([]FlowEvent, n)
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// Bus keeps the most recent events in a ring buffer and pushes each new
// event to every live subscription. A subscription that cannot take an event
// is dropped.
type Bus struct {
	log logging.Logger

	mu    sync.Mutex
	ring  []FlowEvent
	head  int // index of the oldest event
	count int
	subs  []*Subscription
	sinks []Sink

	nextID int
}

func New(opts ...Option) *Bus {
	b := &Bus{ring: make([]FlowEvent, DefaultCapacity), log: logging.Nop{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Capacity is the ring size.
func (b *Bus) Capacity() int { return len(b.ring) }

// Emit records ev, pushes it to subscribers and hands it to every sink.
func (b *Bus) Emit(ev FlowEvent) {
	b.mu.Lock()
	b.appendLocked(ev)
	sinks := b.sinks
	b.mu.Unlock()
	for _, s := range sinks {
		s(ev)
	}
}

// Ingest records an event that originated elsewhere. Sinks are not called.
func (b *Bus) Ingest(ev FlowEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(ev)
}

// AddSink registers s for events emitted from now on.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(append([]Sink(nil), b.sinks...), s)
}

func (b *Bus) appendLocked(ev FlowEvent) {
	if b.count < len(b.ring) {
		b.ring[(b.head+b.count)%len(b.ring)] = ev
		b.count++
	} else {
		b.ring[b.head] = ev
		b.head = (b.head + 1) % len(b.ring)
	}

	var failed []*Subscription
	for _, s := range b.subs {
		if !s.push(ev) {
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		b.removeLocked(s)
		b.log.Debug("event subscriber dropped", "subscriber", s.id)
	}
}

// Snapshot returns the most recent limit events, oldest first.
func (b *Bus) Snapshot(limit int) []FlowEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit > b.count {
		limit = b.count
	}
	if limit <= 0 {
		return []FlowEvent{}
	}
	out := make([]FlowEvent, limit)
	start := b.head + b.count - limit
	for i := range out {
		out[i] = b.ring[(start+i)%len(b.ring)]
	}
	return out
}

// Len is the number of events currently held.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Subscribe opens a live subscription. buffer below 1 uses
// DefaultSubscriberBuffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{id: b.nextID, bus: b, ch: make(chan FlowEvent, buffer)}
	// Copy on write: Emit iterates the slice it read under the lock.
	b.subs = append(append([]*Subscription(nil), b.subs...), s)
	return s
}

// Subscribers is the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) removeLocked(s *Subscription) {
	for i, cur := range b.subs {
		if cur == s {
			next := make([]*Subscription, 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			b.subs = append(next, b.subs[i+1:]...)
			s.closeLocked()
			return
		}
	}
}

// Subscription is a live event feed.
type Subscription struct {
	id     int
	bus    *Bus
	ch     chan FlowEvent
	closed bool
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan FlowEvent { return s.ch }

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.removeLocked(s)
}

func (s *Subscription) push(ev FlowEvent) bool {
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
