package flow

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"Flowgraph-Apps/internal/logging"
)

// DefaultCloseGrace bounds how long Close waits for the worker to stop.
const DefaultCloseGrace = 2 * time.Second

var (
	ErrNilAgent        = errors.New("agent is nil")
	ErrInvalidCapacity = errors.New("mailbox capacity must be positive")
)

type task struct {
	topic string
	msg   Message
}

// SerializedAgent wraps an agent with a bounded FIFO mailbox drained by one
// dedicated goroutine. Callback enqueues and blocks while the mailbox is full;
// the inner callback observes messages in enqueue order.
type SerializedAgent struct {
	inner   Agent
	mailbox chan task
	grace   time.Duration
	log     logging.Logger

	running   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// SerializedOption configures a SerializedAgent.
type SerializedOption func(*SerializedAgent)

// WithCloseGrace overrides DefaultCloseGrace. Non-positive values are ignored.
func WithCloseGrace(d time.Duration) SerializedOption {
	return func(s *SerializedAgent) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithLogger sets the logger used to report recovered callback panics.
func WithLogger(l logging.Logger) SerializedOption {
	return func(s *SerializedAgent) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSerializedAgent starts the worker for inner with a mailbox of exactly
// capacity slots.
func NewSerializedAgent(inner Agent, capacity int, opts ...SerializedOption) (*SerializedAgent, error) {
	if inner == nil {
		return nil, ErrNilAgent
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	s := &SerializedAgent{
		inner:   inner,
		mailbox: make(chan task, capacity),
		grace:   DefaultCloseGrace,
		log:     logging.Nop{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.running.Store(true)
	go s.run()
	return s, nil
}

func (s *SerializedAgent) run() {
	defer close(s.done)
	for {
		// Prefer the stop signal so a closed agent does not keep draining.
		select {
		case <-s.stop:
			return
		default:
		}
		select {
		case <-s.stop:
			return
		case t := <-s.mailbox:
			s.deliver(t)
		}
	}
}

func (s *SerializedAgent) deliver(t task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("agent callback panicked",
				"agent", s.inner.ID(),
				"topic", t.topic,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.inner.Callback(t.topic, t.msg)
}

// Callback enqueues the message. It blocks while the mailbox is full and
// silently drops the message once the agent has been closed.
func (s *SerializedAgent) Callback(topic string, msg Message) {
	if !s.running.Load() {
		return
	}
	select {
	case s.mailbox <- task{topic: topic, msg: msg}:
	case <-s.stop:
	}
}

// Close stops the worker, waits up to the grace period for it to exit and
// then closes the inner agent. Messages still queued are discarded.
func (s *SerializedAgent) Close() error {
	s.closeOnce.Do(func() {
		s.running.Store(false)
		close(s.stop)
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-s.done:
		case <-timer.C:
			s.log.Warn("agent worker did not stop within grace period",
				"agent", s.inner.ID(), "grace", s.grace)
		}
		s.closeErr = s.inner.Close()
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *SerializedAgent) Closed() bool { return !s.running.Load() }

// Pending is the number of queued messages not yet delivered.
func (s *SerializedAgent) Pending() int { return len(s.mailbox) }

// Capacity is the mailbox size.
func (s *SerializedAgent) Capacity() int { return cap(s.mailbox) }

func (s *SerializedAgent) Inner() Agent { return s.inner }

// Done is closed once the worker goroutine has exited.
func (s *SerializedAgent) Done() <-chan struct{} { return s.done }

// The control plane calls the methods below directly, not through the
// mailbox, and only while the worker is quiescent.

func (s *SerializedAgent) Name() string { return s.inner.Name() }

func (s *SerializedAgent) ID() string { return s.inner.ID() }

func (s *SerializedAgent) Reset() { s.inner.Reset() }

func (s *SerializedAgent) OnClearInput(topic string) { s.inner.OnClearInput(topic) }

func (s *SerializedAgent) Inputs() []string {
	if w, ok := s.inner.(Wired); ok {
		return w.Inputs()
	}
	return nil
}

func (s *SerializedAgent) Outputs() []string {
	if w, ok := s.inner.(Wired); ok {
		return w.Outputs()
	}
	return nil
}
