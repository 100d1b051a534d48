package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"Flowgraph-Apps/internal/core/network"
	"Flowgraph-Apps/internal/logging"
)

// DefaultRelayTopic is the transport channel relayed events travel on.
const DefaultRelayTopic = "flowgraph.events"

var ErrRelayStarted = errors.New("relay already started")

type envelope struct {
	Node  string    `json:"node"`
	Event FlowEvent `json:"event"`
}

// Relay mirrors the events emitted on a bus to peers over a network.PubSub
// and ingests the events peers emit. Events carry the id of the node that
// emitted them so a node never ingests its own events.
type Relay struct {
	bus   *Bus
	ps    network.PubSub
	topic string
	node  string
	log   logging.Logger

	mu      sync.Mutex
	started bool
	cancel  func()
	done    chan struct{}
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

func WithRelayTopic(topic string) RelayOption {
	return func(r *Relay) {
		if topic != "" {
			r.topic = topic
		}
	}
}

func WithRelayLogger(l logging.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRelay(bus *Bus, ps network.PubSub, opts ...RelayOption) *Relay {
	r := &Relay{
		bus:   bus,
		ps:    ps,
		topic: DefaultRelayTopic,
		node:  uuid.NewString(),
		log:   logging.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NodeID identifies this process on the relay topic.
func (r *Relay) NodeID() string { return r.node }

// Start subscribes to the relay topic and begins forwarding local events.
// The relay stops when ctx is done or Stop is called.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrRelayStarted
	}
	ch, cancelSub, err := r.ps.Subscribe(r.topic)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	r.started = true
	r.cancel = func() {
		cancel()
		cancelSub()
	}
	r.done = make(chan struct{})
	r.bus.AddSink(r.forward(ctx))
	go r.consume(ctx, ch)
	return nil
}

// Stop ends the relay and waits for the consumer to exit.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Relay) forward(ctx context.Context) Sink {
	return func(ev FlowEvent) {
		if ctx.Err() != nil {
			return
		}
		b, err := json.Marshal(envelope{Node: r.node, Event: ev})
		if err != nil {
			r.log.Warn("relay encode failed", "error", err)
			return
		}
		if err := r.ps.Publish(r.topic, b); err != nil {
			r.log.Warn("relay publish failed", "topic", r.topic, "error", err)
		}
	}
}

func (r *Relay) consume(ctx context.Context, ch <-chan network.Message) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				r.log.Debug("relay message skipped", "error", err)
				continue
			}
			if env.Node == r.node || env.Event.Type == "" {
				continue
			}
			r.bus.Ingest(env.Event)
		}
	}
}
