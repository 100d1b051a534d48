package flow

import (
	"slices"
	"sync"
)

// Listener observes publishes before they are dispatched to subscribers.
type Listener interface {
	OnPublish(topic string, msg Message)
	// OnAgentPublish is additionally called when the publish was tagged with
	// the id of the agent that produced it.
	OnAgentPublish(agentID, topic string, msg Message)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Publish      func(topic string, msg Message)
	AgentPublish func(agentID, topic string, msg Message)
}

func (f ListenerFuncs) OnPublish(topic string, msg Message) {
	if f.Publish != nil {
		f.Publish(topic, msg)
	}
}

func (f ListenerFuncs) OnAgentPublish(agentID, topic string, msg Message) {
	if f.AgentPublish != nil {
		f.AgentPublish(agentID, topic, msg)
	}
}

// Topic is a named fan-out point. Subscriber and publisher lists are
// replaced on every mutation so a publish always iterates a complete snapshot.
type Topic struct {
	name string
	reg  *Registry

	mu   sync.Mutex
	subs []Agent
	pubs []Agent
}

func newTopic(name string, reg *Registry) *Topic {
	return &Topic{name: name, reg: reg}
}

func (t *Topic) Name() string { return t.name }

// Subscribe adds a to the subscriber list once. Closed agents are ignored.
func (t *Topic) Subscribe(a Agent) {
	if a == nil || isClosed(a) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = addAgent(t.subs, a)
}

func (t *Topic) Unsubscribe(a Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = removeAgent(t.subs, a)
}

// AddPublisher declares a as a producer on this topic.
func (t *Topic) AddPublisher(a Agent) {
	if a == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pubs = addAgent(t.pubs, a)
}

func (t *Topic) RemovePublisher(a Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pubs = removeAgent(t.pubs, a)
}

// Subscribers returns the subscriber list in insertion order.
func (t *Topic) Subscribers() []Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.subs)
}

// Publishers returns the declared publishers in insertion order.
func (t *Topic) Publishers() []Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.pubs)
}

// Publish dispatches msg to every subscriber on the caller's goroutine.
func (t *Topic) Publish(msg Message) {
	t.publish("", msg)
}

// PublishFrom is Publish tagged with the id of the producing agent.
func (t *Topic) PublishFrom(agentID string, msg Message) {
	t.publish(agentID, msg)
}

func (t *Topic) publish(origin string, msg Message) {
	if l := t.listener(); l != nil {
		l.OnPublish(t.name, msg)
		if origin != "" {
			l.OnAgentPublish(origin, t.name, msg)
		}
	}
	t.mu.Lock()
	subs := t.subs
	t.mu.Unlock()
	// subs is never mutated in place, so it is safe to range without the lock.
	for _, a := range subs {
		a.Callback(t.name, msg)
	}
}

func (t *Topic) listener() Listener {
	if t.reg == nil {
		return nil
	}
	return t.reg.Listener()
}

func addAgent(list []Agent, a Agent) []Agent {
	if slices.Contains(list, a) {
		return list
	}
	next := make([]Agent, len(list), len(list)+1)
	copy(next, list)
	return append(next, a)
}

func removeAgent(list []Agent, a Agent) []Agent {
	i := slices.Index(list, a)
	if i < 0 {
		return list
	}
	next := make([]Agent, 0, len(list)-1)
	next = append(next, list[:i]...)
	return append(next, list[i+1:]...)
}
