package flow

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps topic names to topics. One registry is shared by everything
// running in a process, but it is an ordinary value so tests can use their own.
type Registry struct {
	mu       sync.RWMutex
	topics   map[string]*Topic
	listener atomic.Pointer[listenerBox]
}

type listenerBox struct {
	l Listener
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*Topic)}
}

// Topic returns the named topic, creating it on first use.
func (r *Registry) Topic(name string) *Topic {
	r.mu.RLock()
	t, ok := r.topics[name]
	r.mu.RUnlock()
	if ok {
		return t
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[name]; ok {
		return t
	}
	t = newTopic(name, r)
	r.topics[name] = t
	return t
}

// Lookup returns the named topic without creating it.
func (r *Registry) Lookup(name string) (*Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[name]
	return t, ok
}

// Topics returns a snapshot of all topics sorted by name.
func (r *Registry) Topics() []*Topic {
	r.mu.RLock()
	out := make([]*Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Names returns the sorted topic names.
func (r *Registry) Names() []string {
	topics := r.Topics()
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = t.name
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// Clear drops every topic and its wiring. Agents that were attached are not
// closed here; their owner closes them before clearing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = make(map[string]*Topic)
}

// SetListener installs the publish listener for all topics; nil removes it.
func (r *Registry) SetListener(l Listener) {
	if l == nil {
		r.listener.Store(nil)
		return
	}
	r.listener.Store(&listenerBox{l: l})
}

func (r *Registry) Listener() Listener {
	if b := r.listener.Load(); b != nil {
		return b.l
	}
	return nil
}
