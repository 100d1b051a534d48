package network

import (
	"sync"
)

// DefaultBuffer is the per-subscription channel size.
const DefaultBuffer = 64

// MemoryPubSub is a process-local transport for tests and single node runs.
// Delivery is best effort: a subscription whose buffer is full misses the
// message rather than stalling the publisher.
type MemoryPubSub struct {
	mu      sync.RWMutex
	nextID  int
	buffer  int
	subs    map[string]map[int]chan Message
	dropped map[string]int
}

func NewMemoryPubSub() *MemoryPubSub {
	return NewMemoryPubSubSize(DefaultBuffer)
}

// NewMemoryPubSubSize sets the subscription buffer; values below 1 use 1.
func NewMemoryPubSubSize(buffer int) *MemoryPubSub {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryPubSub{
		buffer:  buffer,
		subs:    make(map[string]map[int]chan Message),
		dropped: make(map[string]int),
	}
}

func (m *MemoryPubSub) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[topic] {
		msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case ch <- msg:
		default:
			m.dropped[topic]++
		}
	}
	return nil
}

func (m *MemoryPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[topic]; !ok {
		m.subs[topic] = make(map[int]chan Message)
	}
	id := m.nextID
	m.nextID++
	ch := make(chan Message, m.buffer)
	m.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if byID, ok := m.subs[topic]; ok {
				if sub, exists := byID[id]; exists {
					delete(byID, id)
					close(sub)
				}
				if len(byID) == 0 {
					delete(m.subs, topic)
				}
			}
		})
	}
	return ch, cancel, nil
}

// Dropped reports how many deliveries on topic were skipped because a
// subscription buffer was full.
func (m *MemoryPubSub) Dropped(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped[topic]
}

// Peers describes the in-process node. Mesh counts local subscriptions since
// there are no remote peers.
func (m *MemoryPubSub) Peers() PeerSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := PeerSnapshot{
		PeerID:      "local",
		ListenAddrs: []string{},
		Peers:       []PeerStatus{},
		Mesh:        make(map[string]int, len(m.subs)),
		Dropped:     make(map[string]int, len(m.dropped)),
	}
	for topic, subs := range m.subs {
		snap.Mesh[topic] = len(subs)
	}
	for topic, n := range m.dropped {
		snap.Dropped[topic] = n
	}
	return snap
}
