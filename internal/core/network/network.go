// Package network carries byte payloads between processes on named channels.
// The event relay uses it to mirror control-plane events; agent dataflow never
// leaves the process.
package network

// Message is the transport envelope.
type Message struct {
	Topic   string
	Payload []byte
}

// PubSub is a broadcast transport. Subscribe returns the delivery channel and
// a cancel func that closes it.
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan Message, func(), error)
}

// PeerInfo is implemented by transports that can describe their node.
type PeerInfo interface {
	Peers() PeerSnapshot
}

// PeerSnapshot is a point-in-time view of a transport node.
type PeerSnapshot struct {
	PeerID      string       `json:"peer_id"`
	ListenAddrs []string     `json:"listen_addrs"`
	Peers       []PeerStatus `json:"peers"`
	// Mesh counts the remote peers reachable on each joined topic.
	Mesh map[string]int `json:"mesh"`
	// Dropped counts deliveries skipped because a subscriber was full.
	Dropped map[string]int `json:"dropped"`
}

// PeerStatus is one connected remote peer and its dialable addresses.
type PeerStatus struct {
	ID    string   `json:"id"`
	Addrs []string `json:"addrs"`
}
