// Package eventbus records user-visible dataflow occurrences in a bounded
// ring and fans them out to live subscribers.
package eventbus

import (
	"math"
	"time"
)

// Type names the kind of a FlowEvent.
type Type string

const (
	// InputPublish is a publish issued by a UI client.
	InputPublish Type = "INPUT_PUBLISH"
	// AgentPublish is a publish issued by an agent. Only recorded when the
	// agent publish listener is installed.
	AgentPublish Type = "AGENT_PUBLISH"
)

// FlowEvent is one control-plane record.
type FlowEvent struct {
	TS    int64    `json:"ts"`
	Type  Type     `json:"type"`
	From  string   `json:"from"`
	To    string   `json:"to,omitempty"`
	Value *float64 `json:"value"`
}

// NewInputPublish records a UI publish on the node origin ("T"+topic). value
// is nil for text publishes.
func NewInputPublish(origin string, value *float64) FlowEvent {
	return FlowEvent{TS: time.Now().UnixMilli(), Type: InputPublish, From: origin, Value: value}
}

// Float returns a pointer to v, or nil if v is NaN or infinite so the event
// stays JSON encodable.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
