package eventbus

import (
	"Flowgraph-Apps/internal/core/flow"
	"Flowgraph-Apps/internal/graphview"
)

// AgentPublishListener records an AGENT_PUBLISH event for every publish an
// agent tags with its id. Untagged publishes are ignored; UI publishes are
// recorded by the HTTP layer as INPUT_PUBLISH.
type AgentPublishListener struct {
	bus *Bus
}

func NewAgentPublishListener(bus *Bus) *AgentPublishListener {
	return &AgentPublishListener{bus: bus}
}

func (l *AgentPublishListener) OnPublish(string, flow.Message) {}

func (l *AgentPublishListener) OnAgentPublish(agentID, topic string, msg flow.Message) {
	l.bus.Emit(FlowEvent{
		TS:    msg.Timestamp().UnixMilli(),
		Type:  AgentPublish,
		From:  agentID,
		To:    graphview.TopicNodeID(topic),
		Value: Float(msg.Number()),
	})
}

var _ flow.Listener = (*AgentPublishListener)(nil)
