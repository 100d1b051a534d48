package flow

// Agent is a unit of computation wired to topics by name.
//
// Callback is the only ingress and is invoked by the topic a message was
// published on. Raw implementations may assume single threaded access to their
// own state; concurrent delivery is handled by SerializedAgent.
type Agent interface {
	// Name is a human readable, class like label.
	Name() string
	// ID is unique per instance and stable for its lifetime. It is used as the
	// agent's graph node id and to attribute publishes.
	ID() string
	Reset()
	Callback(topic string, msg Message)
	// OnClearInput drops the "received input" latch for the slot fed by topic
	// without touching the captured value.
	OnClearInput(topic string)
	// Close releases held resources and must be safe to call more than once.
	Close() error
}

// Wired is implemented by agents that know which topic slots they consume
// and produce.
type Wired interface {
	Inputs() []string
	Outputs() []string
}

type closedReporter interface {
	Closed() bool
}

func isClosed(a Agent) bool {
	c, ok := a.(closedReporter)
	return ok && c.Closed()
}

// Attach subscribes a on every input topic and declares it publisher on every
// output topic of reg.
func Attach(reg *Registry, a Agent, inputs, outputs []string) {
	for _, in := range inputs {
		reg.Topic(in).Subscribe(a)
	}
	for _, out := range outputs {
		reg.Topic(out).AddPublisher(a)
	}
}

// AttachWired attaches a using its own Inputs and Outputs.
func AttachWired(reg *Registry, a interface {
	Agent
	Wired
}) {
	Attach(reg, a, a.Inputs(), a.Outputs())
}

// Detach reverses Attach.
func Detach(reg *Registry, a Agent, inputs, outputs []string) {
	for _, in := range inputs {
		reg.Topic(in).Unsubscribe(a)
	}
	for _, out := range outputs {
		reg.Topic(out).RemovePublisher(a)
	}
}
