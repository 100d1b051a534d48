package agents

import (
	"slices"

	"Flowgraph-Apps/internal/core/flow"
)

const (
	IncKind       = "IncAgent"
	DecrementKind = "DecrementAgent"
)

// unary is a stateless numeric agent publishing fn(x) for every numeric
// input on its single input topic.
type unary struct {
	reg     *flow.Registry
	kind    string
	id      string
	inputs  []string
	outputs []string
	fn      func(float64) float64
}

func newUnary(kind string, fn func(float64) float64, reg *flow.Registry, inputs, outputs []string) (flow.Agent, error) {
	if err := requireTopics(kind, "input", inputs, 1); err != nil {
		return nil, err
	}
	if err := requireTopics(kind, "output", outputs, 1); err != nil {
		return nil, err
	}
	return &unary{
		reg:     reg,
		kind:    kind,
		id:      wiringID(kind, inputs, outputs),
		inputs:  slices.Clone(inputs[:1]),
		outputs: slices.Clone(outputs[:1]),
		fn:      fn,
	}, nil
}

// NewInc publishes x+1.
func NewInc(reg *flow.Registry, inputs, outputs []string) (flow.Agent, error) {
	return newUnary(IncKind, func(x float64) float64 { return x + 1 }, reg, inputs, outputs)
}

// NewDecrement publishes x-1.
func NewDecrement(reg *flow.Registry, inputs, outputs []string) (flow.Agent, error) {
	return newUnary(DecrementKind, func(x float64) float64 { return x - 1 }, reg, inputs, outputs)
}

func (u *unary) Name() string { return u.kind }
func (u *unary) ID() string   { return u.id }
func (u *unary) Reset()       {}

func (u *unary) setID(id string) { u.id = id }

func (u *unary) Callback(_ string, msg flow.Message) {
	if !msg.IsNumber() {
		return
	}
	u.reg.Topic(u.outputs[0]).PublishFrom(u.id, flow.NewNumberMessage(u.fn(msg.Number())))
}

func (u *unary) OnClearInput(string) {}
func (u *unary) Close() error        { return nil }

func (u *unary) Inputs() []string  { return slices.Clone(u.inputs) }
func (u *unary) Outputs() []string { return slices.Clone(u.outputs) }
