package agents

import (
	"sync"

	"Flowgraph-Apps/internal/core/flow"
)

const (
	PlusKind     = "PlusAgent"
	MultiplyKind = "MultiplyAgent"
)

// BinOp holds the latest value of two input slots and publishes op(x, y)
// whenever an input arrives while both slots are latched.
type BinOp struct {
	reg  *flow.Registry
	name string
	id   string
	in1  string
	in2  string
	out  string
	op   func(x, y float64) float64

	mu   sync.Mutex
	x, y float64
	hasX bool
	hasY bool
}

// NewBinOp builds a named binary operator agent over in1, in2 -> out. Its id
// is "A"+name.
func NewBinOp(reg *flow.Registry, name, in1, in2, out string, op func(x, y float64) float64) *BinOp {
	return &BinOp{reg: reg, name: name, id: "A" + name, in1: in1, in2: in2, out: out, op: op}
}

func newBinaryKind(kind string, op func(x, y float64) float64, reg *flow.Registry, inputs, outputs []string) (flow.Agent, error) {
	if err := requireTopics(kind, "input", inputs, 2); err != nil {
		return nil, err
	}
	if err := requireTopics(kind, "output", outputs, 1); err != nil {
		return nil, err
	}
	b := NewBinOp(reg, kind, inputs[0], inputs[1], outputs[0], op)
	b.id = wiringID(kind, inputs, outputs)
	return b, nil
}

// NewPlus publishes x+y.
func NewPlus(reg *flow.Registry, inputs, outputs []string) (flow.Agent, error) {
	return newBinaryKind(PlusKind, func(x, y float64) float64 { return x + y }, reg, inputs, outputs)
}

// NewMultiply publishes x*y.
func NewMultiply(reg *flow.Registry, inputs, outputs []string) (flow.Agent, error) {
	return newBinaryKind(MultiplyKind, func(x, y float64) float64 { return x * y }, reg, inputs, outputs)
}

func (b *BinOp) Name() string { return b.name }
func (b *BinOp) ID() string   { return b.id }

func (b *BinOp) setID(id string) { b.id = id }

// Reset clears both values and latches.
func (b *BinOp) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.x, b.y = 0, 0
	b.hasX, b.hasY = false, false
}

func (b *BinOp) Callback(topic string, msg flow.Message) {
	if !msg.IsNumber() {
		return
	}
	b.mu.Lock()
	// A topic feeding both slots latches the first one only.
	switch topic {
	case b.in1:
		b.x, b.hasX = msg.Number(), true
	case b.in2:
		b.y, b.hasY = msg.Number(), true
	}
	ready := b.hasX && b.hasY
	x, y := b.x, b.y
	b.mu.Unlock()

	if ready {
		b.reg.Topic(b.out).PublishFrom(b.id, flow.NewNumberMessage(b.op(x, y)))
	}
}

// OnClearInput drops the latch of the slot fed by topic.
func (b *BinOp) OnClearInput(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch topic {
	case b.in1:
		b.hasX = false
	case b.in2:
		b.hasY = false
	}
}

func (b *BinOp) Close() error { return nil }

func (b *BinOp) Inputs() []string {
	if b.in1 == b.in2 {
		return []string{b.in1}
	}
	return []string{b.in1, b.in2}
}

func (b *BinOp) Outputs() []string { return []string{b.out} }
