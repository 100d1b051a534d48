package flowconfig

import (
	"context"
	"sync"

	"Flowgraph-Apps/internal/agents"
	"Flowgraph-Apps/internal/core/flow"
)

// MathExample wires (B-A)*(B+A) over topics A and B:
//
//	A,B -plus-> R1, A,B -minus-> R2, R1,R2 -mul-> R3
//
// Its agents are attached unwrapped, so a publish completes the whole
// computation before returning.
type MathExample struct {
	reg *flow.Registry

	mu     sync.Mutex
	agents []*agents.BinOp
}

func NewMathExample(reg *flow.Registry) *MathExample {
	return &MathExample{reg: reg}
}

func (m *MathExample) Name() string { return "Math Example" }
func (m *MathExample) Version() int { return 1 }

func (m *MathExample) Create(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.agents) > 0 {
		return ErrAlreadyCreated
	}
	m.agents = []*agents.BinOp{
		agents.NewBinOp(m.reg, "plus", "A", "B", "R1", func(x, y float64) float64 { return x + y }),
		agents.NewBinOp(m.reg, "minus", "A", "B", "R2", func(x, y float64) float64 { return y - x }),
		agents.NewBinOp(m.reg, "mul", "R1", "R2", "R3", func(x, y float64) float64 { return x * y }),
	}
	for _, a := range m.agents {
		flow.AttachWired(m.reg, a)
	}
	return nil
}

func (m *MathExample) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		_ = a.Close()
	}
	m.agents = nil
	return nil
}

var (
	_ Config = (*Generic)(nil)
	_ Config = (*MathExample)(nil)
)
