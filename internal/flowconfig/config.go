package flowconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"Flowgraph-Apps/internal/agents"
	"Flowgraph-Apps/internal/core/flow"
	"Flowgraph-Apps/internal/logging"
)

// DefaultMailboxCapacity is the mailbox size of every agent a config starts.
const DefaultMailboxCapacity = 100

// ErrAlreadyCreated is returned by Create on a config that was created and
// not closed since.
var ErrAlreadyCreated = errors.New("config already created")

// Config is a set of agents that can be started and torn down as a unit.
type Config interface {
	Name() string
	Version() int
	Create(ctx context.Context) error
	Close() error
}

// Option configures a Generic config.
type Option func(*Generic)

// WithMailboxCapacity overrides DefaultMailboxCapacity.
func WithMailboxCapacity(n int) Option {
	return func(g *Generic) {
		if n > 0 {
			g.capacity = n
		}
	}
}

// WithCloseGrace sets the worker shutdown grace of every started agent.
func WithCloseGrace(d time.Duration) Option {
	return func(g *Generic) { g.grace = d }
}

func WithLogger(l logging.Logger) Option {
	return func(g *Generic) {
		if l != nil {
			g.log = l
		}
	}
}

// Generic instantiates the agents declared in a text config. Every agent is
// wrapped in a flow.SerializedAgent and the wrapper is what gets attached to
// the registry.
type Generic struct {
	reg      *flow.Registry
	catalog  *agents.Catalog
	text     string
	capacity int
	grace    time.Duration
	log      logging.Logger

	mu      sync.Mutex
	created bool
	running []*flow.SerializedAgent
}

// NewGeneric returns a config over text that is not yet created.
func NewGeneric(reg *flow.Registry, catalog *agents.Catalog, text string, opts ...Option) *Generic {
	g := &Generic{
		reg:      reg,
		catalog:  catalog,
		text:     text,
		capacity: DefaultMailboxCapacity,
		grace:    flow.DefaultCloseGrace,
		log:      logging.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LoadFile reads a config file into a Generic config.
func LoadFile(path string, reg *flow.Registry, catalog *agents.Catalog, opts ...Option) (*Generic, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return NewGeneric(reg, catalog, string(b), opts...), nil
}

func (g *Generic) Name() string { return "Generic Config" }
func (g *Generic) Version() int { return 1 }

// Create parses the config and starts its agents. On error the agents started
// so far keep running until Close is called.
func (g *Generic) Create(ctx context.Context) (err error) {
	ctx, span := otel.Tracer("flowconfig").Start(ctx, "flowconfig.Create")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.created {
		return ErrAlreadyCreated
	}
	g.created = true

	entries, err := Parse(g.text)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("flowconfig.entries", len(entries)))
	for _, e := range entries {
		if err := g.start(ctx, e); err != nil {
			return fmt.Errorf("line %d: %w", e.Line, err)
		}
	}
	g.log.Info("config created", "agents", len(g.running), "topics", g.reg.Len())
	return nil
}

func (g *Generic) start(ctx context.Context, e Entry) error {
	inner, err := g.catalog.New(e.Kind, g.reg, e.Inputs, e.Outputs)
	if err != nil {
		return err
	}
	sa, err := flow.NewSerializedAgent(inner, g.capacity,
		flow.WithCloseGrace(g.grace),
		flow.WithLogger(logging.With(g.log, "agent", inner.ID())),
	)
	if err != nil {
		_ = inner.Close()
		return err
	}
	inputs, outputs := e.Inputs, e.Outputs
	if w, ok := inner.(flow.Wired); ok {
		inputs, outputs = w.Inputs(), w.Outputs()
	}
	flow.Attach(g.reg, sa, inputs, outputs)
	g.running = append(g.running, sa)
	trace.SpanFromContext(ctx).AddEvent("agent started", trace.WithAttributes(attribute.String("agent.id", sa.ID())))
	g.log.Debug("agent started", "agent", sa.ID(), "inputs", inputs, "outputs", outputs)
	return nil
}

// Agents returns the running wrappers in start order.
func (g *Generic) Agents() []*flow.SerializedAgent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*flow.SerializedAgent(nil), g.running...)
}

// Close stops every running agent and forgets them. It does not clear the
// registry. Calling Close again is a no-op.
func (g *Generic) Close() error {
	g.mu.Lock()
	running := g.running
	g.running = nil
	g.created = false
	g.mu.Unlock()

	var errs []error
	for _, sa := range running {
		if err := sa.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sa.ID(), err))
		}
	}
	if len(running) > 0 {
		g.log.Info("config closed", "agents", len(running))
	}
	return errors.Join(errs...)
}
