// Package agents holds the reference agents and the catalog that maps the
// kind names used in config files to their constructors.
package agents

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"Flowgraph-Apps/internal/core/flow"
)

var (
	ErrUnknownKind   = errors.New("unknown agent kind")
	ErrDuplicateKind = errors.New("agent kind already registered")
	ErrMissingTopic  = errors.New("missing topic")
)

// Factory builds an agent for the given input and output topic names. The
// agent keeps reg to look up its output topics when it publishes.
type Factory func(reg *flow.Registry, inputs, outputs []string) (flow.Agent, error)

// Catalog is a concurrency safe kind -> Factory table.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory. Kinds are matched exactly.
func (c *Catalog) Register(kind string, f Factory) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("agent kind is empty")
	}
	if f == nil {
		return fmt.Errorf("factory for %q is nil", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[kind]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKind, kind)
	}
	c.factories[kind] = f
	return nil
}

// Lookup returns the factory registered for kind.
func (c *Catalog) Lookup(kind string) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f, nil
}

// New looks up kind and builds the agent. When another agent already wired
// into reg carries the same id, the new agent's id gets a "#n" suffix.
// Callers attach the agent before building the next one.
func (c *Catalog) New(kind string, reg *flow.Registry, inputs, outputs []string) (flow.Agent, error) {
	f, err := c.Lookup(kind)
	if err != nil {
		return nil, err
	}
	a, err := f(reg, inputs, outputs)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", kind, err)
	}
	if r, ok := a.(renamable); ok {
		r.setID(uniqueID(reg, a.ID()))
	}
	return a, nil
}

type renamable interface {
	setID(id string)
}

// uniqueID returns base, or base#2, base#3, ... whichever is not yet used by
// an agent subscribed to or publishing on a topic of reg.
func uniqueID(reg *flow.Registry, base string) string {
	taken := make(map[string]struct{})
	for _, t := range reg.Topics() {
		for _, a := range t.Subscribers() {
			taken[a.ID()] = struct{}{}
		}
		for _, a := range t.Publishers() {
			taken[a.ID()] = struct{}{}
		}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		id := base + "#" + strconv.Itoa(n)
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}

// Kinds returns the registered kind names, sorted.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for k := range c.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// legacyPackage prefixes the class names older config files use.
const legacyPackage = "configs."

// Builtin returns a catalog with the reference agents registered under their
// short names and under the fully qualified names of older config files.
func Builtin() *Catalog {
	c := NewCatalog()
	for kind, f := range map[string]Factory{
		IncKind:       NewInc,
		DecrementKind: NewDecrement,
		PlusKind:      NewPlus,
		MultiplyKind:  NewMultiply,
	} {
		for _, name := range []string{kind, legacyPackage + kind} {
			mustRegister(c, name, f)
		}
	}
	return c
}

func mustRegister(c *Catalog, kind string, f Factory) {
	if err := c.Register(kind, f); err != nil {
		panic(fmt.Sprintf("agents: builtin catalog: %v", err))
	}
}

// wiringID renders the structural id Kind[in1,in2->out].
func wiringID(kind string, inputs, outputs []string) string {
	return kind + "[" + strings.Join(inputs, ",") + "->" + strings.Join(outputs, ",") + "]"
}

func requireTopics(kind, role string, names []string, n int) error {
	if len(names) < n {
		return fmt.Errorf("%w: %s needs %d %s topic(s), got %d", ErrMissingTopic, kind, n, role, len(names))
	}
	for _, name := range names[:n] {
		if name == "" {
			return fmt.Errorf("%w: %s has an empty %s topic name", ErrMissingTopic, kind, role)
		}
	}
	return nil
}
