// Package graphview builds a point-in-time bipartite view of the topic
// registry: topic nodes, agent nodes, and the subscribe/publish edges between
// them.
package graphview

import (
	"sort"

	"Flowgraph-Apps/internal/core/flow"
)

// Kind tags a node as a topic or an agent.
type Kind string

const (
	KindTopic Kind = "TOPIC"
	KindAgent Kind = "AGENT"
)

// TopicNodeID is the node id of the named topic.
func TopicNodeID(name string) string { return "T" + name }

type Node struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	edges []*Node
}

// Targets returns the nodes this node has an edge to.
func (n *Node) Targets() []*Node {
	return append([]*Node(nil), n.edges...)
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type nodeKey struct {
	kind Kind
	id   string
}

// Graph is read-only after Build.
type Graph struct {
	nodes []*Node
	index map[nodeKey]*Node
}

// Build snapshots reg. Every subscriber A of topic T yields T -> A and every
// declared publisher A of T yields A -> T.
func Build(reg *flow.Registry) *Graph {
	g := &Graph{index: make(map[nodeKey]*Node)}
	seen := make(map[[2]*Node]struct{})
	link := func(from, to *Node) {
		k := [2]*Node{from, to}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		from.edges = append(from.edges, to)
	}

	var agentNodes []*Node
	for _, t := range reg.Topics() {
		tn := g.node(KindTopic, TopicNodeID(t.Name()), nil)
		for _, a := range t.Subscribers() {
			link(tn, g.node(KindAgent, a.ID(), &agentNodes))
		}
		for _, a := range t.Publishers() {
			link(g.node(KindAgent, a.ID(), &agentNodes), tn)
		}
	}
	sort.Slice(agentNodes, func(i, j int) bool { return agentNodes[i].ID < agentNodes[j].ID })

	// Topics were created in name order; agents follow, sorted by id.
	topics := g.nodes
	g.nodes = append(append(make([]*Node, 0, len(topics)+len(agentNodes)), topics...), agentNodes...)
	return g
}

func (g *Graph) node(kind Kind, id string, agents *[]*Node) *Node {
	k := nodeKey{kind: kind, id: id}
	if n, ok := g.index[k]; ok {
		return n
	}
	n := &Node{ID: id, Kind: kind}
	g.index[k] = n
	if kind == KindAgent {
		*agents = append(*agents, n)
	} else {
		g.nodes = append(g.nodes, n)
	}
	return n
}

// Nodes returns topic nodes sorted by name, then agent nodes sorted by id.
func (g *Graph) Nodes() []*Node {
	return append(make([]*Node, 0, len(g.nodes)), g.nodes...)
}

// Node finds a node by id, preferring a topic node on a clash.
func (g *Graph) Node(id string) (*Node, bool) {
	if n, ok := g.index[nodeKey{kind: KindTopic, id: id}]; ok {
		return n, true
	}
	n, ok := g.index[nodeKey{kind: KindAgent, id: id}]
	return n, ok
}

// Edges lists every edge, grouped by source node in Nodes order.
func (g *Graph) Edges() []Edge {
	out := []Edge{}
	for _, n := range g.nodes {
		for _, to := range n.edges {
			out = append(out, Edge{From: n.ID, To: to.ID})
		}
	}
	return out
}

// HasCycles reports whether any DFS finds a back edge to a node on the
// current path.
func (g *Graph) HasCycles() bool {
	visited := make(map[*Node]bool, len(g.nodes))
	onPath := make(map[*Node]bool)
	var dfs func(n *Node) bool
	dfs = func(n *Node) bool {
		if onPath[n] {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		onPath[n] = true
		for _, next := range n.edges {
			if dfs(next) {
				return true
			}
		}
		onPath[n] = false
		return false
	}
	for _, n := range g.nodes {
		if dfs(n) {
			return true
		}
	}
	return false
}
