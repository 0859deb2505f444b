package domain

import (
	"context"
	"fmt"
)

// StepFunc performs one unit of work and returns only the fields it changed.
// It must not mutate s.
type StepFunc func(ctx context.Context, s *State) (Update, error)

// RouteFunc picks the next node from a merged state. It must be pure.
type RouteFunc func(s *State) string

// Node represents a step in the graph with its outgoing edge.
// Route takes priority over Next; with neither, the node ends the run.
type Node struct {
	ID    string
	Run   StepFunc
	Next  string
	Route RouteFunc
	// Targets lists the nodes Route may return, for validation and rendering.
	Targets []string
}

// Graph is the directed graph of steps a run walks.
type Graph struct {
	Name  string
	Entry string
	// Finalizer is the node the runtime diverts to when the step ceiling is
	// about to be hit. Optional.
	Finalizer string
	nodes     map[string]Node
	order     []string
}

// NewGraph validates and assembles a graph.
func NewGraph(name, entry, finalizer string, nodes ...Node) (*Graph, error) {
	g := &Graph{
		Name:      name,
		Entry:     entry,
		Finalizer: finalizer,
		nodes:     make(map[string]Node, len(nodes)),
	}
	for _, n := range nodes {
		if n.ID == "" || n.Run == nil {
			return nil, fmt.Errorf("graph %s: node %q is incomplete", name, n.ID)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("graph %s: duplicate node %q", name, n.ID)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	if _, ok := g.nodes[entry]; !ok {
		return nil, fmt.Errorf("graph %s: entry node %q not found", name, entry)
	}
	if finalizer != "" {
		if _, ok := g.nodes[finalizer]; !ok {
			return nil, fmt.Errorf("graph %s: finalizer node %q not found", name, finalizer)
		}
	}
	for _, n := range g.nodes {
		for _, to := range append([]string{n.Next}, n.Targets...) {
			if to == "" || to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("graph %s: node %q points to unknown node %q", name, n.ID, to)
			}
		}
	}
	return g, nil
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}
