package index

import "fmt"

// CallEdge is one logical caller→callee edge at a call site.
type CallEdge struct {
	Caller int
	Callee int
	Pos    string
}

// Graph records call edges between function records. Each edge is written
// to both endpoints as two independent append-only lists; no edge object is
// shared between records.
type Graph struct {
	registry *Registry
	edges    []CallEdge
}

// NewGraph returns a Graph over the function records of g.
func NewGraph(g *Registry) *Graph {
	return &Graph{registry: g}
}

// RecordCall appends callee@pos to the caller's callees and caller@pos to
// the callee's callers. Repeated calls are kept; nothing is deduplicated.
func (gr *Graph) RecordCall(callerID, calleeID int, pos string) error {
	caller := gr.registry.Get(Function, callerID)
	if caller == nil {
		return fmt.Errorf("index: record call: unknown caller function %d", callerID)
	}
	callee := gr.registry.Get(Function, calleeID)
	if callee == nil {
		return fmt.Errorf("index: record call: unknown callee function %d", calleeID)
	}
	caller.Callees = append(caller.Callees, Edge{ID: calleeID, Pos: pos})
	callee.Callers = append(callee.Callers, Edge{ID: callerID, Pos: pos})
	gr.edges = append(gr.edges, CallEdge{Caller: callerID, Callee: calleeID, Pos: pos})
	return nil
}

// Edges returns every recorded edge in event order.
func (gr *Graph) Edges() []CallEdge {
	return gr.edges
}

// CallersOf returns the edges whose callee is id, in event order.
func (gr *Graph) CallersOf(id int) []Edge {
	if s := gr.registry.Get(Function, id); s != nil {
		return s.Callers
	}
	return nil
}

// CalleesOf returns the edges whose caller is id, in event order.
func (gr *Graph) CalleesOf(id int) []Edge {
	if s := gr.registry.Get(Function, id); s != nil {
		return s.Callees
	}
	return nil
}
