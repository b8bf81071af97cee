package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/google/uuid"
)

// Direction selects edges relative to a vertex during traversal.
type Direction uint8

const (
	// Out selects edges that start at the vertex.
	Out Direction = iota
	// In selects edges that end at the vertex.
	In
	// Both selects all incident edges.
	Both
)

func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	case Both:
		return "both"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection parses "out", "in" or "both". An empty string means Both.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "out":
		return Out, nil
	case "in":
		return In, nil
	case "", "both":
		return Both, nil
	}
	return Both, fmt.Errorf("invalid traversal direction %q", s)
}

// Graph is a read-only graph view of the store for one viewer. It owns the
// element caches; vertices and edges refer to each other by id only.
type Graph struct {
	store   Store
	factory *ElementFactory
}

// New creates a Graph for the viewer represented by gate.
func New(store Store, gate security.AccessGate, cfg FactoryConfig) (*Graph, error) {
	f, err := NewElementFactory(store, gate, cfg)
	if err != nil {
		return nil, err
	}
	return &Graph{store: store, factory: f}, nil
}

// Factory exposes the element factory backing the graph.
func (g *Graph) Factory() *ElementFactory {
	return g.factory
}

// Vertex returns the vertex for an Object id, or nil if it cannot be loaded.
func (g *Graph) Vertex(ctx context.Context, id uuid.UUID) *Vertex {
	return g.factory.GetVertex(ctx, id)
}

// Edge returns a previously created edge, or nil.
func (g *Graph) Edge(id uuid.UUID) *Edge {
	return g.factory.GetEdge(id)
}

// Edges returns the edges incident to vertexID in the given direction. If
// labels are given only edges with one of those labels are returned.
func (g *Graph) Edges(ctx context.Context, vertexID uuid.UUID, dir Direction, labels ...string) ([]*Edge, error) {
	bindings, err := g.store.FetchObjectFactBindings(ctx, vertexID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bindings of object %s: %w", vertexID, err)
	}

	var wanted map[string]struct{}
	if len(labels) > 0 {
		wanted = make(map[string]struct{}, len(labels))
		for _, l := range labels {
			wanted[l] = struct{}{}
		}
	}

	var result []*Edge
	seen := make(map[uuid.UUID]struct{})
	for _, b := range bindings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		edges, err := g.factory.CreateEdges(ctx, b)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if !matchesDirection(e, vertexID, dir) {
				continue
			}
			if wanted != nil {
				if _, ok := wanted[e.Label]; !ok {
					continue
				}
			}
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			result = append(result, e)
		}
	}
	return result, nil
}

// Adjacent returns the vertices at the far end of the edges selected by
// Edges. Loop edges yield the vertex itself.
func (g *Graph) Adjacent(ctx context.Context, vertexID uuid.UUID, dir Direction, labels ...string) ([]*Vertex, error) {
	edges, err := g.Edges(ctx, vertexID, dir, labels...)
	if err != nil {
		return nil, err
	}

	var result []*Vertex
	seen := make(map[uuid.UUID]struct{})
	for _, e := range edges {
		id := e.Other(vertexID)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if v := g.Vertex(ctx, id); v != nil {
			result = append(result, v)
		}
	}
	return result, nil
}

// EdgeVertices resolves both ends of e.
func (g *Graph) EdgeVertices(ctx context.Context, e *Edge) (in, out *Vertex) {
	return g.Vertex(ctx, e.InVertexID), g.Vertex(ctx, e.OutVertexID)
}

func matchesDirection(e *Edge, vertexID uuid.UUID, dir Direction) bool {
	switch dir {
	case Out:
		return e.InVertexID == vertexID
	case In:
		return e.OutVertexID == vertexID
	default:
		return e.InVertexID == vertexID || e.OutVertexID == vertexID
	}
}
