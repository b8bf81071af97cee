package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/google/uuid"
)

// EdgeKey is the identity basis of an Edge.
type EdgeKey struct {
	FactID      uuid.UUID
	InVertexID  uuid.UUID
	OutVertexID uuid.UUID
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("(%s, %s, %s)", k.FactID, k.InVertexID, k.OutVertexID)
}

// Vertex wraps one Object. Its ID is the Object's ID.
type Vertex struct {
	ID     uuid.UUID     `json:"id"`
	Label  string        `json:"label"`
	Object *model.Object `json:"object"`
}

// Edge is one projection of a Fact between two vertices. Vertices are
// referenced by id and resolved through the owning Graph.
type Edge struct {
	ID          uuid.UUID `json:"id"`
	FactID      uuid.UUID `json:"factId"`
	InVertexID  uuid.UUID `json:"inVertexId"`
	OutVertexID uuid.UUID `json:"outVertexId"`
	Label       string    `json:"label"`

	fact atomic.Pointer[model.Fact]
}

// Fact returns the most recently loaded version of the edge's Fact. Every
// CreateEdges call that returns a cached edge replaces it, so flags set in
// the store after the edge was cached are seen on the next lookup.
func (e *Edge) Fact() *model.Fact {
	return e.fact.Load()
}

// Key returns the triplet the edge was created from.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{FactID: e.FactID, InVertexID: e.InVertexID, OutVertexID: e.OutVertexID}
}

// IsLoop reports whether the edge starts and ends at the same vertex.
func (e *Edge) IsLoop() bool {
	return e.InVertexID == e.OutVertexID
}

// Other returns the vertex id at the opposite end from id.
func (e *Edge) Other(id uuid.UUID) uuid.UUID {
	if e.InVertexID == id {
		return e.OutVertexID
	}
	return e.InVertexID
}
