package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultVertexCacheSize = 10000
	DefaultEdgeCacheSize   = 10000
)

// Store is the read side of the primary store consumed by the graph.
// Lookups of missing records fail with model.ErrNotFound.
type Store interface {
	LoadObject(ctx context.Context, id uuid.UUID) (*model.Object, error)
	LoadFact(ctx context.Context, id uuid.UUID) (*model.Fact, error)
	LoadObjectType(ctx context.Context, id uuid.UUID) (*model.ObjectType, error)
	LoadFactType(ctx context.Context, id uuid.UUID) (*model.FactType, error)
	FetchObjectFactBindings(ctx context.Context, objectID uuid.UUID) ([]model.ObjectFactBinding, error)
}

// FactoryConfig sizes the element caches.
type FactoryConfig struct {
	// VertexCacheSize bounds the number of live vertices. Defaults to 10000.
	VertexCacheSize int
	// EdgeCacheSize bounds the number of live edges. Defaults to 10000.
	EdgeCacheSize int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// CacheStats reports the current cache occupancy.
type CacheStats struct {
	Vertices   int `json:"vertices"`
	Edges      int `json:"edges"`
	IndexedIDs int `json:"indexedIds"`
}

// ElementFactory creates and caches vertices and edges.
//
// Edges are only created by CreateEdges. The edge cache and the triplet index
// (EdgeKey -> edge id) are mutated together under mu; the eviction callback
// runs synchronously inside that region and prunes the index, so after any
// update the index only names live edges.
type ElementFactory struct {
	store  Store
	gate   security.AccessGate
	logger *slog.Logger

	vertices    *lru.Cache[uuid.UUID, *Vertex]
	vertexLoads singleflight.Group

	mu       sync.Mutex
	edges    *lru.Cache[uuid.UUID, *Edge]
	edgeIDs  map[EdgeKey]uuid.UUID
	edgeKeys map[uuid.UUID]EdgeKey
	// invalidating is set while InvalidateEdge removes an entry, so the
	// callback can tell an explicit removal from capacity pressure.
	invalidating bool

	purging        atomic.Bool
	evictionLogged atomic.Bool
}

// NewElementFactory creates a factory reading from store and filtering Facts
// through gate.
func NewElementFactory(store Store, gate security.AccessGate, cfg FactoryConfig) (*ElementFactory, error) {
	if store == nil {
		return nil, errors.New("element factory requires a store")
	}
	if gate == nil {
		return nil, errors.New("element factory requires an access gate")
	}
	if cfg.VertexCacheSize <= 0 {
		cfg.VertexCacheSize = DefaultVertexCacheSize
	}
	if cfg.EdgeCacheSize <= 0 {
		cfg.EdgeCacheSize = DefaultEdgeCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	f := &ElementFactory{
		store:    store,
		gate:     gate,
		logger:   cfg.Logger,
		edgeIDs:  make(map[EdgeKey]uuid.UUID),
		edgeKeys: make(map[uuid.UUID]EdgeKey),
	}

	var err error
	f.vertices, err = lru.NewWithEvict[uuid.UUID, *Vertex](cfg.VertexCacheSize, f.onVertexRemoved)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex cache: %w", err)
	}
	f.edges, err = lru.NewWithEvict[uuid.UUID, *Edge](cfg.EdgeCacheSize, f.onEdgeRemoved)
	if err != nil {
		return nil, fmt.Errorf("failed to create edge cache: %w", err)
	}
	return f, nil
}

// GetVertex returns the vertex for an Object, loading it on a cache miss.
// It returns nil if the Object cannot be loaded.
func (f *ElementFactory) GetVertex(ctx context.Context, id uuid.UUID) *Vertex {
	if id == uuid.Nil {
		return nil
	}
	if v, ok := f.vertices.Get(id); ok {
		return v
	}

	res, err, _ := f.vertexLoads.Do(id.String(), func() (any, error) {
		if v, ok := f.vertices.Get(id); ok {
			return v, nil
		}
		v, err := f.loadVertex(ctx, id)
		if err != nil {
			return nil, err
		}
		if prev, ok, _ := f.vertices.PeekOrAdd(id, v); ok {
			return prev, nil
		}
		return v, nil
	})
	if err != nil {
		f.logger.Warn("failed to get vertex", "id", id, "error", err)
		return nil
	}
	return res.(*Vertex)
}

func (f *ElementFactory) loadVertex(ctx context.Context, id uuid.UUID) (*Vertex, error) {
	obj, err := f.store.LoadObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: object %s", model.ErrNotFound, id)
	}

	label := ""
	typ, err := f.store.LoadObjectType(ctx, obj.TypeID)
	switch {
	case err == nil && typ != nil:
		label = typ.Name
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("failed to load object type %s: %w", obj.TypeID, err)
	}

	return &Vertex{ID: obj.ID, Label: label, Object: obj}, nil
}

// GetEdge returns a cached edge. It never creates one.
func (f *ElementFactory) GetEdge(id uuid.UUID) *Edge {
	e, _ := f.edges.Get(id)
	return e
}

// CreateEdges returns the edges between the Object of inBinding and every
// other Object bound to the same Fact.
//
// The result is empty if the Fact does not exist or the viewer may not read
// it. A Fact bound only to the in-binding Object yields a single loop edge.
// An error is only returned for store failures and malformed stored data.
func (f *ElementFactory) CreateEdges(ctx context.Context, inBinding model.ObjectFactBinding) ([]*Edge, error) {
	fact, err := f.store.LoadFact(ctx, inBinding.FactID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load fact %s: %w", inBinding.FactID, err)
	}
	if fact == nil || !f.gate.HasReadAccess(fact) {
		return nil, nil
	}

	label, err := f.factLabel(ctx, fact)
	if err != nil {
		return nil, err
	}

	if len(fact.Bindings) == 1 && fact.Bindings[0].ObjectID == inBinding.ObjectID {
		key := EdgeKey{FactID: fact.ID, InVertexID: inBinding.ObjectID, OutVertexID: inBinding.ObjectID}
		return []*Edge{f.createAndCache(fact, label, key)}, nil
	}

	var edges []*Edge
	seen := make(map[uuid.UUID]struct{}, len(fact.Bindings))
	for _, outBinding := range fact.Bindings {
		if outBinding.ObjectID == inBinding.ObjectID {
			continue
		}

		orientation, err := Project(inBinding.Direction, outBinding.Direction)
		if err != nil {
			return nil, fmt.Errorf("fact %s: %w", fact.ID, err)
		}

		var key EdgeKey
		switch orientation {
		case Forward:
			key = EdgeKey{FactID: fact.ID, InVertexID: inBinding.ObjectID, OutVertexID: outBinding.ObjectID}
		case Reversed:
			key = EdgeKey{FactID: fact.ID, InVertexID: outBinding.ObjectID, OutVertexID: inBinding.ObjectID}
		case NoEdge:
			continue
		}

		e := f.createAndCache(fact, label, key)
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		edges = append(edges, e)
	}
	return edges, nil
}

func (f *ElementFactory) factLabel(ctx context.Context, fact *model.Fact) (string, error) {
	typ, err := f.store.LoadFactType(ctx, fact.TypeID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load fact type %s: %w", fact.TypeID, err)
	}
	if typ == nil {
		return "", nil
	}
	return typ.Name, nil
}

// createAndCache returns the live edge for key or creates and caches one.
// A cached edge takes the Fact loaded by this call.
func (f *ElementFactory) createAndCache(fact *model.Fact, label string, key EdgeKey) *Edge {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.edgeIDs[key]; ok {
		if e, ok := f.edges.Get(id); ok {
			e.fact.Store(fact)
			return e
		}
		// Unreachable while the callback keeps the index in sync.
		f.unindex(id)
	}

	e := &Edge{
		ID:          uuid.New(),
		FactID:      key.FactID,
		InVertexID:  key.InVertexID,
		OutVertexID: key.OutVertexID,
		Label:       label,
	}
	e.fact.Store(fact)
	// Add may evict the least recently used edge; its index entry is pruned
	// by onEdgeRemoved before Add returns.
	f.edges.Add(e.ID, e)
	f.edgeIDs[key] = e.ID
	f.edgeKeys[e.ID] = key
	return e
}

// InvalidateEdge drops an edge from the cache. A later CreateEdges for the
// same triplet allocates a new identity.
func (f *ElementFactory) InvalidateEdge(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.invalidating = true
	defer func() { f.invalidating = false }()
	return f.edges.Remove(id)
}

// InvalidateFact removes every cached edge projected from factID, so the
// next CreateEdges call sees the stored Fact again. It returns the number of
// edges removed.
func (f *ElementFactory) InvalidateFact(factID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []uuid.UUID
	for id, key := range f.edgeKeys {
		if key.FactID == factID {
			ids = append(ids, id)
		}
	}

	f.invalidating = true
	defer func() { f.invalidating = false }()
	for _, id := range ids {
		f.edges.Remove(id)
	}
	return len(ids)
}

// Purge drops all cached vertices and edges.
func (f *ElementFactory) Purge() {
	f.purging.Store(true)
	f.vertices.Purge()
	f.purging.Store(false)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidating = true
	defer func() { f.invalidating = false }()
	f.edges.Purge()
	// Purge reports every entry through the callback; clear anyway.
	clear(f.edgeIDs)
	clear(f.edgeKeys)
}

func (f *ElementFactory) onVertexRemoved(uuid.UUID, *Vertex) {
	if f.purging.Load() {
		return
	}
	recordEviction("vertex")
	f.logEviction()
}

// onEdgeRemoved runs with f.mu held: golang-lru invokes the callback on the
// goroutine that called Add, Remove or Purge.
func (f *ElementFactory) onEdgeRemoved(id uuid.UUID, _ *Edge) {
	f.unindex(id)
	if f.invalidating {
		return
	}
	recordEviction("edge")
	f.logEviction()
}

func (f *ElementFactory) unindex(id uuid.UUID) {
	key, ok := f.edgeKeys[id]
	if !ok {
		return
	}
	delete(f.edgeKeys, id)
	if f.edgeIDs[key] == id {
		delete(f.edgeIDs, key)
	}
}

func (f *ElementFactory) logEviction() {
	if f.evictionLogged.CompareAndSwap(false, true) {
		f.logger.Warn("element factory started to evict cache entries, graph traversal will slow down")
	}
}

// Stats returns the current cache occupancy.
func (f *ElementFactory) Stats() CacheStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return CacheStats{
		Vertices:   f.vertices.Len(),
		Edges:      f.edges.Len(),
		IndexedIDs: len(f.edgeIDs),
	}
}
