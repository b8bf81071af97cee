package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/duynguyendang/factgraph/pkg/graph"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxViewers = 64
	DefaultViewerTTL  = 10 * time.Minute
)

// Store is what a viewer graph needs from the primary store.
type Store interface {
	graph.Store
	FactsBoundTo(ctx context.Context, objectID uuid.UUID) ([]*model.Fact, error)
}

// Options configure a GraphManager.
type Options struct {
	// MaxViewers bounds the number of live viewer graphs.
	MaxViewers int
	// TTL drops a viewer graph this long after it was created.
	TTL time.Duration
	// Factory sizes the element caches of each viewer graph.
	Factory graph.FactoryConfig
	Logger  *slog.Logger
}

// ViewerGraph is the graph and security context of one viewer. Its element
// caches only ever hold Facts that viewer may read.
type ViewerGraph struct {
	Graph    *graph.Graph
	Security *security.SecurityContext
	Created  time.Time
}

// ViewerInfo describes a live viewer graph.
type ViewerInfo struct {
	SubjectID uuid.UUID        `json:"subjectId"`
	Name      string           `json:"name,omitempty"`
	Created   time.Time        `json:"created"`
	Stats     graph.CacheStats `json:"stats"`
}

// GraphManager hands out one ViewerGraph per subject.
type GraphManager struct {
	store      Store
	controller security.AccessController
	opts       Options
	logger     *slog.Logger

	mu      sync.Mutex
	viewers *expirable.LRU[uuid.UUID, *ViewerGraph]
}

// NewGraphManager creates a manager. Evicted or expired graphs drop their
// caches.
func NewGraphManager(store Store, controller security.AccessController, opts Options) *GraphManager {
	if opts.MaxViewers <= 0 {
		opts.MaxViewers = DefaultMaxViewers
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultViewerTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &GraphManager{
		store:      store,
		controller: controller,
		opts:       opts,
		logger:     logger,
	}
	m.viewers = expirable.NewLRU[uuid.UUID, *ViewerGraph](opts.MaxViewers, func(subject uuid.UUID, vg *ViewerGraph) {
		vg.Graph.Factory().Purge()
		m.logger.Debug("viewer graph released", "subject", subject)
	}, opts.TTL)
	return m
}

// GetGraph returns the graph of subject, creating it if necessary. Unknown
// subjects fail with security.ErrAuthenticationFailed.
func (m *GraphManager) GetGraph(subject uuid.UUID) (*ViewerGraph, error) {
	if vg, ok := m.viewers.Get(subject); ok {
		return vg, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if vg, ok := m.viewers.Get(subject); ok {
		return vg, nil
	}

	if m.controller == nil {
		return nil, security.ErrAuthenticationFailed
	}
	if err := m.controller.Validate(subject); err != nil {
		return nil, err
	}

	sc := security.NewSecurityContext(m.controller, subject, m.store.FactsBoundTo)
	factoryCfg := m.opts.Factory
	if factoryCfg.Logger == nil {
		factoryCfg.Logger = m.logger.With("subject", subject)
	}
	g, err := graph.New(m.store, sc, factoryCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph for %s: %w", subject, err)
	}

	vg := &ViewerGraph{Graph: g, Security: sc, Created: time.Now()}
	m.viewers.Add(subject, vg)
	m.logger.Debug("viewer graph created", "subject", subject)
	return vg, nil
}

// Release drops the graph of subject.
func (m *GraphManager) Release(subject uuid.UUID) bool {
	return m.viewers.Remove(subject)
}

// ListViewers returns the live viewer graphs ordered by creation time.
func (m *GraphManager) ListViewers() []ViewerInfo {
	namer, _ := m.controller.(interface{ SubjectName(uuid.UUID) string })

	var out []ViewerInfo
	for _, subject := range m.viewers.Keys() {
		vg, ok := m.viewers.Peek(subject)
		if !ok {
			continue
		}
		info := ViewerInfo{
			SubjectID: subject,
			Created:   vg.Created,
			Stats:     vg.Graph.Factory().Stats(),
		}
		if namer != nil {
			info.Name = namer.SubjectName(subject)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// InvalidateFact drops the edges of factID from every live viewer graph.
func (m *GraphManager) InvalidateFact(factID uuid.UUID) {
	for _, subject := range m.viewers.Keys() {
		if vg, ok := m.viewers.Peek(subject); ok {
			vg.Graph.Factory().InvalidateFact(factID)
		}
	}
}

// CloseAll drops every viewer graph.
func (m *GraphManager) CloseAll() {
	m.viewers.Purge()
}
