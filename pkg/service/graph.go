package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/duynguyendang/factgraph/internal/manager"
	"github.com/duynguyendang/factgraph/pkg/common/errors"
	"github.com/duynguyendang/factgraph/pkg/graph"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/retraction"
	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxSteps    = 5
	DefaultMaxResults  = 1000
	DefaultConcurrency = 10
)

// Store is the part of the primary store used by the service.
type Store interface {
	retraction.MetaFactFetcher
	LoadFact(ctx context.Context, id uuid.UUID) (*model.Fact, error)
	LoadObject(ctx context.Context, id uuid.UUID) (*model.Object, error)
	SaveMetaFact(ctx context.Context, meta *model.Fact, targetFlags model.Flag) error
}

// GraphProvider hands out viewer graphs.
type GraphProvider interface {
	GetGraph(subject uuid.UUID) (*manager.ViewerGraph, error)
	InvalidateFact(factID uuid.UUID)
}

// Config holds the service settings.
type Config struct {
	// RetractionTypeID is the FactType whose Facts retract the Fact they
	// refer to.
	RetractionTypeID uuid.UUID
	MaxSteps         int
	MaxResults       int
	// Concurrency bounds the vertices expanded in parallel per step.
	Concurrency int
	Logger      *slog.Logger
}

// GraphService answers viewer-scoped graph queries.
type GraphService struct {
	store  Store
	graphs GraphProvider
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// NewGraphService creates a new GraphService.
func NewGraphService(store Store, graphs GraphProvider, cfg Config) *GraphService {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphService{
		store:  store,
		graphs: graphs,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("github.com/duynguyendang/factgraph/pkg/service"),
	}
}

// EdgeView is an edge as returned to clients.
type EdgeView struct {
	ID          uuid.UUID `json:"id"`
	FactID      uuid.UUID `json:"factId"`
	InVertexID  uuid.UUID `json:"inVertexId"`
	OutVertexID uuid.UUID `json:"outVertexId"`
	Label       string    `json:"label"`
	Value       string    `json:"value,omitempty"`
	Retracted   bool      `json:"retracted"`
}

// FactView is a Fact with the viewer's retraction verdict.
type FactView struct {
	*model.Fact
	Retracted bool `json:"retracted"`
}

// TraverseRequest describes a breadth-first walk from a set of Objects.
type TraverseRequest struct {
	Start            []uuid.UUID `json:"start"`
	Steps            int         `json:"steps"`
	Direction        string      `json:"direction"`
	FactTypes        []string    `json:"factTypes"`
	IncludeRetracted bool        `json:"includeRetracted"`
	Limit            int         `json:"limit"`
}

// TraverseResult holds the reached vertices and the edges walked.
type TraverseResult struct {
	Vertices  []*graph.Vertex `json:"vertices"`
	Edges     []EdgeView      `json:"edges"`
	Truncated bool            `json:"truncated"`
}

// RetractRequest files a retraction against a Fact.
type RetractRequest struct {
	FactID uuid.UUID `json:"-"`
	// OrganizationID defaults to the organization of the retracted Fact.
	OrganizationID *uuid.UUID `json:"organization,omitempty"`
	// AccessMode defaults to the access mode of the retracted Fact and may
	// not be less restrictive.
	AccessMode string `json:"accessMode,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// request bundles the per-request state of one viewer.
type request struct {
	vg       *manager.ViewerGraph
	resolver *retraction.Resolver
}

func (s *GraphService) begin(viewer uuid.UUID) (*request, error) {
	vg, err := s.graphs.GetGraph(viewer)
	if err != nil {
		return nil, err
	}
	return &request{
		vg:       vg,
		resolver: retraction.NewResolver(s.store, vg.Security, s.cfg.RetractionTypeID),
	}, nil
}

// GetFact returns a Fact the viewer may read.
func (s *GraphService) GetFact(ctx context.Context, viewer, id uuid.UUID) (*FactView, error) {
	req, err := s.begin(viewer)
	if err != nil {
		return nil, err
	}
	fact, err := s.readableFact(ctx, req, id)
	if err != nil {
		return nil, err
	}
	retracted, err := req.resolver.IsRetracted(ctx, fact)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve retraction of %s: %w", id, err)
	}
	return &FactView{Fact: fact, Retracted: retracted}, nil
}

// IsRetracted reports whether the viewer sees the Fact as retracted.
func (s *GraphService) IsRetracted(ctx context.Context, viewer, id uuid.UUID) (bool, error) {
	view, err := s.GetFact(ctx, viewer, id)
	if err != nil {
		return false, err
	}
	return view.Retracted, nil
}

// GetObject returns the vertex of an Object the viewer may read.
func (s *GraphService) GetObject(ctx context.Context, viewer, id uuid.UUID) (*graph.Vertex, error) {
	req, err := s.begin(viewer)
	if err != nil {
		return nil, err
	}
	return s.readableVertex(ctx, req, id)
}

// ObjectEdges returns the edges incident to an Object.
func (s *GraphService) ObjectEdges(ctx context.Context, viewer, id uuid.UUID, direction string, factTypes []string, includeRetracted bool) ([]EdgeView, error) {
	dir, err := graph.ParseDirection(direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	req, err := s.begin(viewer)
	if err != nil {
		return nil, err
	}
	if _, err := s.readableVertex(ctx, req, id); err != nil {
		return nil, err
	}

	edges, err := req.vg.Graph.Edges(ctx, id, dir, factTypes...)
	if err != nil {
		return nil, err
	}
	views := make([]EdgeView, 0, len(edges))
	for _, e := range edges {
		view, keep, err := s.edgeView(ctx, req, e, includeRetracted)
		if err != nil {
			return nil, err
		}
		if keep {
			views = append(views, view)
		}
	}
	sortEdges(views)
	return views, nil
}

// Traverse walks the graph breadth-first from req.Start.
func (s *GraphService) Traverse(ctx context.Context, viewer uuid.UUID, tr TraverseRequest) (*TraverseResult, error) {
	ctx, span := s.tracer.Start(ctx, "GraphService.Traverse", trace.WithAttributes(
		attribute.String("viewer", viewer.String()),
		attribute.Int("start", len(tr.Start)),
		attribute.Int("steps", tr.Steps),
	))
	defer span.End()

	result, err := s.traverse(ctx, viewer, tr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("vertices", len(result.Vertices)),
		attribute.Int("edges", len(result.Edges)),
		attribute.Bool("truncated", result.Truncated),
	)
	return result, nil
}

func (s *GraphService) traverse(ctx context.Context, viewer uuid.UUID, tr TraverseRequest) (*TraverseResult, error) {
	if len(tr.Start) == 0 {
		return nil, fmt.Errorf("%w: at least one start object is required", errors.ErrInvalidInput)
	}
	steps := tr.Steps
	if steps == 0 {
		steps = 1
	}
	if steps < 0 || steps > s.cfg.MaxSteps {
		return nil, fmt.Errorf("%w: steps must be between 1 and %d", errors.ErrInvalidInput, s.cfg.MaxSteps)
	}
	limit := tr.Limit
	if limit <= 0 || limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	dir, err := graph.ParseDirection(tr.Direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}

	req, err := s.begin(viewer)
	if err != nil {
		return nil, err
	}
	g := req.vg.Graph

	result := &TraverseResult{}
	visited := make(map[uuid.UUID]struct{})
	var frontier []uuid.UUID
	for _, id := range tr.Start {
		if _, dup := visited[id]; dup {
			continue
		}
		v, err := s.readableVertex(ctx, req, id)
		if err != nil {
			if security.IsDenied(err) || stderrors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		visited[id] = struct{}{}
		result.Vertices = append(result.Vertices, v)
		frontier = append(frontier, id)
	}

	seenEdges := make(map[uuid.UUID]struct{})
	for step := 0; step < steps && len(frontier) > 0 && !result.Truncated; step++ {
		var (
			mu   sync.Mutex
			next []uuid.UUID
		)
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(s.cfg.Concurrency)

		for _, id := range frontier {
			id := id
			eg.Go(func() error {
				edges, err := g.Edges(egCtx, id, dir, tr.FactTypes...)
				if err != nil {
					return err
				}
				for _, e := range edges {
					view, keep, err := s.edgeView(egCtx, req, e, tr.IncludeRetracted)
					if err != nil {
						return err
					}
					if !keep {
						continue
					}

					mu.Lock()
					if _, dup := seenEdges[e.ID]; !dup {
						if len(result.Edges) >= limit {
							result.Truncated = true
							mu.Unlock()
							return nil
						}
						seenEdges[e.ID] = struct{}{}
						result.Edges = append(result.Edges, view)
						if other := e.Other(id); other != id {
							if _, ok := visited[other]; !ok {
								visited[other] = struct{}{}
								next = append(next, other)
							}
						}
					}
					mu.Unlock()
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, id := range next {
			if v := g.Vertex(ctx, id); v != nil {
				result.Vertices = append(result.Vertices, v)
				frontier = append(frontier, id)
			}
		}
	}

	sortEdges(result.Edges)
	sort.Slice(result.Vertices, func(i, j int) bool {
		return result.Vertices[i].ID.String() < result.Vertices[j].ID.String()
	})
	return result, nil
}

// RetractFact files a Retraction Fact against req.FactID and marks the target
// with the RetractedHint flag.
func (s *GraphService) RetractFact(ctx context.Context, viewer uuid.UUID, rr RetractRequest) (*model.Fact, error) {
	if s.cfg.RetractionTypeID == uuid.Nil {
		return nil, fmt.Errorf("%w: no retraction fact type configured", errors.ErrInternal)
	}
	req, err := s.begin(viewer)
	if err != nil {
		return nil, err
	}
	target, err := s.readableFact(ctx, req, rr.FactID)
	if err != nil {
		return nil, err
	}

	org := target.OrganizationID
	if rr.OrganizationID != nil {
		org = *rr.OrganizationID
	}
	if err := req.vg.Security.CheckOrganizationPermission(security.FunctionAddFact, org); err != nil {
		return nil, err
	}

	mode := target.AccessMode
	if rr.AccessMode != "" {
		mode, err = model.ParseAccessMode(rr.AccessMode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
		}
		if mode.LessRestrictiveThan(target.AccessMode) {
			return nil, fmt.Errorf("%w: access mode %s is less restrictive than %s", errors.ErrInvalidInput, mode, target.AccessMode)
		}
	}

	now := time.Now().UTC()
	ref := target.ID
	rf := &model.Fact{
		ID:                uuid.New(),
		TypeID:            s.cfg.RetractionTypeID,
		Value:             rr.Comment,
		InReferenceTo:     &ref,
		OrganizationID:    org,
		AddedByID:         viewer,
		AccessMode:        mode,
		Timestamp:         now,
		LastSeenTimestamp: now,
	}
	if mode == model.AccessModeExplicit {
		rf.ACL = []model.AclEntry{{SubjectID: viewer, Timestamp: now}}
	}

	if err := s.store.SaveMetaFact(ctx, rf, model.FlagRetractedHint); err != nil {
		return nil, fmt.Errorf("failed to save retraction: %w", err)
	}
	s.graphs.InvalidateFact(target.ID)

	s.logger.Info("fact retracted", "fact", target.ID, "retraction", rf.ID, "subject", viewer)
	return rf, nil
}

func (s *GraphService) readableFact(ctx context.Context, req *request, id uuid.UUID) (*model.Fact, error) {
	fact, err := s.store.LoadFact(ctx, id)
	if err != nil {
		if stderrors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: fact %s", errors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load fact %s: %w", id, err)
	}
	if err := req.vg.Security.CheckReadPermission(fact); err != nil {
		return nil, err
	}
	return fact, nil
}

func (s *GraphService) readableVertex(ctx context.Context, req *request, id uuid.UUID) (*graph.Vertex, error) {
	obj, err := s.store.LoadObject(ctx, id)
	if err != nil {
		if stderrors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: object %s", errors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load object %s: %w", id, err)
	}
	if err := req.vg.Security.CheckObjectReadPermission(ctx, obj); err != nil {
		return nil, err
	}
	if v := req.vg.Graph.Vertex(ctx, id); v != nil {
		return v, nil
	}
	return &graph.Vertex{ID: obj.ID, Object: obj}, nil
}

// edgeView resolves the retraction verdict of e. keep is false when the edge
// is retracted and retracted edges were not requested.
func (s *GraphService) edgeView(ctx context.Context, req *request, e *graph.Edge, includeRetracted bool) (EdgeView, bool, error) {
	fact := e.Fact()
	retracted, err := req.resolver.IsRetracted(ctx, fact)
	if err != nil {
		return EdgeView{}, false, fmt.Errorf("failed to resolve retraction of %s: %w", e.FactID, err)
	}
	if retracted && !includeRetracted {
		return EdgeView{}, false, nil
	}
	view := EdgeView{
		ID:          e.ID,
		FactID:      e.FactID,
		InVertexID:  e.InVertexID,
		OutVertexID: e.OutVertexID,
		Label:       e.Label,
		Retracted:   retracted,
	}
	if fact != nil {
		view.Value = fact.Value
	}
	return view, true, nil
}

func sortEdges(edges []EdgeView) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Label != edges[j].Label {
			return edges[i].Label < edges[j].Label
		}
		if edges[i].FactID != edges[j].FactID {
			return edges[i].FactID.String() < edges[j].FactID.String()
		}
		return edges[i].ID.String() < edges[j].ID.String()
	})
}
