package service

import (
	"context"
	"fmt"

	"github.com/duynguyendang/factgraph/pkg/common/errors"
	"github.com/duynguyendang/factgraph/pkg/graph"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPathDepth = 6
	// MaxPathVisits bounds the vertices expanded by one path search.
	MaxPathVisits = 2000
)

// PathRequest asks for the shortest path between two Objects.
type PathRequest struct {
	From             uuid.UUID `json:"from"`
	To               uuid.UUID `json:"to"`
	MaxDepth         int       `json:"maxDepth"`
	FactTypes        []string  `json:"factTypes"`
	IncludeRetracted bool      `json:"includeRetracted"`
}

type pathStep struct {
	vertex uuid.UUID
	edge   EdgeView
	prev   *pathStep
	depth  int
}

// FindShortestPath runs a breadth-first search from From to To over the edges
// the viewer can see, ignoring edge direction. The result lists the path's
// vertices in order and is empty if no path exists within MaxDepth hops.
func (s *GraphService) FindShortestPath(ctx context.Context, viewer uuid.UUID, pr PathRequest) (*TraverseResult, error) {
	ctx, span := s.tracer.Start(ctx, "GraphService.FindShortestPath", trace.WithAttributes(
		attribute.String("viewer", viewer.String()),
		attribute.String("from", pr.From.String()),
		attribute.String("to", pr.To.String()),
	))
	defer span.End()

	depth := pr.MaxDepth
	if depth == 0 {
		depth = DefaultPathDepth
	}
	if depth < 0 || depth > 10*s.cfg.MaxSteps {
		return nil, fmt.Errorf("%w: maxDepth must be between 1 and %d", errors.ErrInvalidInput, 10*s.cfg.MaxSteps)
	}

	req, err := s.begin(viewer)
	if err != nil {
		return nil, err
	}
	if _, err := s.readableVertex(ctx, req, pr.From); err != nil {
		return nil, err
	}
	if _, err := s.readableVertex(ctx, req, pr.To); err != nil {
		return nil, err
	}
	g := req.vg.Graph

	queue := []*pathStep{{vertex: pr.From}}
	visited := map[uuid.UUID]struct{}{pr.From: {}}
	var found *pathStep

	for len(queue) > 0 && found == nil {
		current := queue[0]
		queue = queue[1:]

		if current.vertex == pr.To {
			found = current
			break
		}
		if current.depth >= depth {
			continue
		}
		if len(visited) > MaxPathVisits {
			s.logger.Warn("path search limit reached", "from", pr.From, "to", pr.To, "visited", len(visited))
			break
		}

		edges, err := g.Edges(ctx, current.vertex, graph.Both, pr.FactTypes...)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			next := e.Other(current.vertex)
			if _, ok := visited[next]; ok {
				continue
			}
			view, keep, err := s.edgeView(ctx, req, e, pr.IncludeRetracted)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, &pathStep{vertex: next, edge: view, prev: current, depth: current.depth + 1})
		}
	}

	result := &TraverseResult{Vertices: []*graph.Vertex{}, Edges: []EdgeView{}}
	if found == nil {
		span.SetAttributes(attribute.Bool("found", false))
		return result, nil
	}

	var steps []*pathStep
	for st := found; st != nil; st = st.prev {
		steps = append(steps, st)
	}
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		if v := g.Vertex(ctx, st.vertex); v != nil {
			result.Vertices = append(result.Vertices, v)
		}
		if st.prev != nil {
			result.Edges = append(result.Edges, st.edge)
		}
	}
	span.SetAttributes(attribute.Bool("found", true), attribute.Int("length", len(result.Edges)))
	return result, nil
}
