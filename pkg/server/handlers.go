package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/duynguyendang/factgraph/pkg/common/errors"
	"github.com/duynguyendang/factgraph/pkg/export"
	"github.com/duynguyendang/factgraph/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	subjectHeader = "X-Subject-ID"
	viewerKey     = "viewer"
	clusterSeed   = 1
)

// requireViewer reads the viewer identity from the X-Subject-ID header.
func requireViewer(c *gin.Context) {
	raw := c.GetHeader(subjectHeader)
	if raw == "" {
		handleError(c, errors.NewAppError(http.StatusUnauthorized, "Missing "+subjectHeader+" header", nil))
		c.Abort()
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		handleError(c, errors.NewAppError(http.StatusUnauthorized, "Invalid "+subjectHeader+" header", err))
		c.Abort()
		return
	}
	c.Set(viewerKey, id)
	c.Next()
}

func viewer(c *gin.Context) uuid.UUID {
	id, _ := c.Get(viewerKey)
	v, _ := id.(uuid.UUID)
	return v
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid id", err))
		return uuid.Nil, false
	}
	return id, true
}

func boolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid "+name+" parameter", err))
		return false, false
	}
	return b, true
}

// handleObject returns an Object as a vertex.
func (s *Server) handleObject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := s.graphService.GetObject(c.Request.Context(), viewer(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleObjectEdges returns the edges incident to an Object.
// Query: direction=in|out|both, type (repeatable), includeRetracted.
func (s *Server) handleObjectEdges(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	includeRetracted, ok := boolQuery(c, "includeRetracted")
	if !ok {
		return
	}
	edges, err := s.graphService.ObjectEdges(c.Request.Context(), viewer(c), id, c.Query("direction"), c.QueryArray("type"), includeRetracted)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edges": edges})
}

func (s *Server) handleFact(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	fact, err := s.graphService.GetFact(c.Request.Context(), viewer(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, fact)
}

func (s *Server) handleRetracted(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	retracted, err := s.graphService.IsRetracted(c.Request.Context(), viewer(c), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"factId": id, "retracted": retracted})
}

// handleRetract files a retraction against a Fact. The body is optional.
func (s *Server) handleRetract(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.RetractRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
			return
		}
	}
	req.FactID = id

	fact, err := s.graphService.RetractFact(c.Request.Context(), viewer(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fact)
}

func (s *Server) handleTraverse(c *gin.Context) {
	var req service.TraverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	result, err := s.graphService.Traverse(c.Request.Context(), viewer(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	writeResult(c, result)
}

// handlePath returns the shortest path between two Objects.
// Query: from, to, maxDepth, type (repeatable), includeRetracted, format.
func (s *Server) handlePath(c *gin.Context) {
	from, err := uuid.Parse(c.Query("from"))
	if err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid from parameter", err))
		return
	}
	to, err := uuid.Parse(c.Query("to"))
	if err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid to parameter", err))
		return
	}
	req := service.PathRequest{From: from, To: to, FactTypes: c.QueryArray("type")}
	if raw := c.Query("maxDepth"); raw != "" {
		if req.MaxDepth, err = strconv.Atoi(raw); err != nil {
			handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid maxDepth parameter", err))
			return
		}
	}
	var ok bool
	if req.IncludeRetracted, ok = boolQuery(c, "includeRetracted"); !ok {
		return
	}

	result, err := s.graphService.FindShortestPath(c.Request.Context(), viewer(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	writeResult(c, result)
}

// writeResult renders a traversal result, or its D3 form when format=d3.
// With cluster=true the D3 nodes are grouped by community.
func writeResult(c *gin.Context, result *service.TraverseResult) {
	switch c.Query("format") {
	case "", "json":
		c.JSON(http.StatusOK, result)
	case "d3":
		cluster, ok := boolQuery(c, "cluster")
		if !ok {
			return
		}
		g := export.FromTraversal(result)
		if cluster {
			export.ApplyClusters(g, export.DetectCommunities(g, clusterSeed))
		}
		c.JSON(http.StatusOK, g)
	default:
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid format parameter", nil))
	}
}

func handleError(c *gin.Context, err error) {
	appErr := errors.MapError(err)
	if appErr.Code >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}
