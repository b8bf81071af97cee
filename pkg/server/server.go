package server

import (
	"log/slog"
	"net/http"

	"github.com/duynguyendang/factgraph/internal/manager"
	"github.com/duynguyendang/factgraph/pkg/service"
	"github.com/gin-gonic/gin"
)

// ViewerLister reports the live viewer graphs.
type ViewerLister interface {
	ListViewers() []manager.ViewerInfo
}

// Server holds the state for the REST API server.
type Server struct {
	graphService *service.GraphService
	viewers      ViewerLister
	logger       *slog.Logger
	router       *gin.Engine
}

// NewServer creates a new Server instance. viewers may be nil.
func NewServer(svc *service.GraphService, viewers ViewerLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.Default()
	s := &Server{
		graphService: svc,
		viewers:      viewers,
		logger:       logger,
		router:       r,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, for embedding in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the server on the specified address.
func (s *Server) Run(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/v1", requireViewer)
	v1.GET("/objects/:id", s.handleObject)
	v1.GET("/objects/:id/edges", s.handleObjectEdges)
	v1.GET("/facts/:id", s.handleFact)
	v1.GET("/facts/:id/retracted", s.handleRetracted)
	v1.POST("/facts/:id/retract", s.handleRetract)
	v1.POST("/traverse", s.handleTraverse)
	v1.GET("/path", s.handlePath)
}

// Health check
func (s *Server) healthCheck(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.viewers != nil {
		resp["viewers"] = s.viewers.ListViewers()
	}
	c.JSON(http.StatusOK, resp)
}
