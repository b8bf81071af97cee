package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/duynguyendang/factgraph/internal/config"
	"github.com/duynguyendang/factgraph/internal/manager"
	"github.com/duynguyendang/factgraph/pkg/ingest"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/duynguyendang/factgraph/pkg/service"
	"github.com/duynguyendang/factgraph/pkg/store"
	"github.com/google/uuid"
)

// app wires the store, the viewer graphs and the service.
type app struct {
	store   *store.FactStore
	graphs  *manager.GraphManager
	service *service.GraphService
}

func openStore(cfg *config.Config) (*store.FactStore, error) {
	return store.Open(cfg.StoreConfig())
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	controller, err := security.LoadConfigAccessController(cfg.Security.AccessControlFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load access control: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	retractionType, err := ensureRetractionType(ctx, st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	logger := slog.Default()
	graphs := manager.NewGraphManager(st, controller, cfg.ManagerOptions(logger))
	svc := service.NewGraphService(st, graphs, service.Config{
		RetractionTypeID: retractionType,
		MaxSteps:         cfg.Traversal.MaxSteps,
		MaxResults:       cfg.Traversal.MaxResults,
		Concurrency:      cfg.Traversal.Concurrency,
		Logger:           logger,
	})
	return &app{store: st, graphs: graphs, service: svc}, nil
}

// ensureRetractionType resolves the configured retraction FactType, creating
// it on writable stores.
func ensureRetractionType(ctx context.Context, st *store.FactStore, cfg *config.Config) (uuid.UUID, error) {
	name := cfg.Retraction.FactType
	t, err := st.ResolveFactTypeByName(ctx, name)
	if err == nil {
		return t.ID, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("failed to resolve retraction type %q: %w", name, err)
	}
	if cfg.Store.ReadOnly {
		return uuid.Nil, fmt.Errorf("retraction type %q does not exist", name)
	}

	t = &model.FactType{ID: ingest.FactTypeID(name), Name: name}
	if err := st.SaveFactType(ctx, t); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create retraction type %q: %w", name, err)
	}
	slog.Info("created retraction fact type", "name", name, "id", t.ID)
	return t.ID, nil
}

func (a *app) Close() {
	a.graphs.CloseAll()
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}
