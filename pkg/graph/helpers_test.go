package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/google/uuid"
)

type fakeStore struct {
	mu          sync.RWMutex
	objects     map[uuid.UUID]*model.Object
	facts       map[uuid.UUID]*model.Fact
	objectTypes map[uuid.UUID]*model.ObjectType
	factTypes   map[uuid.UUID]*model.FactType
	bindings    map[uuid.UUID][]model.ObjectFactBinding
	factErr     error
	objectLoads atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:     make(map[uuid.UUID]*model.Object),
		facts:       make(map[uuid.UUID]*model.Fact),
		objectTypes: make(map[uuid.UUID]*model.ObjectType),
		factTypes:   make(map[uuid.UUID]*model.FactType),
		bindings:    make(map[uuid.UUID][]model.ObjectFactBinding),
	}
}

func (s *fakeStore) addObject(typeName string) *model.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	typ := &model.ObjectType{ID: uuid.New(), Name: typeName}
	s.objectTypes[typ.ID] = typ
	o := &model.Object{ID: uuid.New(), TypeID: typ.ID, Value: fmt.Sprintf("%s-value", typeName)}
	s.objects[o.ID] = o
	return o
}

// addFact stores a fact bound to objects and indexes its bindings.
func (s *fakeStore) addFact(typeName string, bindings ...model.Binding) *model.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	typ := &model.FactType{ID: uuid.New(), Name: typeName}
	s.factTypes[typ.ID] = typ
	f := &model.Fact{ID: uuid.New(), TypeID: typ.ID, Bindings: bindings}
	s.facts[f.ID] = f
	for _, b := range bindings {
		s.bindings[b.ObjectID] = append(s.bindings[b.ObjectID], model.ObjectFactBinding{
			ObjectID:  b.ObjectID,
			FactID:    f.ID,
			Direction: b.Direction,
		})
	}
	return f
}

func (s *fakeStore) LoadObject(_ context.Context, id uuid.UUID) (*model.Object, error) {
	s.objectLoads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", model.ErrNotFound, id)
	}
	return o, nil
}

func (s *fakeStore) LoadFact(_ context.Context, id uuid.UUID) (*model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.factErr != nil {
		return nil, s.factErr
	}
	f, ok := s.facts[id]
	if !ok {
		return nil, fmt.Errorf("%w: fact %s", model.ErrNotFound, id)
	}
	return f, nil
}

func (s *fakeStore) LoadObjectType(_ context.Context, id uuid.UUID) (*model.ObjectType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.objectTypes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) LoadFactType(_ context.Context, id uuid.UUID) (*model.FactType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.factTypes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) FetchObjectFactBindings(_ context.Context, objectID uuid.UUID) ([]model.ObjectFactBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ObjectFactBinding(nil), s.bindings[objectID]...), nil
}

type gateFunc func(*model.Fact) bool

func (g gateFunc) HasReadAccess(f *model.Fact) bool { return g(f) }

var allowAll = gateFunc(func(*model.Fact) bool { return true })

func bind(o *model.Object, d model.Direction) model.Binding {
	return model.Binding{ObjectID: o.ID, Direction: d}
}

func inBinding(o *model.Object, f *model.Fact, d model.Direction) model.ObjectFactBinding {
	return model.ObjectFactBinding{ObjectID: o.ID, FactID: f.ID, Direction: d}
}

// retractingStore marks a fact retracted between the first load and its
// return, the window in which a concurrent retraction can land.
type retractingStore struct {
	*fakeStore
	once     sync.Once
	onLoaded func(factID uuid.UUID)
}

func (s *retractingStore) LoadFact(ctx context.Context, id uuid.UUID) (*model.Fact, error) {
	fact, err := s.fakeStore.LoadFact(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := *fact
	s.once.Do(func() {
		s.mu.Lock()
		s.facts[id].Flags |= model.FlagRetractedHint
		s.mu.Unlock()
		s.onLoaded(id)
	})
	return &snapshot, nil
}
