package service

import (
	"context"
	"testing"

	"github.com/duynguyendang/factgraph/internal/manager"
	"github.com/duynguyendang/factgraph/pkg/common/errors"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/duynguyendang/factgraph/pkg/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	org            = uuid.New()
	analyst        = uuid.New()
	reader         = uuid.New()
	retractionType = &model.FactType{ID: uuid.New(), Name: "Retraction"}
)

// fixture: ip -resolvesTo-> domain -hostedOn-> server, plus an Explicit
// fact "secret" binding ip to hidden that nobody is listed on.
type fixture struct {
	svc   *GraphService
	store *store.FactStore

	ip, domain, server, hidden *model.Object
	resolvesTo, hostedOn, secret *model.Fact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctrl := security.NewConfigAccessController([]security.Subject{
		{ID: analyst, Name: "analyst", Grants: []security.Grant{{Organization: org, Functions: []string{security.FunctionViewFact, security.FunctionAddFact}}}},
		{ID: reader, Name: "reader", Grants: []security.Grant{{Organization: org, Functions: []string{security.FunctionViewFact}}}},
	})
	graphs := manager.NewGraphManager(s, ctrl, manager.Options{})
	t.Cleanup(graphs.CloseAll)

	require.NoError(t, s.SaveFactType(ctx, retractionType))

	f := &fixture{store: s}
	objType := &model.ObjectType{ID: uuid.New(), Name: "thing"}
	require.NoError(t, s.SaveObjectType(ctx, objType))
	newObject := func(value string) *model.Object {
		o := &model.Object{ID: uuid.New(), TypeID: objType.ID, Value: value}
		require.NoError(t, s.SaveObject(ctx, o))
		return o
	}
	newFact := func(name string, mode model.AccessMode, from, to *model.Object) *model.Fact {
		ft := &model.FactType{ID: uuid.New(), Name: name}
		require.NoError(t, s.SaveFactType(ctx, ft))
		fact := &model.Fact{
			ID:             uuid.New(),
			TypeID:         ft.ID,
			Value:          name,
			OrganizationID: org,
			AccessMode:     mode,
			Bindings: []model.Binding{
				{ObjectID: from.ID, Direction: model.DirectionFactIsDestination},
				{ObjectID: to.ID, Direction: model.DirectionFactIsSource},
			},
		}
		require.NoError(t, s.SaveFact(ctx, fact))
		return fact
	}

	f.ip = newObject("10.0.0.1")
	f.domain = newObject("example.org")
	f.server = newObject("srv-1")
	f.hidden = newObject("hidden")
	f.resolvesTo = newFact("resolvesTo", model.AccessModePublic, f.ip, f.domain)
	f.hostedOn = newFact("hostedOn", model.AccessModeRoleBased, f.domain, f.server)
	f.secret = newFact("secret", model.AccessModeExplicit, f.ip, f.hidden)

	f.svc = NewGraphService(s, graphs, Config{RetractionTypeID: retractionType.ID, MaxSteps: 3})
	return f
}

func edgeLabels(edges []EdgeView) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.Label)
	}
	return out
}

func TestTraverse_OneStep(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Traverse(context.Background(), reader, TraverseRequest{Start: []uuid.UUID{f.ip.ID}, Direction: "out"})
	require.NoError(t, err)
	assert.Equal(t, []string{"resolvesTo"}, edgeLabels(res.Edges))
	assert.Len(t, res.Vertices, 2)
	assert.False(t, res.Truncated)

	e := res.Edges[0]
	assert.Equal(t, f.ip.ID, e.InVertexID)
	assert.Equal(t, f.domain.ID, e.OutVertexID)
	assert.False(t, e.Retracted)
}

func TestTraverse_MultiStep(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Traverse(context.Background(), reader, TraverseRequest{Start: []uuid.UUID{f.ip.ID}, Steps: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"hostedOn", "resolvesTo"}, edgeLabels(res.Edges))

	var ids []uuid.UUID
	for _, v := range res.Vertices {
		ids = append(ids, v.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{f.ip.ID, f.domain.ID, f.server.ID}, ids)
	assert.NotContains(t, ids, f.hidden.ID)
}

func TestTraverse_FactTypeFilterAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Traverse(ctx, reader, TraverseRequest{Start: []uuid.UUID{f.domain.ID}, FactTypes: []string{"hostedOn"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"hostedOn"}, edgeLabels(res.Edges))

	res, err = f.svc.Traverse(ctx, reader, TraverseRequest{Start: []uuid.UUID{f.domain.ID}, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Edges, 1)
	assert.True(t, res.Truncated)
}

func TestTraverse_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []TraverseRequest{
		{},
		{Start: []uuid.UUID{f.ip.ID}, Steps: 10},
		{Start: []uuid.UUID{f.ip.ID}, Steps: -1},
		{Start: []uuid.UUID{f.ip.ID}, Direction: "up"},
	} {
		_, err := f.svc.Traverse(ctx, reader, req)
		assert.ErrorIs(t, err, errors.ErrInvalidInput, "%+v", req)
	}

	_, err := f.svc.Traverse(ctx, uuid.New(), TraverseRequest{Start: []uuid.UUID{f.ip.ID}})
	assert.ErrorIs(t, err, security.ErrAuthenticationFailed)
}

func TestTraverse_SkipsInvisibleStart(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Traverse(context.Background(), reader, TraverseRequest{Start: []uuid.UUID{f.hidden.ID, uuid.New()}})
	require.NoError(t, err)
	assert.Empty(t, res.Vertices)
	assert.Empty(t, res.Edges)
}

func TestRetractFact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Warm the analyst's caches so the stale edge must be invalidated.
	_, err := f.svc.ObjectEdges(ctx, analyst, f.ip.ID, "out", nil, false)
	require.NoError(t, err)

	rf, err := f.svc.RetractFact(ctx, analyst, RetractRequest{FactID: f.resolvesTo.ID, Comment: "sinkholed"})
	require.NoError(t, err)
	assert.Equal(t, retractionType.ID, rf.TypeID)
	assert.Equal(t, f.resolvesTo.ID, *rf.InReferenceTo)
	assert.Equal(t, model.AccessModePublic, rf.AccessMode)
	assert.Equal(t, analyst, rf.AddedByID)

	retracted, err := f.svc.IsRetracted(ctx, analyst, f.resolvesTo.ID)
	require.NoError(t, err)
	assert.True(t, retracted)

	edges, err := f.svc.ObjectEdges(ctx, analyst, f.ip.ID, "out", nil, false)
	require.NoError(t, err)
	assert.Empty(t, edges)

	edges, err = f.svc.ObjectEdges(ctx, analyst, f.ip.ID, "out", nil, true)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].Retracted)

	// Retracting the retraction restores the fact.
	_, err = f.svc.RetractFact(ctx, analyst, RetractRequest{FactID: rf.ID})
	require.NoError(t, err)
	retracted, err = f.svc.IsRetracted(ctx, reader, f.resolvesTo.ID)
	require.NoError(t, err)
	assert.False(t, retracted)
}

func TestRetractFact_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RetractFact(ctx, reader, RetractRequest{FactID: f.resolvesTo.ID})
	assert.ErrorIs(t, err, security.ErrAccessDenied, "reader lacks add permission")

	_, err = f.svc.RetractFact(ctx, analyst, RetractRequest{FactID: f.secret.ID})
	assert.ErrorIs(t, err, security.ErrAccessDenied, "target not readable")

	_, err = f.svc.RetractFact(ctx, analyst, RetractRequest{FactID: f.hostedOn.ID, AccessMode: "Public"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = f.svc.RetractFact(ctx, analyst, RetractRequest{FactID: uuid.New()})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRetractFact_ExplicitAddsCreatorToACL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rf, err := f.svc.RetractFact(ctx, analyst, RetractRequest{FactID: f.hostedOn.ID, AccessMode: "Explicit"})
	require.NoError(t, err)
	assert.True(t, rf.InACL(analyst))

	// Only the analyst sees the retraction.
	retracted, err := f.svc.IsRetracted(ctx, analyst, f.hostedOn.ID)
	require.NoError(t, err)
	assert.True(t, retracted)
	retracted, err = f.svc.IsRetracted(ctx, reader, f.hostedOn.ID)
	require.NoError(t, err)
	assert.False(t, retracted)
}

func TestGetFactAndObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.GetFact(ctx, reader, f.hostedOn.ID)
	require.NoError(t, err)
	assert.Equal(t, "hostedOn", view.Value)
	assert.False(t, view.Retracted)

	_, err = f.svc.GetFact(ctx, reader, f.secret.ID)
	assert.ErrorIs(t, err, security.ErrAccessDenied)
	_, err = f.svc.GetFact(ctx, reader, uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)

	v, err := f.svc.GetObject(ctx, reader, f.domain.ID)
	require.NoError(t, err)
	assert.Equal(t, "thing", v.Label)
	assert.Equal(t, "example.org", v.Object.Value)

	_, err = f.svc.GetObject(ctx, reader, f.hidden.ID)
	assert.ErrorIs(t, err, security.ErrAccessDenied)
	_, err = f.svc.GetObject(ctx, reader, uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestObjectEdges_Direction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.svc.ObjectEdges(ctx, reader, f.domain.ID, "in", nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"resolvesTo"}, edgeLabels(in))

	both, err := f.svc.ObjectEdges(ctx, reader, f.domain.ID, "", nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hostedOn", "resolvesTo"}, edgeLabels(both))

	_, err = f.svc.ObjectEdges(ctx, reader, f.domain.ID, "sideways", nil, false)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
