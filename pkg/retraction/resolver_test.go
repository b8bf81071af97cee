package retraction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var retractionType = uuid.New()

type memFetcher struct {
	mu    sync.Mutex
	facts map[uuid.UUID]*model.Fact
	refs  map[uuid.UUID][]uuid.UUID
	calls map[uuid.UUID]int
}

func newMemFetcher() *memFetcher {
	return &memFetcher{
		facts: make(map[uuid.UUID]*model.Fact),
		refs:  make(map[uuid.UUID][]uuid.UUID),
		calls: make(map[uuid.UUID]int),
	}
}

func (m *memFetcher) FetchMetaFacts(_ context.Context, factID uuid.UUID) (MetaFactIterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[factID]++
	var out []*model.Fact
	for _, id := range m.refs[factID] {
		out = append(out, m.facts[id])
	}
	return NewSliceIterator(out), nil
}

func (m *memFetcher) LoadFact(_ context.Context, id uuid.UUID) (*model.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.facts[id]; ok {
		return f, nil
	}
	return nil, model.ErrNotFound
}

func (m *memFetcher) fact(typeID uuid.UUID) *model.Fact {
	f := &model.Fact{ID: uuid.New(), TypeID: typeID, AccessMode: model.AccessModePublic}
	m.facts[f.ID] = f
	return f
}

// retract files a retraction against target and marks the target hinted.
func (m *memFetcher) retract(target *model.Fact) *model.Fact {
	r := m.fact(retractionType)
	id := target.ID
	r.InReferenceTo = &id
	target.Flags |= model.FlagRetractedHint
	m.refs[target.ID] = append(m.refs[target.ID], r.ID)
	return r
}

type gateFunc func(*model.Fact) bool

func (g gateFunc) HasReadAccess(f *model.Fact) bool { return g(f) }

var allowAll = gateFunc(func(*model.Fact) bool { return true })

func TestIsRetracted_WithoutHint(t *testing.T) {
	m := newMemFetcher()
	f := m.fact(uuid.New())
	// A retraction exists but the hint was never set.
	r := m.fact(retractionType)
	m.refs[f.ID] = []uuid.UUID{r.ID}

	res := NewResolver(m, allowAll, retractionType)
	got, err := res.IsRetracted(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, got)
	assert.Zero(t, m.calls[f.ID], "fast path must not fetch meta-facts")

	got, err = res.IsRetracted(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsRetracted_Cancellation(t *testing.T) {
	ctx := context.Background()
	m := newMemFetcher()
	f := m.fact(uuid.New())

	r1 := m.retract(f)
	got, err := NewResolver(m, allowAll, retractionType).IsRetracted(ctx, f)
	require.NoError(t, err)
	assert.True(t, got, "one retraction")

	r2 := m.retract(r1)
	got, err = NewResolver(m, allowAll, retractionType).IsRetracted(ctx, f)
	require.NoError(t, err)
	assert.False(t, got, "retraction of the retraction")

	m.retract(r2)
	got, err = NewResolver(m, allowAll, retractionType).IsRetracted(ctx, f)
	require.NoError(t, err)
	assert.True(t, got, "three levels")
}

func TestIsRetracted_AnyLiveRetractionWins(t *testing.T) {
	m := newMemFetcher()
	f := m.fact(uuid.New())
	r1 := m.retract(f)
	m.retract(f)
	m.retract(r1)

	got, err := NewResolver(m, allowAll, retractionType).IsRetracted(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestIsRetracted_InvisibleRetraction(t *testing.T) {
	ctx := context.Background()
	m := newMemFetcher()
	f := m.fact(uuid.New())
	hidden := m.retract(f)

	gate := gateFunc(func(fact *model.Fact) bool { return fact.ID != hidden.ID })
	got, err := NewResolver(m, gate, retractionType).IsRetracted(ctx, f)
	require.NoError(t, err)
	assert.False(t, got)

	// A hidden cancellation does not cancel either.
	g := m.fact(uuid.New())
	r := m.retract(g)
	hiddenCancel := m.retract(r)
	gate = func(fact *model.Fact) bool { return fact.ID != hiddenCancel.ID }
	got, err = NewResolver(m, gate, retractionType).IsRetracted(ctx, g)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestIsRetracted_IgnoresOtherTypes(t *testing.T) {
	m := newMemFetcher()
	f := m.fact(uuid.New())
	comment := m.fact(uuid.New())
	m.refs[f.ID] = []uuid.UUID{comment.ID}
	f.Flags |= model.FlagRetractedHint

	got, err := NewResolver(m, allowAll, retractionType).IsRetracted(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsRetracted_Cycle(t *testing.T) {
	m := newMemFetcher()
	a := m.fact(retractionType)
	b := m.retract(a)
	// a retracts b, closing the loop.
	m.refs[b.ID] = []uuid.UUID{a.ID}
	b.Flags |= model.FlagRetractedHint

	_, err := NewResolver(m, allowAll, retractionType).IsRetracted(context.Background(), a)
	assert.ErrorIs(t, err, model.ErrDataIntegrity)
}

func TestIsRetracted_Memoized(t *testing.T) {
	ctx := context.Background()
	m := newMemFetcher()
	// Diamond: f1 and f2 are both retracted by r, which is retracted by rr.
	f1 := m.fact(uuid.New())
	f2 := m.fact(uuid.New())
	r := m.retract(f1)
	m.refs[f2.ID] = []uuid.UUID{r.ID}
	f2.Flags |= model.FlagRetractedHint
	m.retract(r)

	res := NewResolver(m, allowAll, retractionType)
	got1, err := res.IsRetracted(ctx, f1)
	require.NoError(t, err)
	got2, err := res.IsRetracted(ctx, f2)
	require.NoError(t, err)

	assert.False(t, got1)
	assert.False(t, got2)
	assert.Equal(t, 1, m.calls[r.ID], "shared retraction resolved once")
	assert.Equal(t, 3, res.Memoized())

	_, err = res.IsRetracted(ctx, f1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls[f1.ID])
}

func TestIsRetracted_Concurrent(t *testing.T) {
	m := newMemFetcher()
	f := m.fact(uuid.New())
	m.retract(f)
	res := NewResolver(m, allowAll, retractionType)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := res.IsRetracted(context.Background(), f)
			assert.NoError(t, err)
			assert.True(t, got)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.calls[f.ID])
}

func TestIsRetractedID(t *testing.T) {
	ctx := context.Background()
	m := newMemFetcher()
	f := m.fact(uuid.New())
	m.retract(f)
	res := NewResolver(m, allowAll, retractionType)

	got, err := res.IsRetractedID(ctx, m, f.ID)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = res.IsRetractedID(ctx, m, uuid.New())
	require.NoError(t, err)
	assert.False(t, got)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchMetaFacts(ctx context.Context, factID uuid.UUID) (MetaFactIterator, error) {
	args := m.Called(ctx, factID)
	it, _ := args.Get(0).(MetaFactIterator)
	return it, args.Error(1)
}

func TestIsRetracted_FetchError(t *testing.T) {
	f := &model.Fact{ID: uuid.New(), Flags: model.FlagRetractedHint}
	boom := errors.New("disk on fire")

	fetcher := new(mockFetcher)
	fetcher.On("FetchMetaFacts", mock.Anything, f.ID).Return(nil, boom).Once()

	res := NewResolver(fetcher, allowAll, retractionType)
	_, err := res.IsRetracted(context.Background(), f)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, res.Memoized())
	fetcher.AssertExpectations(t)
}

func TestIsRetracted_ContextCancelled(t *testing.T) {
	m := newMemFetcher()
	f := m.fact(uuid.New())
	m.retract(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(m, allowAll, retractionType).IsRetracted(ctx, f)
	assert.ErrorIs(t, err, context.Canceled)
}
