package retraction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/security"
	"github.com/google/uuid"
)

// FactLoader loads a single Fact by id. Missing Facts fail with
// model.ErrNotFound.
type FactLoader interface {
	LoadFact(ctx context.Context, id uuid.UUID) (*model.Fact, error)
}

// Resolver computes retraction verdicts for one viewer and one request.
type Resolver struct {
	fetcher          MetaFactFetcher
	gate             security.AccessGate
	retractionTypeID uuid.UUID

	mu       sync.Mutex
	memo     map[uuid.UUID]bool
	visiting map[uuid.UUID]struct{}
}

// NewResolver creates a Resolver. Meta-facts of type retractionTypeID that
// pass gate count as retractions.
func NewResolver(fetcher MetaFactFetcher, gate security.AccessGate, retractionTypeID uuid.UUID) *Resolver {
	return &Resolver{
		fetcher:          fetcher,
		gate:             gate,
		retractionTypeID: retractionTypeID,
		memo:             make(map[uuid.UUID]bool),
		visiting:         make(map[uuid.UUID]struct{}),
	}
}

// IsRetracted reports whether fact is retracted for the resolver's viewer.
// A nil Fact, or one without the RetractedHint flag, is never retracted.
// A retraction cycle fails with model.ErrDataIntegrity.
func (r *Resolver) IsRetracted(ctx context.Context, fact *model.Fact) (bool, error) {
	if !fact.HasFlag(model.FlagRetractedHint) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(ctx, fact)
}

// IsRetractedID loads the Fact and resolves it. A Fact that does not exist is
// not retracted.
func (r *Resolver) IsRetractedID(ctx context.Context, loader FactLoader, id uuid.UUID) (bool, error) {
	fact, err := loader.LoadFact(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load fact %s: %w", id, err)
	}
	return r.IsRetracted(ctx, fact)
}

// Memoized returns the number of verdicts cached so far.
func (r *Resolver) Memoized() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memo)
}

// resolve must be called with mu held.
func (r *Resolver) resolve(ctx context.Context, fact *model.Fact) (bool, error) {
	if !fact.HasFlag(model.FlagRetractedHint) {
		return false, nil
	}
	if v, ok := r.memo[fact.ID]; ok {
		return v, nil
	}
	if _, ok := r.visiting[fact.ID]; ok {
		return false, fmt.Errorf("%w: retraction cycle through fact %s", model.ErrDataIntegrity, fact.ID)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.visiting[fact.ID] = struct{}{}
	defer delete(r.visiting, fact.ID)

	retractions, err := r.visibleRetractions(ctx, fact.ID)
	if err != nil {
		return false, err
	}

	retracted := false
	for _, rf := range retractions {
		cancelled, err := r.resolve(ctx, rf)
		if err != nil {
			return false, err
		}
		if !cancelled {
			retracted = true
			break
		}
	}

	r.memo[fact.ID] = retracted
	return retracted, nil
}

func (r *Resolver) visibleRetractions(ctx context.Context, factID uuid.UUID) ([]*model.Fact, error) {
	it, err := r.fetcher.FetchMetaFacts(ctx, factID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meta-facts of %s: %w", factID, err)
	}
	defer it.Close()

	var out []*model.Fact
	for it.Next() {
		mf := it.Fact()
		if mf == nil || mf.TypeID != r.retractionTypeID {
			continue
		}
		if r.gate == nil || !r.gate.HasReadAccess(mf) {
			continue
		}
		out = append(out, mf)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meta-facts of %s: %w", factID, err)
	}
	return out, nil
}
