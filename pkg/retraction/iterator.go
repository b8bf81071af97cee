package retraction

import (
	"context"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/google/uuid"
)

// MetaFactIterator streams the Facts referring to another Fact.
//
//	for it.Next() {
//		f := it.Fact()
//	}
//	if err := it.Err(); err != nil { ... }
type MetaFactIterator interface {
	Next() bool
	Fact() *model.Fact
	Err() error
	Close() error
}

// MetaFactFetcher returns the Facts whose InReferenceTo equals factID.
type MetaFactFetcher interface {
	FetchMetaFacts(ctx context.Context, factID uuid.UUID) (MetaFactIterator, error)
}

// SliceIterator iterates over an in-memory slice of Facts.
type SliceIterator struct {
	facts []*model.Fact
	pos   int
}

// NewSliceIterator returns an iterator over facts.
func NewSliceIterator(facts []*model.Fact) *SliceIterator {
	return &SliceIterator{facts: facts, pos: -1}
}

func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.facts) {
		it.pos = len(it.facts)
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Fact() *model.Fact {
	if it.pos < 0 || it.pos >= len(it.facts) {
		return nil
	}
	return it.facts[it.pos]
}

func (it *SliceIterator) Err() error   { return nil }
func (it *SliceIterator) Close() error { return nil }
