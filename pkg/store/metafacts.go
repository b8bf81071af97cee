package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/retraction"
	"github.com/duynguyendang/factgraph/pkg/store/keys"
	"github.com/google/uuid"
)

// FetchMetaFacts streams the Facts whose InReferenceTo equals factID. The
// iterator holds a read transaction until Close.
func (s *FactStore) FetchMetaFacts(ctx context.Context, factID uuid.UUID) (retraction.MetaFactIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txn := s.db.NewTransaction(false)
	prefix := keys.EncodeMetaFactPrefix(factID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	it.Seek(prefix)

	return &metaFactIterator{
		ctx:    ctx,
		txn:    txn,
		it:     it,
		prefix: prefix,
		ref:    factID,
		store:  s,
	}, nil
}

type metaFactIterator struct {
	ctx     context.Context
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	ref     uuid.UUID
	store   *FactStore
	started bool
	current *model.Fact
	err     error
	closed  bool
}

func (m *metaFactIterator) Next() bool {
	if m.closed || m.err != nil {
		return false
	}
	for {
		if m.started {
			m.it.Next()
		}
		m.started = true
		if !m.it.ValidForPrefix(m.prefix) {
			m.current = nil
			return false
		}
		if err := m.ctx.Err(); err != nil {
			m.err = err
			return false
		}

		_, id, err := keys.DecodeMetaFactKey(m.it.Item().Key())
		if err != nil {
			m.err = fmt.Errorf("%w: %v", model.ErrDataIntegrity, err)
			return false
		}

		var fact model.Fact
		err = getRecord(m.txn, keys.EncodeFactKey(id), &fact)
		if errors.Is(err, model.ErrNotFound) {
			m.store.logger.Warn("dangling meta-fact index entry", "fact", m.ref, "metaFact", id)
			continue
		}
		if err != nil {
			m.err = err
			return false
		}
		m.current = &fact
		return true
	}
}

func (m *metaFactIterator) Fact() *model.Fact {
	return m.current
}

func (m *metaFactIterator) Err() error {
	return m.err
}

func (m *metaFactIterator) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.it.Close()
	m.txn.Discard()
	return nil
}
