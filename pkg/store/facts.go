package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/store/keys"
	"github.com/google/uuid"
)

// LoadFact returns the Fact with the given id.
func (s *FactStore) LoadFact(ctx context.Context, id uuid.UUID) (*model.Fact, error) {
	var fact model.Fact
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getRecord(txn, keys.EncodeFactKey(id), &fact)
	})
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

// SaveFact creates or replaces a Fact together with its binding rows and,
// for meta-facts, the row in the referenced Fact's meta-fact index. Rows of
// a previous version that no longer apply are removed.
func (s *FactStore) SaveFact(ctx context.Context, fact *model.Fact) error {
	if err := validateFact(fact); err != nil {
		return err
	}

	normalizeFlags(fact)

	return s.withWriteTxn(ctx, func(txn *badger.Txn) error {
		return putFact(txn, fact)
	})
}

// SaveMetaFact stores a meta-fact and adds targetFlags to the Fact it refers
// to in the same transaction. Nothing is written if the referenced Fact does
// not exist.
func (s *FactStore) SaveMetaFact(ctx context.Context, meta *model.Fact, targetFlags model.Flag) error {
	if err := validateFact(meta); err != nil {
		return err
	}
	if meta.InReferenceTo == nil {
		return fmt.Errorf("meta-fact %s does not refer to a fact", meta.ID)
	}
	normalizeFlags(meta)

	return s.withWriteTxn(ctx, func(txn *badger.Txn) error {
		if err := addFlags(txn, *meta.InReferenceTo, targetFlags); err != nil {
			return fmt.Errorf("referenced fact %s: %w", *meta.InReferenceTo, err)
		}
		return putFact(txn, meta)
	})
}

// SetFlags adds flags to a stored Fact.
func (s *FactStore) SetFlags(ctx context.Context, factID uuid.UUID, flags model.Flag) error {
	return s.withWriteTxn(ctx, func(txn *badger.Txn) error {
		return addFlags(txn, factID, flags)
	})
}

// FetchObjectFactBindings returns one entry per binding of objectID. An
// Object bound twice to the same Fact yields two entries.
func (s *FactStore) FetchObjectFactBindings(ctx context.Context, objectID uuid.UUID) ([]model.ObjectFactBinding, error) {
	var result []model.ObjectFactBinding
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := keys.EncodeBindingPrefix(objectID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			_, factID, err := keys.DecodeBindingKey(item.Key())
			if err != nil {
				return fmt.Errorf("%w: %v", model.ErrDataIntegrity, err)
			}
			err = item.Value(func(val []byte) error {
				for _, b := range val {
					dir, err := model.DirectionFromByte(b)
					if err != nil {
						return fmt.Errorf("binding %s/%s: %w", objectID, factID, err)
					}
					result = append(result, model.ObjectFactBinding{ObjectID: objectID, FactID: factID, Direction: dir})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FactsBoundTo loads every Fact bound to objectID. Dangling binding rows are
// skipped.
func (s *FactStore) FactsBoundTo(ctx context.Context, objectID uuid.UUID) ([]*model.Fact, error) {
	bindings, err := s.FetchObjectFactBindings(ctx, objectID)
	if err != nil {
		return nil, err
	}

	var facts []*model.Fact
	seen := make(map[uuid.UUID]struct{}, len(bindings))
	for _, b := range bindings {
		if _, ok := seen[b.FactID]; ok {
			continue
		}
		seen[b.FactID] = struct{}{}

		f, err := s.LoadFact(ctx, b.FactID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				s.logger.Warn("dangling binding", "object", objectID, "fact", b.FactID)
				continue
			}
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func validateFact(fact *model.Fact) error {
	if fact == nil || fact.ID == uuid.Nil {
		return fmt.Errorf("fact requires an id")
	}
	if fact.TypeID == uuid.Nil {
		return fmt.Errorf("fact %s requires a type", fact.ID)
	}
	if !fact.AccessMode.Valid() {
		return fmt.Errorf("fact %s has invalid access mode %s", fact.ID, fact.AccessMode)
	}
	if fact.InReferenceTo != nil && *fact.InReferenceTo == fact.ID {
		return fmt.Errorf("fact %s cannot refer to itself", fact.ID)
	}
	for _, b := range fact.Bindings {
		if b.ObjectID == uuid.Nil {
			return fmt.Errorf("fact %s has a binding without object", fact.ID)
		}
		if !b.Direction.Valid() {
			return fmt.Errorf("fact %s has invalid direction %s", fact.ID, b.Direction)
		}
	}
	return nil
}

// normalizeFlags recomputes the flags derived from the bindings.
func normalizeFlags(fact *model.Fact) {
	fact.Flags &^= model.FlagBidirectionalBinding
	for _, b := range fact.Bindings {
		if b.Direction == model.DirectionBiDirectional {
			fact.Flags |= model.FlagBidirectionalBinding
			return
		}
	}
}

// putFact writes the record, binding rows and meta-fact row of fact,
// removing the rows of a previous version first.
func putFact(txn *badger.Txn, fact *model.Fact) error {
	var previous model.Fact
	err := getRecord(txn, keys.EncodeFactKey(fact.ID), &previous)
	switch {
	case err == nil:
		if err := deleteFactRows(txn, &previous); err != nil {
			return err
		}
	case !errors.Is(err, model.ErrNotFound):
		return err
	}

	if err := setRecord(txn, keys.EncodeFactKey(fact.ID), fact); err != nil {
		return err
	}
	for objectID, dirs := range groupBindings(fact.Bindings) {
		if err := txn.Set(keys.EncodeBindingKey(objectID, fact.ID), dirs); err != nil {
			return err
		}
	}
	if fact.InReferenceTo != nil {
		if err := txn.Set(keys.EncodeMetaFactKey(*fact.InReferenceTo, fact.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func addFlags(txn *badger.Txn, factID uuid.UUID, flags model.Flag) error {
	var fact model.Fact
	if err := getRecord(txn, keys.EncodeFactKey(factID), &fact); err != nil {
		return err
	}
	if fact.Flags.Has(flags) {
		return nil
	}
	fact.Flags |= flags
	return setRecord(txn, keys.EncodeFactKey(factID), &fact)
}

// groupBindings collects the direction bytes per Object, keeping order.
func groupBindings(bindings []model.Binding) map[uuid.UUID][]byte {
	out := make(map[uuid.UUID][]byte, len(bindings))
	for _, b := range bindings {
		out[b.ObjectID] = append(out[b.ObjectID], byte(b.Direction))
	}
	return out
}

func deleteFactRows(txn *badger.Txn, fact *model.Fact) error {
	for objectID := range groupBindings(fact.Bindings) {
		if err := txn.Delete(keys.EncodeBindingKey(objectID, fact.ID)); err != nil {
			return err
		}
	}
	if fact.InReferenceTo != nil {
		if err := txn.Delete(keys.EncodeMetaFactKey(*fact.InReferenceTo, fact.ID)); err != nil {
			return err
		}
	}
	return nil
}
