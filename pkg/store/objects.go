package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/store/keys"
	"github.com/google/uuid"
)

// LoadObject returns the Object with the given id.
func (s *FactStore) LoadObject(ctx context.Context, id uuid.UUID) (*model.Object, error) {
	var obj model.Object
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getRecord(txn, keys.EncodeObjectKey(id), &obj)
	})
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// SaveObject creates or replaces an Object.
func (s *FactStore) SaveObject(ctx context.Context, obj *model.Object) error {
	if obj == nil || obj.ID == uuid.Nil {
		return fmt.Errorf("object requires an id")
	}
	if obj.TypeID == uuid.Nil {
		return fmt.Errorf("object %s requires a type", obj.ID)
	}
	return s.withWriteTxn(ctx, func(txn *badger.Txn) error {
		return setRecord(txn, keys.EncodeObjectKey(obj.ID), obj)
	})
}

// LoadObjectType returns the ObjectType with the given id.
func (s *FactStore) LoadObjectType(ctx context.Context, id uuid.UUID) (*model.ObjectType, error) {
	var t model.ObjectType
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getRecord(txn, keys.EncodeObjectTypeKey(id), &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFactType returns the FactType with the given id.
func (s *FactStore) LoadFactType(ctx context.Context, id uuid.UUID) (*model.FactType, error) {
	var t model.FactType
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getRecord(txn, keys.EncodeFactTypeKey(id), &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveObjectType creates or replaces an ObjectType and its name lookup.
func (s *FactStore) SaveObjectType(ctx context.Context, t *model.ObjectType) error {
	if t == nil || t.ID == uuid.Nil || t.Name == "" {
		return fmt.Errorf("object type requires an id and a name")
	}
	return s.withWriteTxn(ctx, func(txn *badger.Txn) error {
		return saveType(txn, keys.ObjectTypePrefix, keys.EncodeObjectTypeKey(t.ID), t.ID, t.Name, t)
	})
}

// SaveFactType creates or replaces a FactType and its name lookup.
func (s *FactStore) SaveFactType(ctx context.Context, t *model.FactType) error {
	if t == nil || t.ID == uuid.Nil || t.Name == "" {
		return fmt.Errorf("fact type requires an id and a name")
	}
	return s.withWriteTxn(ctx, func(txn *badger.Txn) error {
		return saveType(txn, keys.FactTypePrefix, keys.EncodeFactTypeKey(t.ID), t.ID, t.Name, t)
	})
}

func saveType(txn *badger.Txn, kind byte, key []byte, id uuid.UUID, name string, record any) error {
	nameKey := keys.EncodeTypeNameKey(kind, name)
	item, err := txn.Get(nameKey)
	switch {
	case err == nil:
		var existing uuid.UUID
		if err := item.Value(func(val []byte) error {
			existing, err = uuid.FromBytes(val)
			return err
		}); err != nil {
			return fmt.Errorf("%w: bad type name entry for %q", model.ErrDataIntegrity, name)
		}
		if existing != id {
			return fmt.Errorf("type name %q already taken by %s", name, existing)
		}
	case err != badger.ErrKeyNotFound:
		return err
	}

	if err := setRecord(txn, key, record); err != nil {
		return err
	}
	return txn.Set(nameKey, id[:])
}

// ResolveObjectTypeByName returns the ObjectType registered under name.
func (s *FactStore) ResolveObjectTypeByName(ctx context.Context, name string) (*model.ObjectType, error) {
	id, err := s.resolveTypeName(ctx, keys.ObjectTypePrefix, name)
	if err != nil {
		return nil, err
	}
	t, err := s.LoadObjectType(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Name != name {
		return nil, fmt.Errorf("%w: object type %q", model.ErrNotFound, name)
	}
	return t, nil
}

// ResolveFactTypeByName returns the FactType registered under name.
func (s *FactStore) ResolveFactTypeByName(ctx context.Context, name string) (*model.FactType, error) {
	id, err := s.resolveTypeName(ctx, keys.FactTypePrefix, name)
	if err != nil {
		return nil, err
	}
	t, err := s.LoadFactType(ctx, id)
	if err != nil {
		return nil, err
	}
	// Guards against a hash collision with another name.
	if t.Name != name {
		return nil, fmt.Errorf("%w: fact type %q", model.ErrNotFound, name)
	}
	return t, nil
}

func (s *FactStore) resolveTypeName(ctx context.Context, kind byte, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(keys.EncodeTypeNameKey(kind, name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: type %q", model.ErrNotFound, name)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			id, err = uuid.FromBytes(val)
			return err
		})
	})
	return id, err
}
