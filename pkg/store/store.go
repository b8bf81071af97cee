package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/klauspost/compress/s2"
)

// ErrReadOnly is returned by writes against a store opened read-only.
var ErrReadOnly = errors.New("store is read-only")

// FactStore is the badger-backed primary store.
type FactStore struct {
	db       *badger.DB
	readOnly bool
	logger   *slog.Logger
}

// Open validates cfg and opens the database.
func Open(cfg *Config) (*FactStore, error) {
	if cfg == nil {
		cfg = InMemoryConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	db, err := badger.Open(buildBadgerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	s := &FactStore{db: db, readOnly: cfg.ReadOnly, logger: slog.Default()}
	s.logger.Info("store opened", "dir", cfg.DataDir, "inMemory", cfg.InMemory, "readOnly", cfg.ReadOnly, "profile", cfg.Profile)
	return s, nil
}

// Close closes the underlying database.
func (s *FactStore) Close() error {
	return s.db.Close()
}

func (s *FactStore) withReadTxn(ctx context.Context, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *FactStore) withWriteTxn(ctx context.Context, fn func(*badger.Txn) error) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func encodeRecord(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s2.Encode(nil, raw), nil
}

// getRecord loads and decodes the record at key into v. A missing key fails
// with model.ErrNotFound.
func getRecord(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return model.ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		raw, err := s2.Decode(nil, val)
		if err != nil {
			return fmt.Errorf("%w: failed to decompress record: %v", model.ErrDataIntegrity, err)
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: failed to decode record: %v", model.ErrDataIntegrity, err)
		}
		return nil
	})
}

func setRecord(txn *badger.Txn, key []byte, v any) error {
	val, err := encodeRecord(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return txn.Set(key, val)
}
