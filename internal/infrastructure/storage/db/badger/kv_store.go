package dbbadger

import (
	"context"

	"github.com/dgraph-io/badger/v3"
	"github.com/vaultgate/vaultgate/internal/core/ports"
)

// Raw keys are namespaced so they never clash with badgerhold's own
// "bh_<Type>:" prefixed records living in the same db.
const kvPrefix = "kv/"

type kvStore struct {
	db *badger.DB
}

func (s *kvStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ports.ErrKeyNotFound
	}
	return value, err
}

func (s *kvStore) Set(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kvKey(key), value)
	})
}

func (s *kvStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(kvKey(key))
	})
}

func kvKey(key string) []byte {
	return []byte(kvPrefix + key)
}
