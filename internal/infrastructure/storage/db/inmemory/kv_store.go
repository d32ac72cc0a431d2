package inmemory

import (
	"context"
	"sync"

	"github.com/vaultgate/vaultgate/internal/core/ports"
)

// KVStore is an in memory ports.KVStore. Values are copied in and out.
type KVStore struct {
	values map[string][]byte
	lock   *sync.RWMutex
}

// NewKVStore returns an empty KVStore.
func NewKVStore() *KVStore {
	return &KVStore{
		values: map[string][]byte{},
		lock:   &sync.RWMutex{},
	}
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	return append([]byte{}, value...), nil
}

func (s *KVStore) Set(_ context.Context, key string, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values[key] = append([]byte{}, value...)
	return nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.values, key)
	return nil
}
