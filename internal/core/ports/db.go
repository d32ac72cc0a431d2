package ports

import (
	"context"
	"errors"

	"github.com/vaultgate/vaultgate/internal/core/domain"
)

// ErrKeyNotFound is returned by KVStore.Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// KVStore is an atomic key-value storage backend. Every call is atomic on its
// own: a Set either fully replaces the previous value or leaves it untouched.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// DbManager groups the storage backends used by the daemon.
type DbManager interface {
	KVStore() KVStore
	ConnectedAppRepository() domain.ConnectedAppRepository
	Close()
}
