package macaroons

import (
	"context"
	"crypto/rand"
	"errors"
	"io"

	"github.com/dgraph-io/badger/v3"
	"gopkg.in/macaroon-bakery.v2/bakery"
)

// RootKeyLen is the length of a generated root key.
const RootKeyLen = 32

var (
	// DefaultRootKeyID is the id of the root key used to bake the macaroons
	// created by the daemon.
	DefaultRootKeyID = []byte("0")

	// ErrMissingRootKeyID is returned when an empty root key id is set in
	// the context.
	ErrMissingRootKeyID = errors.New("missing root key id")

	rootKeyPrefix = "rootkey/"
)

type rootKeyIDContextKey struct{}

// ContextWithRootKeyID returns a copy of ctx carrying the id of the root key
// to use for new macaroons.
func ContextWithRootKeyID(ctx context.Context, id []byte) context.Context {
	return context.WithValue(ctx, rootKeyIDContextKey{}, id)
}

func rootKeyIDFromContext(ctx context.Context) ([]byte, error) {
	id, ok := ctx.Value(rootKeyIDContextKey{}).([]byte)
	if !ok {
		return DefaultRootKeyID, nil
	}
	if len(id) <= 0 {
		return nil, ErrMissingRootKeyID
	}
	return id, nil
}

// RootKeyStorage implements bakery.RootKeyStore on top of a badger db. Root
// keys are generated on first use and never rotated.
type RootKeyStorage struct {
	db *badger.DB
}

// NewRootKeyStorage returns a root key store backed by the given db.
func NewRootKeyStorage(db *badger.DB) *RootKeyStorage {
	return &RootKeyStorage{db}
}

// Get returns the root key with the given id, or bakery.ErrNotFound.
func (r *RootKeyStorage) Get(_ context.Context, id []byte) ([]byte, error) {
	var rootKey []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rootKeyDbKey(id))
		if err != nil {
			return err
		}
		rootKey, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, bakery.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rootKey, nil
}

// RootKey returns the root key for the id found in ctx, or for
// DefaultRootKeyID, creating it if it doesn't exist yet.
func (r *RootKeyStorage) RootKey(ctx context.Context) ([]byte, []byte, error) {
	id, err := rootKeyIDFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	var rootKey []byte
	if err := r.db.Update(func(txn *badger.Txn) error {
		key := rootKeyDbKey(id)
		item, err := txn.Get(key)
		if err == nil {
			rootKey, err = item.ValueCopy(nil)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		rootKey = make([]byte, RootKeyLen)
		if _, err := io.ReadFull(rand.Reader, rootKey); err != nil {
			return err
		}
		return txn.Set(key, rootKey)
	}); err != nil {
		return nil, nil, err
	}
	return rootKey, id, nil
}

func rootKeyDbKey(id []byte) []byte {
	return append([]byte(rootKeyPrefix), id...)
}
