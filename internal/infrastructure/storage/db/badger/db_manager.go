package dbbadger

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
)

const gcInterval = 30 * time.Minute

type dbManager struct {
	store   *badgerhold.Store
	kv      *kvStore
	appRepo domain.ConnectedAppRepository
	stop    chan struct{}
}

// NewDbManager opens (or creates if not exists) the badger store in the
// "vault" subdirectory of baseDbDir. An empty baseDbDir opens an in-memory
// store, handy for tests.
func NewDbManager(baseDbDir string, logger badger.Logger) (ports.DbManager, error) {
	var dbDir string
	if len(baseDbDir) > 0 {
		dbDir = filepath.Join(baseDbDir, "vault")
	}

	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vault db: %w", err)
	}

	m := &dbManager{
		store:   store,
		kv:      &kvStore{store.Badger()},
		appRepo: newConnectedAppRepository(store),
		stop:    make(chan struct{}),
	}
	if len(dbDir) > 0 {
		go m.runValueLogGC()
	}
	return m, nil
}

func (m *dbManager) KVStore() ports.KVStore {
	return m.kv
}

func (m *dbManager) ConnectedAppRepository() domain.ConnectedAppRepository {
	return m.appRepo
}

func (m *dbManager) Close() {
	close(m.stop)
	if err := m.store.Close(); err != nil {
		log.WithError(err).Warn("failed to close vault db")
	}
}

func (m *dbManager) runValueLogGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.store.Badger().RunValueLogGC(0.5); err != nil &&
				err != badger.ErrNoRewrite {
				log.Error(err)
			}
		}
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
		// The vault envelope must survive a crash right after a write.
		opts.SyncWrites = true
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
