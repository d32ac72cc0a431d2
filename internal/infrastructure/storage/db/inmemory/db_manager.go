package inmemory

import (
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
)

type dbManager struct {
	kv      *KVStore
	appRepo *ConnectedAppRepository
}

// NewDbManager returns a volatile DbManager. Nothing survives a restart.
func NewDbManager() ports.DbManager {
	return &dbManager{
		kv:      NewKVStore(),
		appRepo: NewConnectedAppRepository(),
	}
}

func (m *dbManager) KVStore() ports.KVStore {
	return m.kv
}

func (m *dbManager) ConnectedAppRepository() domain.ConnectedAppRepository {
	return m.appRepo
}

func (m *dbManager) Close() {}
