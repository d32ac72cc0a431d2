package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/vaultgate/vaultgate/internal/core/domain"
)

// ConnectedAppRepository is an in memory domain.ConnectedAppRepository.
type ConnectedAppRepository struct {
	apps map[string]domain.ConnectedApp
	lock *sync.RWMutex
}

// NewConnectedAppRepository returns an empty repository.
func NewConnectedAppRepository() *ConnectedAppRepository {
	return &ConnectedAppRepository{
		apps: map[string]domain.ConnectedApp{},
		lock: &sync.RWMutex{},
	}
}

func (r *ConnectedAppRepository) GetApp(
	_ context.Context, origin string,
) (*domain.ConnectedApp, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	app, ok := r.apps[origin]
	if !ok {
		return nil, domain.ErrConnectedAppNotFound
	}
	return &app, nil
}

func (r *ConnectedAppRepository) UpsertApp(
	_ context.Context, app domain.ConnectedApp,
) error {
	if app.Origin == "" {
		return domain.ErrNullOrigin
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.apps[app.Origin] = app
	return nil
}

func (r *ConnectedAppRepository) DeleteApp(
	_ context.Context, origin string,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.apps[origin]; !ok {
		return domain.ErrConnectedAppNotFound
	}
	delete(r.apps, origin)
	return nil
}

func (r *ConnectedAppRepository) ListApps(
	_ context.Context,
) ([]domain.ConnectedApp, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	apps := make([]domain.ConnectedApp, 0, len(r.apps))
	for _, app := range r.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].ConnectedAt == apps[j].ConnectedAt {
			return apps[i].Origin < apps[j].Origin
		}
		return apps[i].ConnectedAt < apps[j].ConnectedAt
	})
	return apps, nil
}
