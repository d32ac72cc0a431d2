package dbbadger

import (
	"context"
	"sort"

	"github.com/timshannon/badgerhold/v4"
	"github.com/vaultgate/vaultgate/internal/core/domain"
)

type connectedAppRepository struct {
	store *badgerhold.Store
}

func newConnectedAppRepository(store *badgerhold.Store) domain.ConnectedAppRepository {
	return &connectedAppRepository{store}
}

func (r *connectedAppRepository) GetApp(
	_ context.Context, origin string,
) (*domain.ConnectedApp, error) {
	var app domain.ConnectedApp
	if err := r.store.Get(origin, &app); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrConnectedAppNotFound
		}
		return nil, err
	}
	return &app, nil
}

func (r *connectedAppRepository) UpsertApp(
	_ context.Context, app domain.ConnectedApp,
) error {
	if app.Origin == "" {
		return domain.ErrNullOrigin
	}
	return r.store.Upsert(app.Origin, &app)
}

func (r *connectedAppRepository) DeleteApp(
	_ context.Context, origin string,
) error {
	if err := r.store.Delete(origin, domain.ConnectedApp{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return domain.ErrConnectedAppNotFound
		}
		return err
	}
	return nil
}

func (r *connectedAppRepository) ListApps(
	_ context.Context,
) ([]domain.ConnectedApp, error) {
	var apps []domain.ConnectedApp
	if err := r.store.Find(&apps, nil); err != nil {
		return nil, err
	}
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].ConnectedAt < apps[j].ConnectedAt
	})
	return apps, nil
}
