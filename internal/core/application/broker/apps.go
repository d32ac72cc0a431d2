package broker

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application/pubsub"
	"github.com/vaultgate/vaultgate/internal/core/domain"
)

// ListApps returns the connected apps, most recently active first.
func (b *Broker) ListApps(ctx context.Context) ([]domain.ConnectedApp, error) {
	apps, err := b.apps.ListApps(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].LastActivityAt > apps[j].LastActivityAt
	})
	return apps, nil
}

// DisconnectApp revokes the connection of the given origin on behalf of the
// user. The app is notified with a disconnected event.
func (b *Broker) DisconnectApp(ctx context.Context, origin string) error {
	if err := b.apps.DeleteApp(ctx, origin); err != nil {
		return err
	}
	b.events.Disconnected.Publish(pubsub.Disconnected{Origin: origin})

	log.WithField("origin", origin).Info("app disconnected by user")
	return nil
}
