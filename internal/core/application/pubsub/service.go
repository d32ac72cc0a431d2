package pubsub

import (
	"context"
	"encoding/hex"

	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	"github.com/vaultgate/vaultgate/pkg/wallet"
)

// AccountChanged is published when the active account is switched.
type AccountChanged struct {
	Account wallet.Account
}

// Disconnected is published when an origin is disconnected, either by the
// app itself or by the user.
type Disconnected struct {
	Origin string
}

// NetworkChanged is published when the wallet switches network.
type NetworkChanged struct {
	Network wallet.Network
	// Accounts are re-encoded for the new network, so the active address
	// changes too.
	Account wallet.Account
}

// Service groups the topics of the outbound protocol events.
type Service struct {
	AccountChanged Topic[AccountChanged]
	Disconnected   Topic[Disconnected]
	NetworkChanged Topic[NetworkChanged]
}

func NewService() *Service {
	return &Service{}
}

// ForwardTo subscribes the transport to every topic so that events reach the
// callers. Account and network events only go to connected origins.
// It returns the function that detaches the transport.
func (s *Service) ForwardTo(
	transport ports.Transport, apps domain.ConnectedAppRepository,
) func() {
	notifyConnected := func(event domain.Event) {
		connected, err := apps.ListApps(context.Background())
		if err != nil {
			log.WithError(err).WithField("event", event.Type).Warn(
				"failed to list connected apps, event dropped",
			)
			return
		}
		for _, app := range connected {
			transport.Notify(app.Origin, event)
		}
	}

	unsubs := []func(){
		s.AccountChanged.Subscribe(func(e AccountChanged) {
			notifyConnected(domain.NewEvent(
				domain.EventAccountChanged, getAccountPayload(e.Account),
			))
		}),
		s.Disconnected.Subscribe(func(e Disconnected) {
			transport.Notify(e.Origin, domain.NewEvent(
				domain.EventDisconnected, map[string]interface{}{
					"origin": e.Origin,
				},
			))
		}),
		s.NetworkChanged.Subscribe(func(e NetworkChanged) {
			payload := getAccountPayload(e.Account)
			payload["network"] = e.Network.Name
			payload["chainId"] = e.Network.ChainID
			notifyConnected(domain.NewEvent(domain.EventNetworkChanged, payload))
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func getAccountPayload(account wallet.Account) map[string]interface{} {
	return map[string]interface{}{
		"index":     account.Index,
		"address":   account.Address,
		"publicKey": hex.EncodeToString(account.PublicKey),
	}
}
