package broker

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application/pubsub"
	"github.com/vaultgate/vaultgate/internal/core/application/wallet"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

// DefaultApprovalTimeout is the time a request waits for a decision before
// expiring.
const DefaultApprovalTimeout = 2 * time.Minute

// ErrBrokerClosed is returned for requests handled or pending after Close.
var ErrBrokerClosed = errors.New("broker is closed")

type Config struct {
	Wallet *wallet.Service
	Apps   domain.ConnectedAppRepository
	Ledger ports.LedgerClient
	Events *pubsub.Service

	ApprovalTimeout time.Duration
	// Registerer is where the broker metrics are registered, if not nil.
	Registerer prometheus.Registerer
}

func (c Config) validate() error {
	if c.Wallet == nil {
		return fmt.Errorf("missing wallet service")
	}
	if c.Apps == nil {
		return fmt.Errorf("missing connected app repository")
	}
	if c.Ledger == nil {
		return fmt.Errorf("missing ledger client")
	}
	if c.Events == nil {
		return fmt.Errorf("missing pubsub service")
	}
	return nil
}

// Broker mediates every access of an external origin to the wallet. Reads
// need the origin to be connected, signing operations need an explicit
// approval each time.
type Broker struct {
	wallet          *wallet.Service
	apps            domain.ConnectedAppRepository
	ledger          ports.LedgerClient
	events          *pubsub.Service
	approvalTimeout time.Duration
	metrics         *metrics

	lock       sync.Mutex
	seq        uint64
	pending    map[string]*pendingApproval
	connecting map[string]*pendingApproval
	closed     bool
}

// New returns a broker ready to handle requests. Close must be called to
// release the pending callers.
func New(cfg Config) (*Broker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = DefaultApprovalTimeout
	}
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register broker metrics: %w", err)
	}

	return &Broker{
		wallet:          cfg.Wallet,
		apps:            cfg.Apps,
		ledger:          cfg.Ledger,
		events:          cfg.Events,
		approvalTimeout: cfg.ApprovalTimeout,
		metrics:         m,
		pending:         make(map[string]*pendingApproval),
		connecting:      make(map[string]*pendingApproval),
	}, nil
}

// Handle processes one request and blocks until its response is ready, that
// is until the user decides for requests that need approval.
func (b *Broker) Handle(ctx context.Context, req domain.Request) domain.Response {
	payload, err := b.handle(ctx, req)

	res := domain.NewResponse(req.ID, payload)
	if err != nil {
		res = domain.NewErrorResponse(req.ID, err)
		log.WithError(err).WithFields(log.Fields{
			"type":   req.Type,
			"origin": req.Origin,
		}).Debug("request failed")
	}
	b.metrics.observeRequest(string(req.Type), res.Code)
	return res
}

func (b *Broker) handle(ctx context.Context, req domain.Request) (interface{}, error) {
	if b.isClosed() {
		return nil, ErrBrokerClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := domain.DecodePayload(req.Type, req.Payload)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case domain.MessagePing:
		return pong{Type: domain.MessagePong}, nil
	case domain.MessagePong:
		return nil, nil
	case domain.MessageConnect:
		return b.connect(ctx, req, payload.(domain.ConnectPayload))
	case domain.MessageDisconnect:
		return b.disconnect(ctx, req.Origin)
	case domain.MessageGetAddress:
		if err := b.requireConnected(ctx, req.Origin); err != nil {
			return nil, err
		}
		return b.identity()
	case domain.MessageGetPublicKey:
		if err := b.requireConnected(ctx, req.Origin); err != nil {
			return nil, err
		}
		return b.publicKey()
	case domain.MessageGetBalance:
		if err := b.requireConnected(ctx, req.Origin); err != nil {
			return nil, err
		}
		return b.balance(ctx)
	case domain.MessageGetNetwork:
		if err := b.requireConnected(ctx, req.Origin); err != nil {
			return nil, err
		}
		return b.network()
	case domain.MessageIsConnected:
		if err := b.requireConnected(ctx, req.Origin); err != nil {
			return nil, err
		}
		return isConnected{Connected: true}, nil
	case domain.MessageSignMessage, domain.MessageSignTransaction,
		domain.MessageSendTransaction, domain.MessageAddToken:
		if err := b.requireConnected(ctx, req.Origin); err != nil {
			return nil, err
		}
		var account walletcore.Account
		if req.Type != domain.MessageAddToken {
			if account, err = b.wallet.ActiveAccount(); err != nil {
				return nil, err
			}
		}
		p, err := b.enqueue(req, payload, account)
		if err != nil {
			return nil, err
		}
		return p.wait(ctx)
	default:
		return nil, domain.ErrInvalidRequest
	}
}

// Close settles every pending approval with ErrBrokerClosed. Further
// requests are refused.
func (b *Broker) Close() {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return
	}
	b.closed = true
	pending := make([]*pendingApproval, 0, len(b.pending))
	for _, p := range b.pending {
		pending = append(pending, p)
	}
	b.pending = make(map[string]*pendingApproval)
	b.connecting = make(map[string]*pendingApproval)
	b.metrics.pendingApprovals.Set(0)
	b.lock.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.resolve(nil, ErrBrokerClosed)
	}
}

func (b *Broker) isClosed() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.closed
}

// requireConnected fails with ErrNotConnected if the origin never got a
// CONNECT approved. Otherwise it records the activity of both the app and
// the session.
func (b *Broker) requireConnected(ctx context.Context, origin string) error {
	app, err := b.apps.GetApp(ctx, origin)
	if err != nil {
		if errors.Is(err, domain.ErrConnectedAppNotFound) {
			return domain.ErrNotConnected
		}
		return err
	}

	app.Touch()
	if err := b.apps.UpsertApp(ctx, *app); err != nil {
		log.WithError(err).Warn("failed to update connected app activity")
	}
	b.wallet.Session().Touch()
	return nil
}

func (b *Broker) connect(
	ctx context.Context, req domain.Request, payload domain.ConnectPayload,
) (interface{}, error) {
	if err := b.requireConnected(ctx, req.Origin); err == nil {
		return b.identity()
	} else if !errors.Is(err, domain.ErrNotConnected) {
		return nil, err
	}

	p, err := b.enqueueConnect(req, payload)
	if err != nil {
		return nil, err
	}
	return p.wait(ctx)
}

func (b *Broker) disconnect(ctx context.Context, origin string) (interface{}, error) {
	if err := b.apps.DeleteApp(ctx, origin); err != nil &&
		!errors.Is(err, domain.ErrConnectedAppNotFound) {
		return nil, err
	}
	b.events.Disconnected.Publish(pubsub.Disconnected{Origin: origin})

	log.WithField("origin", origin).Info("app disconnected")
	return disconnected{Disconnected: true}, nil
}

func (b *Broker) identity() (domain.Identity, error) {
	account, err := b.wallet.ActiveAccount()
	if err != nil {
		return domain.Identity{}, err
	}
	network, err := b.wallet.Network()
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		Address:   account.Address,
		PublicKey: hex.EncodeToString(account.PublicKey),
		Network:   network.Name,
	}, nil
}

func (b *Broker) publicKey() (interface{}, error) {
	account, err := b.wallet.ActiveAccount()
	if err != nil {
		return nil, err
	}
	return publicKey{PublicKey: hex.EncodeToString(account.PublicKey)}, nil
}

func (b *Broker) balance(ctx context.Context) (interface{}, error) {
	account, err := b.wallet.ActiveAccount()
	if err != nil {
		return nil, err
	}
	balance, err := b.ledger.GetBalance(ctx, account.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return balance, nil
}

func (b *Broker) network() (interface{}, error) {
	network, err := b.wallet.Network()
	if err != nil {
		return nil, err
	}
	return networkInfo{Network: network.Name, ChainID: network.ChainID}, nil
}
