package application

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application/broker"
	"github.com/vaultgate/vaultgate/internal/core/application/pubsub"
	"github.com/vaultgate/vaultgate/internal/core/application/session"
	"github.com/vaultgate/vaultgate/internal/core/application/vaultstore"
	"github.com/vaultgate/vaultgate/internal/core/application/wallet"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	dbbadger "github.com/vaultgate/vaultgate/internal/infrastructure/storage/db/badger"
	"github.com/vaultgate/vaultgate/internal/infrastructure/storage/db/inmemory"
	"github.com/vaultgate/vaultgate/pkg/securemem"
	walletcore "github.com/vaultgate/vaultgate/pkg/wallet"
)

const (
	DBBadger   = "badger"
	DBInMemory = "inmemory"
)

var (
	SupportedDBType = map[string]struct{}{
		DBBadger:   {},
		DBInMemory: {},
	}
)

// Config lazily builds and holds every application service. Services are
// created on first access and shared afterwards.
type Config struct {
	DBType string
	// DBConfig is the database directory for the badger backend.
	DBConfig interface{}

	Iterations      int
	Network         string
	Session         session.Config
	ApprovalTimeout time.Duration
	Ledger          ports.LedgerClient
	Registerer      prometheus.Registerer

	db       ports.DbManager
	store    *vaultstore.Service
	session  *session.Manager
	pubsub   *pubsub.Service
	wallet   *wallet.Service
	unlocker UnlockerService
	broker   BrokerService
}

// Validate builds the whole service graph and returns the first error
// encountered.
func (c *Config) Validate() error {
	if _, ok := SupportedDBType[c.DBType]; !ok {
		return fmt.Errorf("unsupported db type %s", c.DBType)
	}
	if c.Ledger == nil {
		return fmt.Errorf("missing ledger client")
	}
	if _, err := c.unlockerService(); err != nil {
		return err
	}
	if _, err := c.brokerService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) DbManager() ports.DbManager {
	db, _ := c.dbManager()
	return db
}

func (c *Config) VaultStore() *vaultstore.Service {
	svc, _ := c.vaultStore()
	return svc
}

func (c *Config) SessionManager() *session.Manager {
	svc, _ := c.sessionManager()
	return svc
}

func (c *Config) PubSubService() *pubsub.Service {
	return c.pubsubService()
}

func (c *Config) WalletService() *wallet.Service {
	svc, _ := c.walletService()
	return svc
}

func (c *Config) UnlockerService() UnlockerService {
	svc, _ := c.unlockerService()
	return svc
}

func (c *Config) BrokerService() BrokerService {
	svc, _ := c.brokerService()
	return svc
}

// Close settles the pending approvals, locks the session and releases the
// database.
func (c *Config) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.session != nil {
		c.session.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}

func (c *Config) dbManager() (ports.DbManager, error) {
	if c.db == nil {
		switch c.DBType {
		case DBBadger:
			datadir, ok := c.DBConfig.(string)
			if !ok || datadir == "" {
				return nil, fmt.Errorf("missing db directory")
			}
			db, err := dbbadger.NewDbManager(datadir, log.New())
			if err != nil {
				return nil, err
			}
			c.db = db
		case DBInMemory:
			c.db = inmemory.NewDbManager()
		default:
			return nil, fmt.Errorf("unsupported db type %s", c.DBType)
		}
	}
	return c.db, nil
}

func (c *Config) vaultStore() (*vaultstore.Service, error) {
	if c.store == nil {
		db, err := c.dbManager()
		if err != nil {
			return nil, err
		}
		network := c.Network
		if network == "" {
			network = walletcore.MainNet.Name
		}
		store, err := vaultstore.NewService(db.KVStore(), c.Iterations, network)
		if err != nil {
			return nil, err
		}
		c.store = store
	}
	return c.store, nil
}

func (c *Config) sessionManager() (*session.Manager, error) {
	if c.session == nil {
		store, err := c.vaultStore()
		if err != nil {
			return nil, err
		}
		sess, err := session.NewManager(store, securemem.New(), c.Session)
		if err != nil {
			return nil, err
		}
		c.session = sess
	}
	return c.session, nil
}

func (c *Config) pubsubService() *pubsub.Service {
	if c.pubsub == nil {
		c.pubsub = pubsub.NewService()
	}
	return c.pubsub
}

func (c *Config) walletService() (*wallet.Service, error) {
	if c.wallet == nil {
		store, err := c.vaultStore()
		if err != nil {
			return nil, err
		}
		sess, err := c.sessionManager()
		if err != nil {
			return nil, err
		}
		svc, err := wallet.NewService(store, sess, c.pubsubService())
		if err != nil {
			return nil, err
		}
		c.wallet = svc
	}
	return c.wallet, nil
}

func (c *Config) unlockerService() (UnlockerService, error) {
	if c.unlocker == nil {
		walletSvc, err := c.walletService()
		if err != nil {
			return nil, err
		}
		unlocker, err := NewUnlockerService(walletSvc, c.store)
		if err != nil {
			return nil, err
		}
		c.unlocker = unlocker
	}
	return c.unlocker, nil
}

func (c *Config) brokerService() (BrokerService, error) {
	if c.broker == nil {
		walletSvc, err := c.walletService()
		if err != nil {
			return nil, err
		}
		db, _ := c.dbManager()
		svc, err := NewBrokerService(broker.Config{
			Wallet:          walletSvc,
			Apps:            db.ConnectedAppRepository(),
			Ledger:          c.Ledger,
			Events:          c.pubsubService(),
			ApprovalTimeout: c.ApprovalTimeout,
			Registerer:      c.Registerer,
		})
		if err != nil {
			return nil, err
		}
		c.broker = svc
	}
	return c.broker, nil
}
