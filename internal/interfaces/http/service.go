package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application"
	"github.com/vaultgate/vaultgate/internal/interfaces"
	"github.com/vaultgate/vaultgate/internal/interfaces/http/permissions"
	"github.com/vaultgate/vaultgate/pkg/macaroons"
	"gopkg.in/macaroon-bakery.v2/bakery"
)

const (
	shutdownTimeout = 5 * time.Second

	// Location is used as the macaroon's location hint. This is not verified
	// as part of the macaroons itself.
	Location = "vaultgate"
	// DBLocation is the subdirectory of the macaroons datadir holding the
	// root key db.
	DBLocation = "db"
	// AdminMacaroonFile is the name of the admin macaroon.
	AdminMacaroonFile = "admin.macaroon"
	// ReadOnlyMacaroonFile is the name of the read-only macaroon.
	ReadOnlyMacaroonFile = "readonly.macaroon"
)

// Macaroons maps the macaroon files generated at start to their permissions.
var Macaroons = map[string][]bakery.Op{
	AdminMacaroonFile:    permissions.AdminPermissions(),
	ReadOnlyMacaroonFile: permissions.ReadOnlyPermissions(),
}

type ServiceOpts struct {
	Address     string
	TokenSecret []byte
	Gatherer    prometheus.Gatherer

	// MacaroonsDatadir is where the root key db and the macaroon files live.
	// An empty dir keeps the root keys in memory and writes no file.
	MacaroonsDatadir string
	NoMacaroons      bool

	UnlockerSvc application.UnlockerService
	BrokerSvc   application.BrokerService
}

func (o ServiceOpts) validate() error {
	if o.Address == "" {
		return fmt.Errorf("missing listening address")
	}
	if o.UnlockerSvc == nil {
		return fmt.Errorf("unlocker app service must not be null")
	}
	if o.BrokerSvc == nil {
		return fmt.Errorf("broker app service must not be null")
	}
	if !o.NoMacaroons && o.MacaroonsDatadir != "" {
		adminMacExists := pathExists(
			filepath.Join(o.MacaroonsDatadir, AdminMacaroonFile),
		)
		roMacExists := pathExists(
			filepath.Join(o.MacaroonsDatadir, ReadOnlyMacaroonFile),
		)
		if adminMacExists != roMacExists {
			return fmt.Errorf(
				"all macaroons must be either existing or not in path %s",
				o.MacaroonsDatadir,
			)
		}
	}
	return nil
}

func (o ServiceOpts) dbDatadir() string {
	if o.MacaroonsDatadir == "" {
		return ""
	}
	return filepath.Join(o.MacaroonsDatadir, DBLocation)
}

// Service is the operator interface, an HTTP server exposing the wallet
// lifecycle and the approval queue.
type Service interface {
	interfaces.Service
	Addr() net.Addr
}

type service struct {
	opts        ServiceOpts
	macaroonSvc *macaroons.Service
	lock        sync.Mutex
	server      *http.Server
	lis         net.Listener
	closed      bool
}

func NewService(opts ServiceOpts) (Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %s", err)
	}

	var macaroonSvc *macaroons.Service
	if !opts.NoMacaroons {
		svc, err := macaroons.NewService(opts.dbDatadir(), Location, log.New())
		if err != nil {
			return nil, err
		}
		if opts.MacaroonsDatadir != "" {
			if err := genMacaroons(
				context.Background(), svc, opts.MacaroonsDatadir,
			); err != nil {
				svc.Close()
				return nil, fmt.Errorf("failed to generate macaroons: %w", err)
			}
		}
		macaroonSvc = svc
	} else {
		log.Warn("macaroons disabled, the operator interface is not authenticated")
	}

	return &service{opts: opts, macaroonSvc: macaroonSvc}, nil
}

func (s *service) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return fmt.Errorf("operator interface stopped")
	}
	if s.server != nil {
		return fmt.Errorf("operator interface already started")
	}

	lis, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}
	s.lis = lis
	var validator MacaroonValidator
	if s.withMacaroons() {
		validator = s.macaroonSvc
	}
	s.server = &http.Server{
		Handler: NewHandler(
			s.opts.UnlockerSvc, s.opts.BrokerSvc, validator,
			s.opts.TokenSecret, s.opts.Gatherer,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(server *http.Server) {
		if err := server.Serve(lis); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("operator interface stopped unexpectedly")
		}
	}(s.server)

	log.Infof("operator interface is listening on %s", lis.Addr())
	return nil
}

func (s *service) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to gracefully stop operator interface")
		}
		s.server = nil
		log.Info("operator interface stopped")
	}

	if s.withMacaroons() && !s.closed {
		if err := s.macaroonSvc.Close(); err != nil {
			log.WithError(err).Warn("failed to close macaroon db")
		}
		log.Debug("stopped macaroon service")
	}
	s.closed = true
}

func (s *service) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

func (s *service) withMacaroons() bool {
	return s.macaroonSvc != nil
}
