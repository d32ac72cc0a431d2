package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/core/application"
	"github.com/vaultgate/vaultgate/internal/core/application/session"
	"github.com/vaultgate/vaultgate/internal/core/ports"
	"github.com/vaultgate/vaultgate/internal/infrastructure/ledger/httpledger"
	wstransport "github.com/vaultgate/vaultgate/internal/infrastructure/transport/websocket"
	httpinterface "github.com/vaultgate/vaultgate/internal/interfaces/http"
	"github.com/vaultgate/vaultgate/pkg/stats"
	"golang.org/x/sync/errgroup"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatal(err)
	}
	if err := config.InitConfig(flags); err != nil {
		log.Fatal(err)
	}

	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	datadir := config.GetDatadir()
	ledgerClient, err := httpledger.NewClient(
		config.GetString(config.LedgerURLKey),
		config.GetDuration(config.LedgerTimeoutKey),
	)
	if err != nil {
		log.WithError(err).Fatal("error while setting up ledger client")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	appConfig := &application.Config{
		DBType:     config.GetString(config.DBTypeKey),
		DBConfig:   filepath.Join(datadir, config.DbLocation),
		Iterations: config.GetInt(config.KDFIterationsKey),
		Network:    config.GetString(config.NetworkKey),
		Session: session.Config{
			InactivityTimeout: config.GetDuration(config.InactivityTimeoutKey),
			MaxFailedAttempts: config.GetInt(config.MaxFailedAttemptsKey),
			LockoutDuration:   config.GetDuration(config.LockoutDurationKey),
		},
		ApprovalTimeout: config.GetDuration(config.ApprovalTimeoutKey),
		Ledger:          ledgerClient,
		Registerer:      registry,
	}
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("error while setting up application services")
	}
	defer appConfig.Close()

	wsTransport, err := wstransport.NewTransport(wstransport.Config{
		Address:           config.GetString(config.WebsocketAddrKey),
		TokenSecret:       config.GetTokenSecret(),
		RequestsPerSecond: config.GetInt(config.RateLimitKey),
	})
	if err != nil {
		log.WithError(err).Fatal("error while setting up websocket transport")
	}
	operatorSvc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		Address:          config.GetString(config.OperatorAddrKey),
		TokenSecret:      config.GetTokenSecret(),
		Gatherer:         registry,
		MacaroonsDatadir: filepath.Join(datadir, config.MacaroonsLocation),
		NoMacaroons:      config.GetBool(config.NoMacaroonsKey),
		UnlockerSvc:      appConfig.UnlockerService(),
		BrokerSvc:        appConfig.BrokerService(),
	})
	if err != nil {
		log.WithError(err).Fatal("error while setting up operator interface")
	}

	transports := []ports.Transport{wsTransport}
	detach := make([]func(), 0, len(transports))
	for _, t := range transports {
		detach = append(detach, appConfig.PubSubService().ForwardTo(
			t, appConfig.DbManager().ConnectedAppRepository(),
		))
	}

	unsubscribe := appConfig.SessionManager().OnLock(func(reason session.LockReason) {
		log.WithField("reason", reason).Info("vault locked")
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.GetBool(config.EnableProfilerKey) {
		stats.Reporter{
			Gatherer: registry,
			DumpPath: filepath.Join(datadir, config.ProfilerLocation, "stats"),
			Interval: time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second,
		}.Start(ctx)
	}

	eg := &errgroup.Group{}
	for _, t := range transports {
		t := t
		eg.Go(func() error { return t.Start(appConfig.BrokerService()) })
	}
	eg.Go(operatorSvc.Start)
	if err := eg.Wait(); err != nil {
		stop(operatorSvc, transports, detach)
		log.WithError(err).Fatal("error while starting daemon")
	}
	log.Info("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down daemon")
	cancel()
	stop(operatorSvc, transports, detach)
	log.Info("exiting")
}

func stop(
	operatorSvc httpinterface.Service, transports []ports.Transport,
	detach []func(),
) {
	for _, fn := range detach {
		fn()
	}

	eg := &errgroup.Group{}
	eg.Go(func() error {
		operatorSvc.Stop()
		return nil
	})
	for _, t := range transports {
		t := t
		eg.Go(func() error {
			t.Stop()
			return nil
		})
	}
	// nolint
	eg.Wait()
}
