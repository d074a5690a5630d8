package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	apiserver "github.com/uptend/dispatch/internal/api_server"
	"github.com/uptend/dispatch/internal/config"
	"github.com/uptend/dispatch/internal/events"
	"github.com/uptend/dispatch/internal/service"
	"github.com/uptend/dispatch/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatch api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer teardown()

		zap.S().Info("Starting dispatch service")
		defer zap.S().Info("Dispatch service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if cfg.Database.Type != "pgsql" {
			if err := s.InitialMigration(); err != nil {
				return fmt.Errorf("running initial migration: %w", err)
			}
		}

		writer, err := newEventWriter(cfg)
		if err != nil {
			return fmt.Errorf("creating event writer: %w", err)
		}
		producer := events.NewEventProducer(writer)
		defer func() {
			if err := producer.Close(); err != nil {
				zap.S().Errorw("failed to close event producer", "error", err)
			}
		}()

		dispatchSrv := service.NewDispatchService(s, producer, cfg.Dispatch)
		defer dispatchSrv.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		apiListener, err := newListener(cfg.Service.Address)
		if err != nil {
			return fmt.Errorf("creating listener: %w", err)
		}
		metricsListener, err := newListener(cfg.Service.MetricsAddress)
		if err != nil {
			return fmt.Errorf("creating metrics listener: %w", err)
		}
		metricServer, err := apiserver.NewMetricServer(cfg.Service.MetricsAddress, metricsListener, s)
		if err != nil {
			return fmt.Errorf("creating metrics server: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return apiserver.New(cfg, dispatchSrv, apiListener).Run(gctx)
		})
		g.Go(func() error {
			return metricServer.Run(gctx)
		})
		g.Go(func() error {
			return service.NewSweeper(dispatchSrv, cfg.Dispatch.SweepInterval).Run(gctx)
		})

		return g.Wait()
	},
}

func newEventWriter(cfg *config.Config) (events.Writer, error) {
	if cfg.Service.NotificationTarget == "" {
		zap.S().Info("no notification target configured, events are logged")
		return &events.StdoutWriter{}, nil
	}
	zap.S().Infow("delivering events", "target", cfg.Service.NotificationTarget)
	w, err := events.NewHTTPWriter(cfg.Service.NotificationTarget)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
