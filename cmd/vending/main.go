package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/vending/internal/bus"
	"github.com/iurnickita/vending/internal/config"
	"github.com/iurnickita/vending/internal/handler"
	"github.com/iurnickita/vending/internal/lock"
	"github.com/iurnickita/vending/internal/logger"
	"github.com/iurnickita/vending/internal/service"
	"github.com/iurnickita/vending/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	locker, closeLocker, err := lock.NewLocker(ctx, cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocker()

	publisher, closePublisher, err := bus.NewPublisher(cfg.Bus)
	if err != nil {
		return err
	}
	defer closePublisher()

	service, err := service.NewService(cfg.Service, store, locker, publisher, zaplog)
	if err != nil {
		return err
	}

	zaplog.Info("vending machine ready",
		zap.String("machine", cfg.Service.MachineID),
		zap.Bool("postgres", cfg.Store.DBDsn != ""),
		zap.String("lock", cfg.Lock.Provider),
		zap.Bool("nats", cfg.Bus.NatsURL != ""),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Serve(ctx, cfg.Handler, service, zaplog)
	})
	g.Go(func() error {
		<-ctx.Done()
		zaplog.Info("shutting down")
		return nil
	})
	return g.Wait()
}
