package cmd

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"trafficSOS/internal/components"
	"trafficSOS/internal/config"
)

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		components.SetupLogger("local").Error("load config failed", "err", err)
		return err
	}
	logger := components.SetupLogger(cfg.Env)

	comps, err := components.InitComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("could not init components", "err", err)
		return err
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := comps.HttpServer.Run(ctx); err != nil {
			logger.Error("http server failed", "err", err)
			stop()
		}
		logger.Info("http server stopped")
	}()
	go func() {
		defer wg.Done()
		comps.Dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		comps.Lifecycle.RunSweeper(ctx)
	}()

	<-ctx.Done()
	logger.Info("captured signal, initiating shutdown")

	wg.Wait()

	logger.Info("shutting down the services...")
	comps.ShutdownAll()
	logger.Info("gracefully shut down")

	return nil
}
