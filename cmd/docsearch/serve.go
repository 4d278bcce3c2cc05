package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docsearch/internal/api"
	"git.home.luguber.info/inful/docsearch/internal/config"
	"git.home.luguber.info/inful/docsearch/internal/metrics"
	"git.home.luguber.info/inful/docsearch/internal/tenant"
)

const shutdownTimeout = 30 * time.Second

func runServe(cfg *config.Config, addrOverride string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	promRegistry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(promRegistry)

	registry, err := tenant.NewRegistry(cfg, recorder, slog.Default())
	if err != nil {
		return err
	}
	registry.InitializeAll(ctx)

	addr := addrOverride
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Infrastructure.MCPPort)
	}
	server := api.NewServer(addr, registry, promRegistry, slog.Default())

	errChan := make(chan error, 1)
	go func() { errChan <- server.Start() }()

	select {
	case err := <-errChan:
		_ = registry.ShutdownAll(context.Background())
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := server.Shutdown(stopCtx); err != nil {
		slog.Warn("api shutdown", "error", err)
	}
	return registry.ShutdownAll(stopCtx)
}
