package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/docsearch/internal/config"
	"git.home.luguber.info/inful/docsearch/internal/metrics"
	"git.home.luguber.info/inful/docsearch/internal/tenant"
)

// runSync runs one sync cycle for a single tenant and exits.
func runSync(cfg *config.Config, codename string, forceCrawler, forceFullSync bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := tenant.NewRegistry(cfg, metrics.NoopRecorder{}, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = registry.ShutdownAll(context.Background()) }()

	rt, err := registry.Get(codename)
	if err != nil {
		return err
	}
	return rt.SyncNow(ctx, forceCrawler, forceFullSync)
}

// runSearch executes one query against a tenant's persisted index and
// prints the JSON response to stdout.
func runSearch(cfg *config.Config, codename, query string, maxResults int, wordMatch bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := tenant.NewRegistry(cfg, metrics.NoopRecorder{}, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = registry.ShutdownAll(context.Background()) }()

	rt, err := registry.Get(codename)
	if err != nil {
		return err
	}

	resp := rt.Search(ctx, query, maxResults, wordMatch)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
