package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"git.home.luguber.info/inful/docsearch/internal/config"
	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/metrics"
)

// Registry maps codenames to runtimes. The map is built once at startup
// and read-only afterwards, so lookups need no lock.
type Registry struct {
	runtimes map[string]*Runtime
	logger   *slog.Logger
}

// NewRegistry builds a runtime per configured tenant.
func NewRegistry(cfg *config.Config, rec metrics.Recorder, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := &Registry{runtimes: make(map[string]*Runtime, len(cfg.Tenants)), logger: logger}
	for _, tc := range cfg.Tenants {
		rt, err := New(tc, cfg.Infrastructure, rec, logger)
		if err != nil {
			reg.shutdownBuilt()
			return nil, fmt.Errorf("build tenant %s: %w", tc.Codename, err)
		}
		reg.runtimes[tc.Codename] = rt
	}
	return reg, nil
}

func (g *Registry) shutdownBuilt() {
	for _, rt := range g.runtimes {
		_ = rt.Shutdown(context.Background())
	}
}

// Get resolves a codename to its runtime.
func (g *Registry) Get(codename string) (*Runtime, error) {
	rt, ok := g.runtimes[codename]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("tenant %q", codename))
	}
	return rt, nil
}

// Codenames lists configured tenants in stable order.
func (g *Registry) Codenames() []string {
	names := make([]string, 0, len(g.runtimes))
	for name := range g.runtimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitializeAll brings every tenant up. A tenant that fails to
// initialize is logged and skipped; the service starts with the rest.
func (g *Registry) InitializeAll(ctx context.Context) {
	for _, name := range g.Codenames() {
		rt := g.runtimes[name]
		if err := rt.Initialize(ctx); err != nil {
			g.logger.Error("tenant initialization failed", logfields.Tenant(name), logfields.Error(err))
		}
	}
}

// ShutdownAll stops every tenant and returns the first error seen.
func (g *Registry) ShutdownAll(ctx context.Context) error {
	var first error
	for _, name := range g.Codenames() {
		if err := g.runtimes[name].Shutdown(ctx); err != nil {
			g.logger.Warn("tenant shutdown", logfields.Tenant(name), logfields.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// AggregateHealth snapshots every tenant for the dashboard endpoint.
func (g *Registry) AggregateHealth(ctx context.Context) []Health {
	out := make([]Health, 0, len(g.runtimes))
	for _, name := range g.Codenames() {
		out = append(out, g.runtimes[name].Health(ctx))
	}
	return out
}
