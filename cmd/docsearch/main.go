// docsearch hosts per-tenant documentation indexes behind an HTTP JSON
// API, with one-shot audit, sync and search commands for operators.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/docsearch/internal/config"
)

var CLI struct {
	Config  string `short:"c" help:"Deployment configuration file path" default:"config.json"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
		Addr string `help:"Listen address override (defaults to :<mcp_port>)"`
	} `cmd:"" help:"Start the multi-tenant search service"`

	Audit struct {
		Tenant  string `short:"t" help:"Restrict the audit to a single tenant"`
		Rebuild bool   `help:"Rebuild segments whose fingerprint no longer matches"`
	} `cmd:"" help:"Verify persisted search segments against the document trees"`

	Sync struct {
		Tenant        string `arg:"" help:"Tenant codename"`
		ForceCrawler  bool   `help:"Re-run crawler discovery even when a sitemap exists"`
		ForceFullSync bool   `help:"Refetch documents inside the minimum fetch interval"`
	} `cmd:"" help:"Run one sync cycle for a tenant and exit"`

	Search struct {
		Tenant     string `arg:"" help:"Tenant codename"`
		Query      string `arg:"" help:"Search query"`
		MaxResults int    `short:"n" default:"20" help:"Maximum number of results"`
		WordMatch  bool   `help:"Require whole-word matches"`
	} `cmd:"" help:"Run a one-shot search against a tenant index"`
}

func main() {
	// Auth tokens and exporter settings may live in a local .env file.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Infrastructure.LogLevel, CLI.Verbose)

	switch ctx.Command() {
	case "serve":
		if err := runServe(cfg, CLI.Serve.Addr); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	case "audit":
		os.Exit(runAudit(cfg, CLI.Audit.Tenant, CLI.Audit.Rebuild))
	case "sync <tenant>":
		if err := runSync(cfg, CLI.Sync.Tenant, CLI.Sync.ForceCrawler, CLI.Sync.ForceFullSync); err != nil {
			slog.Error("sync failed", "error", err)
			os.Exit(1)
		}
	case "search <tenant> <query>":
		if err := runSearch(cfg, CLI.Search.Tenant, CLI.Search.Query, CLI.Search.MaxResults, CLI.Search.WordMatch); err != nil {
			slog.Error("search failed", "error", err)
			os.Exit(1)
		}
	}
}

func setupLogging(configured string, verbose bool) {
	level := slog.LevelInfo
	switch configured {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
