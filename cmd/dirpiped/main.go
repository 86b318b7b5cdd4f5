// dirpiped assembles the directory mutation pipeline: connection pool,
// hook registry, change-diff engine, and trash interceptor, then runs
// until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dirpipe/dirpipe/internal/change"
	"github.com/dirpipe/dirpipe/internal/config"
	"github.com/dirpipe/dirpipe/internal/directory"
	"github.com/dirpipe/dirpipe/internal/hook"
	"github.com/dirpipe/dirpipe/internal/ldap"
	"github.com/dirpipe/dirpipe/internal/trash"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dirpiped: %v\n", err)
		os.Exit(1)
	}
}

// application holds the assembled pipeline for the daemon's lifetime.
// Pipeline is the operational surface consumed by in-process callers.
type application struct {
	cfg      *config.Config
	log      hclog.Logger
	client   ldap.Client
	pipeline *directory.Pipeline
	checker  *directory.ExistenceChecker
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := cfg.Logging.Logger("dirpiped")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := ldap.NewClient(log, cfg.Directory.ConnectionConfig())
	if err != nil {
		return fmt.Errorf("failed to create directory client: %w", err)
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to directory: %w", err)
	}
	log.Info("connected to directory", "base_dn", cfg.Directory.BaseDN)

	registry := hook.NewRegistry()
	runner := hook.NewRunner(registry, log)

	engine := change.NewEngine(client, change.NewStore(), runner, cfg.Change.Mappings(), log)
	engine.Register(registry)

	interceptor, err := trash.New(client, trash.Config{
		Branch:          cfg.Trash.Branch,
		WatchedBranches: cfg.Trash.WatchedBranches,
		AddMetadata:     cfg.Trash.AddMetadata,
		AutoCreate:      cfg.Trash.AutoCreate,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create trash interceptor: %w", err)
	}
	interceptor.Register(registry)

	registry.Seal()

	app := &application{
		cfg:      cfg,
		log:      log,
		client:   client,
		pipeline: directory.NewPipeline(client, runner, log),
		checker:  directory.NewExistenceChecker(client, cfg.Checker.MaxConcurrent, log),
	}

	log.Info("pipeline ready",
		"trash_branch", cfg.Trash.Branch,
		"watched_branches", len(cfg.Trash.WatchedBranches))

	return app.serve(ctx)
}

// serve verifies watched branches, then keeps the pool healthy until the
// context is cancelled.
func (a *application) serve(ctx context.Context) error {
	if branches := a.cfg.Trash.WatchedBranches; len(branches) > 0 {
		missing, err := a.checker.Missing(ctx, branches)
		switch {
		case err != nil:
			a.log.Warn("watched branch verification failed", "error", err)
		case len(missing) > 0:
			a.log.Warn("watched branches missing from directory", "dns", missing)
		}
	}

	ticker := time.NewTicker(a.cfg.Directory.HealthCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := a.client.Ping(ctx); err != nil {
				a.log.Warn("directory ping failed", "error", err)
				continue
			}
			stats := a.client.Stats()
			a.log.Debug("pool status", "idle", stats.Idle, "active", stats.Active, "errors", stats.Errors)
		}
	}
}
