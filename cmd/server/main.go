// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Command server runs the recognition gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gomuseum/gateway/internal/api"
	"github.com/gomuseum/gateway/internal/cache"
	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/fallback"
	"github.com/gomuseum/gateway/internal/gateway"
	"github.com/gomuseum/gateway/internal/logging"
	"github.com/gomuseum/gateway/internal/registry"
	"github.com/gomuseum/gateway/internal/selector"
	"github.com/gomuseum/gateway/internal/stats"
	"github.com/gomuseum/gateway/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Err(err).Msg("gateway exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Int("models", len(cfg.Models)).
		Str("tier2_backend", cfg.Cache.Tier2.Backend).
		Msg("starting recognition gateway")

	store, err := cache.NewStore(cfg.Cache.Tier2)
	if err != nil {
		return fmt.Errorf("initializing tier-2 cache: %w", err)
	}
	cacheMgr := cache.NewManager(cfg.Cache, store, cfg.Server.IsProduction())
	defer func() {
		if err := cacheMgr.Close(); err != nil {
			logging.Warn().Err(err).Msg("cache close failed")
		}
	}()

	reg, err := registry.BuildFromConfig(cfg.Models, &http.Client{})
	if err != nil {
		return fmt.Errorf("building model registry: %w", err)
	}

	monitor := stats.NewMonitor(cfg.Stats, reg)
	sel := selector.New(cfg.Selector, reg, monitor)
	chain := fallback.New(cfg.Fallback, reg, monitor)

	var quota gateway.QuotaService
	if cfg.Quota.Enabled {
		quota = gateway.NewMemoryQuota(cfg.Quota)
	}

	svc := gateway.New(*cfg, cacheMgr, reg, sel, chain, monitor, quota)
	router := api.NewRouter(svc, *cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	sup := supervisor.NewRoot("gomuseum-gateway")
	sup.Add(supervisor.NewHTTPService(addr, router, cfg.Server.Timeout))
	sup.Add(cache.NewSweeper(cacheMgr, cfg.Cache.Tier1.SweepInterval))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = sup.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("recognition gateway stopped")
	return nil
}
