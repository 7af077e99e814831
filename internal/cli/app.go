// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeranaias/threadline/internal/cloud"
	"github.com/jeranaias/threadline/internal/config"
	"github.com/jeranaias/threadline/internal/logging"
	"github.com/jeranaias/threadline/internal/reconcile"
	"github.com/jeranaias/threadline/internal/storage"
	"github.com/jeranaias/threadline/internal/telemetry"
)

// app is everything a command needs, built from one Config.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	store    *storage.Store
	client   *cloud.Client
	rec      *reconcile.Reconciler
}

// newApp wires logging, metrics, the snapshot store, the API client and
// the reconciler. Close releases the store's persister.
func newApp(ctx context.Context, cfg *config.Config, verbose bool) (*app, error) {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logging.New(cfg.Log.Mode, level)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	a := &app{cfg: cfg, log: log}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics, err = telemetry.New(cfg.Metrics.Namespace, a.registry)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
	}

	persister, err := openPersister(ctx, cfg.Cache)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("cache backend %s: %w", cfg.Cache.Backend, err)}
	}
	storeOpts := []storage.Option{storage.WithLogger(log)}
	if persister != nil {
		storeOpts = append(storeOpts, storage.WithPersister(persister))
	}
	a.store = storage.NewStore(storeOpts...)

	a.client = cloud.NewClient(cfg.API.BaseURL).
		WithToken(cfg.API.Token).
		WithUserAgent(cfg.API.UserAgent).
		WithTimeout(cfg.API.Timeout()).
		WithMaxRetries(cfg.API.MaxRetries).
		WithMaxResponseSize(cfg.API.MaxResponseBytes).
		WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.Burst).
		WithLogger(log).
		WithMetrics(a.metrics)

	a.rec = reconcile.New(a.client, a.store, reconcile.Config{
		User:               cfg.API.User,
		RollbackScope:      reconcile.RollbackScope(cfg.Reconcile.RollbackScope),
		StreamTimeout:      cfg.API.StreamTimeout(),
		RefreshConcurrency: cfg.Reconcile.RefreshConcurrency,
	}, reconcile.WithLogger(log), reconcile.WithMetrics(a.metrics))

	return a, nil
}

// requireAPI fails fast when no base URL is configured.
func (a *app) requireAPI() error {
	if !a.client.IsConfigured() {
		return &ConfigError{Err: fmt.Errorf("%w: set api.base_url or %sBASE_URL", cloud.ErrNotConfigured, config.EnvPrefix)}
	}
	return nil
}

// Close flushes the logger and releases the persister.
func (a *app) Close() error {
	a.log.Sync()
	return a.store.Close()
}

// openPersister returns the snapshot backend selected by the config, or nil
// for the memory backend.
func openPersister(ctx context.Context, c config.CacheConfig) (storage.Persister, error) {
	switch c.Backend {
	case config.BackendMemory:
		return nil, nil

	case config.BackendFile:
		dir := c.Dir
		if dir == "" {
			home, err := config.ConfigDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(home, "threads")
		}
		return storage.NewFilePersisterWithDir(dir)

	case config.BackendSQLite:
		path := c.SQLitePath
		if path == "" {
			home, err := config.ConfigDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(home, "threads.db")
		}
		return storage.NewSQLitePersister(path)

	case config.BackendRedis:
		return storage.NewRedisPersister(ctx, c.RedisAddr, c.RedisPrefix, c.RedisTTL())

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// writeMetrics prints every gathered counter and histogram sample, one per
// line, sorted by name.
func (a *app) writeMetrics(w io.Writer) error {
	if a.registry == nil {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.3fs", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
