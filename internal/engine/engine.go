// Package engine wires the offline-first stack together: local store, remote
// gateway, connectivity monitor, repositories and queue processor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cajadev/caja/internal/config"
	"github.com/cajadev/caja/internal/connectivity"
	"github.com/cajadev/caja/internal/gateway"
	"github.com/cajadev/caja/internal/processor"
	"github.com/cajadev/caja/internal/repo"
	"github.com/cajadev/caja/internal/store"
)

// Engine owns one fully wired sync stack.
type Engine struct {
	Cfg       *config.Config
	Store     *store.Store
	Gateway   gateway.Gateway
	Monitor   *connectivity.Monitor
	Processor *processor.Processor
	Products  *repo.Products
	Sales     *repo.Sales
	Users     *repo.Users

	pgClose func()
}

// Open builds the engine for baseDir. A local store that cannot be opened
// degrades the engine to remote-only mode instead of failing.
func Open(ctx context.Context, baseDir string) (*Engine, error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(baseDir)
	if err != nil {
		slog.Error("local store unavailable, running remote-only", "err", err)
		st = nil
	}

	e := &Engine{Cfg: cfg, Store: st}

	switch {
	case cfg.PostgresDSN != "":
		pg, err := gateway.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres gateway: %w", err)
		}
		e.Gateway = pg
		e.pgClose = pg.Close
	case cfg.ServerURL != "":
		e.Gateway = gateway.NewHTTP(cfg.ServerURL, cfg.APIKey)
	default:
		// No remote configured: a throwaway in-memory gateway keeps the
		// engine functional for local-only use.
		e.Gateway = gateway.NewMemory()
	}

	var probe connectivity.Probe
	if prober, ok := e.Gateway.(gateway.Prober); ok {
		probe = prober.Health
	}
	e.Monitor = connectivity.New(probe, cfg.GetPollInterval())
	if probe != nil {
		// One synchronous probe so short-lived commands start with a real
		// connectivity verdict instead of assuming offline.
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		e.Monitor.SetOnline(probe(probeCtx) == nil)
		cancel()
	}

	e.Processor = processor.New(st, e.Gateway, e.Monitor)
	e.Products = repo.NewProducts(st, e.Gateway, e.Monitor, e.Processor.Kick)
	e.Sales = repo.NewSales(st, e.Gateway, e.Monitor, e.Processor.Kick, e.Products)
	e.Users = repo.NewUsers(st, e.Gateway, e.Monitor, e.Processor.Kick)

	ttl := cfg.GetCacheTTL()
	e.Products.SetTTL(ttl)
	e.Sales.SetTTL(ttl)
	e.Users.SetTTL(ttl)

	e.Products.Initialize(ctx)
	e.Sales.Initialize(ctx)
	e.Users.Initialize(ctx)

	return e, nil
}

// StartBackground launches the connectivity poller and the processor run
// loop. Used by the long-running watch mode; one-shot commands drain inline.
func (e *Engine) StartBackground(ctx context.Context) {
	e.Monitor.Start(ctx)
	go e.Processor.Run(ctx, e.Cfg.GetSyncInterval())
}

// Close releases the store and any gateway resources.
func (e *Engine) Close() {
	e.Monitor.Stop()
	if e.pgClose != nil {
		e.pgClose()
	}
	if err := e.Store.Close(); err != nil {
		slog.Warn("close store", "err", err)
	}
}

// PendingCount returns the aggregate queue depth.
func (e *Engine) PendingCount() int {
	n, err := e.Store.CountQueue()
	if err != nil {
		slog.Warn("count queue", "err", err)
	}
	return n
}

// SyncStatus renders the operator-visible sync state.
func (e *Engine) SyncStatus() string {
	syncing := e.Processor.IsSyncing() ||
		e.Products.IsSyncing() || e.Sales.IsSyncing() || e.Users.IsSyncing()
	return processor.Status(e.Monitor.IsOnline(), syncing, e.PendingCount())
}

// ForceSync drains pending mutations first so the subsequent pulls reflect
// them, then pulls every repository regardless of TTL.
func (e *Engine) ForceSync(ctx context.Context) error {
	e.Processor.Drain(ctx)
	return errors.Join(
		e.Products.ForceSync(ctx),
		e.Sales.ForceSync(ctx),
		e.Users.ForceSync(ctx),
	)
}

// Drain runs one inline drain pass. Used by one-shot commands after writes.
func (e *Engine) Drain(ctx context.Context) processor.DrainResult {
	return e.Processor.Drain(ctx)
}
