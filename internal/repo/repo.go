// Package repo implements the connectivity-aware entity repositories: reads
// come from an in-memory snapshot backed by the local store, revalidation
// pulls run in the background, and writes apply optimistically while a
// durable queue item carries them to the remote store.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cajadev/caja/internal/connectivity"
	"github.com/cajadev/caja/internal/gateway"
	"github.com/cajadev/caja/internal/models"
	"github.com/cajadev/caja/internal/store"
)

// DefaultTTL is the snapshot age beyond which a background revalidation pull
// is attempted.
const DefaultTTL = 5 * time.Minute

// ErrValidation marks caller-supplied data that violates a business rule.
// Validation failures surface synchronously and never touch the queue.
var ErrValidation = errors.New("validation failed")

// Entity is anything a repository can snapshot and queue.
type Entity interface {
	EntityID() string
}

// Repo is the shared stale-while-revalidate core. Typed repositories wrap it
// with their entity type, validation rules and bootstrap dataset.
type Repo[T Entity] struct {
	entity models.EntityType
	store  *store.Store
	gw     gateway.Gateway
	mon    *connectivity.Monitor
	kick   func()
	ttl    time.Duration
	nowFn  func() time.Time

	validate  func(action models.SyncAction, rec T) error
	bootstrap func() []T

	mu       sync.RWMutex
	snapshot []T
	lastSync *time.Time
	loading  bool

	pulling atomic.Bool
}

func newRepo[T Entity](entity models.EntityType, st *store.Store, gw gateway.Gateway, mon *connectivity.Monitor, kick func()) *Repo[T] {
	if kick == nil {
		kick = func() {}
	}
	return &Repo[T]{
		entity: entity,
		store:  st,
		gw:     gw,
		mon:    mon,
		kick:   kick,
		ttl:    DefaultTTL,
		nowFn:  time.Now,
		loading: true,
	}
}

// SetTTL overrides the revalidation TTL.
func (r *Repo[T]) SetTTL(ttl time.Duration) { r.ttl = ttl }

// Read returns the current in-memory snapshot. It never blocks on I/O and
// returns an empty slice before the first load.
func (r *Repo[T]) Read() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.snapshot))
	copy(out, r.snapshot)
	return out
}

// Get returns the snapshot record with the given id.
func (r *Repo[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.snapshot {
		if rec.EntityID() == id {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Initialize loads the local snapshot and publishes it, then decides in the
// background whether to revalidate. Fire-and-forget with respect to the
// caller: it returns as soon as the local snapshot is available.
func (r *Repo[T]) Initialize(ctx context.Context) {
	raws, err := r.store.GetAll(r.entity)
	if err != nil {
		slog.Warn("load local snapshot", "entity", r.entity, "err", err)
	}
	var snapshot []T
	for _, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("corrupt local snapshot record", "entity", r.entity, "err", err)
			continue
		}
		snapshot = append(snapshot, rec)
	}

	last, err := r.store.LastSyncAt(r.entity)
	if err != nil {
		slog.Warn("load sync state", "entity", r.entity, "err", err)
	}

	r.mu.Lock()
	r.snapshot = snapshot
	r.lastSync = last
	r.loading = false
	r.mu.Unlock()

	if r.stale() {
		go r.revalidate(ctx)
	}
}

// stale reports whether the snapshot age exceeds the TTL (or has never been
// synced at all).
func (r *Repo[T]) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync == nil || r.nowFn().Sub(*r.lastSync) > r.ttl
}

// revalidate pulls fresh data and republishes it. Offline pulls are skipped
// silently: the cached snapshot stays authoritative until reconnect. Errors
// never propagate; a failed pull leaves the snapshot in place.
func (r *Repo[T]) revalidate(ctx context.Context) {
	if r.mon != nil && !r.mon.IsOnline() {
		slog.Debug("offline, skipping revalidation", "entity", r.entity)
		return
	}
	if err := r.pull(ctx); err != nil {
		slog.Warn("background revalidation failed", "entity", r.entity, "err", err)
	}
}

// ForceSync unconditionally pulls from the remote store, replacing the
// snapshot and local store contents, regardless of TTL.
func (r *Repo[T]) ForceSync(ctx context.Context) error {
	return r.pull(ctx)
}

// pull is the single-flight remote fetch shared by revalidation and ForceSync.
func (r *Repo[T]) pull(ctx context.Context) error {
	if !r.pulling.CompareAndSwap(false, true) {
		return nil // a pull is already in flight
	}
	defer r.pulling.Store(false)

	raws, err := r.gw.SelectAll(ctx, r.entity.Table())
	if err != nil {
		return fmt.Errorf("pull %s: %w", r.entity.Table(), err)
	}

	if len(raws) == 0 && len(r.Read()) == 0 && r.bootstrap != nil {
		r.seed()
		return r.finishPull()
	}

	var snapshot []T
	records := make(map[string]json.RawMessage, len(raws))
	for _, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("skipping malformed remote record", "entity", r.entity, "err", err)
			continue
		}
		snapshot = append(snapshot, rec)
		records[rec.EntityID()] = raw
	}

	if err := r.store.ReplaceAll(r.entity, records); err != nil {
		slog.Warn("persist pulled snapshot", "entity", r.entity, "err", err)
	}

	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()

	return r.finishPull()
}

func (r *Repo[T]) finishPull() error {
	now := r.nowFn()
	if err := r.store.SetLastSyncAt(r.entity, now); err != nil {
		slog.Warn("persist sync state", "entity", r.entity, "err", err)
	}
	r.mu.Lock()
	r.lastSync = &now
	r.mu.Unlock()
	slog.Debug("snapshot revalidated", "entity", r.entity)
	return nil
}

// seed installs the built-in bootstrap dataset so a first run against an
// empty remote store never shows an empty screen.
func (r *Repo[T]) seed() {
	recs := r.bootstrap()
	records := make(map[string]json.RawMessage, len(recs))
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		records[rec.EntityID()] = raw
	}
	if err := r.store.ReplaceAll(r.entity, records); err != nil {
		slog.Warn("persist bootstrap data", "entity", r.entity, "err", err)
	}
	r.mu.Lock()
	r.snapshot = recs
	r.mu.Unlock()
	slog.Info("seeded bootstrap data", "entity", r.entity, "count", len(recs))
}

// Write validates the mutation, applies it optimistically to the snapshot and
// local store, queues it for the processor, and returns without waiting for
// remote confirmation.
func (r *Repo[T]) Write(action models.SyncAction, rec T) error {
	if r.validate != nil {
		if err := r.validate(action, rec); err != nil {
			return err
		}
	}

	var payload json.RawMessage
	var err error
	if action == models.ActionDelete {
		payload, err = json.Marshal(models.DeletePayload{ID: rec.EntityID()})
	} else {
		payload, err = json.Marshal(rec)
	}
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", r.entity, err)
	}

	r.apply(action, rec)

	if action == models.ActionDelete {
		if err := r.store.Delete(r.entity, rec.EntityID()); err != nil {
			slog.Warn("local delete failed", "entity", r.entity, "id", rec.EntityID(), "err", err)
		}
	} else {
		if err := r.store.Put(r.entity, rec.EntityID(), payload); err != nil {
			slog.Warn("local put failed", "entity", r.entity, "id", rec.EntityID(), "err", err)
		}
	}

	item := models.SyncQueueItem{
		ID:         uuid.NewString(),
		EntityType: r.entity,
		Action:     action,
		Payload:    payload,
		CreatedAt:  r.nowFn().UTC(),
	}
	if !r.store.Available() {
		// Remote-only degraded mode: no durable queue, push best-effort.
		go r.directPush(item)
		return nil
	}
	if err := r.store.Enqueue(item); err != nil {
		slog.Warn("enqueue failed", "entity", r.entity, "id", rec.EntityID(), "err", err)
	}
	r.kick()
	return nil
}

// apply mutates the in-memory snapshot.
func (r *Repo[T]) apply(action models.SyncAction, rec T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := rec.EntityID()
	for i, existing := range r.snapshot {
		if existing.EntityID() != id {
			continue
		}
		if action == models.ActionDelete {
			r.snapshot = append(r.snapshot[:i], r.snapshot[i+1:]...)
		} else {
			r.snapshot[i] = rec
		}
		return
	}
	if action != models.ActionDelete {
		r.snapshot = append(r.snapshot, rec)
	}
}

// directPush ships a mutation straight to the gateway when the local store is
// unavailable. Failures are logged; there is no queue to retry from.
func (r *Repo[T]) directPush(item models.SyncQueueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var err error
	if item.Action == models.ActionDelete {
		var del models.DeletePayload
		if err = json.Unmarshal(item.Payload, &del); err == nil {
			err = r.gw.Delete(ctx, item.EntityType.Table(), del.ID)
		}
	} else {
		err = r.gw.Upsert(ctx, item.EntityType.Table(), item.Payload)
	}
	if err != nil {
		slog.Error("remote-only push failed, mutation not durable",
			"entity", item.EntityType, "action", item.Action, "err", err)
	}
}

// LastSyncAt returns the time of the last successful pull, or nil.
func (r *Repo[T]) LastSyncAt() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync
}

// IsLoading reports whether the initial local load has not completed yet.
func (r *Repo[T]) IsLoading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// IsSyncing reports whether a revalidation pull is in flight.
func (r *Repo[T]) IsSyncing() bool {
	return r.pulling.Load()
}
