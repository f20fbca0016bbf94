// Package processor drains the durable sync queue against the remote
// gateway: single-flight, strict FIFO, bounded retries, drop-and-log when
// the budget is exhausted.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cajadev/caja/internal/connectivity"
	"github.com/cajadev/caja/internal/gateway"
	"github.com/cajadev/caja/internal/models"
	"github.com/cajadev/caja/internal/store"
	"github.com/cajadev/caja/pkg/backoff"
	"github.com/cajadev/caja/pkg/metrics"
)

// DefaultMaxRetries is the per-item retry budget. An item that fails this
// many push attempts is dropped.
const DefaultMaxRetries = 3

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Pushed  int
	Failed  int
	Dropped int
	Skipped bool // another drain was running, or offline
}

// Processor is the single-flight sync queue consumer.
type Processor struct {
	store      *store.Store
	gw         gateway.Gateway
	mon        *connectivity.Monitor
	maxRetries int

	syncing atomic.Bool
	kick    chan struct{}
	retry   *backoff.Backoff

	mu          sync.Mutex
	lastDrainAt *time.Time
}

// New creates a processor and registers it for the monitor's became-online
// event so reconnects immediately trigger a drain.
func New(st *store.Store, gw gateway.Gateway, mon *connectivity.Monitor) *Processor {
	p := &Processor{
		store:      st,
		gw:         gw,
		mon:        mon,
		maxRetries: DefaultMaxRetries,
		kick:       make(chan struct{}, 1),
		retry:      backoff.New(2*time.Second, time.Minute, 2.0),
	}
	if mon != nil {
		mon.OnOnline(p.Kick)
	}
	return p
}

// SetMaxRetries overrides the retry budget.
func (p *Processor) SetMaxRetries(n int) { p.maxRetries = n }

// Kick requests a drain. Non-blocking; a kick while one is already pending
// coalesces into it.
func (p *Processor) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// IsSyncing reports whether a drain pass is in flight.
func (p *Processor) IsSyncing() bool {
	return p.syncing.Load()
}

// LastDrainAt returns when the last drain pass completed, or nil.
func (p *Processor) LastDrainAt() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDrainAt
}

// Run services kicks and a coarse safety-net timer until ctx is cancelled.
// A pass that still left failures behind schedules its own retry kick on a
// jittered backoff; a clean pass resets the schedule.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		case <-ticker.C:
		}

		res := p.Drain(ctx)
		if res.Failed > 0 {
			wait := p.retry.Next()
			slog.Debug("drain left failures, scheduling retry", "failed", res.Failed, "wait", wait)
			go func() {
				select {
				case <-ctx.Done():
				case <-time.After(wait):
					p.Kick()
				}
			}()
		} else if !res.Skipped {
			p.retry.Reset()
		}
	}
}

// Drain processes the current queue snapshot in FIFO order. It is a no-op
// while offline or while another drain is running; the next trigger picks up
// whatever remains.
func (p *Processor) Drain(ctx context.Context) DrainResult {
	if !p.syncing.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}
	}
	defer p.syncing.Store(false)

	if p.mon != nil && !p.mon.IsOnline() {
		return DrainResult{Skipped: true}
	}

	start := time.Now()
	defer func() {
		metrics.DrainDuration.Observe(time.Since(start).Seconds())
	}()

	items, err := p.store.ListQueue()
	if err != nil {
		slog.Warn("list sync queue", "err", err)
		return DrainResult{Skipped: true}
	}

	var res DrainResult
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := p.push(ctx, item); err != nil {
			p.recordFailure(item, err, &res)
			continue
		}
		if err := p.store.RemoveFromQueue(item.ID); err != nil {
			slog.Warn("remove synced queue item", "id", item.ID, "err", err)
		}
		metrics.ItemsPushed.WithLabelValues("success", string(item.EntityType)).Inc()
		res.Pushed++
	}

	now := time.Now()
	p.mu.Lock()
	p.lastDrainAt = &now
	p.mu.Unlock()

	if n, err := p.store.CountQueue(); err == nil {
		metrics.QueueBacklog.Set(float64(n))
	}
	if res.Pushed > 0 || res.Failed > 0 || res.Dropped > 0 {
		slog.Info("drain pass complete",
			"pushed", res.Pushed, "failed", res.Failed, "dropped", res.Dropped)
	}
	return res
}

// push applies one queue item through the gateway.
func (p *Processor) push(ctx context.Context, item models.SyncQueueItem) error {
	table := item.EntityType.Table()
	switch item.Action {
	case models.ActionCreate, models.ActionUpdate:
		return p.gw.Upsert(ctx, table, item.Payload)
	case models.ActionDelete:
		var del models.DeletePayload
		if err := json.Unmarshal(item.Payload, &del); err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		return p.gw.Delete(ctx, table, del.ID)
	}
	return fmt.Errorf("unknown queue action %q", item.Action)
}

// recordFailure increments the item's retry count, dropping it once the
// budget is exhausted. Retries only ever increase, and only here.
func (p *Processor) recordFailure(item models.SyncQueueItem, pushErr error, res *DrainResult) {
	item.Retries++
	metrics.ItemsPushed.WithLabelValues("error", string(item.EntityType)).Inc()

	if item.Retries >= p.maxRetries {
		// Out of budget. The local cache keeps the mutation; the remote
		// store never sees it. Mark the record dirty for manual review.
		if err := p.store.RemoveFromQueue(item.ID); err != nil {
			slog.Warn("remove dropped queue item", "id", item.ID, "err", err)
		}
		p.markDirty(item)
		metrics.ItemsDropped.WithLabelValues(string(item.EntityType)).Inc()
		slog.Error("dropping mutation after exhausted retries",
			"id", item.ID, "entity", item.EntityType, "action", item.Action,
			"retries", item.Retries, "err", pushErr)
		res.Dropped++
		return
	}

	if err := p.store.UpdateQueueItem(item); err != nil {
		slog.Warn("persist queue item retry count", "id", item.ID, "err", err)
	}
	slog.Warn("push failed, will retry",
		"id", item.ID, "entity", item.EntityType, "retries", item.Retries, "err", pushErr)
	res.Failed++
}

// markDirty flags the affected local record after a drop. Deletes have no
// surviving record to flag.
func (p *Processor) markDirty(item models.SyncQueueItem) {
	if item.Action == models.ActionDelete {
		return
	}
	id, err := gateway.RecordID(item.Payload)
	if err != nil {
		return
	}
	if err := p.store.MarkDirty(item.EntityType, id); err != nil {
		slog.Warn("mark record dirty", "entity", item.EntityType, "id", id, "err", err)
	}
}

// Status renders the operator-visible sync state.
func Status(online, syncing bool, pending int) string {
	switch {
	case !online:
		return "Offline"
	case syncing:
		return "Syncing…"
	case pending > 0:
		return fmt.Sprintf("%d pending", pending)
	default:
		return "Synced"
	}
}
