// Package connectivity tracks whether the remote store is reachable and
// notifies listeners exactly once per offline-to-online transition.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cajadev/caja/pkg/metrics"
)

// Probe answers whether the remote store is currently reachable.
type Probe func(ctx context.Context) error

// Monitor polls a reachability probe at a bounded interval and exposes an
// online/offline signal. Listener callbacks fire on the offline-to-online
// edge only, never on repeated successful checks.
type Monitor struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration

	online atomic.Bool

	mu        sync.Mutex
	listeners []func()
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a monitor that starts in the offline state. The first
// successful probe (or SetOnline) flips it online and fires listeners.
func New(probe Probe, interval time.Duration) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// IsOnline reports the current connectivity state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// OnOnline registers a callback fired once per offline-to-online transition.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetOnline overrides the connectivity state, firing listeners when the
// change is an offline-to-online edge. Repeated calls with the same state
// are debounced into nothing.
func (m *Monitor) SetOnline(online bool) {
	was := m.online.Swap(online)
	if was == online {
		return
	}
	if online {
		metrics.Online.Set(1)
		slog.Info("connectivity restored")
		m.fire()
	} else {
		metrics.Online.Set(0)
		slog.Warn("connectivity lost")
	}
}

func (m *Monitor) fire() {
	m.mu.Lock()
	listeners := make([]func(), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Start launches the polling loop. It probes immediately, then on every tick.
// No-op when the monitor has no probe (tests drive state via SetOnline).
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.check(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.probe(probeCtx)
	if err != nil && ctx.Err() != nil {
		return // shutting down, not a connectivity verdict
	}
	m.SetOnline(err == nil)
}
