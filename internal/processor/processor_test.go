package processor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cajadev/caja/internal/connectivity"
	"github.com/cajadev/caja/internal/gateway"
	"github.com/cajadev/caja/internal/models"
	"github.com/cajadev/caja/internal/store"
)

func setupProcessor(t *testing.T, online bool) (*Processor, *store.Store, *gateway.Memory, *connectivity.Monitor) {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	st, err := store.OpenDB(conn)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gw := gateway.NewMemory()
	mon := connectivity.New(nil, time.Second)
	mon.SetOnline(online)
	return New(st, gw, mon), st, gw, mon
}

func enqueue(t *testing.T, st *store.Store, id string, entity models.EntityType, action models.SyncAction, payload string) {
	t.Helper()
	err := st.Enqueue(models.SyncQueueItem{
		ID:         id,
		EntityType: entity,
		Action:     action,
		Payload:    json.RawMessage(payload),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", id, err)
	}
}

func TestDrainPushesQueueInOrder(t *testing.T) {
	p, st, gw, _ := setupProcessor(t, true)
	enqueue(t, st, "q1", models.EntityProduct, models.ActionCreate, `{"id":"p1","stock":10}`)
	enqueue(t, st, "q2", models.EntityProduct, models.ActionUpdate, `{"id":"p1","stock":8}`)
	enqueue(t, st, "q3", models.EntitySale, models.ActionCreate, `{"id":"s1"}`)
	enqueue(t, st, "q4", models.EntityProduct, models.ActionDelete, `{"id":"p2"}`)

	res := p.Drain(context.Background())
	if res.Pushed != 4 || res.Failed != 0 || res.Dropped != 0 {
		t.Fatalf("drain result: %+v", res)
	}

	want := []gateway.Call{
		{Method: "upsert", Table: "productos", ID: "p1"},
		{Method: "upsert", Table: "productos", ID: "p1"},
		{Method: "upsert", Table: "ventas", ID: "s1"},
		{Method: "delete", Table: "productos", ID: "p2"},
	}
	got := gw.Calls()
	if len(got) != len(want) {
		t.Fatalf("gateway calls: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %+v, want %+v", i, got[i], want[i])
		}
	}

	if n, _ := st.CountQueue(); n != 0 {
		t.Errorf("queue not empty after clean drain: %d left", n)
	}
	if p.LastDrainAt() == nil {
		t.Error("lastDrainAt not recorded")
	}
}

func TestOfflineDrainTouchesNothing(t *testing.T) {
	p, st, gw, _ := setupProcessor(t, false)
	enqueue(t, st, "q1", models.EntityProduct, models.ActionCreate, `{"id":"p1"}`)

	res := p.Drain(context.Background())
	if !res.Skipped {
		t.Fatalf("offline drain should skip, got %+v", res)
	}
	if calls := gw.Calls(); len(calls) != 0 {
		t.Errorf("offline drain reached the gateway: %v", calls)
	}
	if n, _ := st.CountQueue(); n != 1 {
		t.Errorf("offline drain consumed the queue: %d left", n)
	}
	items, _ := st.ListQueue()
	if items[0].Retries != 0 {
		t.Errorf("offline drain incremented retries: %d", items[0].Retries)
	}
}

func TestReconnectDrainsQueuedMutations(t *testing.T) {
	p, st, gw, mon := setupProcessor(t, false)
	enqueue(t, st, "q1", models.EntitySale, models.ActionCreate, `{"id":"s1"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, time.Hour)

	// Connectivity restored: the became-online event must kick a drain.
	mon.SetOnline(true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := st.CountQueue(); n == 0 {
			if rec := gw.Records("ventas")["s1"]; rec == nil {
				t.Fatal("queue drained but sale never reached the remote table")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never drained after reconnect; calls: %v", gw.Calls())
}

func TestFailureIncrementsRetriesAndKeepsItem(t *testing.T) {
	p, st, gw, _ := setupProcessor(t, true)
	enqueue(t, st, "q1", models.EntityProduct, models.ActionUpdate, `{"id":"p1","stock":8}`)
	gw.FailNext(1, errors.New("remote 500"))

	res := p.Drain(context.Background())
	if res.Failed != 1 || res.Dropped != 0 {
		t.Fatalf("drain result: %+v", res)
	}
	items, _ := st.ListQueue()
	if len(items) != 1 || items[0].Retries != 1 {
		t.Fatalf("queue after failure: %+v", items)
	}

	// Next pass succeeds and clears it.
	res = p.Drain(context.Background())
	if res.Pushed != 1 {
		t.Fatalf("second drain: %+v", res)
	}
	if n, _ := st.CountQueue(); n != 0 {
		t.Errorf("queue not empty: %d", n)
	}
}

func TestExhaustedRetriesDropAndMarkDirty(t *testing.T) {
	p, st, gw, _ := setupProcessor(t, true)
	if err := st.Put(models.EntityProduct, "p1", json.RawMessage(`{"id":"p1","stock":8}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	enqueue(t, st, "q1", models.EntityProduct, models.ActionUpdate, `{"id":"p1","stock":8}`)
	gw.FailNext(100, errors.New("remote down"))

	for i := 1; i < DefaultMaxRetries; i++ {
		res := p.Drain(context.Background())
		if res.Failed != 1 {
			t.Fatalf("pass %d: %+v", i, res)
		}
	}
	res := p.Drain(context.Background())
	if res.Dropped != 1 || res.Failed != 0 {
		t.Fatalf("final pass should drop: %+v", res)
	}
	if n, _ := st.CountQueue(); n != 0 {
		t.Errorf("dropped item still queued: %d", n)
	}
	if n, _ := st.CountDirty(models.EntityProduct); n != 1 {
		t.Errorf("dirty count after drop: got %d, want 1", n)
	}

	// Exactly maxRetries attempts reached the gateway, never a fourth.
	if calls := gw.Calls(); len(calls) != DefaultMaxRetries {
		t.Errorf("gateway attempts: got %d, want %d", len(calls), DefaultMaxRetries)
	}
	res = p.Drain(context.Background())
	if res.Pushed != 0 || res.Failed != 0 || res.Dropped != 0 {
		t.Errorf("drain after drop should be empty: %+v", res)
	}
}

func TestDroppedDeleteLeavesNoDirtyRecord(t *testing.T) {
	p, st, gw, _ := setupProcessor(t, true)
	enqueue(t, st, "q1", models.EntityProduct, models.ActionDelete, `{"id":"p1"}`)
	gw.FailNext(100, errors.New("remote down"))

	for i := 0; i < DefaultMaxRetries; i++ {
		p.Drain(context.Background())
	}
	if n, _ := st.CountQueue(); n != 0 {
		t.Errorf("delete item still queued: %d", n)
	}
	if n, _ := st.CountDirty(models.EntityProduct); n != 0 {
		t.Errorf("dropped delete marked something dirty: %d", n)
	}
}

func TestFailureStopsLaterItemsFromSkippingAhead(t *testing.T) {
	p, st, gw, _ := setupProcessor(t, true)
	enqueue(t, st, "q1", models.EntityProduct, models.ActionUpdate, `{"id":"p1","stock":8}`)
	enqueue(t, st, "q2", models.EntityProduct, models.ActionUpdate, `{"id":"p1","stock":5}`)
	gw.FailNext(1, errors.New("remote 500"))

	res := p.Drain(context.Background())
	if res.Failed != 1 || res.Pushed != 1 {
		t.Fatalf("drain result: %+v", res)
	}

	// The failed head stays at the head; a later pass replays it before
	// anything newer.
	items, _ := st.ListQueue()
	if len(items) != 1 || items[0].ID != "q1" {
		t.Fatalf("queue after partial drain: %+v", items)
	}

	gw.FailNext(0, nil)
	p.Drain(context.Background())
	calls := gw.Calls()
	last := calls[len(calls)-1]
	if last.Method != "upsert" || last.ID != "p1" {
		t.Errorf("replayed call: %+v", last)
	}
	// Final remote state carries the later stock value: q2 pushed after q1
	// failed, then q1's stale update replayed. The queue is FIFO per pass,
	// not transactional across passes.
	if n, _ := st.CountQueue(); n != 0 {
		t.Errorf("queue not empty: %d", n)
	}
}

// blockingGateway parks the first Upsert until released, so a second drain
// can be attempted while one is provably in flight.
type blockingGateway struct {
	*gateway.Memory
	enter   chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingGateway) Upsert(ctx context.Context, table string, record json.RawMessage) error {
	b.once.Do(func() {
		close(b.enter)
		<-b.release
	})
	return b.Memory.Upsert(ctx, table, record)
}

func TestDrainIsSingleFlight(t *testing.T) {
	_, st, _, mon := setupProcessor(t, true)
	bg := &blockingGateway{
		Memory:  gateway.NewMemory(),
		enter:   make(chan struct{}),
		release: make(chan struct{}),
	}
	p := New(st, bg, mon)
	enqueue(t, st, "q1", models.EntityProduct, models.ActionCreate, `{"id":"p1"}`)

	first := make(chan DrainResult, 1)
	go func() { first <- p.Drain(context.Background()) }()

	<-bg.enter
	if !p.IsSyncing() {
		t.Error("IsSyncing false while a drain holds the gateway")
	}
	second := p.Drain(context.Background())
	if !second.Skipped {
		t.Fatalf("concurrent drain should skip, got %+v", second)
	}
	close(bg.release)

	res := <-first
	if res.Pushed != 1 {
		t.Fatalf("first drain: %+v", res)
	}
	if calls := bg.Calls(); len(calls) != 1 {
		t.Errorf("gateway calls: got %d, want 1", len(calls))
	}
}

func TestStatusStrings(t *testing.T) {
	cases := []struct {
		online, syncing bool
		pending         int
		want            string
	}{
		{false, false, 0, "Offline"},
		{false, true, 3, "Offline"},
		{true, true, 3, "Syncing…"},
		{true, false, 3, "3 pending"},
		{true, false, 0, "Synced"},
	}
	for _, tc := range cases {
		if got := Status(tc.online, tc.syncing, tc.pending); got != tc.want {
			t.Errorf("Status(%v, %v, %d) = %q, want %q", tc.online, tc.syncing, tc.pending, got, tc.want)
		}
	}
}

func TestUnknownActionFailsWithoutGatewayCall(t *testing.T) {
	p, st, gw, _ := setupProcessor(t, true)
	enqueue(t, st, "q1", models.EntityProduct, "replace", `{"id":"p1"}`)

	res := p.Drain(context.Background())
	if res.Failed != 1 {
		t.Fatalf("drain result: %+v", res)
	}
	if calls := gw.Calls(); len(calls) != 0 {
		t.Errorf("unknown action reached the gateway: %v", calls)
	}
}

func TestDrainBatchSizes(t *testing.T) {
	p, st, _, _ := setupProcessor(t, true)
	for i := 0; i < 25; i++ {
		enqueue(t, st, fmt.Sprintf("q%02d", i), models.EntitySale, models.ActionCreate,
			fmt.Sprintf(`{"id":"s%02d"}`, i))
	}
	res := p.Drain(context.Background())
	if res.Pushed != 25 {
		t.Fatalf("drain result: %+v", res)
	}
	if n, _ := st.CountQueue(); n != 0 {
		t.Errorf("queue not empty: %d", n)
	}
}
