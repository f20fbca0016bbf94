package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cajadev/caja/internal/models"
)

func queueItem(id string, entity models.EntityType, action models.SyncAction) models.SyncQueueItem {
	return models.SyncQueueItem{
		ID:         id,
		EntityType: entity,
		Action:     action,
		Payload:    json.RawMessage(`{"id":"` + id + `"}`),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestQueueFIFO(t *testing.T) {
	st := setupStore(t)

	ids := []string{"q1", "q2", "q3"}
	for _, id := range ids {
		if err := st.Enqueue(queueItem(id, models.EntityProduct, models.ActionCreate)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	items, err := st.ListQueue()
	if err != nil {
		t.Fatalf("listQueue: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("listQueue: got %d items, want 3", len(items))
	}
	for i, item := range items {
		if item.ID != ids[i] {
			t.Errorf("item[%d]: got %s, want %s (FIFO violated)", i, item.ID, ids[i])
		}
		if item.Retries != 0 {
			t.Errorf("item[%d] retries: got %d, want 0", i, item.Retries)
		}
	}
}

func TestQueueCountTracksEnqueueRemove(t *testing.T) {
	st := setupStore(t)

	for i, id := range []string{"q1", "q2"} {
		st.Enqueue(queueItem(id, models.EntitySale, models.ActionCreate))
		if n, _ := st.CountQueue(); n != i+1 {
			t.Fatalf("count after enqueue %s: got %d, want %d", id, n, i+1)
		}
	}

	if err := st.RemoveFromQueue("q1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n, _ := st.CountQueue(); n != 1 {
		t.Errorf("count after remove: got %d, want 1", n)
	}

	items, _ := st.ListQueue()
	if len(items) != 1 || items[0].ID != "q2" {
		t.Errorf("remaining item: got %+v, want q2", items)
	}
}

func TestUpdateQueueItemPreservesPosition(t *testing.T) {
	st := setupStore(t)

	st.Enqueue(queueItem("q1", models.EntityProduct, models.ActionUpdate))
	st.Enqueue(queueItem("q2", models.EntityProduct, models.ActionUpdate))

	item := queueItem("q1", models.EntityProduct, models.ActionUpdate)
	item.Retries = 2
	if err := st.UpdateQueueItem(item); err != nil {
		t.Fatalf("update: %v", err)
	}

	items, _ := st.ListQueue()
	if items[0].ID != "q1" || items[0].Retries != 2 {
		t.Errorf("first item: got %s retries=%d, want q1 retries=2", items[0].ID, items[0].Retries)
	}
	if items[1].ID != "q2" {
		t.Errorf("q1 update moved q2: got %s first", items[1].ID)
	}
}

func TestUpdateMissingQueueItem(t *testing.T) {
	st := setupStore(t)
	if err := st.UpdateQueueItem(queueItem("ghost", models.EntityUser, models.ActionDelete)); err == nil {
		t.Fatal("expected error updating missing queue item")
	}
}

func TestLastSyncAtRoundtrip(t *testing.T) {
	st := setupStore(t)

	if last, err := st.LastSyncAt(models.EntityProduct); err != nil || last != nil {
		t.Fatalf("fresh state: got %v, %v; want nil, nil", last, err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := st.SetLastSyncAt(models.EntityProduct, at); err != nil {
		t.Fatalf("set: %v", err)
	}
	last, err := st.LastSyncAt(models.EntityProduct)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if last == nil || !last.Equal(at) {
		t.Errorf("lastSyncAt: got %v, want %v", last, at)
	}

	// Overwrite moves the watermark
	at2 := at.Add(time.Minute)
	st.SetLastSyncAt(models.EntityProduct, at2)
	last, _ = st.LastSyncAt(models.EntityProduct)
	if last == nil || !last.Equal(at2) {
		t.Errorf("updated lastSyncAt: got %v, want %v", last, at2)
	}

	// Other entity types are independent
	if other, _ := st.LastSyncAt(models.EntitySale); other != nil {
		t.Errorf("sale lastSyncAt leaked: %v", other)
	}
}
