package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cajadev/caja/internal/models"
)

// Enqueue appends a mutation to the sync queue. FIFO order is the implicit
// seq ordering, not the item's timestamp.
func (s *Store) Enqueue(item models.SyncQueueItem) error {
	if !s.ok() {
		slog.Debug("store unavailable, skipping enqueue", "entity", item.EntityType, "action", item.Action)
		return nil
	}
	_, err := s.conn.Exec(
		`INSERT INTO sync_queue (id, entity_type, action, payload, created_at, retries)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.EntityType), string(item.Action),
		string(item.Payload), item.CreatedAt.UTC().Format(timeFormat), item.Retries)
	if err != nil {
		return fmt.Errorf("enqueue %s %s: %w", item.EntityType, item.Action, err)
	}
	return nil
}

// ListQueue returns the current queue snapshot in enqueue order.
func (s *Store) ListQueue() ([]models.SyncQueueItem, error) {
	if !s.ok() {
		return nil, nil
	}
	rows, err := s.conn.Query(
		`SELECT id, entity_type, action, payload, created_at, retries
		 FROM sync_queue ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var items []models.SyncQueueItem
	for rows.Next() {
		var (
			item               models.SyncQueueItem
			entity, action     string
			payload, createdAt string
		)
		if err := rows.Scan(&item.ID, &entity, &action, &payload, &createdAt, &item.Retries); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		item.EntityType = models.EntityType(entity)
		item.Action = models.SyncAction(action)
		item.Payload = []byte(payload)
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("queue item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RemoveFromQueue deletes one item, either confirmed remotely or dropped.
func (s *Store) RemoveFromQueue(id string) error {
	if !s.ok() {
		return nil
	}
	if _, err := s.conn.Exec(`DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove queue item %s: %w", id, err)
	}
	return nil
}

// UpdateQueueItem persists an item's incremented retry count in place,
// preserving its queue position.
func (s *Store) UpdateQueueItem(item models.SyncQueueItem) error {
	if !s.ok() {
		return nil
	}
	res, err := s.conn.Exec(`UPDATE sync_queue SET retries = ? WHERE id = ?`, item.Retries, item.ID)
	if err != nil {
		return fmt.Errorf("update queue item %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountQueue returns the number of pending mutations.
func (s *Store) CountQueue() (int, error) {
	if !s.ok() {
		return 0, nil
	}
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}
