package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cajadev/caja/internal/models"
)

// LastSyncAt returns the last successful revalidation time for the entity
// type, or nil if it has never synced.
func (s *Store) LastSyncAt(t models.EntityType) (*time.Time, error) {
	if !s.ok() {
		return nil, nil
	}
	var raw sql.NullString
	err := s.conn.QueryRow(
		`SELECT last_sync_at FROM sync_state WHERE entity_type = ?`, string(t)).Scan(&raw)
	if err == sql.ErrNoRows || (err == nil && !raw.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state %s: %w", t, err)
	}
	ts, err := parseTime(raw.String)
	if err != nil {
		return nil, fmt.Errorf("sync state %s: %w", t, err)
	}
	return &ts, nil
}

// SetLastSyncAt records a successful revalidation for the entity type.
func (s *Store) SetLastSyncAt(t models.EntityType, at time.Time) error {
	if !s.ok() {
		return nil
	}
	_, err := s.conn.Exec(
		`INSERT INTO sync_state (entity_type, last_sync_at) VALUES (?, ?)
		 ON CONFLICT(entity_type) DO UPDATE SET last_sync_at = excluded.last_sync_at`,
		string(t), at.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("set sync state %s: %w", t, err)
	}
	return nil
}
