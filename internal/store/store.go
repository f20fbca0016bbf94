// Package store is the durable local persistence layer: entity snapshots,
// the sync queue, and sync metadata, all in a single SQLite database.
//
// Every method is safe to call on a nil *Store. A nil store (the degraded,
// remote-only mode entered when the database cannot be opened) turns reads
// into empty results and writes into no-ops instead of errors, so callers
// never have to branch on availability.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cajadev/caja/internal/models"
	_ "modernc.org/sqlite"
)

const dbFile = ".caja/caja.db"

// Store wraps the local SQLite database.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the local store under baseDir and
// ensures the schema exists.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps reads concurrent while writes stay serialized.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	return OpenDB(conn)
}

// OpenDB wraps an existing connection and ensures the schema exists.
// Used by tests that supply an in-memory database.
func OpenDB(conn *sql.DB) (*Store, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the database. No-op on a nil store.
func (s *Store) Close() error {
	if !s.ok() {
		return nil
	}
	return s.conn.Close()
}

// ok reports whether the store is usable. All public methods gate on it so
// a nil store degrades to empty/no-op behavior.
func (s *Store) ok() bool {
	return s != nil && s.conn != nil
}

// Available reports whether durable local persistence is usable. False means
// the engine is in remote-only degraded mode.
func (s *Store) Available() bool {
	return s.ok()
}

// tableFor maps an entity type to its local table name. The whitelist keeps
// table names out of caller control.
func tableFor(t models.EntityType) (string, error) {
	switch t {
	case models.EntityProduct:
		return "products", nil
	case models.EntitySale:
		return "sales", nil
	case models.EntityUser:
		return "users", nil
	}
	return "", fmt.Errorf("unknown entity type %q", t)
}

// Get returns the snapshot for one record, or nil if absent.
func (s *Store) Get(t models.EntityType, id string) (json.RawMessage, error) {
	if !s.ok() {
		return nil, nil
	}
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	var data string
	err = s.conn.QueryRow(`SELECT data FROM `+table+` WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", table, id, err)
	}
	return json.RawMessage(data), nil
}

// GetAll returns every snapshot for the entity type in insertion order.
func (s *Store) GetAll(t models.EntityType) ([]json.RawMessage, error) {
	if !s.ok() {
		return nil, nil
	}
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	return s.queryData(`SELECT data FROM ` + table + ` ORDER BY rowid ASC`)
}

// ProductsByCategory returns product snapshots filtered via the category index.
func (s *Store) ProductsByCategory(category string) ([]json.RawMessage, error) {
	if !s.ok() {
		return nil, nil
	}
	return s.queryData(`SELECT data FROM products WHERE category = ? ORDER BY rowid ASC`, category)
}

// SalesSince returns sale snapshots recorded at or after the given time,
// served by the sold_at index.
func (s *Store) SalesSince(since time.Time) ([]json.RawMessage, error) {
	if !s.ok() {
		return nil, nil
	}
	return s.queryData(`SELECT data FROM sales WHERE sold_at >= ? ORDER BY sold_at ASC`,
		since.UTC().Format(time.RFC3339Nano))
}

func (s *Store) queryData(query string, args ...any) ([]json.RawMessage, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, json.RawMessage(data))
	}
	return out, rows.Err()
}

// Put writes or replaces one record snapshot. A put clears the dirty flag:
// the snapshot now reflects the latest known state.
func (s *Store) Put(t models.EntityType, id string, data json.RawMessage) error {
	if !s.ok() {
		slog.Debug("store unavailable, skipping put", "entity", t, "id", id)
		return nil
	}
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(
		`INSERT INTO `+table+` (id, data, dirty, updated_at) VALUES (?, ?, 0, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, dirty = 0, updated_at = excluded.updated_at`,
		id, string(data), now())
	if err != nil {
		return fmt.Errorf("put %s %s: %w", table, id, err)
	}
	return nil
}

// Delete removes one record snapshot. Deleting an absent record is a no-op.
func (s *Store) Delete(t models.EntityType, id string) error {
	if !s.ok() {
		slog.Debug("store unavailable, skipping delete", "entity", t, "id", id)
		return nil
	}
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	if _, err := s.conn.Exec(`DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// ReplaceAll swaps the full snapshot set for an entity type in one
// transaction, so readers never observe a half-replaced table.
func (s *Store) ReplaceAll(t models.EntityType, records map[string]json.RawMessage) error {
	if !s.ok() {
		slog.Debug("store unavailable, skipping replace", "entity", t)
		return nil
	}
	table, err := tableFor(t)
	if err != nil {
		return err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	ts := now()
	for id, data := range records {
		if _, err := tx.Exec(
			`INSERT INTO `+table+` (id, data, dirty, updated_at) VALUES (?, ?, 0, ?)`,
			id, string(data), ts); err != nil {
			return fmt.Errorf("insert %s %s: %w", table, id, err)
		}
	}
	return tx.Commit()
}

// MarkDirty flags a record whose queued mutation was dropped after exhausting
// its retry budget, so an operator can find it for manual reconciliation.
func (s *Store) MarkDirty(t models.EntityType, id string) error {
	if !s.ok() {
		return nil
	}
	table, err := tableFor(t)
	if err != nil {
		return err
	}
	if _, err := s.conn.Exec(`UPDATE `+table+` SET dirty = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark dirty %s %s: %w", table, id, err)
	}
	return nil
}

// CountDirty returns how many records of the entity type carry the dirty flag.
func (s *Store) CountDirty(t models.EntityType) (int, error) {
	if !s.ok() {
		return 0, nil
	}
	table, err := tableFor(t)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.conn.QueryRow(`SELECT COUNT(*) FROM ` + table + ` WHERE dirty = 1`).Scan(&n)
	return n, err
}

const timeFormat = time.RFC3339Nano

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// parseTime accepts the formats this store writes plus plain RFC3339.
func parseTime(s string) (time.Time, error) {
	for _, f := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
