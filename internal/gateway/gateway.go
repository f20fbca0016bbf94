// Package gateway abstracts idempotent CRUD against the remote authoritative
// store. Implementations perform no retries; the sync queue processor owns
// retry and backoff policy, and errors surface to it verbatim.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for common remote error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Gateway is the remote-store adapter. Upsert is keyed by the record's "id"
// field and must be safe to repeat; Delete is a no-op when the id is already
// absent; SelectAll returns the full table for bulk revalidation pulls.
type Gateway interface {
	Upsert(ctx context.Context, table string, record json.RawMessage) error
	Delete(ctx context.Context, table, id string) error
	SelectAll(ctx context.Context, table string) ([]json.RawMessage, error)
}

// Prober is implemented by gateways that can answer a cheap reachability
// check. The connectivity monitor uses it as its online/offline signal.
type Prober interface {
	Health(ctx context.Context) error
}

// RecordID extracts the primary id from an entity-shaped payload.
func RecordID(record json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err != nil {
		return "", fmt.Errorf("parse record id: %w", err)
	}
	if probe.ID == "" {
		return "", errors.New("record has no id")
	}
	return probe.ID, nil
}
