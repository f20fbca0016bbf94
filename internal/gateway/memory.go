package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Call records one gateway invocation, in order.
type Call struct {
	Method string // "upsert", "delete", "select_all"
	Table  string
	ID     string
}

// Memory is an in-memory Gateway used by tests and the dry-run mode. It
// records every call and can be scripted to fail the next N operations.
type Memory struct {
	mu       sync.Mutex
	tables   map[string]map[string]json.RawMessage
	calls    []Call
	failNext int
	failErr  error
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]json.RawMessage)}
}

// FailNext makes the next n mutating/select calls return err.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = errors.New("injected failure")
	}
	m.failNext = n
	m.failErr = err
}

// Calls returns a copy of the recorded call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Records returns a copy of a table's contents keyed by id.
func (m *Memory) Records(table string) map[string]json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(m.tables[table]))
	for id, rec := range m.tables[table] {
		out[id] = rec
	}
	return out
}

// Seed sets a table's contents without recording calls.
func (m *Memory) Seed(table string, records ...json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := make(map[string]json.RawMessage)
	for _, rec := range records {
		id, err := RecordID(rec)
		if err != nil {
			return err
		}
		tbl[id] = rec
	}
	m.tables[table] = tbl
	return nil
}

func (m *Memory) fail() error {
	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	return nil
}

// Health never fails; tests drive connectivity through the monitor directly.
func (m *Memory) Health(ctx context.Context) error {
	return nil
}

// Upsert stores the record keyed by its id field.
func (m *Memory) Upsert(ctx context.Context, table string, record json.RawMessage) error {
	id, err := RecordID(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "upsert", Table: table, ID: id})
	if err := m.fail(); err != nil {
		return err
	}
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]json.RawMessage)
	}
	m.tables[table][id] = record
	return nil
}

// Delete removes the record; absent ids are a no-op.
func (m *Memory) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "delete", Table: table, ID: id})
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.tables[table], id)
	return nil
}

// SelectAll returns the table contents.
func (m *Memory) SelectAll(ctx context.Context, table string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "select_all", Table: table})
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for _, rec := range m.tables[table] {
		out = append(out, rec)
	}
	return out, nil
}
