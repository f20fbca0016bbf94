package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresGateway talks straight to the authoritative Postgres database for
// deployments that skip the REST layer. Each remote table is a document table
// (id TEXT PRIMARY KEY, data JSONB).
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pgx pool and verifies the database answers.
func NewPostgres(ctx context.Context, connString string) (*PostgresGateway, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresGateway{pool: pool}, nil
}

// Close releases the connection pool.
func (g *PostgresGateway) Close() {
	g.pool.Close()
}

// Health pings the database.
func (g *PostgresGateway) Health(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// Upsert inserts or replaces the record keyed by its id field.
func (g *PostgresGateway) Upsert(ctx context.Context, table string, record json.RawMessage) error {
	id, err := RecordID(record)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		pgIdent(table))
	if _, err := g.pool.Exec(ctx, query, id, record); err != nil {
		return fmt.Errorf("upsert %s %s: %w", table, id, err)
	}
	return nil
}

// Delete removes the record by id; absent ids are a no-op.
func (g *PostgresGateway) Delete(ctx context.Context, table, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pgIdent(table))
	if _, err := g.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// SelectAll pulls every record in the table.
func (g *PostgresGateway) SelectAll(ctx context.Context, table string) ([]json.RawMessage, error) {
	query := fmt.Sprintf(`SELECT data FROM %s ORDER BY id ASC`, pgIdent(table))
	rows, err := g.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		records = append(records, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return records, nil
}

// pgIdent quotes a table name as a Postgres identifier. Table names come from
// the entity-type whitelist, never from user input.
func pgIdent(name string) string {
	return `"` + name + `"`
}
