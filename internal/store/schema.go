package store

// schema is the complete database schema for a fresh local store.
// Entity tables hold one JSON snapshot per record keyed by id; the generated
// columns give the secondary indexes used for filtered reads. sync_queue holds
// pending mutations in enqueue order (seq), sync_state the per-entity
// revalidation watermark.
const schema = `
CREATE TABLE IF NOT EXISTS products (
    id         TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    category   TEXT GENERATED ALWAYS AS (json_extract(data, '$.category')) VIRTUAL,
    dirty      INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);

CREATE TABLE IF NOT EXISTS sales (
    id         TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    sold_at    TEXT GENERATED ALWAYS AS (json_extract(data, '$.created_at')) VIRTUAL,
    dirty      INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_sold_at ON sales(sold_at);

CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    role       TEXT GENERATED ALWAYS AS (json_extract(data, '$.role')) VIRTUAL,
    dirty      INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_queue (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    entity_type TEXT NOT NULL,
    action     TEXT NOT NULL,
    payload    TEXT NOT NULL,
    created_at TEXT NOT NULL,
    retries    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_state (
    entity_type  TEXT PRIMARY KEY,
    last_sync_at TEXT
);
`
