package db

import (
	"context"
	"fmt"
)

// sqliteSchema is the full database schema for SQLite.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    total_quantity     INTEGER NOT NULL CHECK (total_quantity >= 0),
    available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0 AND available_quantity <= total_quantity),
    consumable         BOOLEAN NOT NULL DEFAULT 0,
    created_at         DATETIME NOT NULL,
    deleted_at         DATETIME
);

CREATE TABLE IF NOT EXISTS item_variants (
    id                 TEXT PRIMARY KEY,
    item_id            TEXT NOT NULL REFERENCES items(id),
    name               TEXT NOT NULL,
    total_quantity     INTEGER NOT NULL CHECK (total_quantity >= 0),
    available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0 AND available_quantity <= total_quantity),
    created_at         DATETIME NOT NULL,
    deleted_at         DATETIME
);

CREATE INDEX IF NOT EXISTS idx_item_variants_item ON item_variants(item_id);

CREATE TABLE IF NOT EXISTS people (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    date_of_birth DATE,
    photo_url     TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS loans (
    id              TEXT PRIMARY KEY,
    item_id         TEXT NOT NULL REFERENCES items(id),
    variant_id      TEXT REFERENCES item_variants(id),
    person_id       TEXT NOT NULL REFERENCES people(id),
    quantity        INTEGER NOT NULL CHECK (quantity > 0),
    notes           TEXT NOT NULL DEFAULT '',
    condition_notes TEXT NOT NULL DEFAULT '',
    condition_photo TEXT NOT NULL DEFAULT '',
    loaned_at       DATETIME NOT NULL,
    returned_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_loans_loaned_at ON loans(loaned_at);
CREATE INDEX IF NOT EXISTS idx_loans_item ON loans(item_id);
CREATE INDEX IF NOT EXISTS idx_loans_variant ON loans(variant_id);
CREATE INDEX IF NOT EXISTS idx_loans_person ON loans(person_id);

CREATE TABLE IF NOT EXISTS files (
    bucket     TEXT NOT NULL,
    path       TEXT NOT NULL,
    data       BLOB NOT NULL,
    mime       TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (bucket, path)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// postgresSchema mirrors sqliteSchema with Postgres column types.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    TIMESTAMPTZ NOT NULL,
    deleted_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    total_quantity     INTEGER NOT NULL CHECK (total_quantity >= 0),
    available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0 AND available_quantity <= total_quantity),
    consumable         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL,
    deleted_at         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS item_variants (
    id                 TEXT PRIMARY KEY,
    item_id            TEXT NOT NULL REFERENCES items(id),
    name               TEXT NOT NULL,
    total_quantity     INTEGER NOT NULL CHECK (total_quantity >= 0),
    available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0 AND available_quantity <= total_quantity),
    created_at         TIMESTAMPTZ NOT NULL,
    deleted_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_item_variants_item ON item_variants(item_id);

CREATE TABLE IF NOT EXISTS people (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    date_of_birth DATE,
    photo_url     TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS loans (
    id              TEXT PRIMARY KEY,
    item_id         TEXT NOT NULL REFERENCES items(id),
    variant_id      TEXT REFERENCES item_variants(id),
    person_id       TEXT NOT NULL REFERENCES people(id),
    quantity        INTEGER NOT NULL CHECK (quantity > 0),
    notes           TEXT NOT NULL DEFAULT '',
    condition_notes TEXT NOT NULL DEFAULT '',
    condition_photo TEXT NOT NULL DEFAULT '',
    loaned_at       TIMESTAMPTZ NOT NULL,
    returned_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_loans_loaned_at ON loans(loaned_at);
CREATE INDEX IF NOT EXISTS idx_loans_item ON loans(item_id);
CREATE INDEX IF NOT EXISTS idx_loans_variant ON loans(variant_id);
CREATE INDEX IF NOT EXISTS idx_loans_person ON loans(person_id);

CREATE TABLE IF NOT EXISTS files (
    bucket     TEXT NOT NULL,
    path       TEXT NOT NULL,
    data       BYTEA NOT NULL,
    mime       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (bucket, path)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates all tables if they don't exist.
func EnsureSchema(ctx context.Context, d *DB) error {
	schema := sqliteSchema
	if d.dialect == Postgres {
		schema = postgresSchema
	}
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
