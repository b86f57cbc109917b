package postgres

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS ingredients (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	unit TEXT NOT NULL,
	total_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
	average_unit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ingredients_name_key ON ingredients (lower(name));

CREATE TABLE IF NOT EXISTS ingredient_batches (
	id TEXT PRIMARY KEY,
	ingredient_id TEXT NOT NULL REFERENCES ingredients (id) ON DELETE CASCADE,
	purchase_date TIMESTAMPTZ NOT NULL,
	buy_price DOUBLE PRECISION NOT NULL,
	original_quantity DOUBLE PRECISION NOT NULL,
	current_quantity DOUBLE PRECISION NOT NULL CHECK (current_quantity >= 0),
	unit_price DOUBLE PRECISION NOT NULL,
	supplier TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ingredient_batches_fifo_idx ON ingredient_batches (ingredient_id, purchase_date, id);

CREATE TABLE IF NOT EXISTS products (
	uid TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	recipe JSONB NOT NULL DEFAULT '[]',
	mode TEXT NOT NULL,
	yield_quantity INTEGER NOT NULL DEFAULT 0,
	margin_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	unit_selling_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	produced_quantity INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sales (
	id TEXT PRIMARY KEY,
	sold_at TIMESTAMPTZ NOT NULL,
	payment_method TEXT NOT NULL,
	total_value DOUBLE PRECISION NOT NULL,
	items JSONB NOT NULL,
	selling_resume JSONB NOT NULL,
	created_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sales_sold_at_idx ON sales (sold_at);

CREATE TABLE IF NOT EXISTS app_settings (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	actor_username TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_logs_created_at_idx ON audit_logs (created_at DESC);

CREATE TABLE IF NOT EXISTS app_users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates any missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
