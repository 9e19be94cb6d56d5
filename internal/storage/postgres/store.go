package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// schemaStatements описывает схему сервиса. Все выражения идемпотентны,
// поэтому EnsureSchema безопасно вызывать при каждом старте.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		sku         TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       NUMERIC(12,2) NOT NULL,
		quantity    INTEGER NOT NULL,
		version     BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT products_price_nonnegative CHECK (price >= 0),
		CONSTRAINT products_quantity_nonnegative CHECK (quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id           TEXT PRIMARY KEY,
		customer_id  TEXT NOT NULL,
		status       TEXT NOT NULL,
		total_amount NUMERIC(12,2) NOT NULL,
		version      BIGINT NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders (customer_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id             TEXT PRIMARY KEY,
		order_id       TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		product_id     TEXT NOT NULL,
		qty            INTEGER NOT NULL,
		price_per_unit NUMERIC(12,2) NOT NULL,
		subtotal       NUMERIC(12,2) NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		CONSTRAINT order_items_qty_positive CHECK (qty > 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items (order_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id             TEXT PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        BYTEA NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		attempt_count  INTEGER NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_messages (created_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS timeline_events (
		id       BIGSERIAL PRIMARY KEY,
		order_id TEXT NOT NULL,
		type     TEXT NOT NULL,
		reason   TEXT NOT NULL DEFAULT '',
		occurred TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timeline_order_id ON timeline_events (order_id, occurred)`,
}

// EnsureSchema применяет схему сервиса.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
