package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS owners (
	id                       BIGSERIAL PRIMARY KEY,
	type                     TEXT NOT NULL,
	legal_name               TEXT NOT NULL,
	trade_name               TEXT NOT NULL DEFAULT '',
	document                 TEXT NOT NULL,
	phone                    TEXT NOT NULL DEFAULT '',
	phone2                   TEXT NOT NULL DEFAULT '',
	email                    TEXT NOT NULL DEFAULT '',
	contact_source           TEXT NOT NULL DEFAULT '',
	contact_enriched_at      TIMESTAMPTZ,
	notes                    TEXT NOT NULL DEFAULT '',
	lead_status              TEXT NOT NULL DEFAULT 'new',
	converted_to_customer_id BIGINT,
	converted_at             TIMESTAMPTZ,
	priority                 TEXT NOT NULL DEFAULT 'low',
	priority_reason          TEXT NOT NULL DEFAULT '',
	priority_refreshed_at    TIMESTAMPTZ,
	estimated_revenue        NUMERIC(14,2),
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (type, document)
);

CREATE TABLE IF NOT EXISTS locations (
	id                    BIGSERIAL PRIMARY KEY,
	owner_id              BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	location_key          TEXT NOT NULL,
	address_street        TEXT NOT NULL DEFAULT '',
	address_number        TEXT NOT NULL DEFAULT '',
	address_district      TEXT NOT NULL DEFAULT '',
	address_city          TEXT NOT NULL DEFAULT '',
	address_state         TEXT NOT NULL DEFAULT '',
	address_zip           TEXT NOT NULL DEFAULT '',
	latitude              DOUBLE PRECISION,
	longitude             DOUBLE PRECISION,
	distance_from_base_km DOUBLE PRECISION,
	geom                  geometry(Point, 4326),
	farm_name             TEXT NOT NULL DEFAULT '',
	state_registration    TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner_id, location_key)
);

CREATE TABLE IF NOT EXISTS instruments (
	id                   BIGSERIAL PRIMARY KEY,
	location_id          BIGINT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	inmetro_number       TEXT NOT NULL UNIQUE,
	instrument_type      TEXT NOT NULL DEFAULT '',
	capacity             TEXT NOT NULL DEFAULT '',
	current_status       TEXT NOT NULL DEFAULT 'unknown',
	last_verification_at TIMESTAMPTZ,
	next_verification_at TIMESTAMPTZ,
	last_executor        TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS instrument_history (
	id              BIGSERIAL PRIMARY KEY,
	instrument_id   BIGINT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
	event_type      TEXT NOT NULL,
	event_date      TIMESTAMPTZ NOT NULL,
	result          TEXT NOT NULL DEFAULT '',
	executor        TEXT NOT NULL DEFAULT '',
	competitor_name TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contact_queue (
	id         BIGSERIAL PRIMARY KEY,
	owner_id   BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	queue_date TEXT NOT NULL,
	position   INTEGER NOT NULL,
	priority   TEXT NOT NULL,
	reason     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner_id, queue_date)
);

CREATE TABLE IF NOT EXISTS interactions (
	id                  BIGSERIAL PRIMARY KEY,
	owner_id            BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	channel             TEXT NOT NULL,
	result              TEXT NOT NULL,
	notes               TEXT NOT NULL DEFAULT '',
	scheduled_follow_up TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS status_changes (
	id          BIGSERIAL PRIMARY KEY,
	owner_id    BIGINT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	note        TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL,
	changed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customers (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	document    TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS webhooks (
	id                BIGSERIAL PRIMARY KEY,
	event_type        TEXT NOT NULL,
	url               TEXT NOT NULL,
	secret            TEXT NOT NULL DEFAULT '',
	is_active         BOOLEAN NOT NULL DEFAULT true,
	failure_count     INTEGER NOT NULL DEFAULT 0,
	last_triggered_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id            BIGSERIAL PRIMARY KEY,
	webhook_id    BIGINT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
	event_id      TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_code INTEGER NOT NULL DEFAULT 0,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_owners_lead_status ON owners(lead_status);
CREATE INDEX IF NOT EXISTS idx_owners_priority ON owners(priority);
CREATE INDEX IF NOT EXISTS idx_locations_owner_id ON locations(owner_id);
CREATE INDEX IF NOT EXISTS idx_locations_city ON locations(lower(address_city));
CREATE INDEX IF NOT EXISTS idx_locations_geom ON locations USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_instruments_location_id ON instruments(location_id);
CREATE INDEX IF NOT EXISTS idx_history_instrument_id ON instrument_history(instrument_id);
CREATE INDEX IF NOT EXISTS idx_queue_date ON contact_queue(queue_date);
CREATE INDEX IF NOT EXISTS idx_interactions_owner_id ON interactions(owner_id);
CREATE INDEX IF NOT EXISTS idx_status_changes_owner_id ON status_changes(owner_id);
CREATE INDEX IF NOT EXISTS idx_customers_document ON customers(document);
CREATE INDEX IF NOT EXISTS idx_webhooks_event_type ON webhooks(event_type);
CREATE INDEX IF NOT EXISTS idx_deliveries_webhook_id ON webhook_deliveries(webhook_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// pgArgs accumulates positional arguments for dynamically built queries.
type pgArgs []any

// add appends v and returns its placeholder.
func (a *pgArgs) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

func checkTag(tag pgconn.CommandTag, entity string, id any) error {
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

func notFoundOr(err error, entity string, id any, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return eris.Wrap(err, msg)
}

// pgEach runs query on q and calls fn for every row.
func pgEach(ctx context.Context, q pgQuerier, query string, args []any, fn func(scannable) error) error {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// pgQuerier is satisfied by db.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
