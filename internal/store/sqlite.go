package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-intel/internal/apperr"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection serializes writers; transactions never observe
	// SQLITE_BUSY from each other.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS owners (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	type                     TEXT NOT NULL,
	legal_name               TEXT NOT NULL,
	trade_name               TEXT NOT NULL DEFAULT '',
	document                 TEXT NOT NULL,
	phone                    TEXT NOT NULL DEFAULT '',
	phone2                   TEXT NOT NULL DEFAULT '',
	email                    TEXT NOT NULL DEFAULT '',
	contact_source           TEXT NOT NULL DEFAULT '',
	contact_enriched_at      DATETIME,
	notes                    TEXT NOT NULL DEFAULT '',
	lead_status              TEXT NOT NULL DEFAULT 'new',
	converted_to_customer_id INTEGER,
	converted_at             DATETIME,
	priority                 TEXT NOT NULL DEFAULT 'low',
	priority_reason          TEXT NOT NULL DEFAULT '',
	priority_refreshed_at    DATETIME,
	estimated_revenue        TEXT,
	created_at               DATETIME NOT NULL,
	updated_at               DATETIME NOT NULL,
	UNIQUE (type, document)
);

CREATE TABLE IF NOT EXISTS locations (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id              INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	location_key          TEXT NOT NULL,
	address_street        TEXT NOT NULL DEFAULT '',
	address_number        TEXT NOT NULL DEFAULT '',
	address_district      TEXT NOT NULL DEFAULT '',
	address_city          TEXT NOT NULL DEFAULT '',
	address_state         TEXT NOT NULL DEFAULT '',
	address_zip           TEXT NOT NULL DEFAULT '',
	latitude              REAL,
	longitude             REAL,
	distance_from_base_km REAL,
	farm_name             TEXT NOT NULL DEFAULT '',
	state_registration    TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL,
	UNIQUE (owner_id, location_key)
);

CREATE TABLE IF NOT EXISTS instruments (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id          INTEGER NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	inmetro_number       TEXT NOT NULL UNIQUE,
	instrument_type      TEXT NOT NULL DEFAULT '',
	capacity             TEXT NOT NULL DEFAULT '',
	current_status       TEXT NOT NULL DEFAULT 'unknown',
	last_verification_at DATETIME,
	next_verification_at DATETIME,
	last_executor        TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS instrument_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	instrument_id   INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
	event_type      TEXT NOT NULL,
	event_date      DATETIME NOT NULL,
	result          TEXT NOT NULL DEFAULT '',
	executor        TEXT NOT NULL DEFAULT '',
	competitor_name TEXT,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contact_queue (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id   INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	queue_date TEXT NOT NULL,
	position   INTEGER NOT NULL,
	priority   TEXT NOT NULL,
	reason     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (owner_id, queue_date)
);

CREATE TABLE IF NOT EXISTS interactions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id            INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	channel             TEXT NOT NULL,
	result              TEXT NOT NULL,
	notes               TEXT NOT NULL DEFAULT '',
	scheduled_follow_up DATETIME,
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS status_changes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id    INTEGER NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	note        TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL,
	changed_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	document    TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS webhooks (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type        TEXT NOT NULL,
	url               TEXT NOT NULL,
	secret            TEXT NOT NULL DEFAULT '',
	is_active         INTEGER NOT NULL DEFAULT 1,
	failure_count     INTEGER NOT NULL DEFAULT 0,
	last_triggered_at DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	webhook_id    INTEGER NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
	event_id      TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_code INTEGER NOT NULL DEFAULT 0,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
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
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_owners_lead_status ON owners(lead_status);
CREATE INDEX IF NOT EXISTS idx_owners_priority ON owners(priority);
CREATE INDEX IF NOT EXISTS idx_locations_owner_id ON locations(owner_id);
CREATE INDEX IF NOT EXISTS idx_locations_city ON locations(address_city);
CREATE INDEX IF NOT EXISTS idx_instruments_location_id ON instruments(location_id);
CREATE INDEX IF NOT EXISTS idx_history_instrument_id ON instrument_history(instrument_id);
CREATE INDEX IF NOT EXISTS idx_queue_date ON contact_queue(queue_date);
CREATE INDEX IF NOT EXISTS idx_interactions_owner_id ON interactions(owner_id);
CREATE INDEX IF NOT EXISTS idx_status_changes_owner_id ON status_changes(owner_id);
CREATE INDEX IF NOT EXISTS idx_customers_document ON customers(document);
CREATE INDEX IF NOT EXISTS idx_webhooks_event_type ON webhooks(event_type);
CREATE INDEX IF NOT EXISTS idx_deliveries_webhook_id ON webhook_deliveries(webhook_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ptrArg maps a nil pointer to NULL and otherwise passes the value.
func ptrArg[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
