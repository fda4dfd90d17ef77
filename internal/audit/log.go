// Package audit keeps an in-memory, process-lifetime record of operational
// events a gateway operator cares about: pool failovers, cache drops, and
// admission rejections. It exists for the /status introspection surface and
// post-mortem debugging, not durable storage - the database never touches
// disk and is discarded on restart.
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind identifies the category of an audited event.
type Kind string

const (
	KindFailover          Kind = "failover"
	KindCacheDrop         Kind = "cache_drop"
	KindAdmissionRejected Kind = "admission_rejected"
	KindRateLimitRejected Kind = "rate_limit_rejected"
)

// Event is one recorded occurrence.
type Event struct {
	ID         int64
	Kind       Kind
	Detail     string
	OccurredAt time.Time
}

// Log wraps a single-connection, in-memory SQLite database. The connection
// pool is pinned to one connection: SQLite's ":memory:" DSN backs a
// distinct, empty database per connection, so a pool of more than one would
// silently scatter writes across databases that never see each other's
// rows.
type Log struct {
	conn *sql.DB
}

// Open creates the in-memory event log and runs its migrations.
func Open() (*Log, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	conn.SetMaxOpenConns(1)

	l := &Log{conn: conn}
	if err := l.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return l, nil
}

func (l *Log) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(l.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("up: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (l *Log) Close() error {
	return l.conn.Close()
}

// Record inserts one event, stamped with the current time. Write failures
// are returned to the caller, which treats them as non-fatal (the runner
// logs them, the front-end discards them) - the audit log must never take
// down a gateway operation it's merely observing.
func (l *Log) Record(kind Kind, detail string) error {
	_, err := l.conn.Exec(
		`INSERT INTO events (kind, detail, occurred_at) VALUES (?, ?, ?)`,
		string(kind), detail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Recent returns up to limit events, most recent first.
func (l *Log) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.conn.Query(
		`SELECT id, kind, detail, occurred_at FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Kind = Kind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountSince reports how many events of kind were recorded at or after
// since.
func (l *Log) CountSince(kind Kind, since time.Time) (int, error) {
	var n int
	err := l.conn.QueryRow(
		`SELECT COUNT(*) FROM events WHERE kind = ? AND occurred_at >= ?`,
		string(kind), since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return n, nil
}
