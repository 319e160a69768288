// Package sqlstore persists watermarks in a relational table. It registers the
// "postgres" (lib/pq) and "sqlite" (modernc.org/sqlite) backends.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/crimson-sun/sluice/internal/watermark"
)

// DefaultTable is used when no table is configured.
const DefaultTable = "sluice_watermarks"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func init() {
	for _, driver := range []string{"postgres", "sqlite"} {
		watermark.Register(driver, func(cfg watermark.Config) (watermark.Backend, error) {
			return Open(driver, cfg.DSN, cfg.Table)
		})
	}
}

// Backend is a watermark.Backend over a SQL table of (name, value, updated_at).
type Backend struct {
	db    *sqlx.DB
	table string
}

// Open connects to the database and creates the table if needed.
func Open(driver, dsn, table string) (*Backend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: empty %s DSN", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect %s: %w", driver, err)
	}
	b, err := New(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := b.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an existing connection. The table must already exist or be
// created by Open.
func New(db *sqlx.DB, table string) (*Backend, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("sqlstore: invalid table name %q", table)
	}
	return &Backend{db: db, table: table}, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`, b.table)
	if _, err := b.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sqlstore: create table %s: %w", b.table, err)
	}
	return nil
}

func (b *Backend) Load(ctx context.Context, key string) (string, bool, error) {
	var value string
	q := b.db.Rebind(fmt.Sprintf(`SELECT value FROM %s WHERE name = ?`, b.table))
	err := b.db.GetContext(ctx, &value, q, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: load %q: %w", key, err)
	}
	return value, true, nil
}

func (b *Backend) Save(ctx context.Context, key, value string) error {
	q := b.db.Rebind(fmt.Sprintf(`INSERT INTO %s (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, b.table))
	if _, err := b.db.ExecContext(ctx, q, key, value, watermark.Format(time.Now())); err != nil {
		return fmt.Errorf("sqlstore: save %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	q := b.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE name = ?`, b.table))
	if _, err := b.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("sqlstore: delete %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}
