// Package sqlsource reads rows from a relational table. It registers the
// "postgres" (lib/pq) and "sqlite" (modernc.org/sqlite) providers.
//
// The sqlite provider compares timestamps as the driver stores them, so rows
// and cursors must be written in the same format (the driver's default when
// both come from Go time.Time values).
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/source"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	for _, driver := range []string{"postgres", "sqlite"} {
		source.Register(driver, func(cfg source.Config) (source.Source, error) {
			return Open(driver, cfg)
		})
	}
}

// Source runs one prepared range query against a table.
type Source struct {
	db    *sqlx.DB
	name  string
	query string
}

// record is the scan target; aliases in BuildQuery fix the column names.
type record struct {
	ID        sql.NullString `db:"id"`
	Message   sql.NullString `db:"message"`
	Severity  sql.NullString `db:"severity"`
	Source    sql.NullString `db:"source"`
	Timestamp flexTime       `db:"ts"`
}

// Open connects with the given driver and builds the query for cfg.Table.
func Open(driver string, cfg source.Config) (*Source, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s source: empty DSN", driver)
	}
	db, err := sqlx.Connect(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s source: connect: %w", driver, err)
	}
	s, err := New(db, driver, cfg.Table, cfg.Columns)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, name, table string, cols source.Columns) (*Source, error) {
	q, err := BuildQuery(table, cols)
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", name, err)
	}
	return &Source{db: db, name: name, query: db.Rebind(q)}, nil
}

// BuildQuery returns the range query for table with "?" placeholders.
// Identifiers are validated and quoted.
func BuildQuery(table string, cols source.Columns) (string, error) {
	if table == "" {
		return "", fmt.Errorf("empty table name")
	}
	qt, err := quoteQualified(table)
	if err != nil {
		return "", err
	}
	cols = cols.WithDefaults()
	for _, c := range cols.List() {
		if !identRe.MatchString(c) {
			return "", fmt.Errorf("invalid column name %q", c)
		}
	}
	ts := quote(cols.Timestamp)
	return fmt.Sprintf(
		"SELECT %s AS id, %s AS message, %s AS severity, %s AS source, %s AS ts FROM %s WHERE %s > ? ORDER BY %s ASC",
		quote(cols.ID), quote(cols.Message), quote(cols.Severity), quote(cols.Source), ts, qt, ts, ts,
	), nil
}

// Query returns rows strictly newer than cursor, oldest first.
func (s *Source) Query(ctx context.Context, cursor time.Time) ([]model.Row, error) {
	var recs []record
	if err := s.db.SelectContext(ctx, &recs, s.query, cursor.UTC()); err != nil {
		return nil, fmt.Errorf("%s source: query: %w", s.name, err)
	}
	rows := make([]model.Row, len(recs))
	for i, r := range recs {
		rows[i] = model.Row{
			ID:        r.ID.String,
			Message:   r.Message.String,
			Severity:  r.Severity.String,
			Source:    r.Source.String,
			Timestamp: r.Timestamp.Time.UTC(),
		}
	}
	return rows, nil
}

func (s *Source) Close() error {
	return s.db.Close()
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func quoteQualified(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	for i, p := range parts {
		if !identRe.MatchString(p) {
			return "", fmt.Errorf("invalid table name %q", name)
		}
		parts[i] = quote(p)
	}
	return strings.Join(parts, "."), nil
}

// flexTime scans timestamps that drivers return as time.Time, text, or Unix seconds.
type flexTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST", // time.Time.String
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (f *flexTime) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		f.Time = x
		return nil
	case string:
		return f.parse(x)
	case []byte:
		return f.parse(string(x))
	case int64:
		f.Time = time.Unix(x, 0)
		return nil
	case nil:
		return fmt.Errorf("null timestamp")
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func (f *flexTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t
			return nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Time = time.Unix(secs, 0)
		return nil
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
