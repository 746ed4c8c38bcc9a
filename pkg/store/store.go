// Package store persists the accomplishment log.
//
// The default backend is a local SQLite file in WAL mode. A postgres:// or
// postgresql:// DSN selects PostgreSQL instead, so one log can be shared by
// several machines. Both backends use the same table and the same queries;
// placeholders are rebound for PostgreSQL.
package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"

	"github.com/daviddao/twentyfivefive/pkg/model"
)

// timestampLayout is fixed-width so that stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dialect names the SQL backend behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store is the accomplishment log.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// IsPostgresDSN reports whether dsn selects the PostgreSQL backend.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// New opens (or creates) the log at dsn and initializes the schema.
func New(dsn string) (*Store, error) {
	var (
		s   *Store
		err error
	)
	if IsPostgresDSN(dsn) {
		s, err = openPostgres(dsn)
	} else {
		s, err = openSQLite(dsn)
	}
	if err != nil {
		return nil, err
	}
	if err := s.migrate(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func openSQLite(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, dialect: DialectSQLite}, nil
}

func openPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, dialect: DialectPostgres}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Dialect returns the backend in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// retryOnContention wraps retryOp from retry.go with the default config.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	schema := `
	CREATE TABLE IF NOT EXISTS accomplishments (
		` + id + `,
		date      TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		note      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accomplishments_date ON accomplishments(date, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertAccomplishment appends a record and returns its ID, which is also
// stored on a.
func (s *Store) InsertAccomplishment(a *model.Accomplishment) (int64, error) {
	if strings.TrimSpace(a.Note) == "" {
		return 0, fmt.Errorf("insert accomplishment: empty note")
	}
	if a.Date == "" {
		a.Date = a.Timestamp.Format(model.DateLayout)
	}
	var id int64
	err := retryOnContention(func() error {
		return s.db.QueryRow(
			s.rebind(`INSERT INTO accomplishments (date, timestamp, note) VALUES (?, ?, ?) RETURNING id`),
			a.Date, a.Timestamp.Format(timestampLayout), a.Note,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("insert accomplishment: %w", err)
	}
	a.ID = id
	return id, nil
}

// ListAccomplishmentsOn returns the records for a YYYY-MM-DD date ordered
// by timestamp.
func (s *Store) ListAccomplishmentsOn(date string) ([]model.Accomplishment, error) {
	rows, err := s.db.Query(
		s.rebind(`SELECT id, date, timestamp, note FROM accomplishments
		 WHERE date = ? ORDER BY timestamp ASC, id ASC`),
		date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccomplishments(rows)
}

// ListDates returns the distinct dates that have records, newest first.
func (s *Store) ListDates(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.Query(
		s.rebind(`SELECT DISTINCT date FROM accomplishments ORDER BY date DESC LIMIT ?`), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// CountAccomplishments returns the total number of records.
func (s *Store) CountAccomplishments() int64 {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM accomplishments`).Scan(&count); err != nil {
		return 0
	}
	return count
}

func scanAccomplishments(rows *sql.Rows) ([]model.Accomplishment, error) {
	var out []model.Accomplishment
	for rows.Next() {
		var a model.Accomplishment
		var ts string
		if err := rows.Scan(&a.ID, &a.Date, &ts, &a.Note); err != nil {
			return nil, err
		}
		var parseErr error
		a.Timestamp, parseErr = time.Parse(timestampLayout, ts)
		if parseErr != nil {
			return nil, fmt.Errorf("parse timestamp for accomplishment %d: %w", a.ID, parseErr)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
