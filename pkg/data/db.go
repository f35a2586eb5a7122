package data

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DataFileName is the default sqlite file under the config home.
	DataFileName = "leaseth.db"

	schemaVersion = 1

	// fixed-width fraction keeps stored timestamps lexicographically
	// sortable, which scored_at ordering relies on
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	//go:embed sql/*.sql
	ddl embed.FS

	// ErrNotOpen reports an operation against a store that was never opened.
	ErrNotOpen = errors.New("store not open")

	// ErrNotFound reports a lookup that matched no row.
	ErrNotFound = errors.New("not found")
)

// Store wraps one scoring database: sqlite for local single-binary use,
// postgres when the DSN selects it. All methods are safe on a nil receiver
// so callers without a configured database get ErrNotOpen instead of a
// panic.
type Store struct {
	db     *sql.DB
	driver string
	dsn    string
}

// Open connects to the data source named by dsn. A postgres:// or
// postgresql:// prefix selects the postgres driver; anything else is
// treated as a sqlite file path, with an optional sqlite:// prefix.
// The schema is not touched until Init.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("data source not specified")
	}

	driver := DriverSQLite
	source := dsn
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver = DriverPostgres
	case strings.HasPrefix(dsn, "sqlite://"):
		source = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}

	return &Store{db: db, driver: driver, dsn: source}, nil
}

// Init creates missing schema objects and stamps the schema version. Safe
// to run on every start.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}

	name := fmt.Sprintf("sql/ddl_%s.sql", s.driver)
	b, err := ddl.ReadFile(name)
	if err != nil {
		return fmt.Errorf("reading schema %s: %w", name, err)
	}

	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	stamp := s.rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, stamp, schemaVersion, time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("stamping schema version: %w", err)
	}

	slog.Debug("store ready", "driver", s.driver, "schema", schemaVersion)
	return nil
}

// SchemaVersion returns the highest applied schema version, 0 before Init.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotOpen
	}

	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(v.Int64), nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// DSN returns the resolved data source, the file path for sqlite.
func (s *Store) DSN() string {
	if s == nil {
		return ""
	}
	return s.dsn
}

var countQueries = map[string]string{
	"application": "SELECT COUNT(*) FROM application",
	"score":       "SELECT COUNT(*) FROM score",
	"audit":       "SELECT COUNT(*) FROM audit",
	"feedback":    "SELECT COUNT(*) FROM feedback",
}

// Counts reports per-table row counts for status output.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}

	out := make(map[string]int64, len(countQueries))
	for name, q := range countQueries {
		var n int64
		if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s rows: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// Reset deletes all stored rows, keeping the schema in place.
func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reset transaction: %w", err)
	}

	for _, table := range []string{"feedback", "score", "application", "audit"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rolling back reset: %v: %w", rbErr, err)
			}
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}
	return nil
}

// rebind translates ? placeholders into the $n form postgres expects. The
// statements in this package never contain a literal question mark.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}

	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
