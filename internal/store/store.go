// Package store persists students, test requests, settlements and ledger
// entries on SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Postgres driver registered as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Supported values for the database.driver setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePoolSize bounds open SQLite connections. WAL lets readers run next
// to the one writer, and writers only contend for the span of their commit.
const sqlitePoolSize = 8

// sqlitePragmas are applied by the driver to every new connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(ON)",
	"synchronous(NORMAL)",
}

// Store owns the database handle and the per-student write locks.
type Store struct {
	db      *sql.DB
	drv     *entsql.Driver
	dialect string
	locks   *keyedMutex

	*Queries
}

// Open connects to the database, applies SQLite pragmas where relevant
// and runs auto-migration.
func Open(driver, dsn string) (*Store, error) {
	var sqlDriver, dia string
	switch driver {
	case DriverSQLite, "":
		sqlDriver, dia = "sqlite", dialect.SQLite
	case DriverPostgres:
		sqlDriver, dia = "pgx", dialect.Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if dia == dialect.SQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dia == dialect.SQLite {
		db.SetMaxOpenConns(sqlitePoolSize)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	drv := entsql.OpenDB(dia, db)
	ctx := context.Background()

	if err := migrate(ctx, drv); err != nil {
		drv.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	return &Store{
		db:      db,
		drv:     drv,
		dialect: dia,
		locks:   newKeyedMutex(),
		Queries: newQueries(db, dia),
	}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the ent dialect name in use.
func (s *Store) Dialect() string {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

// sqliteDSN appends the connection pragmas unless the caller already set
// its own.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// DefaultDBPath resolves the database file path in priority order:
// 1. WORDMASTER_DB environment variable
// 2. $XDG_DATA_HOME/wordmaster/wordmaster.db
// 3. ~/.local/share/wordmaster/wordmaster.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("WORDMASTER_DB"); p != "" {
		return p, ensureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "wordmaster", "wordmaster.db")
	return p, ensureDir(p)
}

// ensureDir creates the parent directory of path if it doesn't exist.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
