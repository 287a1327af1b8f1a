package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// DriverName is the sqlite3 driver registered with the connection hook that
// applies the per-connection pragmas the DSN cannot carry.
const DriverName = "sqlite3_topchanges"

var (
	ErrBusy                 = errors.New("database is busy")
	ErrIntegrityCheckFailed = errors.New("integrity check failed")
)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec("PRAGMA temp_store=MEMORY;", nil)
			return err
		},
	})
}

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a single-file SQLite store
type DB struct {
	Conn     *sql.DB
	Path     string
	ReadOnly bool
}

// DSN builds a file: URI for path with the given query parameters. The path
// is escaped so that '?', '#' and '%' in a file name stay part of the name.
func DSN(path, params string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + params
}

// New opens (creating if needed) a read-write store and ensures the schema.
// All statements share one connection: the store has a single writer, and
// ATTACH/temp state must survive between statements.
func New(ctx context.Context, path string, busyTimeoutMS int) (*DB, error) {
	dsn := DSN(path, fmt.Sprintf("mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", busyTimeoutMS))
	conn, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, WrapBusy(err))
	}

	if err := EnsureSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure schema on %s: %w", path, err)
	}

	return &DB{Conn: conn, Path: path}, nil
}

// OpenReadOnly opens an existing store for querying. Readers never write, so
// the schema is not touched.
func OpenReadOnly(ctx context.Context, path string, busyTimeoutMS int) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	dsn := DSN(path, fmt.Sprintf("mode=ro&_busy_timeout=%d", busyTimeoutMS))
	conn, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, WrapBusy(err))
	}
	return &DB{Conn: conn, Path: path, ReadOnly: true}, nil
}

// Close closes the underlying connection pool
func (d *DB) Close() error {
	return d.Conn.Close()
}

// Checkpoint folds the write-ahead log back into the main file and truncates it.
func (d *DB) Checkpoint(ctx context.Context) error {
	if _, err := d.Conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("failed to checkpoint %s: %w", d.Path, WrapBusy(err))
	}
	return nil
}

// IntegrityCheck opens path read-only and runs PRAGMA integrity_check.
func IntegrityCheck(ctx context.Context, path string, busyTimeoutMS int) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIntegrityCheckFailed, path, err)
	}

	db, err := OpenReadOnly(ctx, path, busyTimeoutMS)
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.Conn.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check on %s: %w", path, WrapBusy(err))
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s: %s", ErrIntegrityCheckFailed, path, result)
	}
	log.Debugf("integrity check ok: %s", path)
	return nil
}

// RemoveFiles deletes a store file and its -wal, -shm and -journal sidecars.
// A sidecar that exists but cannot be removed is an error naming that path.
func RemoveFiles(path string) error {
	for _, ext := range []string{"", "-wal", "-shm", "-journal"} {
		p := path + ext
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s (locked?): %w", p, err)
		}
	}
	return nil
}

// WrapBusy maps SQLite lock contention onto ErrBusy, leaving other errors intact.
func WrapBusy(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
