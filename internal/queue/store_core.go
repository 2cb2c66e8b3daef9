package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"collage/internal/config"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db           *sql.DB
	path         string
	pollInterval time.Duration
	now          func() time.Time
}

// busyTimeout is how long a connection waits on a competing writer before
// SQLITE_BUSY surfaces. It applies to every pooled connection.
const busyTimeout = 5 * time.Second

// connPragmas run on each new connection the pool opens.
var connPragmas = []string{
	"journal_mode(WAL)",
	fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()),
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// dataSourceName carries the pragmas in the DSN so the driver applies them to
// every connection rather than only the first.
func dataSourceName(path string) string {
	params := url.Values{}
	for _, pragma := range connPragmas {
		params.Add("_pragma", pragma)
	}
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.QueueDBPath()
	db, err := sql.Open("sqlite", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), busyTimeout+time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite db %s: %w", dbPath, err)
	}

	store := &Store{
		db:           db,
		path:         dbPath,
		pollInterval: cfg.PollInterval(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("queue database connection unavailable")
	}
	if err := s.db.PingContext(ensureContext(ctx)); err != nil {
		return fmt.Errorf("ping queue database: %w", err)
	}
	return nil
}

func (s *Store) timestamp() (time.Time, string) {
	now := s.now().UTC()
	return now, FormatTime(now)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// sqliteBusy is the primary result code shared by SQLITE_BUSY and its
// extended variants (busy_snapshot, busy_recovery).
const sqliteBusy = 5

func isBusy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()&0xff == sqliteBusy
	}
	return err != nil && (strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked"))
}

// Busy errors that outlast busyTimeout are rare; they come from WAL snapshot
// conflicts the driver cannot wait out, so a short bounded retry follows.
var busyBackoff = []time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
}

func retryOnBusy(ctx context.Context, op func() error) error {
	err := op()
	for _, delay := range busyBackoff {
		if !isBusy(err) {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		err = op()
	}
	return err
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
