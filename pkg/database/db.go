package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/mattn/go-sqlite3"
)

type Config struct {
	Path string

	// ConnectAttempts and ConnectDelay bound the startup retry when the store
	// is not reachable yet.
	ConnectAttempts uint
	ConnectDelay    time.Duration
	BusyTimeout     time.Duration
}

func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		Path:            filepath.Join(home, ".comictracker", "data.db"),
		ConnectAttempts: 5,
		ConnectDelay:    2 * time.Second,
		BusyTimeout:     5 * time.Second,
	}
}

func EnsureDataDir(cfg Config) error {
	return os.MkdirAll(filepath.Dir(cfg.Path), 0o755)
}

func dsn(cfg Config) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", fmt.Sprintf("%d", busy.Milliseconds()))
	// write transactions take the reserved lock up front so busy_timeout applies
	q.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open connects to the SQLite store, retrying a bounded number of times.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := EnsureDataDir(cfg); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	var db *sql.DB
	err := retry.Do(
		func() error {
			conn, err := sql.Open("sqlite3", dsn(cfg))
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			if err := conn.PingContext(ctx); err != nil {
				_ = conn.Close()
				return fmt.Errorf("ping sqlite: %w", err)
			}
			var fk int
			if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk); err != nil || fk != 1 {
				_ = conn.Close()
				return retry.Unrecoverable(fmt.Errorf("pragma foreign_keys not enabled"))
			}
			db = conn
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(cfg.ConnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func MustOpen(ctx context.Context, cfg Config) *sql.DB {
	db, err := Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	return db
}
