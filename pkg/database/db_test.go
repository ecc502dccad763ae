package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := Config{Path: filepath.Join(t.TempDir(), "test.db"), ConnectAttempts: 1}
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))

	var version int
	require.NoError(t, db.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestMigrateRejectsOtherVersion(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`UPDATE schema_version SET version = 99`)
	require.NoError(t, err)

	err = Migrate(context.Background(), db)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO series (id, user_id, publisher_id, name) VALUES ('s1', 'u1', 'missing', 'X')`)
	assert.Error(t, err)
}

func TestStatusValuesAreChecked(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO publishers (id, user_id, name) VALUES ('p1', 'u1', 'P')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO series (id, user_id, publisher_id, name) VALUES ('s1', 'u1', 'p1', 'S')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO issues (id, user_id, series_id, issue_number) VALUES ('i1', 'u1', 's1', '1')`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE issues SET status = 'DONE' WHERE id = 'i1'`)
	assert.Error(t, err)
	_, err = db.Exec(`UPDATE issues SET status = 'SKIPPED' WHERE id = 'i1'`)
	assert.NoError(t, err)

	_, err = db.Exec(`INSERT INTO story_blocks (id, user_id, publisher_id, name, status) VALUES ('b1', 'u1', 'p1', 'B', 'unread')`)
	assert.Error(t, err)
	_, err = db.Exec(`INSERT INTO story_blocks (id, user_id, publisher_id, name) VALUES ('b2', 'u1', 'p1', 'B')`)
	assert.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO publishers (id, user_id, name) VALUES ('p1', 'u1', 'Marvel')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM publishers`).Scan(&n))
	assert.Zero(t, n)
}

func TestWithTxCommits(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO publishers (id, user_id, name) VALUES ('p1', 'u1', 'Marvel')`)
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM publishers`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWithTxRetriesBusy(t *testing.T) {
	db := openTestDB(t)
	calls := 0
	err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.True(t, IsBusy(errors.New("database is locked")))
	assert.False(t, IsBusy(errors.New("constraint failed")))
	assert.False(t, IsBusy(nil))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestParseDate(t *testing.T) {
	d := ParseDate(sql.NullString{String: "1984-05-01", Valid: true})
	require.NotNil(t, d)
	assert.Equal(t, 1984, d.Year())

	ts := ParseDate(sql.NullString{String: time.Date(1990, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339Nano), Valid: true})
	require.NotNil(t, ts)
	assert.Equal(t, 1990, ts.Year())

	assert.Nil(t, ParseDate(sql.NullString{}))
	assert.Nil(t, ParseDate(sql.NullString{String: "garbage", Valid: true}))
}
