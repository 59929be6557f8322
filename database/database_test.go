package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := InitDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:x.db?"+connParams, DSN("x.db"))
	assert.Equal(t, "file:x.db?mode=rwc&"+connParams, DSN("x.db?mode=rwc"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, _ := openTemp(t)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "groups", "group_members", "group_invites", "meetups", "meetup_participants"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db, _ := openTemp(t)
	_, err := db.Exec(`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (1, 1, 'member', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (email, password_hash, created_at) VALUES ('a@x', 'h', CURRENT_TIMESTAMP)`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Zero(t, n)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = WithTx(ctx, db, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO users (email, password_hash, created_at) VALUES ('a@x', 'h', CURRENT_TIMESTAMP)`)
			panic("boom")
		})
	})

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Zero(t, n)
}

func TestWithTxCommits(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (email, password_hash, created_at) VALUES ('a@x', 'h', CURRENT_TIMESTAMP)`)
		return err
	}))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestReopenKeepsData(t *testing.T) {
	db, path := openTemp(t)
	_, err := db.Exec(`INSERT INTO users (email, password_hash, created_at) VALUES ('a@x', 'h', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	again, err := InitDB(path)
	require.NoError(t, err)
	defer again.Close()
	var n int
	require.NoError(t, again.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
}
