package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// connParams is appended to every data source name. _txlock=immediate makes
// BeginTx take the write lock up front, so a read-then-write inside one
// transaction cannot interleave with another writer.
const connParams = "_foreign_keys=on&_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate"

// DSN builds the sqlite data source name for a database file.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + connParams
}

// InitDB opens the database at path and applies pending migrations.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
