package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const InMemory = ":memory:"

// OpenSQLite opens the sqlite file at path. An in-memory database is
// limited to one connection, otherwise every connection sees its own
// empty database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != InMemory {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if path == InMemory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
