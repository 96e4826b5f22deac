package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Open opens a private in-memory SQLite database. All state lives for the
// process lifetime only; nothing is written to disk. The single connection
// gives the store one writer while database/sql serializes readers behind it.
func Open() (*sql.DB, error) {
	// A unique name per Open keeps parallel tests from sharing state.
	dsn := fmt.Sprintf("file:bluepulse-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
