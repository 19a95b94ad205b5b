package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Config struct {
	// Name identifies the in-memory database. Connections opened with the
	// same name share it; an empty name gets a fresh database.
	Name string
}

// DSN returns the sqlite URI for a named in-memory database.
func DSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
}

// Open opens an in-memory SQLite database. The database lives until the
// returned handle is closed; nothing is written to disk.
func Open(cfg Config) (*sql.DB, error) {
	name := cfg.Name
	if name == "" {
		name = "goalkeeper-" + uuid.NewString()
	}
	conn, err := sql.Open("sqlite", DSN(name))
	if err != nil {
		return nil, err
	}
	// One pinned connection keeps the memory database alive and serializes writers.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	return conn, nil
}
