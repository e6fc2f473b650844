// Package db keeps the last good copy of each sheet in DuckDB so a restart
// can show data before the first fetch completes.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	// DataDir holds the duckdb/ subdirectory. Empty opens an in-memory
	// database.
	DataDir string
	DBName  string
}

// Open opens the DuckDB database described by cfg and creates its schema.
func Open(cfg Config) (*sql.DB, error) {
	dbPath := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dbPath = filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return conn, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS sheet_snapshots (
	kind       VARCHAR PRIMARY KEY,
	source     VARCHAR NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	row_count  INTEGER NOT NULL,
	payload    VARCHAR NOT NULL
)`
