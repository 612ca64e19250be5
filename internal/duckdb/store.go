// Package duckdb provides a DuckDB-backed log of consensus runs.
// Each run records its provenance and the variant calls it applied, so
// results can be queried per sample after the fact.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for the run log.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS consensus_runs (
		run_id VARCHAR PRIMARY KEY,
		sample_id VARCHAR,
		reference_id VARCHAR,
		bundle_path VARCHAR,
		bundle_size BIGINT,
		bundle_modtime TIMESTAMP,
		reference_path VARCHAR,
		output_path VARCHAR,
		variants INTEGER,
		applied INTEGER,
		dropped INTEGER,
		overlaps INTEGER,
		created_at TIMESTAMP
	)`); err != nil {
		return err
	}

	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS variant_calls (
		run_id VARCHAR,
		sample_id VARCHAR,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		PRIMARY KEY (run_id, pos)
	)`)
	return err
}
