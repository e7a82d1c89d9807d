// Package duckdb stores per-chromosome kinetics columns in DuckDB.
// A container is either a DuckDB database holding the kinetics_columns table
// or a Parquet file with the same columns, read through DuckDB.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// Store manages a DuckDB connection holding kinetics columns.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
	logger   *zap.Logger
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database. A path ending in .parquet is
// opened read-only as a view over the Parquet file.
func Open(path string) (*Store, error) {
	if IsParquet(path) {
		return openParquet(path)
	}
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create container directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path, logger: zap.NewNop()}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func openParquet(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open parquet container: %w", err)
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	view := fmt.Sprintf(`CREATE VIEW kinetics_columns AS SELECT * FROM read_parquet('%s')`, quote(path))
	if _, err := db.Exec(view); err != nil {
		db.Close()
		return nil, fmt.Errorf("read parquet container: %w", err)
	}
	return &Store{db: db, path: path, readOnly: true, logger: zap.NewNop()}, nil
}

// IsParquet reports whether path names a Parquet container.
func IsParquet(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".parquet")
}

// SetLogger sets the logger for load and write messages.
func (s *Store) SetLogger(l *zap.Logger) {
	s.logger = l
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates the kinetics table if it doesn't exist. Only covered
// slots are stored; idx is the slot's offset in the chromosome's columns.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS container_meta (
		key VARCHAR,
		value VARCHAR
	)`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS kinetics_columns (
		ref_name VARCHAR,
		idx BIGINT,
		tpl BIGINT,
		strand UTINYINT,
		base VARCHAR,
		score UINTEGER,
		t_mean FLOAT,
		t_err FLOAT,
		model_prediction FLOAT,
		ipd_ratio FLOAT,
		coverage UINTEGER,
		frac FLOAT,
		frac_low FLOAT,
		frac_up FLOAT
	)`)
	return err
}

// Count returns the number of stored slots.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM kinetics_columns").Scan(&count); err != nil {
		return 0, fmt.Errorf("count kinetics rows: %w", err)
	}
	return count, nil
}

// Chromosomes returns the sorted chromosome names in the container.
func (s *Store) Chromosomes() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT ref_name FROM kinetics_columns ORDER BY ref_name")
	if err != nil {
		return nil, fmt.Errorf("query chromosomes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan chromosome: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chromosomes: %w", err)
	}
	return names, nil
}

// ExportParquet writes the whole container to a Parquet file.
func (s *Store) ExportParquet(path string) error {
	q := fmt.Sprintf(`COPY (SELECT * FROM kinetics_columns ORDER BY ref_name, idx) TO '%s' (FORMAT PARQUET)`, quote(path))
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("export parquet: %w", err)
	}
	return nil
}

// quote escapes a string for use inside a single-quoted SQL literal.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
