package duckdb

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// SetMeta records a container metadata value, replacing any previous one.
func (s *Store) SetMeta(key, value string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if _, err := s.db.Exec("DELETE FROM container_meta WHERE key = ?", key); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	if _, err := s.db.Exec("INSERT INTO container_meta VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// Meta returns all container metadata. Parquet containers carry none.
func (s *Store) Meta() (map[string]string, error) {
	meta := make(map[string]string)
	if s.readOnly {
		return meta, nil
	}
	rows, err := s.db.Query("SELECT key, value FROM container_meta")
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// RecordSource stores the fingerprint of the CSV a container was built from.
func (s *Store) RecordSource(fp FileFingerprint, runID string) error {
	values := []struct{ key, val string }{
		{"source_path", fp.Path},
		{"source_size", strconv.FormatInt(fp.Size, 10)},
		{"source_modtime", fp.ModTime.UTC().Format(time.RFC3339Nano)},
		{"run_id", runID},
		{"created_at", time.Now().UTC().Format(time.RFC3339)},
	}
	for _, v := range values {
		if err := s.SetMeta(v.key, v.val); err != nil {
			return err
		}
	}
	return nil
}

// SourceCurrent reports whether the container was built from a file matching fp.
func (s *Store) SourceCurrent(fp FileFingerprint) bool {
	meta, err := s.Meta()
	if err != nil {
		return false
	}
	return meta["source_size"] == strconv.FormatInt(fp.Size, 10) &&
		meta["source_modtime"] == fp.ModTime.UTC().Format(time.RFC3339Nano)
}

// Clear removes all kinetics rows and metadata.
func (s *Store) Clear() error {
	if s.readOnly {
		return ErrReadOnly
	}
	for _, q := range []string{"DELETE FROM kinetics_columns", "DELETE FROM container_meta"} {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("clear container: %w", err)
		}
	}
	return nil
}
