package datasetstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store caches preprocessed feature rows per pair in SQLite so repeat
// training runs can skip re-fetching and re-deriving features.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Global dataset store
var GlobalDatasetStore *Store

// Init opens the dataset database and creates tables
func Init(path string) error {
	store, err := Open(path)
	if err != nil {
		return err
	}

	GlobalDatasetStore = store
	log.Printf("Dataset store initialized at %s", path)
	return nil
}

// Open opens a dataset store at the given path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping dataset db: %w", err)
	}

	store := &Store{db: db}
	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// Close closes the dataset database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// createTables creates the required tables
func (s *Store) createTables() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := `
		CREATE TABLE IF NOT EXISTS feature_rows (
			pair      TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			features  TEXT NOT NULL,
			PRIMARY KEY (pair, row_index)
		);
		CREATE TABLE IF NOT EXISTS dataset_meta (
			pair         TEXT PRIMARY KEY,
			row_count    INTEGER NOT NULL,
			num_features INTEGER NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveFeatures replaces the cached feature rows of a pair
func (s *Store) SaveFeatures(pair string, rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("no feature rows to save")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM feature_rows WHERE pair = ?", pair); err != nil {
		return fmt.Errorf("failed to clear old features: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO feature_rows (pair, row_index, features) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		encoded, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode feature row: %w", err)
		}
		if _, err := stmt.Exec(pair, i, string(encoded)); err != nil {
			return fmt.Errorf("failed to insert feature row %d: %w", i, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO dataset_meta (pair, row_count, num_features, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pair) DO UPDATE SET
			row_count = excluded.row_count,
			num_features = excluded.num_features,
			updated_at = excluded.updated_at
	`, pair, len(rows), len(rows[0]), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update dataset meta: %w", err)
	}

	return tx.Commit()
}

// LoadFeatures returns the cached feature rows of a pair in order
func (s *Store) LoadFeatures(pair string) ([][]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT features FROM feature_rows WHERE pair = ? ORDER BY row_index", pair)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var result [][]float64
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, err
		}
		var row []float64
		if err := json.Unmarshal([]byte(encoded), &row); err != nil {
			return nil, fmt.Errorf("failed to decode feature row: %w", err)
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// Meta returns the row count and last update time of a pair's cache
func (s *Store) Meta(pair string) (int, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var updatedAt time.Time
	err := s.db.QueryRow(
		"SELECT row_count, updated_at FROM dataset_meta WHERE pair = ?", pair).
		Scan(&count, &updatedAt)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, fmt.Errorf("no cached dataset for %s", pair)
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	return count, updatedAt, nil
}
