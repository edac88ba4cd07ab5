package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps entity states in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A pooled ":memory:" database would give each connection its own copy.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entity_states (
		unique_id TEXT PRIMARY KEY,
		device TEXT NOT NULL,
		is_on INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entity_states_device ON entity_states(device);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load implements Store.
func (s *SQLiteStore) Load(id string) (EntityState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st EntityState
	err := s.db.QueryRow(`
		SELECT unique_id, device, is_on, updated_at
		FROM entity_states WHERE unique_id = ?
	`, id).Scan(&st.UniqueID, &st.Device, &st.On, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EntityState{}, false, nil
	}
	if err != nil {
		return EntityState{}, false, err
	}
	return st, true, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(state EntityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO entity_states (unique_id, device, is_on, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			device = excluded.device,
			is_on = excluded.is_on,
			updated_at = excluded.updated_at
	`, state.UniqueID, state.Device, state.On, state.UpdatedAt.UTC())
	return err
}

// All implements Store.
func (s *SQLiteStore) All() ([]EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT unique_id, device, is_on, updated_at
		FROM entity_states ORDER BY unique_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntityState
	for rows.Next() {
		var st EntityState
		if err := rows.Scan(&st.UniqueID, &st.Device, &st.On, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Prune implements Store.
func (s *SQLiteStore) Prune(device string, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM entity_states WHERE device = ?`
	args := []any{device}
	if len(keep) > 0 {
		query += ` AND unique_id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
