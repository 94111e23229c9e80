//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"biopharma/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, record model.ExperimentRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeExperiment(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO experiments (id, schema_version, codec_version, kind, created_at_utc, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			kind = excluded.kind,
			created_at_utc = excluded.created_at_utc,
			payload = excluded.payload
	`, record.ID, record.SchemaVersion, record.CodecVersion, record.Kind, record.CreatedAtUTC, payload)
	return err
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (model.ExperimentRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ExperimentRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM experiments WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ExperimentRecord{}, false, nil
		}
		return model.ExperimentRecord{}, false, err
	}

	record, err := DecodeExperiment(payload)
	if err != nil {
		return model.ExperimentRecord{}, false, fmt.Errorf("decode experiment %s: %w", id, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]model.ExperimentRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM experiments ORDER BY created_at_utc, id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []model.ExperimentRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		record, err := DecodeExperiment(payload)
		if err != nil {
			return nil, fmt.Errorf("decode experiment %s: %w", id, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			kind TEXT NOT NULL,
			created_at_utc TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
