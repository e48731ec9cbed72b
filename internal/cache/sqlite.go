package cache

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/segmentio/encoding/json"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS errors (
	key        TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	record     BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (key, idx)
);`

// SQLiteStore keeps bodies in a single sqlite database file.
type SQLiteStore struct {
	db *sql.DB
	instrumented
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, reg *metrics.Registry) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	// one writer at a time; the cache sinks write concurrently
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &SQLiteStore{db: db, instrumented: instrumented{name: "sqlite", metrics: reg}}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM cache WHERE key = ?`, key).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = errors.ErrNotFound
	}
	s.lookup(err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache (key, body, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, created_at = excluded.created_at`,
		key, body, time.Now().UTC())
	s.wrote("body", err)
	return err
}

func (s *SQLiteStore) PutError(ctx context.Context, key string, index int, cause error) error {
	data, err := json.Marshal(NewErrorRecord(cause))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO errors (key, idx, record, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key, idx) DO UPDATE SET record = excluded.record, created_at = excluded.created_at`,
		key, index, data, time.Now().UTC())
	s.wrote("error", err)
	return err
}

// ErrorRecord returns the error recorded for key and index.
func (s *SQLiteStore) ErrorRecord(ctx context.Context, key string, index int) (ErrorRecord, error) {
	var (
		rec  ErrorRecord
		data []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT record FROM errors WHERE key = ? AND idx = ?`, key, index).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return rec, errors.ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal(data, &rec)
	return rec, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
