// Package store persists a scoring audit trail in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Entry is one scored row as recorded for audit.
type Entry struct {
	RowID        string    `json:"row_id,omitempty"`
	Probability  *float64  `json:"probability"`
	Error        string    `json:"error,omitempty"`
	ModelVersion string    `json:"model_version"`
	ScoredAt     time.Time `json:"scored_at"`
}

// AuditStore buffers entries and writes them to SQLite in batches so the
// scoring path never waits on disk.
type AuditStore struct {
	db     *sql.DB
	logger *zap.Logger

	mu        sync.Mutex
	buffer    []Entry
	batchSize int

	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
	once          sync.Once
}

// NewAuditStore opens (or creates) the audit database with WAL enabled and
// starts the background flush loop.
func NewAuditStore(path string, batchSize int, flushInterval time.Duration, logger *zap.Logger) (*AuditStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	if _, err := db.Exec(`
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        row_id TEXT,
        probability REAL,
        error TEXT,
        model_version TEXT NOT NULL,
        scored_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_scored_at ON predictions(scored_at);
    `); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit tables: %w", err)
	}

	if batchSize <= 0 {
		batchSize = 200
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}

	store := &AuditStore{
		db:            db,
		logger:        logger,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go store.flushLoop()
	return store, nil
}

// Record buffers one entry; the batch is flushed when full.
func (s *AuditStore) Record(entry Entry) {
	s.mu.Lock()
	s.buffer = append(s.buffer, entry)
	full := len(s.buffer) >= s.batchSize
	s.mu.Unlock()
	if full {
		s.Flush()
	}
}

// Flush writes all buffered entries in one transaction.
func (s *AuditStore) Flush() {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Warn("audit flush failed", zap.Error(err))
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO predictions (row_id, probability, error, model_version, scored_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.logger.Warn("audit flush failed", zap.Error(err))
		return
	}
	for _, entry := range batch {
		var probability interface{}
		if entry.Probability != nil {
			probability = *entry.Probability
		}
		if _, err := stmt.Exec(entry.RowID, probability, entry.Error, entry.ModelVersion, entry.ScoredAt.UTC()); err != nil {
			s.logger.Warn("audit insert failed", zap.Error(err))
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		s.logger.Warn("audit commit failed", zap.Error(err))
	}
}

// Recent returns the latest entries, newest first.
func (s *AuditStore) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT row_id, probability, error, model_version, scored_at FROM predictions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var probability sql.NullFloat64
		if err := rows.Scan(&entry.RowID, &probability, &entry.Error, &entry.ModelVersion, &entry.ScoredAt); err != nil {
			return nil, err
		}
		if probability.Valid {
			p := probability.Float64
			entry.Probability = &p
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close flushes outstanding entries and closes the database.
func (s *AuditStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	s.Flush()
	return s.db.Close()
}

func (s *AuditStore) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.stop:
			return
		}
	}
}
