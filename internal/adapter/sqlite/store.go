// Package sqlite persists analysis results in a SQLite database so they can
// be listed and looked up after the fact.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// Store is a SQLite-backed result store. It implements pipeline.BatchLoader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and migrates it to the latest
// schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	// A single connection keeps pragmas and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure result store: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts or replaces a result. A redelivered request overwrites its
// earlier result.
func (s *Store) Save(ctx context.Context, result domain.AnalysisResult) error {
	return s.saveAll(ctx, []domain.AnalysisResult{result})
}

// LoadBatch saves every result in one transaction.
func (s *Store) LoadBatch(ctx context.Context, results []domain.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.saveAll(ctx, results)
}

// sortableTime is a fixed-width layout so analyzed_at orders lexically.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

const upsertResult = `
INSERT INTO analysis_results (id, video_path, status, analyzed_at, result)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    video_path  = excluded.video_path,
    status      = excluded.status,
    analyzed_at = excluded.analyzed_at,
    result      = excluded.result`

func (s *Store) saveAll(ctx context.Context, results []domain.AnalysisResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertResult)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if r.ID == "" {
			return errors.New("save result: missing id")
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("save result %s: %w", r.ID, err)
		}
		at := r.AnalyzedAt.UTC().Format(sortableTime)
		if _, err := stmt.ExecContext(ctx, r.ID, r.VideoPath, r.Status, at, string(data)); err != nil {
			return fmt.Errorf("save result %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debug("stored results", "count", len(results))
	return nil
}

// Get returns the result with the given ID or domain.ErrResultNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.AnalysisResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM analysis_results WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AnalysisResult{}, fmt.Errorf("get %s: %w", id, domain.ErrResultNotFound)
	}
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("get %s: %w", id, err)
	}
	return decodeResult(data)
}

// List returns up to limit results, most recently analyzed first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.AnalysisResult, error) {
	if limit < 1 {
		return nil, fmt.Errorf("list results: limit must be >= 1, got %d", limit)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM analysis_results ORDER BY analyzed_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []domain.AnalysisResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		r, err := decodeResult(data)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

func decodeResult(data string) (domain.AnalysisResult, error) {
	var r domain.AnalysisResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode stored result: %w", err)
	}
	return r, nil
}
