package eval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists evaluation runs and their per-case results in sqlite.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			mode TEXT NOT NULL,
			cases INTEGER NOT NULL DEFAULT 0,
			passed INTEGER NOT NULL DEFAULT 0,
			started_at_unix INTEGER NOT NULL,
			finished_at_unix INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS case_results (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			case_id INTEGER NOT NULL,
			question TEXT NOT NULL,
			expected TEXT NOT NULL,
			actual TEXT NOT NULL,
			status TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			duration_seconds REAL NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL,
			UNIQUE(run_id, case_id),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, id, model, mode string, cases int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, model, mode, cases, started_at_unix) VALUES (?, ?, ?, ?, ?)`,
		id, model, mode, cases, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, id string, passed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET passed = ?, finished_at_unix = ? WHERE id = ?`,
		passed, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *Store) RecordResult(ctx context.Context, id, runID string, entry Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO case_results (
			id, run_id, case_id, question, expected, actual, status,
			input_tokens, output_tokens, duration_seconds, created_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID, entry.ID, entry.Q, entry.Expected, entry.Actual, entry.Status,
		entry.InputTokens, entry.OutputTokens, entry.DurationSeconds,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert case result: %w", err)
	}
	return nil
}

// ResultsForRun returns a run's entries ordered by case id.
func (s *Store) ResultsForRun(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT case_id, question, expected, actual, status,
			input_tokens, output_tokens, duration_seconds
		FROM case_results WHERE run_id = ? ORDER BY case_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query case results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.ID, &entry.Q, &entry.Expected, &entry.Actual, &entry.Status,
			&entry.InputTokens, &entry.OutputTokens, &entry.DurationSeconds,
		); err != nil {
			return nil, fmt.Errorf("scan case result: %w", err)
		}
		entry.TotalTokens = entry.InputTokens + entry.OutputTokens
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
