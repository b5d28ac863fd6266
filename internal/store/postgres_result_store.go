package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dunamismax/webopt/internal/domain"
	_ "github.com/lib/pq"
)

const resultSchemaSQL = `
CREATE TABLE IF NOT EXISTS optimize_results (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	source_path TEXT NOT NULL,
	output_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL DEFAULT '',
	orig_width INTEGER NOT NULL DEFAULT 0,
	orig_height INTEGER NOT NULL DEFAULT 0,
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	source_bytes BIGINT NOT NULL DEFAULT 0,
	output_bytes BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	processed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS optimize_results_run_id_idx ON optimize_results (run_id);
`

type PostgresResultStore struct {
	db *sql.DB
}

func NewPostgresResultStore(ctx context.Context, dsn string) (*PostgresResultStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresResultStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, resultSchemaSQL); err != nil {
		return fmt.Errorf("ensure optimize_results schema: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) Close() error {
	return s.db.Close()
}

func (s *PostgresResultStore) SaveResult(ctx context.Context, runID string, r domain.FileResult) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO optimize_results (
			run_id, name, source_path, output_path, status, reason, error, format,
			orig_width, orig_height, width, height, source_bytes, output_bytes,
			duration_ms, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		runID,
		r.Name,
		r.SourcePath,
		r.OutputPath,
		r.Status,
		r.Reason,
		r.Error,
		r.Format,
		r.OrigWidth,
		r.OrigHeight,
		r.Width,
		r.Height,
		r.SourceBytes,
		r.OutputBytes,
		r.Duration.Milliseconds(),
		r.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) ListResults(ctx context.Context, runID string) ([]domain.FileResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, source_path, output_path, status, reason, error, format,
		        orig_width, orig_height, width, height, source_bytes, output_bytes,
		        duration_ms, processed_at
		 FROM optimize_results
		 WHERE run_id = $1
		 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []domain.FileResult
	for rows.Next() {
		var (
			r          domain.FileResult
			durationMS int64
		)
		if err := rows.Scan(
			&r.Name,
			&r.SourcePath,
			&r.OutputPath,
			&r.Status,
			&r.Reason,
			&r.Error,
			&r.Format,
			&r.OrigWidth,
			&r.OrigHeight,
			&r.Width,
			&r.Height,
			&r.SourceBytes,
			&r.OutputBytes,
			&durationMS,
			&r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}
