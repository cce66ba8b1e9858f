package journal

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const upsertEntry = `
INSERT INTO download_jobs (job_id, user_id, query, format, state, error, size_bytes, created_at, updated_at)
VALUES (:job_id, :user_id, :query, :format, :state, :error, :size_bytes, :created_at, :updated_at)
ON CONFLICT (job_id) DO UPDATE SET
	state = EXCLUDED.state,
	error = EXCLUDED.error,
	size_bytes = EXCLUDED.size_bytes,
	updated_at = EXCLUDED.updated_at`

const selectRecent = `
SELECT job_id, user_id, query, format, state, error, size_bytes, created_at, updated_at
FROM download_jobs
ORDER BY created_at DESC
LIMIT $1`

// Postgres stores entries in the download_jobs table created by the migrations.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open connection pool. Close closes the pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Record upserts the entry by job id.
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	if _, err := p.db.NamedExecContext(ctx, upsertEntry, e); err != nil {
		return fmt.Errorf("journal: upsert %s: %w", e.JobID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []Entry
	if err := p.db.SelectContext(ctx, &out, selectRecent, limit); err != nil {
		return nil, fmt.Errorf("journal: select recent: %w", err)
	}
	return out, nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
