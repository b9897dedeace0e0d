package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, listing_id, variant, status, error_message)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.ListingID,
		job.Variant,
		job.Status,
		job.ErrorMessage,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, user_id, COALESCE(listing_id::text, ''), variant, status, error_message, created_at, updated_at, completed_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.ListingID,
		&job.Variant,
		&job.Status,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// MarkProcessing moves a queued job to processing. Jobs already processing or
// terminal are left untouched so redelivered messages cannot move a job
// backwards.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string) error {
	query := `
UPDATE jobs
SET status = 'processing', updated_at = now()
WHERE id = $1 AND status = 'queued';
`
	_, err := r.pool.Exec(ctx, query, jobID)
	return err
}

// Complete records the aggregate terminal status. completed_at is set only on
// full success; a failed aggregate leaves it NULL.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	query := `
UPDATE jobs
SET status = $2,
    error_message = $3,
    updated_at = now(),
    completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE NULL END
WHERE id = $1 AND status <> $2;
`
	_, err := r.pool.Exec(ctx, query, jobID, status, domain.TruncateError(errMsg))
	return err
}

// ResetForRetry returns a terminal job to the queue. A job still in flight is
// not retryable.
func (r *JobRepositoryPG) ResetForRetry(ctx context.Context, jobID string) error {
	query := `
UPDATE jobs
SET status = 'queued', error_message = '', completed_at = NULL, updated_at = now()
WHERE id = $1 AND status IN ('completed', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotRetryable
	}
	return nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
