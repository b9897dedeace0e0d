package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// PhotoRepositoryPG implements domain.PhotoRepository.
type PhotoRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPhotoRepository creates a new photo repository backed by PostgreSQL.
func NewPhotoRepository(pool *pgxpool.Pool) *PhotoRepositoryPG {
	return &PhotoRepositoryPG{pool: pool}
}

// CreateAll inserts photo rows for a freshly uploaded batch.
func (r *PhotoRepositoryPG) CreateAll(ctx context.Context, photos []domain.Photo) error {
	query := `
INSERT INTO photos (id, job_id, listing_id, raw_key, variant, status)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6);
`
	for i := range photos {
		p := &photos[i]
		if _, err := r.pool.Exec(ctx, query, p.ID, p.JobID, p.ListingID, p.RawKey, p.Variant, p.Status); err != nil {
			return err
		}
	}
	return nil
}

const photoColumns = `
id, job_id, COALESCE(listing_id::text, ''), raw_key,
COALESCE(processed_key, ''), COALESCE(thumbnail_key, ''),
variant, status, error_message, width, height, created_at, processed_at
`

func scanPhoto(row pgx.Row) (*domain.Photo, error) {
	var p domain.Photo
	if err := row.Scan(
		&p.ID,
		&p.JobID,
		&p.ListingID,
		&p.RawKey,
		&p.ProcessedKey,
		&p.ThumbnailKey,
		&p.Variant,
		&p.Status,
		&p.ErrorMessage,
		&p.Width,
		&p.Height,
		&p.CreatedAt,
		&p.ProcessedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID fetches one photo.
func (r *PhotoRepositoryPG) GetByID(ctx context.Context, photoID string) (*domain.Photo, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1;`, photoID)
	p, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListByJobID returns a job's photos in upload order.
func (r *PhotoRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.Photo, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+photoColumns+` FROM photos WHERE job_id = $1 ORDER BY created_at ASC, id ASC;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []domain.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, *p)
	}
	return photos, rows.Err()
}

// MarkProcessing conditionally moves a pending photo to processing. The
// returned bool is false when the photo was already terminal or in flight,
// which a redelivered message must treat as "skip, do not reprocess".
func (r *PhotoRepositoryPG) MarkProcessing(ctx context.Context, photoID string) (bool, error) {
	query := `
UPDATE photos
SET status = 'processing'
WHERE id = $1 AND status IN ('pending', 'processing');
`
	tag, err := r.pool.Exec(ctx, query, photoID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCompleted stores the enhancement output. Terminal photos are never
// overwritten, keeping processed_url and timestamps stable under redelivery.
func (r *PhotoRepositoryPG) MarkCompleted(ctx context.Context, photoID, processedKey, thumbnailKey string, width, height int) error {
	query := `
UPDATE photos
SET status = 'completed',
    processed_key = $2,
    thumbnail_key = NULLIF($3, ''),
    width = $4,
    height = $5,
    error_message = '',
    processed_at = now()
WHERE id = $1 AND status NOT IN ('completed', 'failed');
`
	_, err := r.pool.Exec(ctx, query, photoID, processedKey, thumbnailKey, width, height)
	return err
}

// MarkFailed stores a bounded error message on a non-terminal photo.
func (r *PhotoRepositoryPG) MarkFailed(ctx context.Context, photoID, errMsg string) error {
	query := `
UPDATE photos
SET status = 'failed',
    error_message = $2,
    processed_at = now()
WHERE id = $1 AND status NOT IN ('completed', 'failed');
`
	_, err := r.pool.Exec(ctx, query, photoID, domain.TruncateError(errMsg))
	return err
}

// ResetForRetry clears every photo of a job back to pending, including
// completed ones: retry is a full batch reset, not a resume.
func (r *PhotoRepositoryPG) ResetForRetry(ctx context.Context, jobID string) error {
	query := `
UPDATE photos
SET status = 'pending',
    processed_key = NULL,
    thumbnail_key = NULL,
    error_message = '',
    width = 0,
    height = 0,
    processed_at = NULL
WHERE job_id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID)
	return err
}

var _ domain.PhotoRepository = (*PhotoRepositoryPG)(nil)
