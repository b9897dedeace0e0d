package domain

import "context"

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// MarkProcessing transitions a queued job to processing. It is a no-op
	// when the job is already processing or terminal, which makes message
	// redelivery safe.
	MarkProcessing(ctx context.Context, jobID string) error
	// Complete sets the terminal status computed from the job's photos.
	// completed_at is set only when status is completed.
	Complete(ctx context.Context, jobID string, status JobStatus, errMsg string) error
	// ResetForRetry moves a terminal job back to queued and clears its error.
	ResetForRetry(ctx context.Context, jobID string) error
}

// PhotoRepository defines persistence for photo entities.
type PhotoRepository interface {
	CreateAll(ctx context.Context, photos []Photo) error
	GetByID(ctx context.Context, photoID string) (*Photo, error)
	ListByJobID(ctx context.Context, jobID string) ([]Photo, error)
	// MarkProcessing transitions a pending photo to processing and reports
	// whether the transition happened. A photo already terminal is left
	// untouched so a redelivered message cannot clobber finished work.
	MarkProcessing(ctx context.Context, photoID string) (bool, error)
	// MarkCompleted records the processed output. Only a non-terminal photo
	// is updated.
	MarkCompleted(ctx context.Context, photoID, processedKey, thumbnailKey string, width, height int) error
	// MarkFailed records a bounded error message. Only a non-terminal photo
	// is updated.
	MarkFailed(ctx context.Context, photoID, errMsg string) error
	// ResetForRetry returns every photo of the job to pending, clearing
	// processed output and errors, including previously completed photos.
	ResetForRetry(ctx context.Context, jobID string) error
}
