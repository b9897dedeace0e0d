package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/imagemeta"
	"server/internal/infra"
	"server/internal/metrics"
)

// Enhancer dispatches one tool invocation, retries included.
type Enhancer interface {
	Enhance(ctx context.Context, toolID, imageURL string, options map[string]string) (string, error)
}

// Store is the slice of the image store the handler needs.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) (string, error)
	SignedURL(key string, ttl time.Duration) (string, error)
}

// Fetcher downloads enhanced bytes from a provider-hosted URL.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// Handler processes one enhancement message end to end. Photo-level failures
// are recorded and swallowed; only infrastructure errors (database, storage)
// escape, which leaves the message unacknowledged for redelivery. The whole
// handler is re-entrant: conditional status transitions make re-running it on
// a partially complete job a no-op for finished photos.
type Handler struct {
	jobs     domain.JobRepository
	photos   domain.PhotoRepository
	store    Store
	enhancer Enhancer
	fetch    Fetcher
	signTTL  time.Duration
	logger   infra.Logger
}

// NewHandler wires a message handler.
func NewHandler(jobs domain.JobRepository, photos domain.PhotoRepository, store Store, enhancer Enhancer, signTTL time.Duration, logger infra.Logger) *Handler {
	if signTTL <= 0 {
		signTTL = 15 * time.Minute
	}
	return &Handler{
		jobs:     jobs,
		photos:   photos,
		store:    store,
		enhancer: enhancer,
		fetch:    fetchURL,
		signTTL:  signTTL,
		logger:   logger,
	}
}

// ProcessMessage advances every photo in the message sequentially, then
// recomputes the job's aggregate status. The returned error is always an
// infrastructure error; provider failures never escape the per-photo loop.
func (h *Handler) ProcessMessage(ctx context.Context, msg domain.EnhancementMessage) error {
	if err := h.jobs.MarkProcessing(ctx, msg.JobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	for _, ref := range msg.Photos {
		if err := h.processPhoto(ctx, msg, ref); err != nil {
			return err
		}
	}

	return h.finalizeJob(ctx, msg.JobID)
}

func (h *Handler) processPhoto(ctx context.Context, msg domain.EnhancementMessage, ref domain.PhotoRef) error {
	log := h.logger.With().Str("job_id", msg.JobID).Str("photo_id", ref.PhotoID).Str("tool", msg.Variant).Logger()

	photo, err := h.photos.GetByID(ctx, ref.PhotoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("worker: photo referenced by message does not exist, skipping")
			return nil
		}
		return fmt.Errorf("load photo %s: %w", ref.PhotoID, err)
	}
	if photo.Status.Terminal() {
		// Redelivered message over finished work.
		log.Debug().Str("status", string(photo.Status)).Msg("worker: photo already terminal, skipping")
		return nil
	}

	moved, err := h.photos.MarkProcessing(ctx, ref.PhotoID)
	if err != nil {
		return fmt.Errorf("mark photo processing: %w", err)
	}
	if !moved {
		log.Debug().Msg("worker: photo no longer claimable, skipping")
		return nil
	}

	rawURL, err := h.store.SignedURL(ref.RawKey, h.signTTL)
	if err != nil {
		return h.failPhoto(ctx, log, msg.Variant, ref.PhotoID, fmt.Errorf("sign raw url: %w", err))
	}

	start := time.Now()
	enhancedURL, err := h.enhancer.Enhance(ctx, msg.Variant, rawURL, nil)
	metrics.EnhanceDuration.WithLabelValues(msg.Variant).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return h.failPhoto(ctx, log, msg.Variant, ref.PhotoID, err)
	}

	data, err := h.fetch(ctx, enhancedURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return h.failPhoto(ctx, log, msg.Variant, ref.PhotoID, fmt.Errorf("fetch enhanced image: %w", err))
	}

	processedKey, err := h.store.Write(ctx, processedKeyFor(msg.JobID, ref.PhotoID), data)
	if err != nil {
		return fmt.Errorf("persist enhanced image: %w", err)
	}

	width, height, dimErr := imagemeta.Dimensions(data)
	if dimErr != nil {
		log.Warn().Err(dimErr).Msg("worker: could not read enhanced image dimensions")
	}

	thumbnailKey := ""
	if thumb, err := imagemeta.Thumbnail(data); err == nil {
		if key, err := h.store.Write(ctx, thumbnailKeyFor(msg.JobID, ref.PhotoID), thumb); err == nil {
			thumbnailKey = key
		} else {
			log.Warn().Err(err).Msg("worker: persist thumbnail failed")
		}
	} else {
		log.Warn().Err(err).Msg("worker: thumbnail generation failed")
	}

	if err := h.photos.MarkCompleted(ctx, ref.PhotoID, processedKey, thumbnailKey, width, height); err != nil {
		return fmt.Errorf("mark photo completed: %w", err)
	}

	metrics.PhotosEnhanced.WithLabelValues(msg.Variant, "completed").Inc()
	log.Info().Dur("took", time.Since(start)).Msg("worker: photo enhanced")
	return nil
}

// failPhoto records a permanent per-photo failure and swallows it so sibling
// photos still get processed. A database error while recording does escape.
func (h *Handler) failPhoto(ctx context.Context, log infra.Logger, tool, photoID string, cause error) error {
	log.Error().Err(cause).Msg("worker: photo enhancement failed")
	if err := h.photos.MarkFailed(ctx, photoID, cause.Error()); err != nil {
		return fmt.Errorf("mark photo failed: %w", err)
	}
	metrics.PhotosEnhanced.WithLabelValues(tool, "failed").Inc()
	return nil
}

// finalizeJob re-reads every photo belonging to the job and writes the
// aggregate status: completed only when all photos completed, failed as soon
// as any photo failed. Photos still in flight (a crashed sibling delivery)
// leave the job in processing for a later delivery to finalize.
func (h *Handler) finalizeJob(ctx context.Context, jobID string) error {
	photos, err := h.photos.ListByJobID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list job photos: %w", err)
	}
	if len(photos) == 0 {
		return h.jobs.Complete(ctx, jobID, domain.JobStatusFailed, "job has no photos")
	}

	failed := 0
	for _, p := range photos {
		switch p.Status {
		case domain.PhotoStatusFailed:
			failed++
		case domain.PhotoStatusCompleted:
		default:
			return nil
		}
	}

	if failed == 0 {
		return h.jobs.Complete(ctx, jobID, domain.JobStatusCompleted, "")
	}
	msg := fmt.Sprintf("%d of %d photos failed enhancement", failed, len(photos))
	return h.jobs.Complete(ctx, jobID, domain.JobStatusFailed, msg)
}

func processedKeyFor(jobID, photoID string) string {
	return fmt.Sprintf("processed/%s/%s.jpg", jobID, photoID)
}

func thumbnailKeyFor(jobID, photoID string) string {
	return fmt.Sprintf("thumbnails/%s/%s.jpg", jobID, photoID)
}

// fetchURL retrieves enhanced bytes, handling both hosted URLs and the data
// URLs some providers return for inline results.
func fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "data:") {
		idx := strings.Index(rawURL, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data url")
		}
		data, err := base64.StdEncoding.DecodeString(rawURL[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("decode data url: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return data, nil
}
