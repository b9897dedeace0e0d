package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/enhance"
	"server/internal/middleware"
)

// maxUploadBytes caps a whole upload batch.
const maxUploadBytes = 200 << 20

// maxPhotosPerJob caps the batch size of one job.
const maxPhotosPerJob = 20

type createJobForm struct {
	Variant   string `validate:"required"`
	ListingID string `validate:"omitempty,uuid4"`
}

type photoResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	RawURL       string     `json:"raw_url,omitempty"`
	ProcessedURL string     `json:"processed_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	Error        string     `json:"error,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type jobResponse struct {
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`
	Variant     string          `json:"variant"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Photos      []photoResponse `json:"photos"`
}

// CreateJob accepts a multipart upload batch, stores the raw images, creates
// the job and photo rows, and enqueues an enhancement message.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	form := createJobForm{
		Variant:   strings.TrimSpace(r.FormValue("variant")),
		ListingID: strings.TrimSpace(r.FormValue("listing_id")),
	}
	if err := a.validate.Struct(form); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "variant is required")
		return
	}
	if !enhance.IsKnownTool(form.Variant) {
		a.error(w, http.StatusBadRequest, "unknown_tool",
			fmt.Sprintf("unknown enhancement tool %q, known tools: %s", form.Variant, strings.Join(enhance.ToolIDs(), ", ")))
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one photo is required")
		return
	}
	if len(files) > maxPhotosPerJob {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("at most %d photos per job", maxPhotosPerJob))
		return
	}

	jobID := uuid.NewString()
	job := &domain.Job{
		ID:        jobID,
		UserID:    userID,
		ListingID: form.ListingID,
		Variant:   form.Variant,
		Status:    domain.JobStatusQueued,
	}

	photos := make([]domain.Photo, 0, len(files))
	refs := make([]domain.PhotoRef, 0, len(files))
	for _, header := range files {
		data, err := readUpload(header)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("read upload %q: %v", header.Filename, err))
			return
		}
		photoID := uuid.NewString()
		key := rawKeyFor(jobID, photoID, header.Filename)
		storedKey, err := a.Store.Write(r.Context(), key, data)
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("api: store raw upload failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
			return
		}
		photos = append(photos, domain.Photo{
			ID:        photoID,
			JobID:     jobID,
			ListingID: form.ListingID,
			RawKey:    storedKey,
			Variant:   form.Variant,
			Status:    domain.PhotoStatusPending,
		})
		refs = append(refs, domain.PhotoRef{PhotoID: photoID, RawKey: storedKey})
	}

	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("api: create job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	if err := a.Photos.CreateAll(r.Context(), photos); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("api: create photos failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create photos")
		return
	}

	msg := domain.EnhancementMessage{
		JobID:     jobID,
		ListingID: form.ListingID,
		UserID:    userID,
		Variant:   form.Variant,
		Photos:    refs,
	}
	if err := a.Queue.Enqueue(r.Context(), msg); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("api: enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": domain.JobStatusQueued,
		"photos": len(photos),
	})
}

// JobStatus is the polling read path: current job and photo state, no side
// effects, safe at arbitrary frequency.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}
	photos, err := a.Photos.ListByJobID(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: list photos failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load photos")
		return
	}
	a.json(w, http.StatusOK, a.jobResponse(job, photos))
}

// RetryJob performs the full-reset retry: the job returns to queued and every
// photo, completed ones included, returns to pending before a fresh message
// is enqueued.
func (a *App) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}

	photos, err := a.Photos.ListByJobID(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: list photos failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load photos")
		return
	}

	if err := a.Jobs.ResetForRetry(r.Context(), job.ID); err != nil {
		if errors.Is(err, domain.ErrJobNotRetryable) {
			a.error(w, http.StatusConflict, "not_retryable", "job is still in progress")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: reset job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to retry job")
		return
	}
	if err := a.Photos.ResetForRetry(r.Context(), job.ID); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: reset photos failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to retry job")
		return
	}

	refs := make([]domain.PhotoRef, 0, len(photos))
	for _, p := range photos {
		refs = append(refs, domain.PhotoRef{PhotoID: p.ID, RawKey: p.RawKey})
	}
	msg := domain.EnhancementMessage{
		JobID:     job.ID,
		ListingID: job.ListingID,
		UserID:    job.UserID,
		Variant:   job.Variant,
		Photos:    refs,
	}
	if err := a.Queue.Enqueue(r.Context(), msg); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: re-enqueue failed")
		// The job was already flipped to queued; without a message on the
		// queue it would sit there forever and block further retries. Put it
		// back in a terminal state so the caller can retry again.
		if rbErr := a.Jobs.Complete(r.Context(), job.ID, domain.JobStatusFailed, "retry could not be queued"); rbErr != nil {
			a.Logger.Error().Err(rbErr).Str("job_id", job.ID).Msg("api: retry rollback failed")
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": domain.JobStatusQueued,
	})
}

var errMissingJobID = errors.New("job_id required")

// ownedJob resolves the job named in the URL and enforces ownership.
func (a *App) ownedJob(r *http.Request) (*domain.Job, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user context", domain.ErrUnauthorized)
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		return nil, errMissingJobID
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		// Ownership failures look like missing auth to the caller; job
		// existence is not leaked beyond the 401/404 split.
		return nil, fmt.Errorf("%w: job belongs to another user", domain.ErrUnauthorized)
	}
	return job, nil
}

// loadOwnedJob maps ownedJob outcomes onto responses: 404 when unknown, 401
// when owned by someone else.
func (a *App) loadOwnedJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	job, err := a.ownedJob(r)
	if err == nil {
		return job, true
	}
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "caller cannot access this job")
	case errors.Is(err, errMissingJobID):
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	default:
		a.Logger.Error().Err(err).Msg("api: load job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
	}
	return nil, false
}

func (a *App) jobResponse(job *domain.Job, photos []domain.Photo) jobResponse {
	resp := jobResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Variant:     job.Variant,
		Error:       job.ErrorMessage,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		Photos:      make([]photoResponse, 0, len(photos)),
	}
	for _, p := range photos {
		item := photoResponse{
			ID:          p.ID,
			Status:      string(p.Status),
			Width:       p.Width,
			Height:      p.Height,
			Error:       p.ErrorMessage,
			ProcessedAt: p.ProcessedAt,
		}
		item.RawURL = a.signedURL(p.RawKey)
		if p.ProcessedKey != "" {
			item.ProcessedURL = a.signedURL(p.ProcessedKey)
		}
		if p.ThumbnailKey != "" {
			item.ThumbnailURL = a.signedURL(p.ThumbnailKey)
		}
		resp.Photos = append(resp.Photos, item)
	}
	return resp
}

func (a *App) signedURL(key string) string {
	if key == "" {
		return ""
	}
	url, err := a.Store.SignedURL(key, a.Config.SignedURLTTL)
	if err != nil {
		return ""
	}
	return url
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpload, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpload, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidUpload)
	}
	return data, nil
}

func rawKeyFor(jobID, photoID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		ext = ".jpg"
	}
	return fmt.Sprintf("raw/%s/%s%s", jobID, photoID, ext)
}
