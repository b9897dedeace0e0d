package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/storage"
	"server/pkg/zip"
)

// DownloadJobArchive streams every completed photo of the job as one zip.
func (a *App) DownloadJobArchive(w http.ResponseWriter, r *http.Request) {
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

	var entries []zip.Entry
	for _, p := range photos {
		if p.Status != domain.PhotoStatusCompleted || p.ProcessedKey == "" {
			continue
		}
		data, err := a.Store.Read(r.Context(), p.ProcessedKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("photo_id", p.ID).Msg("api: read processed photo failed")
			continue
		}
		entries = append(entries, zip.Entry{
			Filename: fmt.Sprintf("%s%s", p.ID, path.Ext(p.ProcessedKey)),
			Data:     data,
		})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no completed photos")
		return
	}

	archive := zip.Archive(entries)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// ServeSigned serves storage bytes referenced by a signed URL. Signature and
// expiry are verified before anything is read; no session is required, which
// is what lets the AI providers fetch raw images.
func (a *App) ServeSigned(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "key required")
		return
	}
	q := r.URL.Query()
	if err := a.Store.VerifySignedQuery(key, q.Get("expires"), q.Get("sig")); err != nil {
		if errors.Is(err, storage.ErrExpired) {
			a.error(w, http.StatusForbidden, "expired", "signed url expired")
			return
		}
		a.error(w, http.StatusForbidden, "forbidden", "invalid signature")
		return
	}
	data, err := a.Store.Read(r.Context(), key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "object not found")
		return
	}
	w.Header().Set("Content-Type", contentTypeForKey(key))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
