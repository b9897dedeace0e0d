package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/storage"
)

// Enqueuer is the queue surface the API needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg domain.EnhancementMessage) error
}

// App bundles the handler dependencies.
type App struct {
	Jobs     domain.JobRepository
	Photos   domain.PhotoRepository
	Queue    Enqueuer
	Store    *storage.FileStore
	Config   *infra.Config
	Logger   infra.Logger
	validate *validator.Validate
}

// NewApp constructs the handler container.
func NewApp(jobs domain.JobRepository, photos domain.PhotoRepository, queue Enqueuer, store *storage.FileStore, cfg *infra.Config, logger infra.Logger) *App {
	return &App{
		Jobs:     jobs,
		Photos:   photos,
		Queue:    queue,
		Store:    store,
		Config:   cfg,
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}
