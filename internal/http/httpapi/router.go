package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"server/internal/http/handlers"
	"server/internal/infra/geoip"
	"server/internal/middleware"
)

// NewRouter assembles the API surface and middleware chain.
func NewRouter(app *handlers.App, country geoip.CountryResolver) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(app.Config.AllowedOrigins))

	var lookup middleware.CountryLookup
	if country != nil {
		lookup = country.CountryCode
	}
	r.Use(middleware.I18N("en", lookup))

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Signed storage access, no session required.
	r.Get("/static/*", app.ServeSigned)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))
		r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))

		r.Post("/", app.CreateJob)
		r.Get("/{job_id}", app.JobStatus)
		r.Post("/{job_id}/retry", app.RetryJob)
		r.Get("/{job_id}/download", app.DownloadJobArchive)
	})

	return r
}
