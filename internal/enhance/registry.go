package enhance

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"server/internal/domain"
	"server/internal/infra"
)

// Request is the normalized input handed to any provider handler.
type Request struct {
	ImageURL string
	Prompt   string
	Options  map[string]string
}

// Handler is the uniform contract every provider integration satisfies. The
// returned string is a fetchable URL for the enhanced image.
type Handler interface {
	Enhance(ctx context.Context, req Request) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

func (f HandlerFunc) Enhance(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Registry binds catalog tools to provider handlers and dispatches uniformly.
// Calls are throttled per provider and wrapped in the retry policy, so call
// sites stay ignorant of which third-party service backs a given tool.
type Registry struct {
	handlers map[string]Handler
	limiters map[string]*rate.Limiter
	retry    RetryConfig
	rps      float64
	logger   infra.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Retry RetryConfig
	// ProviderRPS throttles outbound calls per provider; zero disables
	// throttling.
	ProviderRPS float64
	Logger      infra.Logger
}

// NewRegistry creates an empty registry. Tools are bound with Register.
func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		limiters: make(map[string]*rate.Limiter),
		retry:    opts.Retry,
		logger:   opts.Logger,
		rps:      opts.ProviderRPS,
	}
}

// Register binds a provider handler to every catalog tool backed by that
// provider. Unknown provider labels are ignored.
func (r *Registry) Register(provider string, handler Handler) {
	for id, spec := range Catalog {
		if spec.Provider == provider {
			r.handlers[id] = handler
		}
	}
	if r.rps > 0 {
		if _, ok := r.limiters[provider]; !ok {
			r.limiters[provider] = rate.NewLimiter(rate.Limit(r.rps), 1)
		}
	}
}

// Enhance dispatches to the handler registered for toolID. An unknown tool is
// a caller error returned synchronously, before any network activity.
// Transient provider failures are retried with exponential backoff; the final
// error is returned once attempts are exhausted.
func (r *Registry) Enhance(ctx context.Context, toolID, imageURL string, options map[string]string) (string, error) {
	spec, ok := Catalog[toolID]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownTool, toolID)
	}
	handler, ok := r.handlers[toolID]
	if !ok {
		return "", fmt.Errorf("%w: %q has no configured provider", domain.ErrUnknownTool, toolID)
	}

	limiter := r.limiters[spec.Provider]
	req := Request{ImageURL: imageURL, Prompt: spec.Prompt, Options: options}

	var enhancedURL string
	err := WithRetry(ctx, r.retry, func(ctx context.Context) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		url, err := handler.Enhance(ctx, req)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("tool", toolID).
				Str("provider", spec.Provider).
				Msg("enhance: provider call failed")
			return err
		}
		enhancedURL = url
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	return enhancedURL, nil
}
