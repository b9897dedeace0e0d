package enhance

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

type stubHandler struct {
	calls   int
	lastReq Request
	queue   []stubResponse
	url     string
	err     error
}

type stubResponse struct {
	url string
	err error
}

func (s *stubHandler) Enhance(ctx context.Context, req Request) (string, error) {
	s.calls++
	s.lastReq = req
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		return next.url, next.err
	}
	return s.url, s.err
}

func testLogger() infra.Logger {
	return infra.Logger(zerolog.New(io.Discard))
}

func newTestRegistry() (*Registry, *stubHandler, *stubHandler, *stubHandler) {
	openai := &stubHandler{url: "https://cdn.example/openai.jpg"}
	replicate := &stubHandler{url: "https://cdn.example/replicate.jpg"}
	runware := &stubHandler{url: "https://cdn.example/runware.jpg"}
	r := NewRegistry(RegistryOptions{
		Retry:  RetryConfig{Attempts: 3, BaseDelay: time.Millisecond},
		Logger: testLogger(),
	})
	r.Register(ProviderOpenAI, openai)
	r.Register(ProviderReplicate, replicate)
	r.Register(ProviderRunware, runware)
	return r, openai, replicate, runware
}

func TestRegistryRejectsUnknownToolWithoutNetworkCall(t *testing.T) {
	r, openai, replicate, runware := newTestRegistry()

	_, err := r.Enhance(context.Background(), "oil-painting", "https://example.com/a.jpg", nil)
	if !errors.Is(err, domain.ErrUnknownTool) {
		t.Fatalf("error = %v, want ErrUnknownTool", err)
	}
	if openai.calls+replicate.calls+runware.calls != 0 {
		t.Fatal("no handler should be invoked for an unknown tool")
	}
}

func TestRegistryDispatchesByCatalogProvider(t *testing.T) {
	r, openai, replicate, _ := newTestRegistry()

	url, err := r.Enhance(context.Background(), "sky-replacement", "https://example.com/a.jpg", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example/replicate.jpg" {
		t.Fatalf("url = %q, want replicate result", url)
	}
	if replicate.calls != 1 {
		t.Fatalf("replicate calls = %d, want 1", replicate.calls)
	}
	if openai.calls != 0 {
		t.Fatalf("openai calls = %d, want 0", openai.calls)
	}
	if replicate.lastReq.ImageURL != "https://example.com/a.jpg" {
		t.Fatalf("image url not forwarded: %q", replicate.lastReq.ImageURL)
	}
	if replicate.lastReq.Prompt == "" {
		t.Fatal("catalog prompt should be forwarded to the handler")
	}
}

func TestRegistryRetriesTransientFailures(t *testing.T) {
	r, _, replicate, _ := newTestRegistry()
	replicate.queue = []stubResponse{
		{err: Transient(errors.New("503"))},
		{err: Transient(errors.New("503"))},
		{url: "https://cdn.example/final.jpg"},
	}

	url, err := r.Enhance(context.Background(), "twilight", "https://example.com/a.jpg", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example/final.jpg" {
		t.Fatalf("url = %q", url)
	}
	if replicate.calls != 3 {
		t.Fatalf("calls = %d, want 3", replicate.calls)
	}
}

func TestRegistryDoesNotRetryPermanentFailures(t *testing.T) {
	r, openai, _, _ := newTestRegistry()
	openai.err = errors.New("image too large")
	openai.url = ""

	_, err := r.Enhance(context.Background(), "virtual-staging", "https://example.com/a.jpg", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if openai.calls != 1 {
		t.Fatalf("calls = %d, want 1", openai.calls)
	}
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want a provider failure", err)
	}
}

func TestRegistryMarksExhaustedRetriesAsProviderFailure(t *testing.T) {
	r, _, replicate, _ := newTestRegistry()
	replicate.url = ""
	replicate.err = Transient(errors.New("503"))

	_, err := r.Enhance(context.Background(), "twilight", "https://example.com/a.jpg", nil)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want a provider failure", err)
	}
	if !IsTransient(err) {
		t.Fatal("wrapping must preserve the transient marker")
	}
	if replicate.calls != 3 {
		t.Fatalf("calls = %d, want 3", replicate.calls)
	}
}

func TestCatalogToolsHaveConfiguredProviders(t *testing.T) {
	for id, spec := range Catalog {
		if spec.ID != id {
			t.Fatalf("catalog entry %q has mismatched id %q", id, spec.ID)
		}
		switch spec.Provider {
		case ProviderOpenAI, ProviderReplicate, ProviderRunware:
		default:
			t.Fatalf("catalog entry %q has unknown provider %q", id, spec.Provider)
		}
		if spec.Prompt == "" {
			t.Fatalf("catalog entry %q has no prompt", id)
		}
	}
	if !IsKnownTool("hdr") {
		t.Fatal("hdr should be a known tool")
	}
	if IsKnownTool("") {
		t.Fatal("empty id should not be known")
	}
}
