package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"server/internal/enhance"
)

func testClient(serverURL string) *Client {
	return NewClient(Options{
		APIKey:       "test-key",
		BaseURL:      serverURL,
		Version:      "model-version",
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  time.Second,
	})
}

func TestEnhancePollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			if got := r.Header.Get("Authorization"); got != "Token test-key" {
				t.Errorf("Authorization = %q", got)
			}
			var req predictionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.Input["image"] != "https://example.test/raw.jpg" {
				t.Errorf("input image = %v", req.Input["image"])
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(predictionResponse{ID: "pred-1", Status: "starting"})
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/pred-1":
			if polls.Add(1) < 2 {
				json.NewEncoder(w).Encode(predictionResponse{ID: "pred-1", Status: "processing"})
				return
			}
			json.NewEncoder(w).Encode(predictionResponse{
				ID:     "pred-1",
				Status: "succeeded",
				Output: json.RawMessage(`["https://cdn.example.test/out.jpg"]`),
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	url, err := testClient(srv.URL).Enhance(context.Background(), enhance.Request{
		ImageURL: "https://example.test/raw.jpg",
		Prompt:   "replace the sky",
	})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if url != "https://cdn.example.test/out.jpg" {
		t.Fatalf("url = %q", url)
	}
	if polls.Load() < 2 {
		t.Fatalf("polled %d times, want at least 2", polls.Load())
	}
}

func TestEnhanceFailedPredictionIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(predictionResponse{ID: "pred-1", Status: "failed", Error: "model overloaded"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Enhance(context.Background(), enhance.Request{ImageURL: "u", Prompt: "p"})
	if err == nil {
		t.Fatal("want error for failed prediction")
	}
	if !enhance.IsTransient(err) {
		t.Fatalf("failed prediction should be retryable, got %v", err)
	}
}

func TestEnhanceRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Enhance(context.Background(), enhance.Request{ImageURL: "u", Prompt: "p"})
	if !enhance.IsTransient(err) {
		t.Fatalf("429 should be transient, got %v", err)
	}
}

func TestEnhanceClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"invalid version"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Enhance(context.Background(), enhance.Request{ImageURL: "u", Prompt: "p"})
	if err == nil {
		t.Fatal("want error for 422")
	}
	if enhance.IsTransient(err) {
		t.Fatalf("422 must not be retried, got %v", err)
	}
}

func TestEnhanceRequiresAPIKey(t *testing.T) {
	client := NewClient(Options{})
	if client.HasCredentials() {
		t.Fatal("empty options should have no credentials")
	}
	_, err := client.Enhance(context.Background(), enhance.Request{ImageURL: "u", Prompt: "p"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestOutputURLShapes(t *testing.T) {
	if url, err := outputURL(json.RawMessage(`"https://a/x.jpg"`)); err != nil || url != "https://a/x.jpg" {
		t.Fatalf("string output: %q, %v", url, err)
	}
	if url, err := outputURL(json.RawMessage(`["https://a/x.jpg","https://a/y.jpg"]`)); err != nil || url != "https://a/x.jpg" {
		t.Fatalf("array output: %q, %v", url, err)
	}
	if _, err := outputURL(json.RawMessage(`{"weird":true}`)); err == nil {
		t.Fatal("object output should be rejected")
	}
	if _, err := outputURL(nil); err == nil {
		t.Fatal("empty output should be rejected")
	}
}
