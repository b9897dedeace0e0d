package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/enhance"
	"server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("replicate: api key is required")

// Options configures the Replicate prediction client.
type Options struct {
	APIKey       string
	BaseURL      string
	Version      string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client drives the Replicate prediction API: create a prediction, then poll
// it until it reaches a terminal state.
type Client struct {
	apiKey       string
	baseURL      string
	version      string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 3 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		version:      strings.TrimSpace(opts.Version),
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Enhance creates a prediction for the image and prompt, polls until the
// prediction settles, and returns the first output URL.
func (c *Client) Enhance(ctx context.Context, req enhance.Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	input := map[string]any{
		"image":  req.ImageURL,
		"prompt": req.Prompt,
	}
	for key, value := range req.Options {
		input[key] = value
	}

	created, err := c.createPrediction(ctx, predictionRequest{Version: c.version, Input: input})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	current := created
	for {
		switch current.Status {
		case "succeeded":
			return outputURL(current.Output)
		case "failed", "canceled":
			// Model-side failures are often capacity related, so allow a
			// fresh prediction on the next retry attempt.
			return "", enhance.Transient(fmt.Errorf("replicate: prediction %s: %s", current.Status, current.Error))
		}

		select {
		case <-ctx.Done():
			return "", enhance.Transient(fmt.Errorf("replicate: poll prediction %s: %w", created.ID, ctx.Err()))
		case <-time.After(c.pollInterval):
		}

		current, err = c.getPrediction(ctx, created.ID)
		if err != nil {
			return "", err
		}
	}
}

func (c *Client) createPrediction(ctx context.Context, req predictionRequest) (*predictionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, http.StatusCreated)
}

func (c *Client) getPrediction(ctx context.Context, id string) (*predictionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.apiKey)
	return c.do(httpReq, http.StatusOK)
}

func (c *Client) do(req *http.Request, wantStatus int) (*predictionResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, enhance.Transient(fmt.Errorf("replicate: request: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, enhance.Transient(fmt.Errorf("replicate: read response: %w", err))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, enhance.Transient(fmt.Errorf("replicate: status %d", resp.StatusCode))
	}
	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("replicate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded predictionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("replicate: decode response: %w", err)
	}
	return &decoded, nil
}

// outputURL normalizes the heterogeneous prediction output shapes: some
// models return a bare string, others an array of URLs.
func outputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("replicate: prediction produced no output")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", fmt.Errorf("replicate: unrecognized output shape: %s", string(raw))
}

var _ enhance.Handler = (*Client)(nil)
