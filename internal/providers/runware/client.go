package runware

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/enhance"
	"server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("runware: api key is required")

// Options configures the Runware task client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits imageInference tasks to the Runware batch endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type inferenceTask struct {
	TaskType       string  `json:"taskType"`
	TaskUUID       string  `json:"taskUUID"`
	Model          string  `json:"model"`
	PositivePrompt string  `json:"positivePrompt"`
	SeedImage      string  `json:"seedImage"`
	Strength       float64 `json:"strength,omitempty"`
	NumberResults  int     `json:"numberResults"`
	OutputFormat   string  `json:"outputFormat,omitempty"`
}

type taskResponse struct {
	Data []struct {
		TaskUUID string `json:"taskUUID"`
		ImageURL string `json:"imageURL"`
	} `json:"data"`
	Errors []struct {
		TaskUUID string `json:"taskUUID"`
		Message  string `json:"message"`
		Code     string `json:"code"`
	} `json:"errors"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.runware.ai/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "runware:100@1"
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Enhance submits one imageInference task seeded with the source image and
// returns the hosted result URL.
func (c *Client) Enhance(ctx context.Context, req enhance.Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	task := inferenceTask{
		TaskType:       "imageInference",
		TaskUUID:       uuid.NewString(),
		Model:          c.model,
		PositivePrompt: req.Prompt,
		SeedImage:      req.ImageURL,
		Strength:       0.7,
		NumberResults:  1,
		OutputFormat:   "JPEG",
	}
	if s, ok := req.Options["strength"]; ok && s != "" {
		var parsed float64
		if _, err := fmt.Sscanf(s, "%f", &parsed); err == nil && parsed > 0 && parsed <= 1 {
			task.Strength = parsed
		}
	}

	payload, err := json.Marshal([]inferenceTask{task})
	if err != nil {
		return "", fmt.Errorf("runware: marshal task: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("runware: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", enhance.Transient(fmt.Errorf("runware: request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", enhance.Transient(fmt.Errorf("runware: read response: %w", err))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", enhance.Transient(fmt.Errorf("runware: status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("runware: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded taskResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("runware: decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return "", fmt.Errorf("runware: task error %s: %s", decoded.Errors[0].Code, decoded.Errors[0].Message)
	}
	for _, item := range decoded.Data {
		if item.ImageURL != "" {
			return item.ImageURL, nil
		}
	}
	return "", fmt.Errorf("runware: response contained no image url")
}

var _ enhance.Handler = (*Client)(nil)
