package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/enhance"
	"server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

// Options configures the OpenAI image-edit client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the OpenAI image edit API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type editResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
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
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-image-1"
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

// Enhance downloads the source image, submits it to the image edit endpoint
// with the tool prompt, and returns the hosted result URL.
func (c *Client) Enhance(ctx context.Context, req enhance.Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	imageData, err := c.fetchImage(ctx, req.ImageURL)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("image", "source.png")
	if err != nil {
		return "", fmt.Errorf("openai: build form: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return "", fmt.Errorf("openai: build form: %w", err)
	}
	_ = form.WriteField("model", c.model)
	_ = form.WriteField("prompt", req.Prompt)
	_ = form.WriteField("response_format", "url")
	for key, value := range req.Options {
		_ = form.WriteField(key, value)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("openai: build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", body)
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", enhance.Transient(fmt.Errorf("openai: request: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", enhance.Transient(fmt.Errorf("openai: read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", enhance.Transient(fmt.Errorf("openai: status %d: %s", resp.StatusCode, snippet(payload)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, snippet(payload))
	}

	var decoded editResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("openai: %s", decoded.Error.Message)
	}
	if len(decoded.Data) == 0 {
		return "", fmt.Errorf("openai: response contained no images")
	}
	result := decoded.Data[0]
	if result.URL != "" {
		return result.URL, nil
	}
	if result.B64JSON != "" {
		return "data:image/png;base64," + result.B64JSON, nil
	}
	return "", fmt.Errorf("openai: response image had neither url nor data")
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: build image fetch: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, enhance.Transient(fmt.Errorf("openai: fetch image: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, enhance.Transient(fmt.Errorf("openai: fetch image: status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 30<<20))
	if err != nil {
		return nil, enhance.Transient(fmt.Errorf("openai: fetch image: %w", err))
	}
	return data, nil
}

func snippet(payload []byte) string {
	const max = 200
	s := strings.TrimSpace(string(payload))
	if len(s) > max {
		return s[:max]
	}
	return s
}

var _ enhance.Handler = (*Client)(nil)
