// Package embed turns text and images into vectors through an
// OpenAI-compatible /v1/embeddings endpoint.
package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stellarlinkco/vouchvault/internal/config"
)

const (
	providerAPI    = "api"
	providerOllama = "ollama"

	defaultOllamaBaseURL = "http://127.0.0.1:11434"

	modalityImage = "image"
)

// TextEmbedder maps text into the vector space of one model.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ImageEmbedder encodes images, and text into the same space for cross-modal search.
type ImageEmbedder interface {
	TextEmbedder
	EmbedImage(ctx context.Context, path string) ([]float32, error)
}

// Client talks to one embedding model.
type Client struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	expectedDim int
	httpClient  *http.Client
}

type embeddingRequest struct {
	Model    string `json:"model"`
	Input    any    `json:"input"`
	Modality string `json:"modality,omitempty"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func NewClient(cfg config.EmbedderConfig) *Client {
	c := &Client{
		provider:    providerAPI,
		baseURL:     strings.TrimSpace(cfg.BaseURL),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       strings.TrimSpace(cfg.Model),
		expectedDim: cfg.Dimension,
		httpClient:  &http.Client{Timeout: time.Duration(config.DefaultEmbeddingTimeoutMs) * time.Millisecond},
	}
	if p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p != "" {
		c.provider = p
	}
	if cfg.TimeoutMs > 0 {
		c.httpClient.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	if c.provider == providerOllama && c.baseURL == "" {
		c.baseURL = defaultOllamaBaseURL
	}
	return c
}

// Validate reports configuration problems without making a request.
func (c *Client) Validate() error {
	if c.model == "" {
		return fmt.Errorf("missing embedding model")
	}
	_, err := c.resolveBaseURL()
	return err
}

func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("embed text: empty text")
	}
	vec, err := c.request(ctx, embeddingRequest{Model: c.model, Input: trimmed})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return vec, nil
}

// EmbedImage sends the image as a base64 data URI.
func (c *Client) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	uri := "data:" + ImageMediaType(path, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
	vec, err := c.request(ctx, embeddingRequest{Model: c.model, Input: uri, Modality: modalityImage})
	if err != nil {
		return nil, fmt.Errorf("embed image %s: %w", filepath.Base(path), err)
	}
	return vec, nil
}

// ImageMediaType guesses the MIME type from the extension, then the content.
func ImageMediaType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}

func (c *Client) request(ctx context.Context, body embeddingRequest) ([]float32, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.model == "" {
		return nil, fmt.Errorf("missing embedding model")
	}
	baseURL, err := c.resolveBaseURL()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Data) != 1 {
		return nil, fmt.Errorf("response count mismatch: got %d want 1", len(decoded.Data))
	}
	vec := decoded.Data[0].Embedding
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding vector")
	}
	if c.expectedDim > 0 && len(vec) != c.expectedDim {
		return nil, fmt.Errorf("embedding dimension: got %d want %d", len(vec), c.expectedDim)
	}
	return vec, nil
}

func (c *Client) resolveBaseURL() (string, error) {
	baseURL := strings.TrimRight(c.baseURL, "/")
	switch c.provider {
	case "", providerAPI:
		if baseURL == "" {
			return "", fmt.Errorf("missing embedding base url")
		}
		if c.apiKey == "" {
			return "", fmt.Errorf("missing embedding api key")
		}
		return baseURL, nil
	case providerOllama:
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		return baseURL, nil
	default:
		return "", fmt.Errorf("unsupported embedding provider: %s", c.provider)
	}
}
