package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"esgrag/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
// It makes exactly one request per Embed call and never retries.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		model:   cfg.Model,
		client:  &http.Client{Timeout: t},
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	type reqBody struct {
		Input string `json:"input"`
		Model string `json:"model"`
	}
	if strings.TrimSpace(text) == "" {
		return nil, c.fail(0, fmt.Errorf("empty input: %w", domain.ErrBadRequest))
	}
	data, err := json.Marshal(reqBody{Input: text, Model: c.model})
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("marshaling request: %v: %w", err, domain.ErrBadRequest))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("creating request: %v: %w", err, domain.ErrBadRequest))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, c.fail(0, ctxErr)
		}
		return nil, c.fail(0, fmt.Errorf("%v: %w", err, domain.ErrUnavailable))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		return nil, c.fail(resp.StatusCode, fmt.Errorf("%s: %w", msg, domain.StatusKind(resp.StatusCode)))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("reading response: %v: %w", err, domain.ErrUnavailable))
	}
	v, err := decodeEmbedding(payload)
	if err != nil {
		return nil, c.fail(0, err)
	}
	return v, nil
}

func (c *Client) fail(status int, err error) error {
	return &domain.ProviderError{Stage: domain.StageEmbed, Provider: c.Name(), StatusCode: status, Err: err}
}

// decodeEmbedding accepts the OpenAI shape and falls back to the Ollama-native one.
func decodeEmbedding(payload []byte) ([]float64, error) {
	var openaiOut struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding, nil
		}
	}
	// Ollama-native shape: { "embedding": [...] }
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil {
		if len(ollamaOut.Embedding) > 0 {
			return ollamaOut.Embedding, nil
		}
	}
	return nil, fmt.Errorf("no embedding returned: %w", domain.ErrMalformedResponse)
}

var _ domain.Embedder = (*Client)(nil)

