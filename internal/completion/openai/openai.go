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

// Client is an OpenAI-compatible chat completions client implementing domain.Completer.
type Client struct {
	url    string
	apiKey string
	models map[domain.Tier]string
	client *http.Client
}

// Config configures the chat completions client. StandardModel serves FAST
// queries and AdvancedModel serves ACCURATE ones.
type Config struct {
	BaseURL       string
	APIKeyEnv     string
	StandardModel string
	AdvancedModel string
	Timeout       time.Duration
}

// NewClient creates a completions client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.StandardModel == "" {
		cfg.StandardModel = "gpt-4.1-mini"
	}
	if cfg.AdvancedModel == "" {
		cfg.AdvancedModel = "gpt-4.1"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 120 * time.Second
	}
	return &Client{
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey: key,
		models: map[domain.Tier]string{
			domain.TierStandard: cfg.StandardModel,
			domain.TierAdvanced: cfg.AdvancedModel,
		},
		client: &http.Client{Timeout: t},
	}, nil
}

// Name returns the identifier of this completer implementation.
func (c *Client) Name() string { return "openai" }

// Model returns the model name used for a tier.
func (c *Client) Model(tier domain.Tier) string {
	if m, ok := c.models[tier]; ok {
		return m
	}
	return c.models[domain.TierStandard]
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// temperature is always sent, so 0 is never dropped in favor of the provider default.
type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, r domain.CompletionRequest) (string, error) {
	body := chatRequest{
		Model:       c.Model(r.Tier),
		Temperature: r.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: r.System},
			{Role: "user", Content: r.User},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", c.fail(0, fmt.Errorf("marshaling request: %v: %w", err, domain.ErrBadRequest))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return "", c.fail(0, fmt.Errorf("creating request: %v: %w", err, domain.ErrBadRequest))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", c.fail(0, ctxErr)
		}
		return "", c.fail(0, fmt.Errorf("%v: %w", err, domain.ErrUnavailable))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		return "", c.fail(resp.StatusCode, fmt.Errorf("%s: %w", msg, domain.StatusKind(resp.StatusCode)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", c.fail(0, fmt.Errorf("decoding response: %v: %w", err, domain.ErrMalformedResponse))
	}
	if len(out.Choices) == 0 {
		return "", c.fail(0, fmt.Errorf("no choices in response: %w", domain.ErrMalformedResponse))
	}
	return out.Choices[0].Message.Content, nil
}

func (c *Client) fail(status int, err error) error {
	return &domain.ProviderError{Stage: domain.StageComplete, Provider: c.Name(), StatusCode: status, Err: err}
}

var _ domain.Completer = (*Client)(nil)
