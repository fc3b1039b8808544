package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"esgrag/internal/domain"
)

// Storage is a minimal REST client to Qdrant. Each index maps to a collection
// whose point payloads hold the record fields.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// NearestNeighbors searches a collection and returns the payload subset named by fields.
func (s *Storage) NearestNeighbors(ctx context.Context, index string, vector []float64, fields []string, limit int) ([]domain.Hit, error) {
	if limit <= 0 {
		return []domain.Hit{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": map[string]any{"include": fields},
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	endpoint := fmt.Sprintf("%s/collections/%s/points/search", s.url, url.PathEscape(index))
	if err := s.postJSON(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := domain.Hit{}
		for _, f := range fields {
			if v, ok := r.Payload[f]; ok {
				hit[f] = v
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Storage) postJSON(ctx context.Context, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling qdrant request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("qdrant POST %s failed: %s: %s", endpoint, resp.Status, strings.TrimSpace(string(slurp)))
	}
	if out != nil {
		dec := json.NewDecoder(resp.Body)
		return dec.Decode(out)
	}
	return nil
}

var _ domain.VectorSearcher = (*Storage)(nil)
