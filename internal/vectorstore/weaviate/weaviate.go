package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"esgrag/internal/domain"
)

// identRe matches GraphQL names; index and field names are interpolated into the query.
var identRe = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// Storage queries Weaviate classes through the GraphQL Get API with nearVector.
type Storage struct {
	endpoint string
	apiKey   string
	client   *http.Client
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
	base := strings.TrimRight(cfg.URL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Storage{
		endpoint: base + "/v1/graphql",
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// NearestNeighbors runs a nearVector Get query against the class named index.
func (s *Storage) NearestNeighbors(ctx context.Context, index string, vector []float64, fields []string, limit int) ([]domain.Hit, error) {
	if limit <= 0 {
		return []domain.Hit{}, nil
	}
	query, err := buildQuery(index, vector, fields, limit)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshaling weaviate query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating weaviate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("weaviate graphql failed: %s: %s", resp.Status, strings.TrimSpace(string(slurp)))
	}

	var out struct {
		Data struct {
			Get map[string][]map[string]any `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding weaviate response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return nil, errors.New("weaviate graphql: " + strings.Join(msgs, "; "))
	}
	rows := out.Data.Get[index]
	hits := make([]domain.Hit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, domain.Hit(row))
	}
	return hits, nil
}

func buildQuery(index string, vector []float64, fields []string, limit int) (string, error) {
	if !identRe.MatchString(index) {
		return "", fmt.Errorf("invalid class name %q", index)
	}
	if len(fields) == 0 {
		return "", errors.New("no fields requested")
	}
	for _, f := range fields {
		if !identRe.MatchString(f) {
			return "", fmt.Errorf("invalid field name %q", f)
		}
	}
	vec := make([]string, len(vector))
	for i, v := range vector {
		vec[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("{ Get { %s(nearVector: {vector: [%s]}, limit: %d) { %s } } }",
		index, strings.Join(vec, ","), limit, strings.Join(fields, " ")), nil
}

var _ domain.VectorSearcher = (*Storage)(nil)
