package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"esgrag/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// It backs tests and offline runs; indexes are populated with Add.
type Storage struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

type index struct {
	vectors [][]float64
	records []domain.Hit
}

func NewStorage() *Storage { return &Storage{indexes: make(map[string]*index)} }

// Add stores a record under the named index, creating the index on first use.
func (s *Storage) Add(name string, vector []float64, record domain.Hit) error {
	if len(vector) == 0 {
		return errors.New("empty vector")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	if !ok {
		idx = &index{}
		s.indexes[name] = idx
	}
	if len(idx.vectors) > 0 && len(idx.vectors[0]) != len(vector) {
		return errors.New("vector dimension mismatch")
	}
	idx.vectors = append(idx.vectors, vector)
	idx.records = append(idx.records, record)
	return nil
}

// Entry is one stored record of a snapshot file.
type Entry struct {
	Index  string     `json:"index"`
	Vector []float64  `json:"vector"`
	Record domain.Hit `json:"record"`
}

// LoadFile adds every entry of a JSON snapshot (an array of Entry) to the store.
func (s *Storage) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing snapshot: %w", err)
	}
	for i, e := range entries {
		if err := s.Add(e.Index, e.Vector, e.Record); err != nil {
			return fmt.Errorf("snapshot entry %d: %w", i, err)
		}
	}
	return nil
}

// NearestNeighbors ranks the index by cosine similarity; ties keep insertion order.
func (s *Storage) NearestNeighbors(_ context.Context, name string, vector []float64, fields []string, limit int) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %q not found", name)
	}
	if limit <= 0 {
		return []domain.Hit{}, nil
	}
	order := make([]int, len(idx.vectors))
	scores := make([]float64, len(idx.vectors))
	for i := range idx.vectors {
		order[i] = i
		scores[i] = cosine(idx.vectors[i], vector)
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	if limit > len(order) {
		limit = len(order)
	}
	hits := make([]domain.Hit, 0, limit)
	for _, j := range order[:limit] {
		hit := domain.Hit{}
		for _, f := range fields {
			if v, ok := idx.records[j][f]; ok {
				hit[f] = v
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ domain.VectorSearcher = (*Storage)(nil)
