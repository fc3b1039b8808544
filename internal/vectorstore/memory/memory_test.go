package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgrag/internal/domain"
)

func seeded(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage()
	require.NoError(t, s.Add("FerreroNarrative", []float64{1, 0}, domain.Hit{"page": 1, "text": "east", "section": "Narrative"}))
	require.NoError(t, s.Add("FerreroNarrative", []float64{0, 1}, domain.Hit{"page": 2, "text": "north"}))
	require.NoError(t, s.Add("FerreroNarrative", []float64{0.7, 0.7}, domain.Hit{"page": 3, "text": "north-east"}))
	return s
}

func TestNearestNeighborsRanksByCosine(t *testing.T) {
	hits, err := seeded(t).NearestNeighbors(context.Background(), "FerreroNarrative", []float64{0, 2}, []string{"page", "text"}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0]["page"])
	assert.Equal(t, 3, hits[1]["page"])
}

func TestNearestNeighborsLimitIsUpperBound(t *testing.T) {
	hits, err := seeded(t).NearestNeighbors(context.Background(), "FerreroNarrative", []float64{1, 0}, []string{"page"}, 8)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestNearestNeighborsProjectsFields(t *testing.T) {
	hits, err := seeded(t).NearestNeighbors(context.Background(), "FerreroNarrative", []float64{1, 0}, []string{"text"}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.Hit{"text": "east"}, hits[0])
}

func TestNearestNeighborsUnknownIndex(t *testing.T) {
	_, err := NewStorage().NearestNeighbors(context.Background(), "FerreroKPI", []float64{1}, nil, 4)
	assert.Error(t, err)
}

func TestAddDimensionMismatch(t *testing.T) {
	s := seeded(t)
	assert.Error(t, s.Add("FerreroNarrative", []float64{1, 2, 3}, domain.Hit{}))
	assert.Error(t, s.Add("FerreroNarrative", nil, domain.Hit{}))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	data := `[
  {"index": "FerreroKPI", "vector": [1, 0], "record": {"metric": "Water withdrawal", "unit": "m3", "year": "2023/24", "value": 12.5}},
  {"index": "FerreroNarrative", "vector": [0, 1], "record": {"page": 7, "text": "Water stewardship."}}
]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s := NewStorage()
	require.NoError(t, s.LoadFile(path))

	hits, err := s.NearestNeighbors(context.Background(), "FerreroKPI", []float64{1, 0}, []string{"metric", "value"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.Hit{{"metric": "Water withdrawal", "value": 12.5}}, hits)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorContains(t, NewStorage().LoadFile(filepath.Join(dir, "missing.json")), "reading snapshot")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"index": "x", "vector": []}]`), 0o644))
	assert.ErrorContains(t, NewStorage().LoadFile(bad), "snapshot entry 0")
}
