package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"esgrag/internal/domain"
)

// Default index names and the fields each record type needs.
const (
	KPIIndex       = "FerreroKPI"
	NarrativeIndex = "FerreroNarrative"
)

var (
	kpiFields       = []string{"category", "metric", "unit", "year", "value", "notes", "source"}
	narrativeFields = []string{"page", "section", "text"}
)

// Retriever embeds a question and returns the nearest records of one index, decoded as T.
type Retriever[T any] struct {
	embedder domain.Embedder
	searcher domain.VectorSearcher
	index    string
	fields   []string
}

// NewKPI returns a retriever over structured KPI records.
func NewKPI(embedder domain.Embedder, searcher domain.VectorSearcher, index string) *Retriever[domain.KpiRecord] {
	if index == "" {
		index = KPIIndex
	}
	return &Retriever[domain.KpiRecord]{embedder: embedder, searcher: searcher, index: index, fields: kpiFields}
}

// NewNarrative returns a retriever over narrative report passages.
func NewNarrative(embedder domain.Embedder, searcher domain.VectorSearcher, index string) *Retriever[domain.NarrativeRecord] {
	if index == "" {
		index = NarrativeIndex
	}
	return &Retriever[domain.NarrativeRecord]{embedder: embedder, searcher: searcher, index: index, fields: narrativeFields}
}

// Index returns the name of the index this retriever searches.
func (r *Retriever[T]) Index() string { return r.index }

// Retrieve returns at most limit records ranked by the search backend. An index
// with no matches yields an empty slice. Embedding failures are returned as-is;
// search and decode failures are wrapped in a RetrievalError.
func (r *Retriever[T]) Retrieve(ctx context.Context, question string, limit int) ([]T, error) {
	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	hits, err := r.searcher.NearestNeighbors(ctx, r.index, vector, r.fields, limit)
	if err != nil {
		return nil, &domain.RetrievalError{Index: r.index, Err: err}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]T, 0, len(hits))
	for i, h := range hits {
		rec, err := decode[T](h)
		if err != nil {
			return nil, &domain.RetrievalError{Index: r.index, Err: fmt.Errorf("decoding hit %d: %w", i, err)}
		}
		out = append(out, rec)
	}
	return out, nil
}

// decode maps a hit onto T through its JSON field tags. Missing fields keep
// their zero value; JSON nulls are treated as missing.
func decode[T any](h domain.Hit) (T, error) {
	var rec T
	data, err := json.Marshal(h)
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal(data, &rec)
	return rec, err
}
