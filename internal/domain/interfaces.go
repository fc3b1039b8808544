package domain

import "context"

// Hit is a single record returned by a vector search, keyed by field name.
type Hit map[string]any

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Tier selects the capability class of the completion model.
type Tier string

const (
	TierStandard Tier = "standard"
	TierAdvanced Tier = "advanced"
)

// CompletionRequest is one chat completion call: a system role and a single user turn.
type CompletionRequest struct {
	System      string
	User        string
	Tier        Tier
	Temperature float64
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// VectorSearcher runs nearest-neighbor queries against a named index.
// Only the requested fields are returned for each hit; ranking is the backend's.
type VectorSearcher interface {
	NearestNeighbors(ctx context.Context, index string, vector []float64, fields []string, limit int) ([]Hit, error)
}

// Classifier decides whether a question asks for structured KPI data.
type Classifier interface {
	Classify(text string) bool
}
