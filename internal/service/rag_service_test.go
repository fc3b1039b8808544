package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgrag/internal/domain"
	"esgrag/internal/intent"
	"esgrag/internal/prompt"
	"esgrag/internal/retrieval"
	"esgrag/internal/vectorstore/memory"
)

type fakeKPIs struct {
	mu     sync.Mutex
	recs   []domain.KpiRecord
	err    error
	calls  int
	limits []int
}

func (f *fakeKPIs) Retrieve(_ context.Context, _ string, limit int) ([]domain.KpiRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recs) > limit {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type fakeNarrative struct {
	mu     sync.Mutex
	recs   []domain.NarrativeRecord
	err    error
	calls  int
	limits []int
}

func (f *fakeNarrative) Retrieve(_ context.Context, _ string, limit int) ([]domain.NarrativeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return f.recs, nil
}

type fakeCompleter struct {
	answer string
	err    error
	reqs   []domain.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, r domain.CompletionRequest) (string, error) {
	f.reqs = append(f.reqs, r)
	return f.answer, f.err
}

// tickingClock advances one second per call so elapsed time is always positive.
func tickingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestService(k *fakeKPIs, n *fakeNarrative, c *fakeCompleter) *RAGService {
	s := NewRAGService(intent.NewKeywordClassifier(), k, n, c)
	s.now = tickingClock()
	return s
}

func TestExecuteEndToEndFast(t *testing.T) {
	k := &fakeKPIs{recs: []domain.KpiRecord{
		{Category: "Climate", Metric: "GHG Scope 1", Unit: "tCO2e", Year: "2023/24", Value: 152000, Notes: "(A)", Source: "Report 2024"},
		{Category: "Climate", Metric: "GHG Scope 1", Unit: "tCO2e", Year: "2022/23", Value: 160000, Source: "Report 2024"},
	}}
	n := &fakeNarrative{recs: []domain.NarrativeRecord{{Page: 40, Section: "Narrative", Text: "Scope 1 fell."}}}
	c := &fakeCompleter{answer: "Scope 1 was 152,000 tCO2e in 2023/24."}

	res, err := newTestService(k, n, c).Execute(context.Background(), "What is Ferrero's GHG scope 1 in 2023/24?", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, k.calls)
	assert.Equal(t, []int{10}, k.limits)
	assert.Equal(t, []int{4}, n.limits)
	assert.Equal(t, domain.ModeFast, res.Mode)
	assert.Equal(t, "Scope 1 was 152,000 tCO2e in 2023/24.", res.Answer)
	assert.Greater(t, res.Time, 0.0)
	assert.Equal(t, n.recs, res.Sources)

	require.Len(t, res.KpiTables, 1)
	assert.Equal(t, []domain.KpiValue{
		{Year: "2022/23", Value: 160000, Assured: false},
		{Year: "2023/24", Value: 152000, Assured: true},
	}, res.KpiTables[0].Values)

	require.Len(t, c.reqs, 1)
	req := c.reqs[0]
	assert.Equal(t, prompt.System, req.System)
	assert.Equal(t, "You are a precise ESG reporting assistant.", req.System)
	assert.Equal(t, 0.0, req.Temperature)
	assert.Equal(t, domain.TierStandard, req.Tier)
	assert.Contains(t, req.User, "What is Ferrero's GHG scope 1 in 2023/24?")
	assert.Contains(t, req.User, `"metric": "GHG Scope 1"`)
	assert.Contains(t, req.User, "Page 40: Scope 1 fell.")
}

func TestExecuteQualitativeSkipsKPIRetrieval(t *testing.T) {
	k := &fakeKPIs{recs: []domain.KpiRecord{{Metric: "never", Unit: "x"}}}
	n := &fakeNarrative{}
	c := &fakeCompleter{answer: "Not reported."}

	res, err := newTestService(k, n, c).Execute(context.Background(), "Describe the cocoa sourcing charter", Options{Accurate: true})
	require.NoError(t, err)

	assert.Equal(t, 0, k.calls)
	assert.Equal(t, 1, n.calls)
	assert.NotNil(t, res.KpiTables)
	assert.Empty(t, res.KpiTables)
	assert.NotNil(t, res.Sources)
	assert.Contains(t, c.reqs[0].User, prompt.NoKPIData)
	assert.Contains(t, c.reqs[0].User, prompt.NoNarrative)
}

func TestExecuteModeContract(t *testing.T) {
	question := "Total water withdrawal"
	limits := map[domain.Mode][2]int{}
	tiers := map[domain.Mode]domain.Tier{}

	for _, accurate := range []bool{false, true} {
		k := &fakeKPIs{}
		n := &fakeNarrative{}
		c := &fakeCompleter{answer: "ok"}
		res, err := newTestService(k, n, c).Execute(context.Background(), question, Options{Accurate: accurate})
		require.NoError(t, err)
		limits[res.Mode] = [2]int{k.limits[0], n.limits[0]}
		tiers[res.Mode] = c.reqs[0].Tier
	}

	assert.Equal(t, [2]int{10, 4}, limits[domain.ModeFast])
	assert.Equal(t, [2]int{20, 8}, limits[domain.ModeAccurate])
	assert.GreaterOrEqual(t, limits[domain.ModeAccurate][0], limits[domain.ModeFast][0])
	assert.GreaterOrEqual(t, limits[domain.ModeAccurate][1], limits[domain.ModeFast][1])
	assert.Equal(t, domain.TierStandard, tiers[domain.ModeFast])
	assert.Equal(t, domain.TierAdvanced, tiers[domain.ModeAccurate])
}

func TestExecuteRejectsEmptyQuestion(t *testing.T) {
	k, n, c := &fakeKPIs{}, &fakeNarrative{}, &fakeCompleter{}
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := newTestService(k, n, c).Execute(context.Background(), q, Options{})
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	}
	assert.Zero(t, k.calls+n.calls+len(c.reqs))
}

func TestExecuteTrimsQuestion(t *testing.T) {
	c := &fakeCompleter{answer: "ok"}
	_, err := newTestService(&fakeKPIs{}, &fakeNarrative{}, c).Execute(context.Background(), "  cocoa  ", Options{})
	require.NoError(t, err)
	assert.Contains(t, c.reqs[0].User, "USER QUESTION:\ncocoa\n")
}

func TestExecuteRetrievalFailureAborts(t *testing.T) {
	rerr := &domain.RetrievalError{Index: retrieval.KPIIndex, Err: errors.New("index not found")}
	c := &fakeCompleter{answer: "should not be used"}

	_, err := newTestService(&fakeKPIs{err: rerr}, &fakeNarrative{}, c).Execute(context.Background(), "energy use", Options{})
	assert.ErrorIs(t, err, rerr)
	assert.Equal(t, domain.StageRetrieve, domain.StageOf(err))
	assert.Empty(t, c.reqs, "no completion after a failed retrieval")
}

func TestExecuteNarrativeEmbedFailureAborts(t *testing.T) {
	perr := &domain.ProviderError{Stage: domain.StageEmbed, Provider: "openai", Err: domain.ErrQuotaExceeded}
	c := &fakeCompleter{}

	_, err := newTestService(&fakeKPIs{}, &fakeNarrative{err: perr}, c).Execute(context.Background(), "cocoa", Options{})
	assert.Equal(t, domain.StageEmbed, domain.StageOf(err))
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Empty(t, c.reqs)
}

func TestExecuteCompletionFailureAborts(t *testing.T) {
	perr := &domain.ProviderError{Stage: domain.StageComplete, Provider: "openai", StatusCode: 503, Err: domain.ErrUnavailable}

	res, err := newTestService(&fakeKPIs{}, &fakeNarrative{}, &fakeCompleter{err: perr}).Execute(context.Background(), "scope 2", Options{})
	assert.Equal(t, domain.StageComplete, domain.StageOf(err))
	assert.Equal(t, domain.QueryResult{}, res)
}

func TestExecuteTablesOnlyFromReturnedRecords(t *testing.T) {
	recs := make([]domain.KpiRecord, 0, 25)
	for i := 0; i < 25; i++ {
		recs = append(recs, domain.KpiRecord{Metric: "m" + strings.Repeat("x", i), Unit: "u", Year: "2023/24"})
	}
	k := &fakeKPIs{recs: recs}

	res, err := newTestService(k, &fakeNarrative{}, &fakeCompleter{answer: "ok"}).Execute(context.Background(), "values", Options{})
	require.NoError(t, err)
	assert.Len(t, res.KpiTables, 10)
}

func TestExecuteWithMemoryStore(t *testing.T) {
	store := memory.NewStorage()
	require.NoError(t, store.Add(retrieval.KPIIndex, []float64{1, 0}, domain.Hit{
		"category": "Energy", "metric": "Energy Intensity", "unit": "GJ/t", "year": "2023/24", "value": 7.07, "notes": "(A)", "source": "Report",
	}))
	require.NoError(t, store.Add(retrieval.KPIIndex, []float64{1, 0}, domain.Hit{
		"category": "Energy", "metric": "Energy Intensity", "unit": "GJ/t", "year": "2022/23", "value": 7.5, "notes": "", "source": "Report",
	}))
	require.NoError(t, store.Add(retrieval.NarrativeIndex, []float64{1, 0}, domain.Hit{"page": 55, "section": "Narrative", "text": "Energy efficiency programme."}))

	embedder := embedFunc(func(context.Context, string) ([]float64, error) { return []float64{1, 0}, nil })
	c := &fakeCompleter{answer: "Energy intensity was 7.07 GJ/t in 2023/24."}
	s := NewFromSearcher(intent.NewKeywordClassifier(), embedder, store, "", "", c)
	s.now = tickingClock()

	res, err := s.Execute(context.Background(), "What was the energy intensity?", Options{})
	require.NoError(t, err)
	require.Len(t, res.KpiTables, 1)
	assert.Equal(t, "2022/23", res.KpiTables[0].Values[0].Year)
	assert.True(t, res.KpiTables[0].Values[1].Assured)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 55, res.Sources[0].Page)
	assert.Greater(t, res.Time, 0.0)
}

type embedFunc func(context.Context, string) ([]float64, error)

func (f embedFunc) Embed(ctx context.Context, text string) ([]float64, error) { return f(ctx, text) }

func TestProfileForUnknownModeFallsBackToFast(t *testing.T) {
	assert.Equal(t, ProfileFor(domain.ModeFast), ProfileFor(domain.Mode("TURBO")))
}

func TestExecuteConcurrentCalls(t *testing.T) {
	k := &fakeKPIs{recs: []domain.KpiRecord{
		{Metric: "Water withdrawal", Unit: "m3", Year: "2023/24", Value: 10},
		{Metric: "Water withdrawal", Unit: "m3", Year: "2022/23", Value: 12},
	}}
	n := &fakeNarrative{recs: []domain.NarrativeRecord{{Page: 3, Text: "Water stewardship."}}}
	c := &lockedCompleter{answer: "ok"}
	s := NewRAGService(intent.NewKeywordClassifier(), k, n, c)

	t.Run("group", func(t *testing.T) {
		for i := 0; i < 8; i++ {
			accurate := i%2 == 1
			t.Run("call", func(t *testing.T) {
				t.Parallel()
				res, err := s.Execute(context.Background(), "total water withdrawal", Options{Accurate: accurate})
				require.NoError(t, err)
				assert.Equal(t, Options{Accurate: accurate}.Mode(), res.Mode)
				require.Len(t, res.KpiTables, 1)
				assert.Equal(t, "2022/23", res.KpiTables[0].Values[0].Year)
				assert.Len(t, res.Sources, 1)
			})
		}
	})

	assert.Equal(t, 8, k.calls)
	assert.Equal(t, 8, n.calls)
	assert.Equal(t, 8, c.count())
}

type lockedCompleter struct {
	mu     sync.Mutex
	answer string
	n      int
}

func (l *lockedCompleter) Complete(context.Context, domain.CompletionRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
	return l.answer, nil
}

func (l *lockedCompleter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}
