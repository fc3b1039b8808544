package service

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"esgrag/internal/aggregate"
	"esgrag/internal/domain"
	"esgrag/internal/prompt"
	"esgrag/internal/retrieval"
)

// Profile holds the per-mode retrieval limits and completion tier.
type Profile struct {
	KPILimit       int
	NarrativeLimit int
	Tier           domain.Tier
}

var profiles = map[domain.Mode]Profile{
	domain.ModeFast:     {KPILimit: 10, NarrativeLimit: 4, Tier: domain.TierStandard},
	domain.ModeAccurate: {KPILimit: 20, NarrativeLimit: 8, Tier: domain.TierAdvanced},
}

// ProfileFor returns the profile of a mode; unknown modes get FAST.
func ProfileFor(mode domain.Mode) Profile {
	if p, ok := profiles[mode]; ok {
		return p
	}
	return profiles[domain.ModeFast]
}

// Options selects the mode of one query.
type Options struct {
	Accurate bool
}

// Mode returns the mode selected by the options.
func (o Options) Mode() domain.Mode {
	if o.Accurate {
		return domain.ModeAccurate
	}
	return domain.ModeFast
}

// KPIRetriever returns structured KPI records for a question.
type KPIRetriever interface {
	Retrieve(ctx context.Context, question string, limit int) ([]domain.KpiRecord, error)
}

// NarrativeRetriever returns narrative passages for a question.
type NarrativeRetriever interface {
	Retrieve(ctx context.Context, question string, limit int) ([]domain.NarrativeRecord, error)
}

// RAGService answers questions about a sustainability report from retrieved KPI
// records and narrative passages. It holds no per-query state and is safe for
// concurrent use when its collaborators are.
type RAGService struct {
	classifier domain.Classifier
	kpis       KPIRetriever
	narrative  NarrativeRetriever
	completer  domain.Completer
	now        func() time.Time
}

func NewRAGService(classifier domain.Classifier, kpis KPIRetriever, narrative NarrativeRetriever, completer domain.Completer) *RAGService {
	return &RAGService{classifier: classifier, kpis: kpis, narrative: narrative, completer: completer, now: time.Now}
}

// NewFromSearcher wires both retrievers over one embedder and vector searcher.
func NewFromSearcher(classifier domain.Classifier, embedder domain.Embedder, searcher domain.VectorSearcher, kpiIndex, narrativeIndex string, completer domain.Completer) *RAGService {
	return NewRAGService(
		classifier,
		retrieval.NewKPI(embedder, searcher, kpiIndex),
		retrieval.NewNarrative(embedder, searcher, narrativeIndex),
		completer,
	)
}

// Execute runs the pipeline for one question. KPI retrieval only happens when
// the classifier flags the question; narrative retrieval always happens. Any
// failed stage aborts the query and its error is returned unchanged.
func (s *RAGService) Execute(ctx context.Context, question string, opts Options) (domain.QueryResult, error) {
	start := s.now()
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.QueryResult{}, domain.ErrEmptyQuestion
	}
	mode := opts.Mode()
	profile := ProfileFor(mode)
	wantsKPIs := s.classifier.Classify(question)

	var (
		kpis      []domain.KpiRecord
		narrative []domain.NarrativeRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	if wantsKPIs {
		g.Go(func() error {
			var err error
			kpis, err = s.kpis.Retrieve(gctx, question, profile.KPILimit)
			return err
		})
	}
	g.Go(func() error {
		var err error
		narrative, err = s.narrative.Retrieve(gctx, question, profile.NarrativeLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("query failed: mode=%s stage=%s err=%v", mode, domain.StageOf(err), err)
		return domain.QueryResult{}, err
	}

	answer, err := s.completer.Complete(ctx, domain.CompletionRequest{
		System:      prompt.System,
		User:        prompt.Build(question, kpis, narrative),
		Tier:        profile.Tier,
		Temperature: 0,
	})
	if err != nil {
		log.Printf("query failed: mode=%s stage=%s err=%v", mode, domain.StageOf(err), err)
		return domain.QueryResult{}, err
	}

	if narrative == nil {
		narrative = []domain.NarrativeRecord{}
	}
	result := domain.QueryResult{
		Mode:      mode,
		Answer:    answer,
		KpiTables: aggregate.BuildKpiTables(kpis),
		Sources:   narrative,
		Time:      s.now().Sub(start).Seconds(),
	}
	log.Printf("query answered: mode=%s kpi=%t kpi_records=%d tables=%d sources=%d time=%.3fs",
		mode, wantsKPIs, len(kpis), len(result.KpiTables), len(result.Sources), result.Time)
	return result, nil
}
