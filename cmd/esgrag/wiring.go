package main

import (
	"fmt"
	"os"
	"time"

	"esgrag/internal/completion/openai"
	"esgrag/internal/config"
	"esgrag/internal/domain"
	embedopenai "esgrag/internal/embedding/openai"
	"esgrag/internal/intent"
	"esgrag/internal/service"
	"esgrag/internal/vectorstore/memory"
	"esgrag/internal/vectorstore/qdrant"
	"esgrag/internal/vectorstore/weaviate"
)

// buildService assembles the pipeline from configuration.
func buildService(cfg *config.AppConfig) (*service.RAGService, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "openai", "":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var comp domain.Completer
	switch cfg.Completion.Type {
	case "openai", "":
		if cfg.Completion.OpenAI == nil {
			return nil, fmt.Errorf("openai completion config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:       cfg.Completion.OpenAI.BaseURL,
			APIKeyEnv:     cfg.Completion.OpenAI.APIKeyEnv,
			StandardModel: cfg.Completion.OpenAI.FastModel,
			AdvancedModel: cfg.Completion.OpenAI.AccurateModel,
			Timeout:       time.Duration(cfg.Completion.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai completion init failed: %w", err)
		}
		comp = client
	default:
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Completion.Type)
	}

	var st domain.VectorSearcher
	switch cfg.VectorStore.Type {
	case "memory":
		mem := memory.NewStorage()
		if m := cfg.VectorStore.Memory; m != nil && m.SnapshotPath != "" {
			if err := mem.LoadFile(m.SnapshotPath); err != nil {
				return nil, err
			}
		}
		st = mem
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		st = qdrant.NewStorage(qdrant.Config{
			URL:     cfg.VectorStore.Qdrant.URL,
			APIKey:  cfg.VectorStore.Qdrant.APIKey,
			Timeout: time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	case "weaviate", "":
		if cfg.VectorStore.Weaviate == nil {
			return nil, fmt.Errorf("weaviate config missing")
		}
		url := cfg.VectorStore.Weaviate.ResolveURL()
		if url == "" {
			return nil, fmt.Errorf("weaviate url missing (set vector_store.weaviate.url or %s)", cfg.VectorStore.Weaviate.URLEnv)
		}
		st = weaviate.NewStorage(weaviate.Config{
			URL:     url,
			APIKey:  os.Getenv(cfg.VectorStore.Weaviate.APIKeyEnv),
			Timeout: time.Duration(cfg.VectorStore.Weaviate.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	return service.NewFromSearcher(
		intent.NewKeywordClassifier(),
		emb, st,
		cfg.VectorStore.KPIIndex, cfg.VectorStore.NarrativeIndex,
		comp,
	), nil
}
