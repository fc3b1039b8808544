package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type" toml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// OpenAICompletionConfig configures the chat completions client. FastModel serves
// FAST queries, AccurateModel serves ACCURATE ones.
type OpenAICompletionConfig struct {
	BaseURL       string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env" toml:"api_key_env"`
	FastModel     string `yaml:"fast_model" toml:"fast_model"`
	AccurateModel string `yaml:"accurate_model" toml:"accurate_model"`
	TimeoutSecs   int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// CompletionConfig selects and configures the completion provider.
type CompletionConfig struct {
	Type   string                  `yaml:"type" toml:"type"`
	OpenAI *OpenAICompletionConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector search backend.
type VectorStoreConfig struct {
	Type           string          `yaml:"type" toml:"type"`
	KPIIndex       string          `yaml:"kpi_index" toml:"kpi_index"`
	NarrativeIndex string          `yaml:"narrative_index" toml:"narrative_index"`
	Memory         *MemoryConfig   `yaml:"memory,omitempty" toml:"memory,omitempty"`
	Qdrant         *QdrantConfig   `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
	Weaviate       *WeaviateConfig `yaml:"weaviate,omitempty" toml:"weaviate,omitempty"`
}

// MemoryConfig points the in-memory store at an optional JSON snapshot.
type MemoryConfig struct {
	SnapshotPath string `yaml:"snapshot_path" toml:"snapshot_path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// WeaviateConfig contains connection details for a Weaviate instance.
// An empty URL is read from the URLEnv variable when the store is built.
type WeaviateConfig struct {
	URL         string `yaml:"url" toml:"url"`
	URLEnv      string `yaml:"url_env" toml:"url_env"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// ResolveURL returns the configured URL, falling back to the URLEnv variable.
func (w *WeaviateConfig) ResolveURL() string {
	if w.URL != "" {
		return w.URL
	}
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr       string  `yaml:"addr" toml:"addr"`
	APIKeyEnv  string  `yaml:"api_key_env" toml:"api_key_env"`
	RatePerSec float64 `yaml:"rate_per_sec" toml:"rate_per_sec"`
	Burst      int     `yaml:"burst" toml:"burst"`
}

// JournalConfig configures the SQLite query journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Completion  CompletionConfig  `yaml:"completion" toml:"completion"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Journal     JournalConfig     `yaml:"journal" toml:"journal"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg AppConfig
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/esgrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/esgrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if isTOML(path) {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return toml.NewEncoder(f).Encode(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/esgrag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "esgrag", "config.yaml"), nil
}

// DefaultJournalPath returns ~/.local/share/esgrag/journal.db.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "esgrag", "journal.db")
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		Completion:  CompletionConfig{Type: "openai", OpenAI: &OpenAICompletionConfig{}},
		VectorStore: VectorStoreConfig{Type: "weaviate", Weaviate: &WeaviateConfig{}},
		Journal:     JournalConfig{Enabled: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}

	if cfg.Completion.Type == "" {
		cfg.Completion.Type = "openai"
	}
	if cfg.Completion.Type == "openai" {
		if cfg.Completion.OpenAI == nil {
			cfg.Completion.OpenAI = &OpenAICompletionConfig{}
		}
		if cfg.Completion.OpenAI.BaseURL == "" {
			cfg.Completion.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Completion.OpenAI.APIKeyEnv == "" {
			cfg.Completion.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Completion.OpenAI.FastModel == "" {
			cfg.Completion.OpenAI.FastModel = "gpt-4.1-mini"
		}
		if cfg.Completion.OpenAI.AccurateModel == "" {
			cfg.Completion.OpenAI.AccurateModel = "gpt-4.1"
		}
		if cfg.Completion.OpenAI.TimeoutSecs == 0 {
			cfg.Completion.OpenAI.TimeoutSecs = 120
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "weaviate"
	}
	if cfg.VectorStore.KPIIndex == "" {
		cfg.VectorStore.KPIIndex = "FerreroKPI"
	}
	if cfg.VectorStore.NarrativeIndex == "" {
		cfg.VectorStore.NarrativeIndex = "FerreroNarrative"
	}
	if cfg.VectorStore.Type == "weaviate" {
		if cfg.VectorStore.Weaviate == nil {
			cfg.VectorStore.Weaviate = &WeaviateConfig{}
		}
		if cfg.VectorStore.Weaviate.URLEnv == "" {
			cfg.VectorStore.Weaviate.URLEnv = "WEAVIATE_URL"
		}
		if cfg.VectorStore.Weaviate.APIKeyEnv == "" {
			cfg.VectorStore.Weaviate.APIKeyEnv = "WEAVIATE_API_KEY"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3001"
	}
	if cfg.Server.APIKeyEnv == "" {
		cfg.Server.APIKeyEnv = "API_SECRET_KEY"
	}
	if cfg.Server.RatePerSec == 0 {
		cfg.Server.RatePerSec = 2
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 5
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath()
	}
}
