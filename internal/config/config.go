// Package config provides configuration loading and structs for the Dadras server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is loaded once at
// startup and treated as immutable for the process lifetime.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Cache     CacheConfig     `yaml:"cache"`
	LLM       LLMConfig       `yaml:"llm"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the vector store, result cache, and message store.
type StorageConfig struct {
	VectorDBPath  string `yaml:"vector_db_path"`
	CachePath     string `yaml:"cache_path"`
	MessageDBPath string `yaml:"message_db_path"`
	Collection    string `yaml:"collection"`
	MaxBatch      int    `yaml:"max_batch"`
}

// ChunkingConfig holds chunker settings, in characters.
type ChunkingConfig struct {
	ChunkSize    int   `yaml:"chunk_size"`
	ChunkOverlap int   `yaml:"chunk_overlap"`
	LegalUnits   *bool `yaml:"legal_units"`
}

// LegalUnitsOrDefault returns whether statute-heading aware chunking is
// enabled; defaults to true when unset.
func (c *ChunkingConfig) LegalUnitsOrDefault() bool {
	if c.LegalUnits != nil {
		return *c.LegalUnits
	}
	return true
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	Dimensions     int     `yaml:"dimensions"`
	BatchSize      int     `yaml:"batch_size"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// RetrievalConfig holds query-time retrieval settings.
type RetrievalConfig struct {
	DefaultTopK         int  `yaml:"default_top_k"`
	MaxTopK             int  `yaml:"max_top_k"`
	ContextBudget       int  `yaml:"context_budget"`
	DomainFilterEnabled bool `yaml:"domain_filter_enabled"`
}

// RerankConfig holds the reranker settings. With an empty BaseURL the lexical
// fallback reranker is used.
type RerankConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// LLMConfig holds the answer generation provider settings. With an empty
// BaseURL and no API key, queries fall back to extractive answers.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// WatchConfig holds upload-directory watch settings. Files dropped into
// Directory are ingested automatically.
type WatchConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies defaults, validates,
// and expands paths. Returns an error if the file cannot be read or parsed, or
// if validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.VectorDBPath = expandPath(cfg.Storage.VectorDBPath, configDir)
	cfg.Storage.CachePath = expandPath(cfg.Storage.CachePath, configDir)
	cfg.Storage.MessageDBPath = expandPath(cfg.Storage.MessageDBPath, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with. Chunk overlap must
// be smaller than chunk size, and the store batch ceiling must be positive.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("invalid configuration: chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("invalid configuration: chunk_overlap %d must be in [0, chunk_size %d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Storage.MaxBatch <= 0 {
		return fmt.Errorf("invalid configuration: max_batch must be positive, got %d", c.Storage.MaxBatch)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid configuration: embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
