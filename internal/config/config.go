// Package config loads the wortnest configuration from YAML, .env files and
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/wortnest/internal/ranking"
)

// Environment variables that override the file.
const (
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvDatabaseURL       = "WORTNEST_DATABASE_URL"
	EnvEmbeddingProvider = "WORTNEST_EMBEDDING_PROVIDER"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Related   RelatedConfig   `yaml:"related"`
	Search    SearchConfig    `yaml:"search"`
	Review    ReviewConfig    `yaml:"review"`
	Translate TranslateConfig `yaml:"translate"`
	Import    ImportConfig    `yaml:"import"`
	Export    ExportConfig    `yaml:"export"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the item store and the keyword index location.
type StorageConfig struct {
	Driver         string `yaml:"driver"` // sqlite or postgres
	DatabasePath   string `yaml:"database_path"`
	DatabaseURL    string `yaml:"database_url,omitempty"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	Provider    string        `yaml:"provider"` // onnx, openai or mock
	Model       string        `yaml:"model"`
	ModelPath   string        `yaml:"model_path"` // onnx only
	Dimensions  int           `yaml:"dimensions"`
	MaxTokens   int           `yaml:"max_tokens"`
	CacheSize   int           `yaml:"cache_size"`
	BatchSize   int           `yaml:"batch_size"` // texts per model call during backfill
	LibraryPath string        `yaml:"library_path,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// IsEnabled reports whether embeddings are enabled; defaults to true when unset.
func (e *EmbeddingConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ModelID is what the loader opens: the model file for onnx, the model name otherwise.
func (e *EmbeddingConfig) ModelID() string {
	if e.Provider == "onnx" || e.Provider == "" {
		return e.ModelPath
	}
	return e.Model
}

// RelatedConfig tunes related-item retrieval.
type RelatedConfig struct {
	TopK int `yaml:"top_k"`
}

// SearchConfig tunes keyword search.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	MaxLimit       int     `yaml:"max_limit"`
	Fuzziness      int     `yaml:"fuzziness"`
	ContentBoost   float64 `yaml:"content_boost"`
	PhraseBoost    float64 `yaml:"phrase_boost"`
	CandidateLimit int     `yaml:"candidate_limit"`

	Ranking ranking.Config `yaml:"ranking"`
}

// ReviewConfig tunes answer grading.
type ReviewConfig struct {
	PassThreshold float64 `yaml:"pass_threshold"`
}

// TranslateConfig controls automatic translation of new entries.
type TranslateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// ImportConfig holds file import and inbox watch settings.
type ImportConfig struct {
	DefaultType string   `yaml:"default_type"`
	Inbox       []string `yaml:"inbox"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether inbox directories are watched recursively; defaults to true.
func (i *ImportConfig) RecursiveOrDefault() bool {
	if i.Recursive != nil {
		return *i.Recursive
	}
	return true
}

// ExportConfig holds export settings.
type ExportConfig struct {
	DeckName string `yaml:"deck_name"`
}

// Load reads and parses the config file at path, loads a .env file next to it
// if present, applies environment overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.expandPaths(configDir)
	return &cfg, nil
}

// Default returns the configuration used when no file exists: defaults plus
// environment overrides, with relative paths resolved against the home directory.
func Default() *Config {
	var cfg Config
	_ = LoadDotEnv(".env")
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.expandPaths(".")
	return &cfg
}

func (cfg *Config) expandPaths(configDir string) {
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.LibraryPath != "" {
		cfg.Embedding.LibraryPath = expandPath(cfg.Embedding.LibraryPath, configDir)
	}
	for i := range cfg.Import.Inbox {
		cfg.Import.Inbox[i] = expandPath(cfg.Import.Inbox[i], configDir)
	}
}

// LoadDotEnv loads variables from a .env file without overriding ones already
// set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv copies environment overrides into cfg.
func ApplyEnv(cfg *Config) {
	if key := os.Getenv(EnvOpenAIKey); key != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
		if cfg.Translate.APIKey == "" {
			cfg.Translate.APIKey = key
		}
	}
	if url := os.Getenv(EnvDatabaseURL); url != "" {
		cfg.Storage.DatabaseURL = url
		cfg.Storage.Driver = "postgres"
	}
	if p := os.Getenv(EnvEmbeddingProvider); p != "" {
		cfg.Embedding.Provider = strings.ToLower(p)
	}
}

// Save writes the config to path. Used to persist inbox directory changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
