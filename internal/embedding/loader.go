package embedding

import (
	"context"
	"fmt"
	"time"
)

// Defaults for the bundled multilingual sentence-transformer.
const (
	DefaultModelID    = "paraphrase-multilingual-MiniLM-L12-v2"
	DefaultDimensions = 384
	DefaultMaxTokens  = 128
	DefaultCacheSize  = 1000
)

// Loader knows how to check for and load one embedding backend.
type Loader interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// CheckDependencies verifies the backend's runtime is present without loading a model.
	CheckDependencies() error
	// Load opens modelID. It is called at most once per Generator.
	Load(ctx context.Context, modelID string) (Embedder, error)
}

// Provider selects an embedding backend.
type Provider string

const (
	// ProviderONNX runs a sentence-transformer exported to ONNX locally.
	// Requires a cgo build and the onnxruntime shared library.
	ProviderONNX Provider = "onnx"
	// ProviderOpenAI calls the OpenAI embeddings API (or a compatible endpoint).
	ProviderOpenAI Provider = "openai"
	// ProviderMock produces deterministic hash vectors. Useful offline and in tests.
	ProviderMock Provider = "mock"
)

// LoaderConfig carries the settings every backend may need.
type LoaderConfig struct {
	Dimensions  int
	MaxTokens   int
	CacheSize   int
	LibraryPath string // onnxruntime shared library

	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// NewLoader creates a loader for provider.
// Supported providers: "onnx" (default), "openai", "mock".
func NewLoader(provider string, cfg LoaderConfig) (Loader, error) {
	switch Provider(provider) {
	case ProviderONNX, "":
		return NewONNXLoader(cfg), nil
	case ProviderOpenAI:
		return NewOpenAILoader(cfg), nil
	case ProviderMock:
		return NewMockLoader(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, openai, mock)", provider)
	}
}

// MockLoader loads MockEmbedders. It never reports a missing dependency.
type MockLoader struct {
	dimensions int
}

// NewMockLoader returns a loader for deterministic embeddings of the given dimensions.
func NewMockLoader(dimensions int) *MockLoader {
	return &MockLoader{dimensions: dimensions}
}

func (l *MockLoader) Name() string { return string(ProviderMock) }

func (l *MockLoader) CheckDependencies() error { return nil }

func (l *MockLoader) Load(_ context.Context, _ string) (Embedder, error) {
	return NewMockEmbedder(l.dimensions), nil
}
