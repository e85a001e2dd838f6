package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/wortnest/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when the openai provider is selected without a model.
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAILoader creates embedders backed by the OpenAI embeddings endpoint.
type OpenAILoader struct {
	cfg LoaderConfig
}

// NewOpenAILoader returns a loader for cfg. MaxRetries defaults to 3 and RetryDelay to 2s.
func NewOpenAILoader(cfg LoaderConfig) *OpenAILoader {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	return &OpenAILoader{cfg: cfg}
}

func (l *OpenAILoader) Name() string { return string(ProviderOpenAI) }

// CheckDependencies requires an API key.
func (l *OpenAILoader) CheckDependencies() error {
	if l.cfg.APIKey == "" {
		return errors.New("OpenAI API key is required (set OPENAI_API_KEY)")
	}
	return nil
}

// Load builds the client. No request is made until the first Embed.
func (l *OpenAILoader) Load(_ context.Context, modelID string) (Embedder, error) {
	if modelID == "" || modelID == DefaultModelID {
		modelID = DefaultOpenAIModel
	}
	clientCfg := openai.DefaultConfig(l.cfg.APIKey)
	if l.cfg.BaseURL != "" {
		clientCfg.BaseURL = l.cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(modelID),
		dimensions: l.cfg.Dimensions,
		maxRetries: l.cfg.MaxRetries,
		retryDelay: l.cfg.RetryDelay,
		cache:      NewEmbeddingCache(l.cfg.CacheSize),
	}, nil
}

// OpenAIEmbedder calls the embeddings API with retry and exponential backoff.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxRetries int
	retryDelay time.Duration
	cache      *EmbeddingCache
}

// Embed returns the embedding for text, using the cache when available.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	out, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, out[0])
	return out[0], nil
}

// EmbedBatch serves cached texts locally and sends the rest in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var misses []string
	var positions []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			out[i] = cached
			continue
		}
		misses = append(misses, text)
		positions = append(positions, i)
	}
	if len(misses) == 0 {
		return out, nil
	}
	fetched, err := e.request(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, pos := range positions {
		out[pos] = fetched[j]
		e.cache.Set(misses[j], fetched[j])
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(utils.Backoff(e.retryDelay, attempt)):
			}
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      texts,
			Model:      e.model,
			Dimensions: e.dimensions,
		})
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			if !retryable(err) {
				break
			}
			continue
		}
		if len(resp.Data) != len(texts) {
			lastErr = fmt.Errorf("attempt %d: got %d embeddings for %d inputs", attempt+1, len(resp.Data), len(texts))
			continue
		}
		out := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		return out, nil
	}
	return nil, fmt.Errorf("failed to generate embedding after %d attempts: %w", e.maxRetries+1, lastErr)
}

// retryable reports whether an API error may succeed on retry.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return !errors.Is(err, context.Canceled)
}

// Dimensions returns the configured dimension, or 0 when the model default is used.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
