package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Generator produces embeddings with a model that is loaded on first use. The
// first Generate call pays the load cost; a load failure is remembered and
// returned by every later call.
type Generator struct {
	modelID string
	loader  Loader
	logger  *zap.Logger

	once    sync.Once
	model   Embedder
	loadErr error

	mu     sync.RWMutex
	closed bool
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator returns a Generator for modelID. Nothing is loaded until Generate.
func NewGenerator(modelID string, loader Loader, opts ...GeneratorOption) *Generator {
	g := &Generator{
		modelID: modelID,
		loader:  loader,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ModelID returns the identifier the Generator loads.
func (g *Generator) ModelID() string {
	return g.modelID
}

// Loaded reports whether the model has been loaded successfully.
func (g *Generator) Loaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model != nil && !g.closed
}

// Generate embeds text. Errors wrap ErrDependencyMissing, ErrModelLoadFailed
// or ErrEncodeFailed.
func (g *Generator) Generate(ctx context.Context, text string) (Vector, error) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: generator closed", ErrModelLoadFailed)
	}
	model, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEncodeFailed)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, fmt.Errorf("%w: generator closed", ErrModelLoadFailed)
	}
	raw, err := model.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return toVector(raw)
}

// BatchResult is the outcome for one text of GenerateBatch.
type BatchResult struct {
	Vector Vector
	Err    error
}

// GenerateBatch embeds texts with a single EmbedBatch call and returns one
// result per text, in order. Blank texts and unusable vectors fail only their
// own result with ErrEncodeFailed. The returned error is set when nothing was
// embedded: the model could not be loaded, the generator is closed or the
// backend rejected the whole batch (wrapped in ErrEncodeFailed).
func (g *Generator) GenerateBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: generator closed", ErrModelLoadFailed)
	}
	model, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, len(texts))
	var pending []string
	var positions []int
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			results[i].Err = fmt.Errorf("%w: empty text", ErrEncodeFailed)
			continue
		}
		pending = append(pending, text)
		positions = append(positions, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, fmt.Errorf("%w: generator closed", ErrModelLoadFailed)
	}
	raw, err := model.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	if len(raw) != len(pending) {
		return nil, fmt.Errorf("%w: model returned %d vectors for %d texts", ErrEncodeFailed, len(raw), len(pending))
	}
	for j, pos := range positions {
		results[pos].Vector, results[pos].Err = toVector(raw[j])
	}
	return results, nil
}

// toVector copies raw model output into a Vector, rejecting empty and
// non-finite output.
func toVector(raw []float32) (Vector, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: model returned an empty vector", ErrEncodeFailed)
	}
	v := make(Vector, len(raw))
	for i, f := range raw {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("%w: non-finite component at %d", ErrEncodeFailed, i)
		}
		v[i] = f
	}
	return v, nil
}

func (g *Generator) load(ctx context.Context) (Embedder, error) {
	g.once.Do(func() {
		// The model outlives the request that triggered the load.
		ctx := context.WithoutCancel(ctx)
		if g.loader == nil {
			g.loadErr = fmt.Errorf("%w: no embedding backend configured", ErrDependencyMissing)
			return
		}
		if err := g.loader.CheckDependencies(); err != nil {
			g.loadErr = fmt.Errorf("%w: %s: %w", ErrDependencyMissing, g.loader.Name(), err)
			g.logger.Warn("embedding dependency missing", zap.String("backend", g.loader.Name()), zap.Error(err))
			return
		}
		g.logger.Info("loading embedding model", zap.String("backend", g.loader.Name()), zap.String("model", g.modelID))
		model, err := g.loader.Load(ctx, g.modelID)
		if err != nil {
			if errors.Is(err, ErrDependencyMissing) {
				g.loadErr = err
			} else {
				g.loadErr = fmt.Errorf("%w: %s: %w", ErrModelLoadFailed, g.modelID, err)
			}
			g.logger.Warn("embedding model load failed", zap.String("model", g.modelID), zap.Error(err))
			return
		}
		g.mu.Lock()
		if g.closed {
			// Close ran while the model was loading and had nothing to release.
			g.mu.Unlock()
			_ = model.Close()
			g.loadErr = fmt.Errorf("%w: generator closed", ErrModelLoadFailed)
			return
		}
		g.model = model
		g.mu.Unlock()
		g.logger.Info("embedding model loaded", zap.String("model", g.modelID), zap.Int("dimensions", model.Dimensions()))
	})
	return g.model, g.loadErr
}

// Close releases the model if it was loaded. Generate fails after Close.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.model != nil {
		return g.model.Close()
	}
	return nil
}
