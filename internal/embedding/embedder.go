// Package embedding turns vocabulary text into vectors. It owns the blob codec,
// the lazily loaded Generator and the model backends (ONNX, OpenAI, mock).
package embedding

import "context"

// Vector is a fixed-dimension embedding. All backends produce []float32; the
// Generator is the only place that converts their output to a Vector.
type Vector []float32

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// embedEach implements EmbedBatch on top of Embed.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
