package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/ranking"
	"github.com/hyperjump/wortnest/internal/related"
)

const benchDimensions = 384

func benchCorpus(b *testing.B, n int) []*models.Item {
	b.Helper()
	e := embedding.NewMockEmbedder(benchDimensions)
	ctx := context.Background()
	topics := []string{"Tiere", "Essen", "Reisen", "Wohnen", "Wetter"}
	items := make([]*models.Item, n)
	for i := range items {
		content := fmt.Sprintf("Wort %d", i)
		v, err := e.Embed(ctx, content)
		if err != nil {
			b.Fatal(err)
		}
		items[i] = &models.Item{
			ID:          int64(i + 1),
			Content:     content,
			Translation: fmt.Sprintf("word %d", i),
			Tags:        []string{topics[i%len(topics)]},
			Embedding:   embedding.Encode(v),
		}
	}
	return items
}

func BenchmarkResolve(b *testing.B) {
	corpus := benchCorpus(b, 1000)
	r := related.NewResolver()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Resolve(corpus[i%len(corpus)], corpus, related.DefaultTopK)
	}
}

func BenchmarkEncodeDecode(b *testing.B) {
	v, _ := embedding.NewMockEmbedder(benchDimensions).Embed(context.Background(), "der Hund")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := embedding.Decode(embedding.Encode(v)); !ok {
			b.Fatal("decode failed")
		}
	}
}

func BenchmarkRerank(b *testing.B) {
	corpus := benchCorpus(b, 100)
	results := make([]*models.SearchResult, len(corpus))
	for i, item := range corpus {
		results[i] = &models.SearchResult{Item: item, Score: float64(len(corpus)-i) / float64(len(corpus))}
	}
	r := ranking.NewRanker(nil)
	q := r.AnalyzeQuery("Wort 42 -Essen")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := make([]*models.SearchResult, len(results))
		copy(batch, results)
		_ = r.Rerank(q, batch)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(benchDimensions)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
