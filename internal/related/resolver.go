package related

import (
	"context"
	"fmt"

	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/models"
	"go.uber.org/zap"
)

// Repository is the read-only view of storage the resolver needs.
type Repository interface {
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	ListAllItems(ctx context.Context) ([]*models.Item, error)
}

// Resolver picks related items for a reference item. Embedding blobs are
// decoded on every call; nothing is cached between queries.
type Resolver struct {
	logger *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for per-candidate diagnostics.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver returns a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns up to topK items from corpus related to ref. The reference
// itself is never returned.
//
// Without a decodable reference embedding, every item sharing a tag scores
// models.TagMatchScore in corpus order; a reference without tags yields
// nothing. With an embedding, a tagged reference restricts candidates to
// tag-overlapping items, an untagged one considers the whole corpus, and the
// candidates are ranked by Rank.
func (r *Resolver) Resolve(ref *models.Item, corpus []*models.Item, topK int) []models.Related {
	if ref == nil {
		return []models.Related{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	refTags := ref.TagSet()

	refVec, ok := embedding.Decode(ref.Embedding)
	if !ok {
		if ref.HasEmbedding() {
			r.logger.Debug("reference embedding undecodable, using tags only", zap.Int64("item_id", ref.ID))
		}
		return r.byTags(ref, refTags, corpus, topK)
	}

	candidates := make([]Candidate, 0, len(corpus))
	for _, item := range corpus {
		if item == nil || item.ID == ref.ID {
			continue
		}
		if len(refTags) > 0 && !refTags.Overlaps(item.Tags) {
			continue
		}
		candidates = append(candidates, Candidate{Item: item, Vector: r.candidateVector(item, len(refVec))})
	}
	return Rank(refVec, refTags, candidates, topK)
}

func (r *Resolver) byTags(ref *models.Item, refTags models.TagSet, corpus []*models.Item, topK int) []models.Related {
	results := []models.Related{}
	if len(refTags) == 0 {
		return results
	}
	for _, item := range corpus {
		if item == nil || item.ID == ref.ID || !refTags.Overlaps(item.Tags) {
			continue
		}
		results = append(results, models.Related{Item: item, Score: models.TagMatchScore})
		if len(results) == topK {
			break
		}
	}
	return results
}

// candidateVector decodes item's embedding. Undecodable blobs and vectors of a
// different dimension count as missing.
func (r *Resolver) candidateVector(item *models.Item, dims int) embedding.Vector {
	if !item.HasEmbedding() {
		return nil
	}
	v, ok := embedding.Decode(item.Embedding)
	if !ok {
		r.logger.Debug("candidate embedding undecodable", zap.Int64("item_id", item.ID))
		return nil
	}
	if len(v) != dims {
		r.logger.Debug("candidate embedding dimension mismatch",
			zap.Int64("item_id", item.ID), zap.Int("dimensions", len(v)), zap.Int("want", dims))
		return nil
	}
	return v
}

// ResolveByID loads the reference and the corpus from repo and calls Resolve.
func (r *Resolver) ResolveByID(ctx context.Context, repo Repository, id int64, topK int) ([]models.Related, error) {
	ref, err := repo.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load reference item: %w", err)
	}
	corpus, err := repo.ListAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return r.Resolve(ref, corpus, topK), nil
}
