// Package vocab is the application layer shared by the HTTP server and the
// CLI. It routes calls to storage, the indexer, search, review and the
// related-item resolver, and decides whether related items are offered at all.
package vocab

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/export"
	"github.com/hyperjump/wortnest/internal/indexer"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/related"
	"github.com/hyperjump/wortnest/internal/review"
	"github.com/hyperjump/wortnest/internal/search"
	"github.com/hyperjump/wortnest/internal/storage"
	"go.uber.org/zap"
)

// ErrRelatedUnavailable is returned by Related while embeddings are disabled.
// Callers hide the feature instead of showing an error.
var ErrRelatedUnavailable = errors.New("related items unavailable: embeddings are disabled")

// ErrEmbeddingsUnavailable is returned by Backfill while embeddings are disabled.
var ErrEmbeddingsUnavailable = errors.New("embeddings unavailable")

// DefaultTopK is the number of related items returned when none is requested.
const DefaultTopK = 5

// Service bundles the vocabulary operations.
type Service struct {
	storage    storage.Storage
	indexer    *indexer.Indexer
	engine     *search.Engine
	resolver   *related.Resolver
	reviewer   *review.Reviewer
	capability *embedding.Capability
	topK       int
	deckName   string
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTopK sets the default number of related items.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithDeckName sets the Anki deck name used by Export.
func WithDeckName(name string) Option {
	return func(s *Service) { s.deckName = name }
}

// WithReviewer replaces the default reviewer, e.g. to change the pass threshold.
func WithReviewer(r *review.Reviewer) Option {
	return func(s *Service) { s.reviewer = r }
}

// NewService wires the components. capability may be nil, which disables related items.
func NewService(
	store storage.Storage,
	idx *indexer.Indexer,
	engine *search.Engine,
	resolver *related.Resolver,
	capability *embedding.Capability,
	opts ...Option,
) *Service {
	s := &Service{
		storage:    store,
		indexer:    idx,
		engine:     engine,
		resolver:   resolver,
		capability: capability,
		topK:       DefaultTopK,
		deckName:   export.DefaultDeckName,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reviewer == nil {
		s.reviewer = review.NewReviewer(store, review.WithLogger(s.logger))
	}
	return s
}

// Add stores a new item.
func (s *Service) Add(ctx context.Context, in *models.ItemInput) (*models.Item, error) {
	return s.indexer.AddItem(ctx, in)
}

// Get returns item id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Item, error) {
	return s.storage.GetItem(ctx, id)
}

// Update replaces the editable fields of item id.
func (s *Service) Update(ctx context.Context, id int64, in *models.ItemInput) (*models.Item, error) {
	return s.indexer.UpdateItem(ctx, id, in)
}

// Delete removes item id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.indexer.DeleteItem(ctx, id)
}

// Search runs a keyword search or a filtered listing.
func (s *Service) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	return s.engine.Search(ctx, q)
}

// Recent returns the n newest items.
func (s *Service) Recent(ctx context.Context, n int) ([]*models.Item, error) {
	return s.engine.Recent(ctx, n)
}

// Tags returns every tag in use.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	return s.engine.Tags(ctx)
}

// RelatedAvailable reports whether Related can currently answer.
func (s *Service) RelatedAvailable() bool {
	return s.capability.Available()
}

// Related returns up to topK items related to item id, best first. topK <= 0
// uses the configured default. While embeddings are disabled it returns
// ErrRelatedUnavailable without touching storage.
func (s *Service) Related(ctx context.Context, id int64, topK int) ([]models.Related, error) {
	if !s.capability.Available() {
		return nil, ErrRelatedUnavailable
	}
	if topK <= 0 {
		topK = s.topK
	}
	out, err := s.resolver.ResolveByID(ctx, s.storage, id, topK)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Related{}
	}
	return out, nil
}

// ImportText imports "Deutsch | English" lines.
func (s *Service) ImportText(ctx context.Context, text string, typ models.ItemType) *models.BatchReport {
	return s.indexer.ImportText(ctx, text, typ)
}

// ImportFile imports a vocabulary file.
func (s *Service) ImportFile(ctx context.Context, path string) (*models.BatchReport, error) {
	return s.indexer.ImportFile(ctx, path)
}

// ImportDirectory imports every supported file under dir.
func (s *Service) ImportDirectory(ctx context.Context, dir string) ([]*models.BatchReport, error) {
	return s.indexer.ImportDirectory(ctx, dir)
}

// Backfill generates missing embeddings. It fails fast while embeddings are disabled.
func (s *Service) Backfill(ctx context.Context) (*models.BatchReport, error) {
	if !s.capability.Available() {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingsUnavailable, s.capability.Status().Reason)
	}
	return s.indexer.Backfill(ctx)
}

// SyncKeywordIndex repairs the keyword index from storage.
func (s *Service) SyncKeywordIndex(ctx context.Context) (int, error) {
	return s.indexer.SyncKeywordIndex(ctx)
}

// Status reports item counts and whether embeddings are available.
func (s *Service) Status(ctx context.Context) (*models.Stats, error) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st := s.capability.Status()
	stats.EmbeddingsOn = st.Available
	stats.EmbeddingsNote = st.Reason
	return stats, nil
}

// Capability returns a snapshot of the embedding capability.
func (s *Service) Capability() embedding.Status {
	return s.capability.Status()
}

// NextDrill picks an item to review.
func (s *Service) NextDrill(ctx context.Context, tag string, mode review.Mode) (*review.Drill, error) {
	return s.reviewer.Next(ctx, tag, mode)
}

// CheckAnswer grades answer for item id.
func (s *Service) CheckAnswer(ctx context.Context, id int64, mode review.Mode, answer string) (review.Grade, error) {
	mode, err := review.ParseMode(string(mode))
	if err != nil {
		return review.Grade{}, err
	}
	item, err := s.storage.GetItem(ctx, id)
	if err != nil {
		return review.Grade{}, err
	}
	return s.reviewer.Check(item, mode, answer), nil
}

// Answer grades answer like CheckAnswer and records a review when it is correct.
func (s *Service) Answer(ctx context.Context, id int64, mode review.Mode, answer string) (review.Grade, error) {
	grade, err := s.CheckAnswer(ctx, id, mode, answer)
	if err != nil || !grade.Correct {
		return grade, err
	}
	if err := s.reviewer.MarkReviewed(ctx, id); err != nil {
		s.logger.Warn("mark reviewed failed", zap.Int64("item_id", id), zap.Error(err))
	}
	return grade, nil
}

// MarkReviewed records a review of item id.
func (s *Service) MarkReviewed(ctx context.Context, id int64) error {
	return s.reviewer.MarkReviewed(ctx, id)
}

// Export writes every item to w.
func (s *Service) Export(ctx context.Context, w io.Writer, f export.Format) error {
	items, err := s.storage.ListAllItems(ctx)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	return export.Write(w, f, items, export.Options{DeckName: s.deckName})
}
