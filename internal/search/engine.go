// Package search answers keyword queries over the vocabulary and provides the
// listing views (recent items, tags, stats) built on storage.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/wortnest/internal/keyword"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/ranking"
	"github.com/hyperjump/wortnest/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultCandidates  = 200
	defaultSuggestions = 3
	snippetLength      = 160
)

// Engine runs keyword search backed by storage for hydration and filtering.
type Engine struct {
	storage      storage.Storage
	keywordIndex keyword.Index
	spellChecker *keyword.SpellChecker // optional
	ranker       *ranking.Ranker
	options      keyword.SearchOptions
	candidates   int
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithSpellChecker enables "did you mean" suggestions for empty results.
func WithSpellChecker(sc *keyword.SpellChecker) EngineOption {
	return func(e *Engine) { e.spellChecker = sc }
}

// WithSearchOptions sets the boosts and fuzziness passed to the keyword index.
// FuzzyEnabled is taken from each query instead.
func WithSearchOptions(opts keyword.SearchOptions) EngineOption {
	return func(e *Engine) { e.options = opts }
}

// WithRanker replaces the default match-quality ranker.
func WithRanker(r *ranking.Ranker) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.ranker = r
		}
	}
}

// WithCandidateLimit sets how many keyword hits are fetched before filtering.
func WithCandidateLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.candidates = n
		}
	}
}

// NewEngine creates a search engine. keywordIndex may be nil, in which case
// text queries fall back to a substring match in storage.
func NewEngine(store storage.Storage, keywordIndex keyword.Index, opts ...EngineOption) *Engine {
	e := &Engine{
		storage:      store,
		keywordIndex: keywordIndex,
		options:      keyword.SearchOptions{ContentBoost: 2.0, PhraseBoost: 1.5},
		ranker:       ranking.NewRanker(nil),
		candidates:   defaultCandidates,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs query. An empty query text lists items matching the type and
// tag filters, newest first. Otherwise items are ranked by the keyword index
// and re-ranked by match quality, with "-term" exclusions applied; when nothing
// matches and fuzzy matching was off, the search is repeated with fuzzy
// matching and spelling suggestions are attached.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query); err != nil {
		return nil, err
	}

	response := &models.SearchResponse{Query: query.Query, Results: []*models.SearchResult{}}
	analyzed := e.ranker.AnalyzeQuery(query.Query)
	text := analyzed.KeywordText()
	var (
		ranked []*models.SearchResult
		err    error
	)
	switch {
	case query.Query == "":
		ranked, err = e.list(ctx, query)
	case text == "" || e.keywordIndex == nil:
		// Exclusions alone filter the whole listing.
		ranked, err = e.substring(ctx, query, text)
	default:
		ranked, err = e.rank(ctx, query, text, query.FuzzyEnabled)
		if err == nil && len(ranked) == 0 && !query.FuzzyEnabled {
			response.Suggestions = e.suggest(text)
			ranked, err = e.rank(ctx, query, text, true)
			response.AutoFuzzy = len(ranked) > 0
		}
	}
	if err != nil {
		return nil, err
	}
	if query.Query != "" {
		ranked = e.ranker.Rerank(analyzed, ranked)
	}

	// Listings are paged by storage, so their total is the page size.
	response.Total = len(ranked)
	if query.Query != "" {
		ranked = page(ranked, query.Offset, query.Limit)
	}
	terms := e.ranker.Tokens(analyzed)
	for i, r := range ranked {
		r.Rank = query.Offset + i + 1
		if len(terms) > 0 {
			r.Highlights = map[string]string{
				"content":     Highlight(r.Item.Content, terms, snippetLength),
				"translation": Highlight(r.Item.Translation, terms, snippetLength),
			}
		}
		response.Results = append(response.Results, r)
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	e.logger.Debug("search",
		zap.String("query", query.Query),
		zap.Int("total", response.Total),
		zap.Bool("auto_fuzzy", response.AutoFuzzy),
		zap.Int64("query_time_ms", response.QueryTime))
	return response, nil
}

// list pages through storage with the query's filters.
func (e *Engine) list(ctx context.Context, query *models.SearchQuery) ([]*models.SearchResult, error) {
	items, err := e.storage.SearchItems(ctx, storage.Filter{
		Type:   query.Type,
		Tag:    query.Tag,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]*models.SearchResult, 0, len(items))
	for _, it := range items {
		out = append(out, &models.SearchResult{Item: it, Score: 1})
	}
	return out, nil
}

// substring is used when no keyword index is configured. An empty text
// matches every item.
func (e *Engine) substring(ctx context.Context, query *models.SearchQuery, text string) ([]*models.SearchResult, error) {
	items, err := e.storage.SearchItems(ctx, storage.Filter{
		Keyword: text,
		Type:    query.Type,
		Tag:     query.Tag,
		Limit:   models.MaxSearchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	out := make([]*models.SearchResult, 0, len(items))
	for _, it := range items {
		out = append(out, &models.SearchResult{Item: it, Score: 1})
	}
	return out, nil
}

// rank queries the keyword index and hydrates the hits that pass the filters.
func (e *Engine) rank(ctx context.Context, query *models.SearchQuery, text string, fuzzy bool) ([]*models.SearchResult, error) {
	opts := e.options
	opts.FuzzyEnabled = fuzzy
	limit := max(e.candidates, query.Offset+query.Limit)
	hits, err := e.keywordIndex.Search(ctx, text, limit, &opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	scores := NormalizeScores(hits)
	out := make([]*models.SearchResult, 0, len(hits))
	for _, h := range hits {
		item, err := e.storage.GetItem(ctx, h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			// The index lags behind a delete; SyncKeywordIndex cleans it up.
			e.logger.Debug("skipping stale keyword hit", zap.Int64("item_id", h.ID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load item %d: %w", h.ID, err)
		}
		if !query.Matches(item) {
			continue
		}
		out = append(out, &models.SearchResult{Item: item, Score: scores[h.ID]})
	}
	return out, nil
}

func (e *Engine) suggest(query string) []string {
	if e.spellChecker == nil {
		return nil
	}
	return e.spellChecker.GetTopSuggestions(query, defaultSuggestions)
}

func page(results []*models.SearchResult, offset, limit int) []*models.SearchResult {
	start := min(offset, len(results))
	end := min(offset+limit, len(results))
	return results[start:end]
}

// Recent returns the n most recently added items.
func (e *Engine) Recent(ctx context.Context, n int) ([]*models.Item, error) {
	items, err := e.storage.SearchItems(ctx, storage.Filter{Limit: n})
	if err != nil {
		return nil, fmt.Errorf("list recent items: %w", err)
	}
	return items, nil
}

// Tags returns every distinct tag in use, sorted.
func (e *Engine) Tags(ctx context.Context) ([]string, error) {
	items, err := e.storage.ListAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	set := models.NewTagSet()
	for _, it := range items {
		for _, tag := range it.Tags {
			set[tag] = struct{}{}
		}
	}
	return set.Sorted(), nil
}

// Stats counts items by type, with embeddings and already reviewed. The
// embedding availability fields are left for the caller.
func (e *Engine) Stats(ctx context.Context) (*models.Stats, error) {
	items, err := e.storage.ListAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	stats := &models.Stats{Total: len(items), ByType: make(map[models.ItemType]int, len(models.ItemTypes))}
	for _, t := range models.ItemTypes {
		stats.ByType[t] = 0
	}
	for _, it := range items {
		stats.ByType[it.Type]++
		if it.HasEmbedding() {
			stats.WithEmbedding++
		}
		if it.ReviewCount > 0 {
			stats.Reviewed++
		}
	}
	return stats, nil
}
