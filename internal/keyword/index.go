// Package keyword provides the full-text index over vocabulary items and the
// spelling suggestions built from its term dictionary.
package keyword

import (
	"context"

	"github.com/hyperjump/wortnest/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// ContentBoost multiplies the score contribution from matches in the German
	// content field. Values > 1 rank direct hits above translation hits (e.g. 2.0).
	ContentBoost float64
	// PhraseBoost multiplies the score when query terms appear next to each other.
	PhraseBoost float64
	// FuzzyEnabled enables typo-tolerant matching.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2).
	// Default is 1 for words of up to five letters, otherwise 2.
	Fuzziness int
}

// Index defines keyword search operations over items.
type Index interface {
	Index(ctx context.Context, item *models.Item) error
	// IndexBatch indexes many items in one write.
	IndexBatch(ctx context.Context, items []*models.Item) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id int64) error
	// IDs returns the ids of every indexed item.
	IDs(ctx context.Context) ([]int64, error)
	// DocCount returns the total number of items in the index.
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    int64
	Score float64
}

// TermDictionary provides access to the term dictionary for spell checking.
type TermDictionary interface {
	// GetAllTerms returns all unique terms in the index.
	GetAllTerms() ([]string, error)
	// GetTermFrequency returns the document frequency for a term.
	GetTermFrequency(term string) (int, error)
	// ContainsTerm checks if a term exists in the index.
	ContainsTerm(term string) (bool, error)
}
