package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/wortnest/internal/models"
)

const (
	fieldContent     = "content"
	fieldLemma       = "lemma"
	fieldTranslation = "translation"
	fieldTags        = "tags"
	fieldType        = "type"
)

// searchFields are the analyzed fields a free-text query runs against.
var searchFields = []string{fieldContent, fieldLemma, fieldTranslation, fieldTags}

// itemDoc is the indexed shape of an item. Field names come from the json tags.
type itemDoc struct {
	Type        string   `json:"type"`
	Content     string   `json:"content"`
	Lemma       []string `json:"lemma"`
	Translation string   `json:"translation"`
	Tags        []string `json:"tags"`
}

func newItemDoc(item *models.Item) itemDoc {
	return itemDoc{
		Type:        string(item.Type),
		Content:     item.Content,
		Lemma:       item.Lemma,
		Translation: item.Translation,
		Tags:        item.Tags,
	}
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ Index = (*BleveIndex)(nil)
var _ TermDictionary = (*BleveIndex)(nil)

// NewBleveIndex creates or opens a Bleve index at path.
// An existing index is reused as is. If the mapping changes, remove the index
// directory and let SyncKeywordIndex rebuild it from storage.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newItemMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryBleveIndex creates an index that lives only in memory.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newItemMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newItemMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Content keeps inflected forms (standard analyzer, no stemming) so a query
	// for "Häuser" ranks the exact word first; the lemma field carries the
	// German stems and catches the other forms.
	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(fieldContent, content)

	lemma := bleve.NewTextFieldMapping()
	lemma.Analyzer = de.AnalyzerName
	docMapping.AddFieldMappingsAt(fieldLemma, lemma)

	translation := bleve.NewTextFieldMapping()
	translation.Analyzer = en.AnalyzerName
	docMapping.AddFieldMappingsAt(fieldTranslation, translation)

	tags := bleve.NewTextFieldMapping()
	tags.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldTags, tags)

	docMapping.AddFieldMappingsAt(fieldType, bleve.NewKeywordFieldMapping())

	im.AddDocumentMapping("item", docMapping)
	im.DefaultType = "item"
	im.DefaultMapping = docMapping
	return im
}

// Index indexes an item under its id, replacing any earlier version.
func (b *BleveIndex) Index(ctx context.Context, item *models.Item) error {
	return b.index.Index(docID(item.ID), newItemDoc(item))
}

// IndexBatch indexes items in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, items []*models.Item) error {
	batch := b.index.NewBatch()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(docID(item.ID), newItemDoc(item)); err != nil {
			return fmt.Errorf("batch index item %d: %w", item.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Search runs a query and returns up to limit results.
// When opts is nil or no boost is above 1, one disjunction over all fields is used.
// Otherwise the per-field scores are merged additively with a term coverage
// penalty and a phrase proximity boost.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	contentBoost := 1.0
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 0
	if opts != nil {
		if opts.ContentBoost > 0 {
			contentBoost = opts.ContentBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		fuzziness = opts.Fuzziness
	}
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	if contentBoost <= 1.0 && phraseBoost <= 1.0 {
		return b.searchSingle(ctx, query, limit, fuzzyEnabled, fuzziness)
	}
	return b.searchWithBoosts(ctx, query, limit, contentBoost, phraseBoost, fuzzyEnabled, fuzziness)
}

func (b *BleveIndex) searchSingle(ctx context.Context, query string, limit int, fuzzyEnabled bool, fuzziness int) ([]*Result, error) {
	queries := make([]blevequery.Query, 0, len(searchFields))
	for _, field := range searchFields {
		queries = append(queries, b.fieldQuery(query, field, fuzzyEnabled, fuzziness))
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, &Result{ID: id, Score: hit.Score})
	}
	return out, nil
}

// searchWithBoosts scores each item as
// (content*contentBoost + lemma + translation + tags) * coverage^2 * phrase.
func (b *BleveIndex) searchWithBoosts(ctx context.Context, query string, limit int, contentBoost, phraseBoost float64, fuzzyEnabled bool, fuzziness int) ([]*Result, error) {
	reqSize := max(limit*2, 50)

	terms := tokenizeQuery(query)
	numTerms := len(terms)

	scores := make(map[string]float64)
	for _, field := range searchFields {
		req := bleve.NewSearchRequest(b.fieldQuery(query, field, fuzzyEnabled, fuzziness))
		req.Size = reqSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("Bleve %s search failed: %w", field, err)
		}
		weight := 1.0
		if field == fieldContent {
			weight = contentBoost
		}
		for _, hit := range results.Hits {
			scores[hit.ID] += hit.Score * weight
		}
	}

	termCoverage := make(map[string]int)
	if numTerms > 1 {
		termCoverage = b.calculateTermCoverage(ctx, terms, reqSize, fuzzyEnabled, fuzziness)
	}

	phraseMatches := make(map[string]bool)
	if phraseBoost > 1.0 && numTerms > 1 {
		phraseMatches = b.findPhraseMatches(ctx, query, reqSize)
	}

	type scored struct {
		id    int64
		score float64
	}
	merged := make([]scored, 0, len(scores))
	for key, base := range scores {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		// Squared coverage: half the terms matched keeps a quarter of the score.
		coverageMultiplier := 1.0
		if numTerms > 1 {
			matched := max(termCoverage[key], 1)
			coverage := float64(matched) / float64(numTerms)
			coverageMultiplier = coverage * coverage
		}
		phraseMultiplier := 1.0
		if phraseMatches[key] {
			phraseMultiplier = phraseBoost
		}
		merged = append(merged, scored{id: id, score: base * coverageMultiplier * phraseMultiplier})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].id > merged[j].id
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	out := make([]*Result, len(merged))
	for i, s := range merged {
		out[i] = &Result{ID: s.id, Score: s.score}
	}
	return out, nil
}

// fieldQuery builds a match query, or a fuzzy disjunction, restricted to field.
func (b *BleveIndex) fieldQuery(query, field string, fuzzyEnabled bool, fuzziness int) blevequery.Query {
	if fuzzyEnabled {
		return buildFuzzyQuery(query, fuzziness, field)
	}
	mq := bleve.NewMatchQuery(query)
	mq.SetField(field)
	return mq
}

// tokenizeQuery splits query into lowercase terms with edge punctuation removed.
func tokenizeQuery(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}«»„“”‚‘’")
		if w != "" {
			terms = append(terms, w)
		}
	}
	return terms
}

// fuzzinessFor picks the edit distance for term. Short words get 1 so that
// "Hund" does not match "Mond".
func fuzzinessFor(term string, configured int) int {
	if configured > 0 {
		return min(configured, 2)
	}
	if utf8.RuneCountInString(term) <= 5 {
		return 1
	}
	return 2
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries for each term in the query.
// If field is empty, searches all fields; otherwise restricts to the specified field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}

	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzzinessFor(term, fuzziness))
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// calculateTermCoverage counts how many query terms each item matches in any field.
func (b *BleveIndex) calculateTermCoverage(ctx context.Context, terms []string, reqSize int, fuzzyEnabled bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		queries := make([]blevequery.Query, 0, len(searchFields))
		for _, field := range searchFields {
			queries = append(queries, b.fieldQuery(term, field, fuzzyEnabled, fuzziness))
		}
		req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
		req.Size = reqSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// findPhraseMatches finds items whose content or translation contains the query as a phrase.
func (b *BleveIndex) findPhraseMatches(ctx context.Context, query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	for _, field := range []string{fieldContent, fieldTranslation} {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(field)
		req := bleve.NewSearchRequest(pq)
		req.Size = reqSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			matches[hit.ID] = true
		}
	}
	return matches
}

// Delete removes an item from the index. Deleting an unknown id is not an error.
func (b *BleveIndex) Delete(ctx context.Context, id int64) error {
	return b.index.Delete(docID(id))
}

// IDs returns every indexed item id in ascending order.
func (b *BleveIndex) IDs(ctx context.Context) ([]int64, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get doc count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve list failed: %w", err)
	}
	ids := make([]int64, 0, len(results.Hits))
	for _, hit := range results.Hits {
		if id, err := strconv.ParseInt(hit.ID, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of items in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// GetTermDocFrequency returns the number of items whose content contains term.
func (b *BleveIndex) GetTermDocFrequency(term string) (int, error) {
	tq := bleve.NewTermQuery(strings.ToLower(term))
	tq.SetField(fieldContent)
	req := bleve.NewSearchRequest(tq)
	req.Size = 0
	results, err := b.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to search for term frequency: %w", err)
	}
	return int(results.Total), nil
}

// GetAllTerms returns the unique terms of the content field. Translation terms
// are stemmed and would make poor spelling suggestions.
func (b *BleveIndex) GetAllTerms() ([]string, error) {
	dict, err := b.index.FieldDict(fieldContent)
	if err != nil {
		return nil, fmt.Errorf("open term dictionary: %w", err)
	}
	defer dict.Close()
	terms := make([]string, 0)
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("read term dictionary: %w", err)
		}
		if entry == nil {
			return terms, nil
		}
		terms = append(terms, entry.Term)
	}
}

// ContainsTerm checks if a term exists in the index.
func (b *BleveIndex) ContainsTerm(term string) (bool, error) {
	freq, err := b.GetTermDocFrequency(term)
	if err != nil {
		return false, err
	}
	return freq > 0, nil
}

// GetTermFrequency satisfies TermDictionary.
func (b *BleveIndex) GetTermFrequency(term string) (int, error) {
	return b.GetTermDocFrequency(term)
}
