// Package indexer writes vocabulary items into storage and the keyword index.
// On the way in it fills the translation, German annotations and the
// embedding, each of which may be unavailable without failing the write.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/wortnest/internal/annotate"
	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/extract"
	"github.com/hyperjump/wortnest/internal/keyword"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/storage"
	"github.com/hyperjump/wortnest/internal/translate"
	"go.uber.org/zap"
)

// Indexer indexes items into storage and the keyword index.
type Indexer struct {
	storage      storage.Storage
	keywordIndex keyword.Index // optional
	generator    *embedding.Generator
	capability   *embedding.Capability
	annotator    annotate.Annotator    // optional
	translator   translate.Translator  // optional
	spellChecker *keyword.SpellChecker // optional; invalidated after writes
	extractor    *extract.Extractor
	allowedExts  []string
	defaultType  models.ItemType
	batchSize    int
	logger       *zap.Logger
}

// DefaultBackfillBatchSize is how many items Backfill embeds per model call.
const DefaultBackfillBatchSize = 32

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithAnnotator sets the annotator used for lemmas and grammar tags.
func WithAnnotator(a annotate.Annotator) IndexerOption {
	return func(idx *Indexer) { idx.annotator = a }
}

// WithTranslator enables automatic translation of entries added without one.
func WithTranslator(t translate.Translator) IndexerOption {
	return func(idx *Indexer) { idx.translator = t }
}

// WithSpellChecker registers a spell checker whose term cache is dropped after every write.
func WithSpellChecker(sc *keyword.SpellChecker) IndexerOption {
	return func(idx *Indexer) { idx.spellChecker = sc }
}

// WithAllowedExtensions restricts ImportFile and ImportDirectory to these extensions.
func WithAllowedExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) { idx.allowedExts = exts }
}

// WithDefaultType sets the type given to imported lines. Empty infers the type per line.
func WithDefaultType(t models.ItemType) IndexerOption {
	return func(idx *Indexer) { idx.defaultType = t }
}

// WithBackfillBatchSize sets how many items Backfill sends to the model at once.
func WithBackfillBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer. keywordIndex and generator may be nil; a nil
// or unavailable capability stores items without embeddings.
func NewIndexer(
	store storage.Storage,
	keywordIndex keyword.Index,
	generator *embedding.Generator,
	capability *embedding.Capability,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:      store,
		keywordIndex: keywordIndex,
		generator:    generator,
		capability:   capability,
		extractor:    extract.NewExtractor(),
		batchSize:    DefaultBackfillBatchSize,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// AddItem validates input, completes it and stores it. A failed translation
// or embedding is logged and the item is stored without it.
func (idx *Indexer) AddItem(ctx context.Context, input *models.ItemInput) (*models.Item, error) {
	item, err := idx.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	outcome, reason := idx.embed(ctx, item)
	if err := idx.storage.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to store item: %w", err)
	}
	idx.indexKeywords(ctx, item)
	idx.logger.Debug("item added",
		zap.Int64("item_id", item.ID),
		zap.String("type", string(item.Type)),
		zap.String("embedding", string(outcome)),
		zap.String("reason", reason))
	return item, nil
}

// prepare turns input into an unsaved item: type, translation, lemmas and tags.
func (idx *Indexer) prepare(ctx context.Context, input *models.ItemInput) (*models.Item, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	item := &models.Item{
		Type:        input.Type,
		Content:     input.Content,
		Translation: input.Translation,
		Tags:        input.Tags,
		Examples:    input.Examples,
	}
	if item.Type == "" {
		item.Type = annotate.InferType(item.Content)
	}
	if item.Translation == "" {
		item.Translation = idx.translate(ctx, item.Content)
	}
	idx.annotate(item)
	return item, nil
}

func (idx *Indexer) translate(ctx context.Context, content string) string {
	if idx.translator == nil {
		return ""
	}
	out, err := idx.translator.Translate(ctx, content)
	if err != nil {
		idx.logger.Warn("auto translation failed", zap.String("content", content), zap.Error(err))
		return ""
	}
	return out
}

// annotate sets lemmas and merges the annotator's tags after the user's.
func (idx *Indexer) annotate(item *models.Item) {
	if idx.annotator == nil {
		return
	}
	a := idx.annotator.Annotate(item.Content)
	item.Lemma = a.Lemmas
	item.Tags = models.MergeTags(item.Tags, a.Tags)
}

// embed sets item.Embedding when possible and reports what happened.
func (idx *Indexer) embed(ctx context.Context, item *models.Item) (models.EmbeddingOutcome, string) {
	item.Embedding = nil
	if idx.generator == nil || !idx.capability.Available() {
		return models.EmbeddingDisabled, idx.capability.Status().Reason
	}
	v, err := idx.generator.Generate(ctx, item.Content)
	if err != nil {
		if idx.capability.Observe(err) {
			return models.EmbeddingDisabled, err.Error()
		}
		idx.logger.Warn("embedding failed, storing item without it", zap.String("content", item.Content), zap.Error(err))
		return models.EmbeddingFailed, err.Error()
	}
	item.Embedding = embedding.Encode(v)
	return models.EmbeddingGenerated, ""
}

func (idx *Indexer) indexKeywords(ctx context.Context, item *models.Item) {
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Index(ctx, item); err != nil {
			// Storage is the source of truth; SyncKeywordIndex repairs the index.
			idx.logger.Warn("keyword index failed", zap.Int64("item_id", item.ID), zap.Error(err))
		}
	}
	if idx.spellChecker != nil {
		idx.spellChecker.Invalidate()
	}
}

// UpdateItem replaces the editable fields of item id. A changed content is
// re-annotated and re-embedded; an empty type or translation keeps the old
// value unless the content changed.
func (idx *Indexer) UpdateItem(ctx context.Context, id int64, input *models.ItemInput) (*models.Item, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	item, err := idx.storage.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	contentChanged := input.Content != item.Content

	item.Content = input.Content
	item.Tags = input.Tags
	item.Examples = input.Examples
	switch {
	case input.Type != "":
		item.Type = input.Type
	case contentChanged:
		item.Type = annotate.InferType(item.Content)
	}
	switch {
	case input.Translation != "":
		item.Translation = input.Translation
	case contentChanged:
		item.Translation = idx.translate(ctx, item.Content)
	}
	if contentChanged {
		idx.annotate(item)
		outcome, reason := idx.embed(ctx, item)
		idx.logger.Debug("item content changed", zap.Int64("item_id", id),
			zap.String("embedding", string(outcome)), zap.String("reason", reason))
	}
	if err := idx.storage.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	idx.indexKeywords(ctx, item)
	return item, nil
}

// DeleteItem removes an item from storage and the keyword index.
func (idx *Indexer) DeleteItem(ctx context.Context, id int64) error {
	if err := idx.storage.DeleteItem(ctx, id); err != nil {
		return err
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	if idx.spellChecker != nil {
		idx.spellChecker.Invalidate()
	}
	idx.logger.Debug("item deleted", zap.Int64("item_id", id))
	return nil
}

// contentKey is the duplicate key for imports.
func contentKey(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}

// ImportBatch adds inputs one by one. A duplicate of an existing item (same
// content, ignoring case) updates its translation and tags instead. A bad
// entry is recorded in the report and never aborts the batch; only a
// cancelled context stops it early.
func (idx *Indexer) ImportBatch(ctx context.Context, source string, inputs []models.ItemInput) *models.BatchReport {
	report := newReport(source)
	existing := make(map[string]*models.Item)
	if all, err := idx.storage.ListAllItems(ctx); err == nil {
		for _, it := range all {
			existing[contentKey(it.Content)] = it
		}
	} else {
		idx.logger.Warn("duplicate check unavailable", zap.Error(err))
		report.Warnings = append(report.Warnings, "duplicate check unavailable, existing items may be added again: "+err.Error())
	}

	for i := range inputs {
		in := inputs[i]
		entry := models.BatchEntry{Index: i, Content: in.Content}
		if err := ctx.Err(); err != nil {
			entry.Outcome = models.OutcomeFailed
			entry.Reason = err.Error()
			report.Add(entry)
			continue
		}
		if err := in.Validate(); err != nil {
			entry.Outcome = models.OutcomeFailed
			entry.Reason = err.Error()
			report.Add(entry)
			continue
		}
		entry.Content = in.Content

		if dup, ok := existing[contentKey(in.Content)]; ok {
			idx.mergeDuplicate(ctx, dup, &in, &entry)
			report.Add(entry)
			continue
		}

		item, err := idx.prepare(ctx, &in)
		if err != nil {
			entry.Outcome = models.OutcomeFailed
			entry.Reason = err.Error()
			report.Add(entry)
			continue
		}
		outcome, reason := idx.embed(ctx, item)
		entry.Embedding = outcome
		if outcome != models.EmbeddingGenerated {
			entry.Reason = reason
		}
		if err := idx.storage.CreateItem(ctx, item); err != nil {
			entry.Outcome = models.OutcomeFailed
			entry.Reason = err.Error()
			report.Add(entry)
			continue
		}
		idx.indexKeywords(ctx, item)
		existing[contentKey(item.Content)] = item
		entry.ItemID = item.ID
		entry.Outcome = models.OutcomeImported
		report.Add(entry)
	}

	idx.logger.Info("batch import finished",
		zap.String("batch_id", report.ID),
		zap.String("source", source),
		zap.Int("imported", report.Count(models.OutcomeImported)),
		zap.Int("updated", report.Count(models.OutcomeUpdated)),
		zap.Int("skipped", report.Count(models.OutcomeSkipped)),
		zap.Int("failed", report.Count(models.OutcomeFailed)))
	return report
}

// mergeDuplicate folds in into the existing item dup.
func (idx *Indexer) mergeDuplicate(ctx context.Context, dup *models.Item, in *models.ItemInput, entry *models.BatchEntry) {
	entry.ItemID = dup.ID
	changed := false
	if in.Translation != "" && in.Translation != dup.Translation {
		dup.Translation = in.Translation
		changed = true
	}
	if merged := models.MergeTags(dup.Tags, in.Tags); len(merged) != len(dup.Tags) {
		dup.Tags = merged
		changed = true
	}
	if !changed {
		entry.Outcome = models.OutcomeSkipped
		entry.Reason = "already exists"
		return
	}
	if err := idx.storage.UpdateItem(ctx, dup); err != nil {
		entry.Outcome = models.OutcomeFailed
		entry.Reason = err.Error()
		return
	}
	idx.indexKeywords(ctx, dup)
	entry.Outcome = models.OutcomeUpdated
}

// ImportText parses "Deutsch | English" lines and imports them.
func (idx *Indexer) ImportText(ctx context.Context, text string, typ models.ItemType) *models.BatchReport {
	if typ == "" {
		typ = idx.defaultType
	}
	return idx.ImportBatch(ctx, "text", ParseLines(text, typ))
}

// isNotFound reports whether err is a storage miss.
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
