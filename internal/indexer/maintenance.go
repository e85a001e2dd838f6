package indexer

import (
	"context"
	"fmt"

	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/models"
	"go.uber.org/zap"
)

// Backfill generates embeddings for every item stored without one, sending
// the items to the model in chunks of the backfill batch size. Items are
// reported as updated when a vector was stored and skipped otherwise; once the
// capability turns unavailable the remaining items are skipped without calls.
func (idx *Indexer) Backfill(ctx context.Context) (*models.BatchReport, error) {
	items, err := idx.storage.ItemsMissingEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items without embedding: %w", err)
	}
	report := newReport("backfill")
	for start := 0; start < len(items); start += idx.batchSize {
		end := min(start+idx.batchSize, len(items))
		for _, entry := range idx.backfillChunk(ctx, start, items[start:end]) {
			report.Add(entry)
		}
	}
	idx.logger.Info("embedding backfill finished",
		zap.Int("items", len(items)),
		zap.Int("generated", report.EmbeddingCount(models.EmbeddingGenerated)),
		zap.Int("failed", report.EmbeddingCount(models.EmbeddingFailed)),
		zap.Int("disabled", report.EmbeddingCount(models.EmbeddingDisabled)))
	return report, nil
}

// backfillChunk embeds chunk with one batch call. When the backend rejects the
// whole batch for a transient reason, the chunk is retried item by item so a
// single bad text cannot fail its neighbours.
func (idx *Indexer) backfillChunk(ctx context.Context, offset int, chunk []*models.Item) []models.BatchEntry {
	entries := make([]models.BatchEntry, len(chunk))
	for i, item := range chunk {
		entries[i] = models.BatchEntry{Index: offset + i, Content: item.Content, ItemID: item.ID, Outcome: models.OutcomeSkipped}
	}
	if err := ctx.Err(); err != nil {
		for i := range entries {
			entries[i].Reason = err.Error()
		}
		return entries
	}
	if idx.generator == nil || !idx.capability.Available() {
		reason := idx.capability.Status().Reason
		for i := range entries {
			entries[i].Embedding = models.EmbeddingDisabled
			entries[i].Reason = reason
		}
		return entries
	}

	texts := make([]string, len(chunk))
	for i, item := range chunk {
		texts[i] = item.Content
	}
	results, err := idx.generator.GenerateBatch(ctx, texts)
	if err != nil {
		if idx.capability.Observe(err) {
			for i := range entries {
				entries[i].Embedding = models.EmbeddingDisabled
				entries[i].Reason = err.Error()
			}
			return entries
		}
		idx.logger.Warn("batch embedding failed, retrying items one by one", zap.Int("items", len(chunk)), zap.Error(err))
		for i, item := range chunk {
			entries[i].Embedding, entries[i].Reason = idx.embed(ctx, item)
			idx.storeEmbedding(ctx, item, &entries[i])
		}
		return entries
	}

	for i, item := range chunk {
		if res := results[i]; res.Err != nil {
			idx.logger.Warn("embedding failed, item left without it", zap.Int64("item_id", item.ID), zap.Error(res.Err))
			entries[i].Embedding = models.EmbeddingFailed
			entries[i].Reason = res.Err.Error()
		} else {
			item.Embedding = embedding.Encode(res.Vector)
			entries[i].Embedding = models.EmbeddingGenerated
		}
		idx.storeEmbedding(ctx, item, &entries[i])
	}
	return entries
}

// storeEmbedding persists a generated embedding and sets the entry outcome.
func (idx *Indexer) storeEmbedding(ctx context.Context, item *models.Item, entry *models.BatchEntry) {
	if entry.Embedding != models.EmbeddingGenerated {
		return
	}
	if err := idx.storage.SetEmbedding(ctx, item.ID, item.Embedding); err != nil {
		entry.Outcome = models.OutcomeFailed
		entry.Reason = err.Error()
		return
	}
	entry.Outcome = models.OutcomeUpdated
}

// SyncKeywordIndex makes the keyword index match storage. It does nothing when
// both hold the same number of items; otherwise every stored item is
// re-indexed and ids unknown to storage are removed. It returns the number of
// items indexed.
func (idx *Indexer) SyncKeywordIndex(ctx context.Context) (int, error) {
	if idx.keywordIndex == nil {
		return 0, nil
	}
	stored, err := idx.storage.CountItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	indexed, err := idx.keywordIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count indexed items: %w", err)
	}
	if uint64(stored) == indexed {
		return 0, nil
	}

	items, err := idx.storage.ListAllItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}
	if err := idx.keywordIndex.IndexBatch(ctx, items); err != nil {
		return 0, fmt.Errorf("index items: %w", err)
	}
	known := make(map[int64]struct{}, len(items))
	for _, it := range items {
		known[it.ID] = struct{}{}
	}
	ids, err := idx.keywordIndex.IDs(ctx)
	if err != nil {
		return len(items), fmt.Errorf("list indexed items: %w", err)
	}
	removed := 0
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		if err := idx.keywordIndex.Delete(ctx, id); err != nil {
			return len(items), fmt.Errorf("remove stale item %d: %w", id, err)
		}
		removed++
	}
	if idx.spellChecker != nil {
		idx.spellChecker.Invalidate()
	}
	idx.logger.Info("keyword index synced",
		zap.Int64("stored", stored),
		zap.Uint64("previously_indexed", indexed),
		zap.Int("removed", removed))
	return len(items), nil
}
