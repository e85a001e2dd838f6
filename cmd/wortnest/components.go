package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/wortnest/internal/annotate"
	"github.com/hyperjump/wortnest/internal/config"
	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/indexer"
	"github.com/hyperjump/wortnest/internal/keyword"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/ranking"
	"github.com/hyperjump/wortnest/internal/related"
	"github.com/hyperjump/wortnest/internal/review"
	"github.com/hyperjump/wortnest/internal/search"
	"github.com/hyperjump/wortnest/internal/storage"
	"github.com/hyperjump/wortnest/internal/translate"
	"github.com/hyperjump/wortnest/internal/vocab"
)

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Storage      storage.Storage
	KeywordIndex *keyword.BleveIndex
	Generator    *embedding.Generator
	Capability   *embedding.Capability
	Indexer      *indexer.Indexer
	Engine       *search.Engine
	Vocab        *vocab.Service
}

// Close releases the model, the keyword index and the database.
func (c *Components) Close() {
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if cfg.Storage.Driver != storage.DriverPostgres {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DatabasePath, cfg.Storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.BleveIndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = kw

	ec := cfg.Embedding
	loader, err := embedding.NewLoader(ec.Provider, embedding.LoaderConfig{
		Dimensions:  ec.Dimensions,
		MaxTokens:   ec.MaxTokens,
		CacheSize:   ec.CacheSize,
		LibraryPath: ec.LibraryPath,
		APIKey:      ec.APIKey,
		BaseURL:     ec.BaseURL,
		MaxRetries:  ec.MaxRetries,
		RetryDelay:  ec.RetryDelay,
	})
	if err != nil {
		// An unknown provider disables embeddings rather than the whole app.
		logger.Warn("embedding backend unavailable", zap.Error(err))
		loader = nil
	}
	c.Capability = embedding.CheckCapability(ec.IsEnabled(), loader, ec.ModelID(), logger)
	c.Generator = embedding.NewGenerator(ec.ModelID(), loader, embedding.WithGeneratorLogger(logger))

	spell := keyword.NewSpellChecker(kw)

	defaultType, err := models.ParseItemType(cfg.Import.DefaultType)
	if err != nil {
		return nil, fmt.Errorf("import.default_type: %w", err)
	}
	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithSpellChecker(spell),
		indexer.WithAllowedExtensions(cfg.Import.Extensions),
		indexer.WithDefaultType(defaultType),
		indexer.WithBackfillBatchSize(ec.BatchSize),
	}
	if annotator, err := annotate.NewRuleAnnotator(); err != nil {
		logger.Warn("annotator unavailable, items get no lemmas or grammar tags", zap.Error(err))
	} else {
		idxOpts = append(idxOpts, indexer.WithAnnotator(annotator))
	}
	if cfg.Translate.Enabled {
		tr, err := translate.NewOpenAITranslator(translate.Config{
			APIKey:     cfg.Translate.APIKey,
			Model:      cfg.Translate.Model,
			BaseURL:    cfg.Translate.BaseURL,
			MaxRetries: ec.MaxRetries,
			RetryDelay: ec.RetryDelay,
		})
		if err != nil {
			logger.Warn("auto-translation disabled", zap.Error(err))
		} else {
			idxOpts = append(idxOpts, indexer.WithTranslator(tr))
		}
	}
	c.Indexer = indexer.NewIndexer(store, kw, c.Generator, c.Capability, idxOpts...)

	c.Engine = search.NewEngine(store, kw,
		search.WithLogger(logger),
		search.WithSpellChecker(spell),
		search.WithCandidateLimit(cfg.Search.CandidateLimit),
		search.WithRanker(ranking.NewRanker(&cfg.Search.Ranking)),
		search.WithSearchOptions(keyword.SearchOptions{
			ContentBoost: cfg.Search.ContentBoost,
			PhraseBoost:  cfg.Search.PhraseBoost,
			Fuzziness:    cfg.Search.Fuzziness,
		}))

	reviewer := review.NewReviewer(store,
		review.WithPassThreshold(cfg.Review.PassThreshold),
		review.WithLogger(logger))
	c.Vocab = vocab.NewService(store, c.Indexer, c.Engine,
		related.NewResolver(related.WithLogger(logger)),
		c.Capability,
		vocab.WithLogger(logger),
		vocab.WithTopK(cfg.Related.TopK),
		vocab.WithDeckName(cfg.Export.DeckName),
		vocab.WithReviewer(reviewer))

	ok = true
	return c, nil
}
