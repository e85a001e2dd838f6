package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".wortnest/vocab.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = ".wortnest/bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = ".wortnest/models/paraphrase-multilingual-MiniLM-L12-v2"
	}
	if cfg.Embedding.Model == "" {
		if cfg.Embedding.Provider == "openai" {
			cfg.Embedding.Model = "text-embedding-3-small"
		} else {
			cfg.Embedding.Model = "paraphrase-multilingual-MiniLM-L12-v2"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.RetryDelay == 0 {
		cfg.Embedding.RetryDelay = 2 * time.Second
	}
	if cfg.Related.TopK == 0 {
		cfg.Related.TopK = 5
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 50
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 500
	}
	if cfg.Search.ContentBoost == 0 {
		cfg.Search.ContentBoost = 2.0
	}
	if cfg.Search.PhraseBoost == 0 {
		cfg.Search.PhraseBoost = 1.5
	}
	if cfg.Search.CandidateLimit == 0 {
		cfg.Search.CandidateLimit = 200
	}
	cfg.Search.Ranking.ApplyDefaults()
	if cfg.Review.PassThreshold == 0 {
		cfg.Review.PassThreshold = 0.8
	}
	if cfg.Translate.Model == "" {
		cfg.Translate.Model = "gpt-4o-mini"
	}
	if cfg.Import.Extensions == nil {
		cfg.Import.Extensions = []string{".txt", ".md", ".csv", ".tsv", ".xlsx", ".ods", ".docx", ".odt", ".rtf", ".pdf"}
	}
	if len(cfg.Import.Inbox) > 0 && cfg.Import.Recursive == nil {
		t := true
		cfg.Import.Recursive = &t
	}
	if cfg.Export.DeckName == "" {
		cfg.Export.DeckName = "German Learning"
	}
}
