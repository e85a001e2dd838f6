// Package storage persists vocabulary items and the file-import ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/wortnest/internal/models"
)

// ErrNotFound is returned (wrapped) when an item or ledger entry does not exist.
var ErrNotFound = errors.New("not found")

// Filter selects items for SearchItems. Empty fields do not filter.
type Filter struct {
	Keyword string // substring of content or translation
	Type    models.ItemType
	Tag     string
	Limit   int
	Offset  int
}

// ImportRecord remembers a file that was imported, so unchanged files are skipped.
type ImportRecord struct {
	SourceID   string    `json:"source_id"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    int64     `json:"mod_time"`
	ItemCount  int       `json:"item_count"`
	ImportedAt time.Time `json:"imported_at"`
}

// Storage defines item persistence operations. ListAllItems returns items in
// insertion order; SearchItems returns newest first.
type Storage interface {
	// Item operations
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	UpdateItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, id int64) error
	ListAllItems(ctx context.Context) ([]*models.Item, error)
	SearchItems(ctx context.Context, f Filter) ([]*models.Item, error)
	RandomItems(ctx context.Context, limit int, tag string) ([]*models.Item, error)

	// Review and embedding bookkeeping
	MarkReviewed(ctx context.Context, id int64, at time.Time) error
	SetEmbedding(ctx context.Context, id int64, blob []byte) error
	ItemsMissingEmbedding(ctx context.Context) ([]*models.Item, error)

	// Import ledger
	GetImport(ctx context.Context, sourceID string) (*ImportRecord, error)
	RecordImport(ctx context.Context, rec *ImportRecord) error

	// Stats
	CountItems(ctx context.Context) (int64, error)
	CountByType(ctx context.Context) (map[models.ItemType]int, error)

	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates the backend for driver. SQLite uses path; Postgres uses url.
func Open(ctx context.Context, driver, path, url string) (Storage, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLiteStorage(path)
	case DriverPostgres:
		return NewPostgresStorage(ctx, url)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: sqlite, postgres)", driver)
	}
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return models.DefaultSearchLimit
	}
	return limit
}
