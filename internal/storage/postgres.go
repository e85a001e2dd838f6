package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/pkg/utils"
)

// ErrEmptyConnectionString is returned when the postgres driver is selected without a URL.
var ErrEmptyConnectionString = errors.New("empty postgres connection string, set storage.database_url or WORTNEST_DATABASE_URL")

const pgConnectAttempts = 3

// PostgresStorage implements Storage on a shared PostgreSQL database, for
// vocabularies kept on a managed server instead of a local file. List columns
// are TEXT[].
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to url (retrying transient failures) and initializes the schema.
func NewPostgresStorage(ctx context.Context, url string) (*PostgresStorage, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyConnectionString
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	var pool *pgxpool.Pool
	for attempt := 0; attempt < pgConnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(utils.Backoff(500*time.Millisecond, attempt)):
			}
		}
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", pgConnectAttempts, err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		translation TEXT NOT NULL DEFAULT '',
		lemma TEXT[] NOT NULL DEFAULT '{}',
		tags TEXT[] NOT NULL DEFAULT '{}',
		examples TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_reviewed TIMESTAMPTZ,
		review_count INTEGER NOT NULL DEFAULT 0,
		embedding BYTEA
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_items_tags ON items USING GIN (tags)`,
	`CREATE TABLE IF NOT EXISTS imports (
		source_id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		size BIGINT NOT NULL,
		mod_time BIGINT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		imported_at TIMESTAMPTZ NOT NULL
	)`,
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func scanPostgresItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	var itemType string
	err := row.Scan(&item.ID, &itemType, &item.Content, &item.Translation, &item.Lemma, &item.Tags,
		&item.Examples, &item.CreatedAt, &item.LastReviewed, &item.ReviewCount, &item.Embedding)
	if err != nil {
		return nil, err
	}
	item.Type = models.ItemType(itemType)
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return &item, nil
}

func (s *PostgresStorage) queryItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*models.Item{}
	for rows.Next() {
		item, err := scanPostgresItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// CreateItem inserts item and sets its ID and CreatedAt (when zero).
func (s *PostgresStorage) CreateItem(ctx context.Context, item *models.Item) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Tags = models.NormalizeTags(item.Tags)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO items (type, content, translation, lemma, tags, examples, created_at, last_reviewed, review_count, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		string(item.Type), item.Content, item.Translation, nonNil(item.Lemma), item.Tags,
		nonNil(item.Examples), item.CreatedAt, item.LastReviewed, item.ReviewCount, item.Embedding,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// GetItem returns an item by ID.
func (s *PostgresStorage) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	item, err := scanPostgresItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("item", id)
	}
	return item, err
}

// UpdateItem overwrites the editable fields and embedding of an existing item.
func (s *PostgresStorage) UpdateItem(ctx context.Context, item *models.Item) error {
	item.Tags = models.NormalizeTags(item.Tags)
	tag, err := s.pool.Exec(ctx,
		`UPDATE items SET type = $1, content = $2, translation = $3, lemma = $4, tags = $5, examples = $6, embedding = $7
		 WHERE id = $8`,
		string(item.Type), item.Content, item.Translation, nonNil(item.Lemma), item.Tags,
		nonNil(item.Examples), item.Embedding, item.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("item", item.ID)
	}
	return nil
}

func (s *PostgresStorage) execOne(ctx context.Context, id int64, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("item", id)
	}
	return nil
}

// DeleteItem removes an item by ID.
func (s *PostgresStorage) DeleteItem(ctx context.Context, id int64) error {
	return s.execOne(ctx, id, `DELETE FROM items WHERE id = $1`, id)
}

// ListAllItems returns every item ordered by ID.
func (s *PostgresStorage) ListAllItems(ctx context.Context) ([]*models.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
}

// SearchItems filters by keyword (ILIKE on content or translation), type and
// exact tag, newest first.
func (s *PostgresStorage) SearchItems(ctx context.Context, f Filter) ([]*models.Item, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		p := arg("%" + escapeLike(kw) + "%")
		where = append(where, fmt.Sprintf(`(content ILIKE %s OR translation ILIKE %s)`, p, p))
	}
	if f.Type != "" {
		where = append(where, `type = `+arg(string(f.Type)))
	}
	if f.Tag != "" {
		where = append(where, arg(f.Tag)+` = ANY(tags)`)
	}
	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(normalizeLimit(f.Limit)) + ` OFFSET ` + arg(max(f.Offset, 0))
	return s.queryItems(ctx, query, args...)
}

// RandomItems returns up to limit random items, optionally restricted to tag.
func (s *PostgresStorage) RandomItems(ctx context.Context, limit int, tag string) ([]*models.Item, error) {
	if limit <= 0 {
		limit = 1
	}
	if tag == "" {
		return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY random() LIMIT $1`, limit)
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE $1 = ANY(tags) ORDER BY random() LIMIT $2`, tag, limit)
}

// MarkReviewed sets last_reviewed and increments review_count.
func (s *PostgresStorage) MarkReviewed(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, id,
		`UPDATE items SET last_reviewed = $1, review_count = review_count + 1 WHERE id = $2`, at.UTC(), id)
}

// SetEmbedding stores (or clears, with nil) an item's embedding blob.
func (s *PostgresStorage) SetEmbedding(ctx context.Context, id int64, blob []byte) error {
	return s.execOne(ctx, id, `UPDATE items SET embedding = $1 WHERE id = $2`, blob, id)
}

// ItemsMissingEmbedding returns items without an embedding, ordered by ID.
func (s *PostgresStorage) ItemsMissingEmbedding(ctx context.Context) ([]*models.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE embedding IS NULL OR length(embedding) = 0 ORDER BY id`)
}

// GetImport returns the ledger entry for sourceID.
func (s *PostgresStorage) GetImport(ctx context.Context, sourceID string) (*ImportRecord, error) {
	var rec ImportRecord
	err := s.pool.QueryRow(ctx,
		`SELECT source_id, path, size, mod_time, item_count, imported_at FROM imports WHERE source_id = $1`, sourceID,
	).Scan(&rec.SourceID, &rec.Path, &rec.Size, &rec.ModTime, &rec.ItemCount, &rec.ImportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("import", sourceID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordImport inserts or replaces a ledger entry.
func (s *PostgresStorage) RecordImport(ctx context.Context, rec *ImportRecord) error {
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO imports (source_id, path, size, mod_time, item_count, imported_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (source_id) DO UPDATE SET path = EXCLUDED.path, size = EXCLUDED.size,
		   mod_time = EXCLUDED.mod_time, item_count = EXCLUDED.item_count, imported_at = EXCLUDED.imported_at`,
		rec.SourceID, rec.Path, rec.Size, rec.ModTime, rec.ItemCount, rec.ImportedAt,
	)
	return err
}

// CountItems returns the total number of items.
func (s *PostgresStorage) CountItems(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// CountByType returns item counts per type.
func (s *PostgresStorage) CountByType(ctx context.Context) (map[models.ItemType]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT type, COUNT(*) FROM items GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[models.ItemType]int, len(models.ItemTypes))
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[models.ItemType(t)] = n
	}
	return counts, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
