package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/wortnest/internal/models"
)

// SQLiteStorage implements Storage using SQLite. List columns are stored as JSON text.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		translation TEXT NOT NULL DEFAULT '',
		lemma TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		examples TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_reviewed TIMESTAMP,
		review_count INTEGER NOT NULL DEFAULT 0,
		embedding BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
	CREATE INDEX IF NOT EXISTS idx_items_type ON items(type);

	CREATE TABLE IF NOT EXISTS imports (
		source_id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		imported_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

const itemColumns = `id, type, content, translation, lemma, tags, examples, created_at, last_reviewed, review_count, embedding`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteItem(row rowScanner) (*models.Item, error) {
	var (
		item                  models.Item
		lemma, tags, examples string
		lastReviewed          sql.NullTime
	)
	err := row.Scan(&item.ID, &item.Type, &item.Content, &item.Translation, &lemma, &tags, &examples,
		&item.CreatedAt, &lastReviewed, &item.ReviewCount, &item.Embedding)
	if err != nil {
		return nil, err
	}
	if lastReviewed.Valid {
		t := lastReviewed.Time
		item.LastReviewed = &t
	}
	for _, col := range []struct {
		raw string
		dst *[]string
	}{{lemma, &item.Lemma}, {tags, &item.Tags}, {examples, &item.Examples}} {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("item %d: failed to unmarshal list column: %w", item.ID, err)
		}
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return &item, nil
}

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func (s *SQLiteStorage) queryItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*models.Item{}
	for rows.Next() {
		item, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreateItem inserts item and sets its ID and CreatedAt (when zero).
func (s *SQLiteStorage) CreateItem(ctx context.Context, item *models.Item) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Tags = models.NormalizeTags(item.Tags)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO items (type, content, translation, lemma, tags, examples, created_at, last_reviewed, review_count, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Type, item.Content, item.Translation, marshalList(item.Lemma), marshalList(item.Tags),
		marshalList(item.Examples), item.CreatedAt, item.LastReviewed, item.ReviewCount, item.Embedding,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

// GetItem returns an item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	item, err := scanSQLiteItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("item", id)
	}
	return item, err
}

// UpdateItem overwrites the editable fields and embedding of an existing item.
func (s *SQLiteStorage) UpdateItem(ctx context.Context, item *models.Item) error {
	item.Tags = models.NormalizeTags(item.Tags)
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET type = ?, content = ?, translation = ?, lemma = ?, tags = ?, examples = ?, embedding = ?
		 WHERE id = ?`,
		item.Type, item.Content, item.Translation, marshalList(item.Lemma), marshalList(item.Tags),
		marshalList(item.Examples), item.Embedding, item.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(result, "item", item.ID)
}

func expectOne(result sql.Result, kind string, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// DeleteItem removes an item by ID.
func (s *SQLiteStorage) DeleteItem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(result, "item", id)
}

// ListAllItems returns every item ordered by ID.
func (s *SQLiteStorage) ListAllItems(ctx context.Context) ([]*models.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
}

// SearchItems filters by keyword (case-insensitive substring of content or
// translation), type and exact tag, newest first.
func (s *SQLiteStorage) SearchItems(ctx context.Context, f Filter) ([]*models.Item, error) {
	var where []string
	var args []any
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		where = append(where, `(content LIKE ? ESCAPE '\' OR translation LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(kw) + "%"
		args = append(args, pattern, pattern)
	}
	if f.Type != "" {
		where = append(where, `type = ?`)
		args = append(args, f.Type)
	}
	if f.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(items.tags) WHERE json_each.value = ?)`)
		args = append(args, f.Tag)
	}
	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))
	return s.queryItems(ctx, query, args...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// RandomItems returns up to limit random items, optionally restricted to tag.
func (s *SQLiteStorage) RandomItems(ctx context.Context, limit int, tag string) ([]*models.Item, error) {
	if limit <= 0 {
		limit = 1
	}
	if tag == "" {
		return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY RANDOM() LIMIT ?`, limit)
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE EXISTS (SELECT 1 FROM json_each(items.tags) WHERE json_each.value = ?)
		 ORDER BY RANDOM() LIMIT ?`, tag, limit)
}

// MarkReviewed sets last_reviewed and increments review_count.
func (s *SQLiteStorage) MarkReviewed(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET last_reviewed = ?, review_count = review_count + 1 WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return err
	}
	return expectOne(result, "item", id)
}

// SetEmbedding stores (or clears, with nil) an item's embedding blob.
func (s *SQLiteStorage) SetEmbedding(ctx context.Context, id int64, blob []byte) error {
	result, err := s.db.ExecContext(ctx, `UPDATE items SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return err
	}
	return expectOne(result, "item", id)
}

// ItemsMissingEmbedding returns items without an embedding, ordered by ID.
func (s *SQLiteStorage) ItemsMissingEmbedding(ctx context.Context) ([]*models.Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE embedding IS NULL OR length(embedding) = 0 ORDER BY id`)
}

// GetImport returns the ledger entry for sourceID.
func (s *SQLiteStorage) GetImport(ctx context.Context, sourceID string) (*ImportRecord, error) {
	var rec ImportRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, path, size, mod_time, item_count, imported_at FROM imports WHERE source_id = ?`, sourceID,
	).Scan(&rec.SourceID, &rec.Path, &rec.Size, &rec.ModTime, &rec.ItemCount, &rec.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("import", sourceID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordImport inserts or replaces a ledger entry.
func (s *SQLiteStorage) RecordImport(ctx context.Context, rec *ImportRecord) error {
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (source_id, path, size, mod_time, item_count, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET path = excluded.path, size = excluded.size,
		   mod_time = excluded.mod_time, item_count = excluded.item_count, imported_at = excluded.imported_at`,
		rec.SourceID, rec.Path, rec.Size, rec.ModTime, rec.ItemCount, rec.ImportedAt,
	)
	return err
}

// CountItems returns the total number of items.
func (s *SQLiteStorage) CountItems(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// CountByType returns item counts per type.
func (s *SQLiteStorage) CountByType(ctx context.Context) (map[models.ItemType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM items GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[models.ItemType]int, len(models.ItemTypes))
	for rows.Next() {
		var t models.ItemType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
