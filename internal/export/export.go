// Package export writes vocabulary items as CSV, XLSX, JSON or an Anki deck.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/wortnest/internal/models"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatAnki Format = "apkg"
)

// DefaultDeckName names the Anki deck when none is configured.
const DefaultDeckName = "German Learning"

// ParseFormat accepts a format name or file extension, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatCSV, FormatXLSX, FormatJSON, FormatAnki:
		return f, nil
	case "anki":
		return FormatAnki, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q (want csv, xlsx, json or apkg)", models.ErrInvalidInput, s)
	}
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	case FormatAnki:
		return "application/octet-stream"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename is the suggested download name.
func (f Format) Filename() string {
	return "wortnest." + string(f)
}

// Options tune an export.
type Options struct {
	DeckName string // Anki only
}

// Write encodes items to w in format f.
func Write(w io.Writer, f Format, items []*models.Item, opts Options) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, items)
	case FormatXLSX:
		return WriteXLSX(w, items)
	case FormatJSON:
		return WriteJSON(w, items)
	case FormatAnki:
		return WriteAnki(w, items, opts.DeckName)
	default:
		return fmt.Errorf("%w: unknown export format %q", models.ErrInvalidInput, f)
	}
}

// Columns is the header of tabular exports.
var Columns = []string{"id", "type", "content", "translation", "lemma", "tags", "examples", "created_at", "last_reviewed", "review_count"}

// row flattens item in Columns order. Lists are joined with ", ".
func row(item *models.Item) []string {
	lastReviewed := ""
	if item.LastReviewed != nil {
		lastReviewed = item.LastReviewed.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.FormatInt(item.ID, 10),
		string(item.Type),
		item.Content,
		item.Translation,
		strings.Join(item.Lemma, ", "),
		strings.Join(item.Tags, ", "),
		strings.Join(item.Examples, " | "),
		item.CreatedAt.UTC().Format(time.RFC3339),
		lastReviewed,
		strconv.Itoa(item.ReviewCount),
	}
}

// WriteCSV writes a header and one row per item.
func WriteCSV(w io.Writer, items []*models.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, it := range items {
		if err := cw.Write(row(it)); err != nil {
			return fmt.Errorf("write item %d: %w", it.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes items as an indented JSON array. Embeddings are not included.
func WriteJSON(w io.Writer, items []*models.Item) error {
	if items == nil {
		items = []*models.Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	return nil
}
