// Package cli formats wortnest results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/review"
	"github.com/hyperjump/wortnest/internal/server"
	"github.com/hyperjump/wortnest/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per item.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	separator     = "─────────────────────────────────────────────────────────"
	contentWidth  = 200
	compactWidth  = 60
	relatedFormat = "%2d. %-30s %-30s %.3f\n"
)

// ParseOutputFormat accepts text, compact or json. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputText, nil
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response to w.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.Results {
			writeCompactItem(w, r.Item)
		}
		return nil
	}
	if resp.Query == "" {
		fmt.Fprintf(w, "\n%d items\n\n", len(resp.Results))
	} else {
		fmt.Fprintf(w, "\nFound %d results for %q in %dms\n", resp.Total, resp.Query, resp.QueryTime)
		if resp.AutoFuzzy {
			fmt.Fprintln(w, "(no exact matches; showing typo-tolerant results)")
		}
		if len(resp.Suggestions) > 0 {
			fmt.Fprintf(w, "Did you mean: %s?\n", strings.Join(resp.Suggestions, ", "))
		}
		fmt.Fprintln(w)
	}
	for _, r := range resp.Results {
		fmt.Fprintln(w, separator)
		if resp.Query != "" {
			fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", r.Rank, r.Score)
		}
		writeItemText(w, r.Item)
	}
	return nil
}

// WriteItem writes a single item.
func WriteItem(w io.Writer, item *models.Item, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, item)
	case OutputCompact:
		writeCompactItem(w, item)
	default:
		writeItemText(w, item)
	}
	return nil
}

func writeItemText(w io.Writer, item *models.Item) {
	fmt.Fprintf(w, "ID: %d [%s]\n", item.ID, item.Type)
	fmt.Fprintf(w, "%s\n", utils.Truncate(item.Content, contentWidth))
	if item.Translation != "" {
		fmt.Fprintf(w, "  = %s\n", utils.Truncate(item.Translation, contentWidth))
	}
	if len(item.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(item.Tags, ", "))
	}
	for _, ex := range item.Examples {
		fmt.Fprintf(w, "  > %s\n", ex)
	}
	if item.ReviewCount > 0 && item.LastReviewed != nil {
		fmt.Fprintf(w, "Reviewed %d× (last %s)\n", item.ReviewCount, item.LastReviewed.Format("2006-01-02"))
	}
	fmt.Fprintln(w)
}

func writeCompactItem(w io.Writer, item *models.Item) {
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
		item.ID, item.Type,
		utils.Truncate(item.Content, compactWidth),
		utils.Truncate(item.Translation, compactWidth))
}

// WriteRelated writes the related items of a reference item. When related
// items are unavailable, text output says so in one line.
func WriteRelated(w io.Writer, resp *server.RelatedResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.Related {
			fmt.Fprintf(w, "%d\t%.4f\t%s\n", r.Item.ID, r.Score, r.Item.Content)
		}
		return nil
	}
	if !resp.Available {
		fmt.Fprintf(w, "Related items unavailable: %s\n", resp.Reason)
		return nil
	}
	if len(resp.Related) == 0 {
		fmt.Fprintln(w, "No related items.")
		return nil
	}
	for i, r := range resp.Related {
		fmt.Fprintf(w, relatedFormat, i+1,
			utils.Truncate(r.Item.Content, 27),
			utils.Truncate(r.Item.Translation, 27),
			r.Score)
	}
	return nil
}

// WriteReport writes the outcome of an import or backfill.
func WriteReport(w io.Writer, report *models.BatchReport, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, report)
	case OutputCompact:
		for _, e := range report.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Index+1, e.Outcome, e.Content, e.Reason)
		}
		return nil
	}
	source := report.Source
	if source == "" {
		source = "input"
	}
	fmt.Fprintf(w, "%s: %d imported, %d updated, %d skipped, %d failed\n",
		source,
		report.Count(models.OutcomeImported),
		report.Count(models.OutcomeUpdated),
		report.Count(models.OutcomeSkipped),
		report.Count(models.OutcomeFailed))
	if n := report.EmbeddingCount(models.EmbeddingFailed); n > 0 {
		fmt.Fprintf(w, "  %d item(s) saved without an embedding\n", n)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	for _, e := range report.Entries {
		if e.Outcome == models.OutcomeFailed {
			fmt.Fprintf(w, "  entry %d: %s: %s\n", e.Index+1, e.Content, e.Reason)
		}
	}
	return nil
}

// WriteStatus writes the vocabulary status.
func WriteStatus(w io.Writer, st *server.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	if st.Stats != nil {
		fmt.Fprintf(w, "items:              %d\n", st.Stats.Total)
		types := make([]string, 0, len(st.Stats.ByType))
		for t := range st.Stats.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-17s %d\n", strings.ToLower(t)+":", st.Stats.ByType[models.ItemType(t)])
		}
		fmt.Fprintf(w, "with_embedding:     %d\n", st.Stats.WithEmbedding)
		fmt.Fprintf(w, "reviewed:           %d\n", st.Stats.Reviewed)
	}
	if st.Embedding.Available {
		fmt.Fprintf(w, "embeddings:         on (%s, %s)\n", st.Embedding.Provider, st.Embedding.ModelID)
	} else {
		fmt.Fprintf(w, "embeddings:         off (%s)\n", st.Embedding.Reason)
	}
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *st.DiskUsageBytes)
	}
	if c := st.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "storage_driver:     %s\n", c.StorageDriver)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		if c.BleveIndexPath != "" {
			fmt.Fprintf(w, "bleve_index_path:   %s\n", c.BleveIndexPath)
		}
		if c.EmbeddingDimensions > 0 {
			fmt.Fprintf(w, "embedding_dims:     %d\n", c.EmbeddingDimensions)
		}
		fmt.Fprintf(w, "related_top_k:      %d\n", c.RelatedTopK)
		for _, dir := range c.Inboxes {
			fmt.Fprintf(w, "inbox:              %s\n", dir)
		}
	}
	return nil
}

// WriteDrill prints the question of a drill.
func WriteDrill(w io.Writer, d *review.Drill) {
	switch d.Mode {
	case review.ModeReverse:
		fmt.Fprintf(w, "Translate into German: %s\n", d.Prompt)
	case review.ModeDictation:
		// Dictation has no visible prompt; the translation stands in for the audio.
		fmt.Fprintf(w, "Write the German %s: %s\n", strings.ToLower(string(d.Item.Type)), d.Item.Translation)
	default:
		fmt.Fprintf(w, "Fill in the blank: %s\n", d.Prompt)
		if d.Item.Translation != "" {
			fmt.Fprintf(w, "  (%s)\n", d.Item.Translation)
		}
	}
}

// WriteGrade prints the verdict for an answer.
func WriteGrade(w io.Writer, g review.Grade) {
	switch {
	case g.Perfect:
		fmt.Fprintln(w, "Perfect!")
	case g.Correct:
		fmt.Fprintf(w, "Correct (%.0f%%). Expected: %s\n", g.Score*100, g.Expected)
	default:
		fmt.Fprintf(w, "Not quite (%.0f%%). Expected: %s\n", g.Score*100, g.Expected)
	}
}
