// Package extract turns vocabulary files into plain text with one entry per
// line. Spreadsheet rows and delimited records come out with their cells
// separated by tabs so the line parser can split columns.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// supported lists every extension ExtractBytes understands.
var supported = map[string]struct{}{
	".txt": {}, ".md": {}, ".csv": {}, ".tsv": {},
	".xlsx": {}, ".ods": {},
	".docx": {}, ".odt": {}, ".rtf": {},
	".pdf": {},
}

// Supported reports whether files with extension ext (leading dot, any case) can be extracted.
func Supported(ext string) bool {
	_, ok := supported[strings.ToLower(ext)]
	return ok
}

// Extractor extracts line-oriented text from vocabulary files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".xlsx").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".txt", ".md":
		return extractPlain(content)
	case ".csv":
		return extractDelimited(content, 0)
	case ".tsv":
		return extractDelimited(content, '\t')
	case ".xlsx":
		return extractExcel(content)
	case ".ods":
		return extractODS(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractWithCat(content)
	case ".pdf":
		return extractPDF(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// joinLines drops blank lines and joins the rest with newlines. Leading tabs
// are kept so an empty first cell does not shift the columns.
func joinLines(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, strings.TrimRight(strings.TrimLeft(l, " \r"), " \t\r"))
	}
	return strings.Join(out, "\n")
}

// joinCells joins trimmed cells with tabs, dropping trailing empty cells.
func joinCells(cells []string) string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	trimmed := make([]string, end)
	for i := 0; i < end; i++ {
		trimmed[i] = strings.TrimSpace(cells[i])
	}
	return strings.Join(trimmed, "\t")
}
