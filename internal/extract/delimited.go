package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractDelimited reads CSV or TSV records and returns one tab-joined line per
// record. A zero comma sniffs ',' or ';' from the first line.
func extractDelimited(content []byte, comma rune) (string, error) {
	text, _ := extractPlain(content)
	if comma == 0 {
		comma = sniffDelimiter(text)
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var lines []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse delimited text: %w", err)
		}
		lines = append(lines, joinCells(record))
	}
	return joinLines(lines), nil
}

// sniffDelimiter picks ';' when the first line has more semicolons than
// commas, as spreadsheet exports in German locales do.
func sniffDelimiter(text string) rune {
	first, _, _ := strings.Cut(text, "\n")
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}
