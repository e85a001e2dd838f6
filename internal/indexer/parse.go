package indexer

import (
	"strings"

	"github.com/hyperjump/wortnest/internal/models"
)

// Header cells that mark the first line of a spreadsheet export as column names.
var (
	contentHeaders     = []string{"deutsch", "german", "content", "wort", "de"}
	translationHeaders = []string{"englisch", "english", "translation", "übersetzung", "en"}
)

// ParseLines turns one entry per line into item inputs. A line is
// "content | translation | tags", with tabs accepted instead of pipes and tags
// separated by commas or semicolons. Blank lines and lines starting with '#'
// are skipped, as is a leading header row. typ is applied to every entry; an
// empty typ leaves inference to the indexer.
func ParseLines(text string, typ models.ItemType) []models.ItemInput {
	var out []models.ItemInput
	first := true
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		fields := splitLine(line)
		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}
		in := models.ItemInput{Type: typ, Content: strings.TrimSpace(fields[0])}
		if in.Content == "" {
			continue
		}
		if len(fields) > 1 {
			in.Translation = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			in.Tags = models.ParseTagList(strings.ReplaceAll(fields[2], ";", ","))
		}
		out = append(out, in)
	}
	return out
}

func splitLine(line string) []string {
	switch {
	case strings.Contains(line, "|"):
		return strings.Split(line, "|")
	case strings.Contains(line, "\t"):
		return strings.Split(line, "\t")
	default:
		return []string{line}
	}
}

func isHeader(fields []string) bool {
	if len(fields) < 2 {
		return false
	}
	return oneOf(fields[0], contentHeaders) && oneOf(fields[1], translationHeaders)
}

func oneOf(s string, options []string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
