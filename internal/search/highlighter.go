package search

import (
	"strings"
	"unicode"

	"github.com/hyperjump/wortnest/pkg/utils"
)

// Markers wrapped around highlighted words.
const (
	MarkStart = "<mark>"
	MarkEnd   = "</mark>"
)

// Highlight truncates text to maxLen runes and wraps every word that starts
// with one of terms (ignoring case) in MarkStart/MarkEnd. Prefix matching lets
// "Haus" mark "Hauses". maxLen <= 0 disables truncation.
func Highlight(text string, terms []string, maxLen int) string {
	text = utils.Truncate(text, maxLen)
	if len(terms) == 0 {
		return text
	}
	lower := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lower = append(lower, t)
		}
	}

	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		if matchesAny(strings.ToLower(word), lower) {
			b.WriteString(MarkStart)
			b.WriteString(word)
			b.WriteString(MarkEnd)
		} else {
			b.WriteString(word)
		}
		i = j
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func matchesAny(word string, terms []string) bool {
	for _, t := range terms {
		if strings.HasPrefix(word, t) {
			return true
		}
	}
	return false
}
