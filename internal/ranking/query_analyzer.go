package ranking

import (
	"regexp"
	"strings"
	"unicode"
)

// Double quotes and German „low-high“ quotes delimit phrases. Apostrophes do
// not, so "geht's" stays a term.
var phraseRegex = regexp.MustCompile(`["„“”]([^"„“”]+)["„“”]`)

// articles are dropped from the front of a text before an exact comparison,
// so "Haus" exactly matches "das Haus".
var articles = map[string]bool{
	"der": true, "die": true, "das": true, "den": true, "dem": true, "des": true,
	"ein": true, "eine": true, "einen": true, "einem": true, "einer": true, "eines": true,
	"the": true, "a": true, "an": true, "to": true,
}

// QueryAnalyzer analyzes search queries to extract terms, phrases and exclusions.
type QueryAnalyzer struct{}

// NewQueryAnalyzer creates a new QueryAnalyzer.
func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{}
}

// Analyze parses a query string and returns an AnalyzedQuery.
func (qa *QueryAnalyzer) Analyze(query string) *AnalyzedQuery {
	result := &AnalyzedQuery{
		Original:     query,
		Terms:        []string{},
		Phrases:      []string{},
		NegatedTerms: []string{},
	}
	result.HasWildcard = strings.ContainsAny(query, "*?")
	remaining := qa.extractPhrases(query, result)
	qa.extractTerms(remaining, result)
	result.QueryType = qa.classifyQuery(result)
	return result
}

// extractPhrases collects quoted phrases and returns the query without them.
func (qa *QueryAnalyzer) extractPhrases(query string, result *AnalyzedQuery) string {
	for _, match := range phraseRegex.FindAllStringSubmatch(query, -1) {
		if phrase := strings.TrimSpace(match[1]); phrase != "" {
			result.Phrases = append(result.Phrases, strings.ToLower(phrase))
		}
	}
	return phraseRegex.ReplaceAllString(query, " ")
}

func (qa *QueryAnalyzer) extractTerms(query string, result *AnalyzedQuery) {
	for _, word := range strings.Fields(query) {
		if strings.EqualFold(word, "AND") || strings.EqualFold(word, "OR") || strings.EqualFold(word, "NOT") {
			continue
		}
		if negated, ok := strings.CutPrefix(word, "-"); ok {
			if negated = normalizeToken(negated); negated != "" {
				result.NegatedTerms = append(result.NegatedTerms, negated)
			}
			continue
		}
		if normalized := normalizeToken(word); normalized != "" {
			result.Terms = append(result.Terms, normalized)
		}
	}
}

// normalizeToken lowercases and strips edge punctuation, keeping inner hyphens.
func normalizeToken(token string) string {
	return strings.TrimFunc(strings.ToLower(token), func(r rune) bool {
		return (unicode.IsPunct(r) && r != '-' && r != '_') || r == '*'
	})
}

func (qa *QueryAnalyzer) classifyQuery(result *AnalyzedQuery) QueryType {
	switch {
	case result.HasWildcard:
		return QueryTypeWildcard
	case len(result.NegatedTerms) > 0:
		return QueryTypeBoolean
	case len(result.Phrases) > 0:
		return QueryTypePhrase
	case len(result.Terms) <= 1:
		return QueryTypeSingleWord
	default:
		return QueryTypeMultiWord
	}
}

// TokenizeForMatching returns the distinct terms plus the words of every phrase.
func (qa *QueryAnalyzer) TokenizeForMatching(analyzed *AnalyzedQuery) []string {
	seen := make(map[string]bool)
	tokens := make([]string, 0, len(analyzed.Terms)+len(analyzed.Phrases)*3)
	add := func(t string) {
		if t != "" && !seen[t] {
			tokens = append(tokens, t)
			seen[t] = true
		}
	}
	for _, term := range analyzed.Terms {
		add(term)
	}
	for _, phrase := range analyzed.Phrases {
		for _, word := range strings.Fields(phrase) {
			add(normalizeToken(word))
		}
	}
	return tokens
}

// AllTermsMatch checks if all query terms are found in the given text.
func AllTermsMatch(terms []string, text string) bool {
	if len(terms) == 0 {
		return false
	}
	textLower := strings.ToLower(text)
	for _, term := range terms {
		if !strings.Contains(textLower, term) {
			return false
		}
	}
	return true
}

// CountMatchingTerms counts how many query terms are found in the text.
func CountMatchingTerms(terms []string, text string) int {
	count := 0
	textLower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(textLower, term) {
			count++
		}
	}
	return count
}

// TermsInOrder checks if terms appear in order in the text.
func TermsInOrder(terms []string, text string) bool {
	if len(terms) == 0 {
		return false
	}
	textLower := strings.ToLower(text)
	lastPos := -1
	for _, term := range terms {
		pos := strings.Index(textLower[lastPos+1:], term)
		if pos == -1 {
			return false
		}
		lastPos = lastPos + 1 + pos
	}
	return true
}

// ContainsWord reports whether word occurs in text as a whole word, ignoring case.
func ContainsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if normalizeToken(w) == word {
			return true
		}
	}
	return false
}

// bareText lowercases text, strips edge punctuation per word and drops a
// leading article.
func bareText(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = normalizeToken(w); w != "" {
			out = append(out, w)
		}
	}
	if len(out) > 1 && articles[out[0]] {
		out = out[1:]
	}
	return strings.Join(out, " ")
}
