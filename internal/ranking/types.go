// Package ranking re-ranks keyword hits by how well the query matches an
// item's text, and applies "-term" exclusions.
package ranking

// MatchType represents the type of query match found.
type MatchType int

const (
	// MatchTypeNone indicates no match was found.
	MatchTypeNone MatchType = iota
	// MatchTypePartial indicates some query terms matched.
	MatchTypePartial
	// MatchTypeAllWords indicates all query words matched but not in order.
	MatchTypeAllWords
	// MatchTypePhrase indicates a quoted phrase or all words in order.
	MatchTypePhrase
	// MatchTypeExact indicates the text is the query, ignoring case, edge
	// punctuation and a leading article.
	MatchTypeExact
)

// String returns a string representation of the match type.
func (m MatchType) String() string {
	switch m {
	case MatchTypeNone:
		return "none"
	case MatchTypePartial:
		return "partial"
	case MatchTypeAllWords:
		return "all_words"
	case MatchTypePhrase:
		return "phrase"
	case MatchTypeExact:
		return "exact"
	default:
		return "unknown"
	}
}

// QueryType represents the type of search query.
type QueryType int

const (
	// QueryTypeSingleWord is a single word query.
	QueryTypeSingleWord QueryType = iota
	// QueryTypeMultiWord is a multi-word query without quotes.
	QueryTypeMultiWord
	// QueryTypePhrase contains at least one quoted phrase.
	QueryTypePhrase
	// QueryTypeWildcard contains * or ?.
	QueryTypeWildcard
	// QueryTypeBoolean has negated terms.
	QueryTypeBoolean
)

// String returns a string representation of the query type.
func (q QueryType) String() string {
	switch q {
	case QueryTypeSingleWord:
		return "single_word"
	case QueryTypeMultiWord:
		return "multi_word"
	case QueryTypePhrase:
		return "phrase"
	case QueryTypeWildcard:
		return "wildcard"
	case QueryTypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// AnalyzedQuery holds the parsed form of a search query.
type AnalyzedQuery struct {
	// Original is the query as typed.
	Original string
	// Terms are the lowercased tokens outside quotes.
	Terms []string
	// Phrases are the lowercased contents of quoted strings.
	Phrases []string
	// QueryType is the classified type of the query.
	QueryType QueryType
	// HasWildcard indicates if the query contains wildcard characters.
	HasWildcard bool
	// NegatedTerms are "-term" exclusions.
	NegatedTerms []string
}

// KeywordText is the text handed to the keyword index: terms and phrases
// without quotes or exclusions.
func (q *AnalyzedQuery) KeywordText() string {
	parts := make([]string, 0, len(q.Terms)+len(q.Phrases))
	parts = append(parts, q.Phrases...)
	parts = append(parts, q.Terms...)
	return joinNonEmpty(parts)
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}
