package keyword

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Suggestion is a spelling suggestion for one term.
type Suggestion struct {
	Term      string
	Distance  int     // edit distance from the original term
	Frequency int     // number of items containing Term
	Score     float64 // Frequency / (Distance + 1)
}

// SpellCheckResult contains the result of spell checking a query.
type SpellCheckResult struct {
	OriginalQuery   string
	CorrectedQuery  string
	Suggestions     []Suggestion
	HasCorrections  bool
	MisspelledTerms []string
}

// SpellChecker suggests corrections for query terms from the index dictionary.
// The dictionary is loaded lazily and reloaded after Invalidate.
type SpellChecker struct {
	dictionary     TermDictionary
	maxDistance    int
	minFreq        int
	maxSuggestions int

	mu         sync.RWMutex
	termsCache []string
	termSet    map[string]struct{}
	cacheValid bool
}

// SpellCheckerOption is a functional option for configuring SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency sets the minimum document frequency for suggestions.
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMaxSuggestions sets the maximum number of suggestions to return per term.
func WithMaxSuggestions(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSpellChecker creates a SpellChecker over dict.
func NewSpellChecker(dict TermDictionary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		dictionary:     dict,
		maxDistance:    2,
		minFreq:        1,
		maxSuggestions: 5,
		termSet:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshCache reloads the term list from the dictionary.
func (s *SpellChecker) RefreshCache() error {
	terms, err := s.dictionary.GetAllTerms()
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.termsCache = terms
	s.termSet = set
	s.cacheValid = true
	return nil
}

// Invalidate marks the cached terms stale; the next lookup reloads them.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.cacheValid = false
	s.mu.Unlock()
}

func (s *SpellChecker) ensureCache() error {
	s.mu.RLock()
	valid := s.cacheValid
	s.mu.RUnlock()
	if valid {
		return nil
	}
	return s.RefreshCache()
}

// Check checks a query for spelling errors and returns suggestions.
func (s *SpellChecker) Check(query string) (*SpellCheckResult, error) {
	if err := s.ensureCache(); err != nil {
		return nil, err
	}

	terms := tokenizeQuery(query)
	result := &SpellCheckResult{
		OriginalQuery:   query,
		Suggestions:     make([]Suggestion, 0),
		MisspelledTerms: make([]string, 0),
	}
	correctedTerms := make([]string, 0, len(terms))

	for _, term := range terms {
		if s.known(term) {
			correctedTerms = append(correctedTerms, term)
			continue
		}
		suggestions := s.Suggest(term)
		if len(suggestions) == 0 {
			correctedTerms = append(correctedTerms, term)
			continue
		}
		result.HasCorrections = true
		result.MisspelledTerms = append(result.MisspelledTerms, term)
		result.Suggestions = append(result.Suggestions, suggestions...)
		correctedTerms = append(correctedTerms, suggestions[0].Term)
	}

	result.CorrectedQuery = strings.Join(correctedTerms, " ")
	return result, nil
}

func (s *SpellChecker) known(term string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.termSet[strings.ToLower(term)]
	return ok
}

// Suggest returns spelling suggestions for a single term, best first.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	if err := s.ensureCache(); err != nil {
		return nil
	}

	termLower := strings.ToLower(term)
	termLen := utf8.RuneCountInString(termLower)
	suggestions := make([]Suggestion, 0)

	s.mu.RLock()
	terms := s.termsCache
	s.mu.RUnlock()

	for _, dictTerm := range terms {
		dictTermLower := strings.ToLower(dictTerm)
		if dictTermLower == termLower {
			continue
		}
		// Length difference is a lower bound on the distance.
		lenDiff := utf8.RuneCountInString(dictTermLower) - termLen
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		if lenDiff > s.maxDistance {
			continue
		}

		distance := DamerauLevenshteinDistance(termLower, dictTermLower)
		if distance > s.maxDistance {
			continue
		}
		freq, err := s.dictionary.GetTermFrequency(dictTerm)
		if err != nil || freq < s.minFreq {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Term:      dictTerm,
			Distance:  distance,
			Frequency: freq,
			Score:     float64(freq) / float64(distance+1),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Term < suggestions[j].Term
	})
	if len(suggestions) > s.maxSuggestions {
		suggestions = suggestions[:s.maxSuggestions]
	}
	return suggestions
}

// IsMisspelled reports whether term is absent from the dictionary.
func (s *SpellChecker) IsMisspelled(term string) bool {
	if err := s.ensureCache(); err != nil {
		return false
	}
	return !s.known(term)
}

// GetSuggestedQuery returns the corrected query, or query itself when nothing needs fixing.
func (s *SpellChecker) GetSuggestedQuery(query string) string {
	result, err := s.Check(query)
	if err != nil || !result.HasCorrections {
		return query
	}
	return result.CorrectedQuery
}

// GetTopSuggestions returns up to n alternative queries. The first one uses the
// best suggestion for every misspelled term; the rest swap in the runner-up
// suggestions of the first misspelled term.
func (s *SpellChecker) GetTopSuggestions(query string, n int) []string {
	if n <= 0 {
		return nil
	}
	result, err := s.Check(query)
	if err != nil || !result.HasCorrections {
		return nil
	}

	out := make([]string, 0, n)
	seen := make(map[string]struct{})
	add := func(q string) {
		if _, dup := seen[q]; dup || len(out) >= n {
			return
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	add(result.CorrectedQuery)

	first := result.MisspelledTerms[0]
	corrected := strings.Fields(result.CorrectedQuery)
	pos := -1
	for i, t := range tokenizeQuery(query) {
		if t == first {
			pos = i
			break
		}
	}
	if pos < 0 || pos >= len(corrected) {
		return out
	}
	for _, sg := range s.Suggest(first) {
		alt := append([]string(nil), corrected...)
		alt[pos] = sg.Term
		add(strings.Join(alt, " "))
	}
	return out
}
