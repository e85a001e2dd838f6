package ranking

import (
	"sort"
	"strings"

	"github.com/hyperjump/wortnest/internal/models"
)

// Ranker re-scores keyword hits by match quality.
type Ranker struct {
	config   *Config
	analyzer *QueryAnalyzer
}

// NewRanker creates a Ranker. A nil config uses DefaultConfig.
func NewRanker(config *Config) *Ranker {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	c.ApplyDefaults()
	return &Ranker{config: &c, analyzer: NewQueryAnalyzer()}
}

// AnalyzeQuery parses and analyzes a query string.
func (r *Ranker) AnalyzeQuery(query string) *AnalyzedQuery {
	return r.analyzer.Analyze(query)
}

// Tokens returns the words used for matching and highlighting.
func (r *Ranker) Tokens(q *AnalyzedQuery) []string {
	return r.analyzer.TokenizeForMatching(q)
}

// MatchText classifies how q matches a single text.
func (r *Ranker) MatchText(q *AnalyzedQuery, text string) MatchType {
	if text == "" {
		return MatchTypeNone
	}
	tokens := r.analyzer.TokenizeForMatching(q)
	if len(tokens) == 0 {
		return MatchTypeNone
	}
	if bare := bareText(text); bare != "" && bare == bareText(strings.Join(tokens, " ")) {
		return MatchTypeExact
	}
	lower := strings.ToLower(text)
	for _, phrase := range q.Phrases {
		if strings.Contains(lower, phrase) {
			return MatchTypePhrase
		}
	}
	if AllTermsMatch(tokens, text) {
		if len(tokens) > 1 && TermsInOrder(tokens, text) {
			return MatchTypePhrase
		}
		return MatchTypeAllWords
	}
	if CountMatchingTerms(tokens, text) > 0 {
		return MatchTypePartial
	}
	return MatchTypeNone
}

// Match returns the best match type over the item's content, lemmas and
// translation, and the multiplier it earns.
func (r *Ranker) Match(q *AnalyzedQuery, item *models.Item) (MatchType, float64) {
	best, mult := MatchTypeNone, 1.0
	consider := func(m MatchType, weight float64) {
		if m == MatchTypeNone {
			return
		}
		if v := r.config.Multiplier(m) * weight; best == MatchTypeNone || v > mult {
			best, mult = m, v
		}
	}
	consider(r.MatchText(q, item.Content), 1)
	consider(r.MatchText(q, strings.Join(item.Lemma, " ")), 1)
	consider(r.MatchText(q, item.Translation), r.config.TranslationWeight)

	tags := models.TagSet{}
	for _, t := range item.Tags {
		tags[strings.ToLower(t)] = struct{}{}
	}
	for _, tok := range r.analyzer.TokenizeForMatching(q) {
		if _, ok := tags[tok]; ok {
			mult *= r.config.TagMultiplier
			break
		}
	}
	return best, mult
}

// Excluded reports whether item contains one of the query's negated terms as
// a word of its content, translation or tags.
func Excluded(q *AnalyzedQuery, item *models.Item) bool {
	for _, neg := range q.NegatedTerms {
		if ContainsWord(item.Content, neg) || ContainsWord(item.Translation, neg) {
			return true
		}
		for _, t := range item.Tags {
			if strings.EqualFold(t, neg) {
				return true
			}
		}
	}
	return false
}

// Rerank drops excluded results, multiplies each score by its match
// multiplier, rescales so the best score is 1 and sorts by descending score.
// Ties keep their incoming order.
func (r *Ranker) Rerank(q *AnalyzedQuery, results []*models.SearchResult) []*models.SearchResult {
	kept := results[:0:0]
	maxScore := 0.0
	for _, res := range results {
		if res == nil || res.Item == nil || Excluded(q, res.Item) {
			continue
		}
		_, mult := r.Match(q, res.Item)
		res.Score *= mult
		maxScore = max(maxScore, res.Score)
		kept = append(kept, res)
	}
	if maxScore > 0 {
		for _, res := range kept {
			res.Score /= maxScore
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	return kept
}
