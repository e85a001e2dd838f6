// Package annotate derives lemmas, part-of-speech hints and grammar tags from
// German text when a new vocabulary item is built.
package annotate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/pkg/utils"
)

// Structural tags.
const (
	TagWord        = "Wort"
	TagQuestion    = "Frage"
	TagExclamation = "Ausruf"
)

// Coarse part-of-speech labels (Universal Dependencies names).
const (
	POSNoun  = "NOUN"
	POSVerb  = "VERB"
	POSAdj   = "ADJ"
	POSOther = "X"
)

// Annotation is what an Annotator extracts from one text.
type Annotation struct {
	Lemmas []string `json:"lemmas"`
	POS    []string `json:"pos"`
	Tags   []string `json:"tags"`
}

// Annotator analyzes source-language text.
type Annotator interface {
	Annotate(text string) Annotation
}

type grammarPattern struct {
	tag string
	re  *regexp.Regexp
}

// Patterns are matched against the lowercased text. ^ anchors to the start of
// the whole text.
var grammarPatterns = []grammarPattern{
	{"auch wenn + Nebensatz", regexp.MustCompile(`auch\s+wenn`)},
	{"obwohl + Nebensatz", regexp.MustCompile(`obwohl`)},
	{"trotzdem", regexp.MustCompile(`trotzdem`)},
	{"deshalb", regexp.MustCompile(`deshalb`)},
	{"weil + Nebensatz", regexp.MustCompile(`weil\s`)},
	{"damit + Nebensatz", regexp.MustCompile(`damit\s`)},
	{"wenn + Nebensatz", regexp.MustCompile(`^wenn\s`)},
	{"als + Nebensatz", regexp.MustCompile(`^als\s`)},
	{"dass + Nebensatz", regexp.MustCompile(`\sdass\s`)},
	{"um zu + Infinitiv", regexp.MustCompile(`um\s+zu`)},
	{"ohne zu + Infinitiv", regexp.MustCompile(`ohne\s+zu`)},
	{"ohne dass", regexp.MustCompile(`ohne\s+dass`)},
	{"seit/seitdem", regexp.MustCompile(`seit(dem)?\s`)},
	{"bis", regexp.MustCompile(`^bis\s`)},
	{"sodass", regexp.MustCompile(`sodass`)},
	{"während", regexp.MustCompile(`während`)},
	{"anstatt/anstatt dass", regexp.MustCompile(`anstatt\s+(dass\s)?`)},
}

type tokenAnalyzer interface {
	Analyze([]byte) analysis.TokenStream
}

// RuleAnnotator uses bleve's German analyzer (lowercasing, stop words,
// umlaut normalization, light stemming) for lemmas and fixed rules for
// everything else.
type RuleAnnotator struct {
	analyzer tokenAnalyzer
}

// NewRuleAnnotator builds the German analyzer.
func NewRuleAnnotator() (*RuleAnnotator, error) {
	a, err := registry.NewCache().AnalyzerNamed(de.AnalyzerName)
	if err != nil {
		return nil, fmt.Errorf("german analyzer: %w", err)
	}
	return &RuleAnnotator{analyzer: a}, nil
}

// Annotate returns stems, POS hints and tags for text.
func (a *RuleAnnotator) Annotate(text string) Annotation {
	text = utils.CollapseWhitespace(text)
	return Annotation{
		Lemmas: a.Lemmas(text),
		POS:    POS(text),
		Tags:   Tags(text),
	}
}

// Lemmas returns the distinct stems of the content words of text, in order.
func (a *RuleAnnotator) Lemmas(text string) []string {
	stream := a.analyzer.Analyze([]byte(text))
	out := make([]string, 0, len(stream))
	seen := make(map[string]struct{}, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// Tags returns the grammar-pattern tags followed by at most one structural tag.
func Tags(text string) []string {
	lower := strings.ToLower(utils.CollapseWhitespace(text))
	var tags []string
	for _, p := range grammarPatterns {
		if p.re.MatchString(lower) {
			tags = append(tags, p.tag)
		}
	}
	switch {
	case len(strings.Fields(text)) == 1:
		tags = append(tags, TagWord)
	case strings.Contains(text, "?"):
		tags = append(tags, TagQuestion)
	case strings.Contains(text, "!"):
		tags = append(tags, TagExclamation)
	}
	return tags
}

// POS guesses a part of speech for each word. Capitalized words after the
// first are nouns; the first word counts as a noun only when the text is a
// single word. Infinitive endings mark verbs and common suffixes adjectives.
func POS(text string) []string {
	words := utils.Words(text)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = guessPOS(w, i == 0 && len(words) > 1)
	}
	return out
}

var adjSuffixes = []string{"ig", "lich", "isch", "bar", "sam", "los", "haft"}

func guessPOS(word string, sentenceStart bool) string {
	r := []rune(word)
	if unicode.IsUpper(r[0]) && !sentenceStart {
		return POSNoun
	}
	lower := strings.ToLower(word)
	for _, s := range adjSuffixes {
		if strings.HasSuffix(lower, s) && len(lower) > len(s)+2 {
			return POSAdj
		}
	}
	if len(r) > 3 && (strings.HasSuffix(lower, "en") || strings.HasSuffix(lower, "ern") || strings.HasSuffix(lower, "eln")) {
		return POSVerb
	}
	return POSOther
}

// InferType classifies text: one word is a Word; terminal punctuation or five
// or more words make a Sentence; anything else is a Phrase.
func InferType(text string) models.ItemType {
	text = strings.TrimSpace(text)
	n := len(strings.Fields(text))
	switch {
	case n <= 1:
		return models.TypeWord
	case strings.HasSuffix(text, ".") || strings.HasSuffix(text, "?") || strings.HasSuffix(text, "!") || n >= 5:
		return models.TypeSentence
	default:
		return models.TypePhrase
	}
}
