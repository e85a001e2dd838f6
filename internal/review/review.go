// Package review builds practice drills from stored items and grades answers.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hyperjump/wortnest/internal/keyword"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/storage"
	"github.com/hyperjump/wortnest/pkg/utils"
	"go.uber.org/zap"
)

// ErrNoItems is returned by Next when no item fits the request.
var ErrNoItems = errors.New("no items to review")

// DefaultPassThreshold is the score an answer needs to count as correct.
const DefaultPassThreshold = 0.8

// Blank replaces the hidden word in a cloze prompt.
const Blank = "___"

// candidatePool is how many random items Next looks at to find one that fits the mode.
const candidatePool = 20

// Mode is a drill type.
type Mode string

const (
	// ModeCloze hides one word of the German text.
	ModeCloze Mode = "cloze"
	// ModeReverse shows the translation and asks for the German text.
	ModeReverse Mode = "reverse"
	// ModeDictation asks for the full German text, to be typed from memory or audio.
	ModeDictation Mode = "dictation"
)

// ParseMode accepts a mode name case-insensitively. Empty means ModeCloze.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeCloze, nil
	case ModeCloze, ModeReverse, ModeDictation:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown review mode %q (want cloze, reverse or dictation)", models.ErrInvalidInput, s)
	}
}

// Drill is one question.
type Drill struct {
	Item   *models.Item `json:"item"`
	Mode   Mode         `json:"mode"`
	Prompt string       `json:"prompt"`
}

// Grade is the result of checking an answer.
type Grade struct {
	Correct  bool    `json:"correct"`
	Perfect  bool    `json:"perfect"`
	Score    float64 `json:"score"`
	Expected string  `json:"expected"`
}

// Reviewer hands out drills and records reviews.
type Reviewer struct {
	storage       storage.Storage
	passThreshold float64
	now           func() time.Time
	logger        *zap.Logger
}

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithPassThreshold sets the minimum score for a correct answer. Values
// outside (0, 1] are ignored.
func WithPassThreshold(t float64) Option {
	return func(r *Reviewer) {
		if t > 0 && t <= 1 {
			r.passThreshold = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reviewer) { r.logger = l }
}

// WithClock replaces time.Now for review timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reviewer) { r.now = now }
}

// NewReviewer creates a Reviewer.
func NewReviewer(store storage.Storage, opts ...Option) *Reviewer {
	r := &Reviewer{
		storage:       store,
		passThreshold: DefaultPassThreshold,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next picks a random item, optionally restricted to tag, and builds a drill.
// Reverse drills only use items that have a translation.
func (r *Reviewer) Next(ctx context.Context, tag string, mode Mode) (*Drill, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	items, err := r.storage.RandomItems(ctx, candidatePool, strings.TrimSpace(tag))
	if err != nil {
		return nil, fmt.Errorf("pick review item: %w", err)
	}
	for _, item := range items {
		if mode == ModeReverse && item.Translation == "" {
			continue
		}
		return &Drill{Item: item, Mode: mode, Prompt: Prompt(item, mode)}, nil
	}
	if tag != "" {
		return nil, fmt.Errorf("%w with tag %q", ErrNoItems, tag)
	}
	return nil, ErrNoItems
}

// Prompt is what the learner sees for item in mode.
func Prompt(item *models.Item, mode Mode) string {
	switch mode {
	case ModeReverse:
		return item.Translation
	case ModeDictation:
		return ""
	default:
		prompt, _ := Cloze(item.Content, item.Lemma)
		return prompt
	}
}

// Expected is the answer Check compares against.
func Expected(item *models.Item, mode Mode) string {
	if mode == ModeCloze || mode == "" {
		_, hidden := Cloze(item.Content, item.Lemma)
		return hidden
	}
	return item.Content
}

// Check grades answer for a drill on item.
func (r *Reviewer) Check(item *models.Item, mode Mode, answer string) Grade {
	expected := Expected(item, mode)
	g := Grade{Expected: expected}
	answer = utils.CollapseWhitespace(answer)
	if answer == "" {
		return g
	}

	switch mode {
	case ModeReverse:
		g.Score = wordOverlap(answer, item.Content)
		g.Perfect = strings.EqualFold(answer, item.Content)
	case ModeDictation:
		if strings.EqualFold(answer, item.Content) {
			g.Score = 1
			g.Perfect = true
		} else {
			g.Score = keyword.Similarity(strings.ToLower(answer), strings.ToLower(item.Content))
		}
	default:
		g.Score = keyword.Similarity(strings.ToLower(answer), strings.ToLower(expected))
		g.Perfect = strings.EqualFold(answer, expected)
		if !g.Perfect && containsWord(item.Content, answer) {
			// Any word of the text is accepted, not only the hidden one.
			g.Correct = true
		}
	}
	g.Correct = g.Correct || g.Perfect || g.Score >= r.passThreshold
	return g
}

// MarkReviewed records a review of item id now.
func (r *Reviewer) MarkReviewed(ctx context.Context, id int64) error {
	if err := r.storage.MarkReviewed(ctx, id, r.now()); err != nil {
		return err
	}
	r.logger.Debug("item reviewed", zap.Int64("item_id", id))
	return nil
}

// Cloze hides one word of content. It prefers the longest word whose
// lowercase form starts with one of lemmas and otherwise the longest word.
// Punctuation next to the word stays visible. It returns the prompt and the
// hidden word; content without words is returned unchanged with an empty answer.
func Cloze(content string, lemmas []string) (string, string) {
	fields := strings.Fields(content)
	best, bestLen, bestLemma := -1, 0, false
	for i, f := range fields {
		w := trimPunct(f)
		n := len([]rune(w))
		if n == 0 {
			continue
		}
		lemma := matchesLemma(strings.ToLower(w), lemmas)
		switch {
		case lemma && (!bestLemma || n > bestLen):
			best, bestLen, bestLemma = i, n, true
		case !lemma && !bestLemma && n > bestLen:
			best, bestLen = i, n
		}
	}
	if best < 0 {
		return content, ""
	}
	field := fields[best]
	hidden := trimPunct(field)
	fields[best] = strings.Replace(field, hidden, Blank, 1)
	return strings.Join(fields, " "), hidden
}

func matchesLemma(word string, lemmas []string) bool {
	for _, l := range lemmas {
		if l = strings.ToLower(l); l != "" && strings.HasPrefix(word, l) {
			return true
		}
	}
	return false
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// wordOverlap is the share of distinct words of want that also occur in got.
func wordOverlap(got, want string) float64 {
	wantWords := utils.Words(strings.ToLower(want))
	if len(wantWords) == 0 {
		return 0
	}
	gotSet := models.NewTagSet(utils.Words(strings.ToLower(got))...)
	wantSet := models.NewTagSet(wantWords...)
	hits := 0
	for w := range wantSet {
		if gotSet.Has(w) {
			hits++
		}
	}
	return float64(hits) / float64(len(wantSet))
}

func containsWord(content, word string) bool {
	word = strings.ToLower(trimPunct(word))
	if word == "" {
		return false
	}
	for _, w := range utils.Words(strings.ToLower(content)) {
		if w == word {
			return true
		}
	}
	return false
}
