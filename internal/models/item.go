// Package models defines core data structures for vocabulary items, queries, and results.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput marks validation failures of user supplied items and queries.
var ErrInvalidInput = errors.New("invalid input")

// ItemType classifies a vocabulary item.
type ItemType string

const (
	TypeWord     ItemType = "Word"
	TypePhrase   ItemType = "Phrase"
	TypeSentence ItemType = "Sentence"
)

// ItemTypes lists the valid item types in display order.
var ItemTypes = []ItemType{TypeWord, TypePhrase, TypeSentence}

// ParseItemType accepts a type name case-insensitively. Empty input returns "" and no error.
func ParseItemType(s string) (ItemType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, t := range ItemTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown item type %q (want Word, Phrase or Sentence)", ErrInvalidInput, s)
}

// Item is a stored vocabulary entry.
type Item struct {
	ID           int64      `json:"id" db:"id"`
	Type         ItemType   `json:"type" db:"type"`
	Content      string     `json:"content" db:"content"`
	Translation  string     `json:"translation" db:"translation"`
	Lemma        []string   `json:"lemma,omitempty" db:"lemma"`
	Tags         []string   `json:"tags" db:"tags"`
	Examples     []string   `json:"examples,omitempty" db:"examples"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty" db:"last_reviewed"`
	ReviewCount  int        `json:"review_count" db:"review_count"`
	// Embedding is the encoded vector blob; nil until generated.
	Embedding []byte `json:"-" db:"embedding"`
}

// HasEmbedding reports whether a vector blob is stored for the item.
func (i *Item) HasEmbedding() bool {
	return len(i.Embedding) > 0
}

// TagSet returns the item's tags as a set.
func (i *Item) TagSet() TagSet {
	return NewTagSet(i.Tags...)
}

// ItemInput is the input for creating or updating an item.
type ItemInput struct {
	Type        ItemType `json:"type,omitempty"`
	Content     string   `json:"content"`
	Translation string   `json:"translation,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Validate normalizes whitespace and tags and checks that content is present.
func (in *ItemInput) Validate() error {
	in.Content = strings.Join(strings.Fields(in.Content), " ")
	in.Translation = strings.TrimSpace(in.Translation)
	if in.Content == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
	}
	if in.Type != "" {
		t, err := ParseItemType(string(in.Type))
		if err != nil {
			return err
		}
		in.Type = t
	}
	in.Tags = NormalizeTags(in.Tags)
	examples := in.Examples[:0]
	for _, e := range in.Examples {
		if e = strings.TrimSpace(e); e != "" {
			examples = append(examples, e)
		}
	}
	in.Examples = examples
	return nil
}
