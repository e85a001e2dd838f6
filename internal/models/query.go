package models

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
)

// SearchQuery is a keyword search over the vocabulary with optional filters.
// An empty Query lists items matching the filters, newest first.
type SearchQuery struct {
	Query        string   `json:"query"`
	Type         ItemType `json:"type,omitempty"`
	Tag          string   `json:"tag,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Offset       int      `json:"offset,omitempty"`
	FuzzyEnabled bool     `json:"fuzzy_enabled,omitempty"` // enable fuzzy matching for typo tolerance
}

// Validate normalizes limit, offset and type.
func (q *SearchQuery) Validate() error {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	t, err := ParseItemType(string(q.Type))
	if err != nil {
		return err
	}
	q.Type = t
	return nil
}

// Matches reports whether item passes the type and tag filters.
func (q *SearchQuery) Matches(item *Item) bool {
	if q.Type != "" && item.Type != q.Type {
		return false
	}
	if q.Tag != "" && !item.TagSet().Has(q.Tag) {
		return false
	}
	return true
}
