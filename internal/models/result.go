package models

// Related is one related-item hit. Score is in [0, 1]: 1.0 for a pure tag
// match, 0.5 for a tag-overlapping candidate without an embedding, otherwise
// the cosine similarity of the two embeddings.
type Related struct {
	Item  *Item   `json:"item"`
	Score float64 `json:"score"`
}

// Scores for related items that were not compared by embedding.
const (
	TagMatchScore   = 1.0
	TagOverlapScore = 0.5
)

// SearchResult is a single keyword search hit.
type SearchResult struct {
	Item       *Item             `json:"item"`
	Score      float64           `json:"score"`
	Highlights map[string]string `json:"highlights,omitempty"`
	Rank       int               `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
	// Suggestions contains "Did you mean?" spelling suggestions when typos are detected.
	Suggestions []string `json:"suggestions,omitempty"`
	// AutoFuzzy indicates that fuzzy search was enabled automatically because the
	// exact search returned no results.
	AutoFuzzy bool `json:"auto_fuzzy,omitempty"`
}

// Stats summarizes the vocabulary.
type Stats struct {
	Total          int              `json:"total"`
	ByType         map[ItemType]int `json:"by_type"`
	WithEmbedding  int              `json:"with_embedding"`
	Reviewed       int              `json:"reviewed"`
	EmbeddingsOn   bool             `json:"embeddings_available"`
	EmbeddingsNote string           `json:"embeddings_reason,omitempty"`
}
