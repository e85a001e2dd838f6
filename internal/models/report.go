package models

// Outcome of a single item within a batch operation.
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// EmbeddingOutcome records what happened to an item's embedding.
type EmbeddingOutcome string

const (
	EmbeddingGenerated EmbeddingOutcome = "generated"
	EmbeddingSkipped   EmbeddingOutcome = "skipped"
	EmbeddingDisabled  EmbeddingOutcome = "disabled"
	EmbeddingFailed    EmbeddingOutcome = "failed"
)

// BatchEntry is the per-item record of a batch import or backfill.
type BatchEntry struct {
	Index     int              `json:"index"`
	Content   string           `json:"content"`
	ItemID    int64            `json:"item_id,omitempty"`
	Outcome   Outcome          `json:"outcome"`
	Embedding EmbeddingOutcome `json:"embedding,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// BatchReport collects per-item outcomes so that a single failure never hides
// the rest of the batch.
type BatchReport struct {
	ID       string       `json:"id"`
	Source   string       `json:"source,omitempty"`
	Entries  []BatchEntry `json:"entries"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Add appends an entry.
func (r *BatchReport) Add(e BatchEntry) {
	r.Entries = append(r.Entries, e)
}

// Count returns the number of entries with outcome o.
func (r *BatchReport) Count(o Outcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

// EmbeddingCount returns the number of entries whose embedding outcome is o.
func (r *BatchReport) EmbeddingCount(o EmbeddingOutcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Embedding == o {
			n++
		}
	}
	return n
}
