// Package related finds vocabulary items that are related to a reference item
// by combining tag overlap with embedding cosine similarity.
package related

import (
	"sort"

	"github.com/hyperjump/wortnest/internal/embedding"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/vector"
	"github.com/hyperjump/wortnest/pkg/utils"
)

// DefaultTopK is the number of results when the caller asks for zero or fewer.
const DefaultTopK = 5

// Candidate is an item considered for ranking. Vector is nil when the item has
// no usable embedding.
type Candidate struct {
	Item   *models.Item
	Vector embedding.Vector
}

// Rank scores candidates against ref and returns the best topK, highest first.
// Candidates with a vector get their cosine similarity clamped to [0, 1].
// Candidates without one score models.TagOverlapScore if they share a tag with
// refTags and are dropped otherwise. Equal scores keep candidate order.
func Rank(ref embedding.Vector, refTags models.TagSet, candidates []Candidate, topK int) []models.Related {
	if topK <= 0 {
		topK = DefaultTopK
	}
	results := make([]models.Related, 0, len(candidates))
	for _, c := range candidates {
		if c.Item == nil {
			continue
		}
		if c.Vector != nil {
			results = append(results, models.Related{
				Item:  c.Item,
				Score: utils.Clamp01(vector.Cosine(ref, c.Vector)),
			})
			continue
		}
		if refTags.Overlaps(c.Item.Tags) {
			results = append(results, models.Related{Item: c.Item, Score: models.TagOverlapScore})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
