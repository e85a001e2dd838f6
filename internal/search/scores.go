package search

import "github.com/hyperjump/wortnest/internal/keyword"

// NormalizeScores maps keyword scores to [0,1] by dividing by the best score.
func NormalizeScores(results []*keyword.Result) map[int64]float64 {
	normalized := make(map[int64]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}
