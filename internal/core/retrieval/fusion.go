package retrieval

import (
	"sort"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

const DefaultRRFK = 60

// FuseRRF merges ranked lists with weighted reciprocal rank fusion.
// An item at 1-based rank r of a list with weight w scores w/(k+r); repeated ids
// add their scores and append their text. Nil weights mean uniform 1/N; when the
// lengths differ only the paired prefix is fused. Equal scores keep first-seen order.
func FuseRRF(lists [][]domain.SimilarityResult, weights []float64, k int) []domain.SimilarityResult {
	if k <= 0 {
		k = DefaultRRFK
	}
	if len(lists) == 0 {
		return []domain.SimilarityResult{}
	}
	if weights == nil {
		weights = make([]float64, len(lists))
		for i := range weights {
			weights[i] = 1.0 / float64(len(lists))
		}
	}
	n := min(len(lists), len(weights))

	index := make(map[string]int)
	out := make([]domain.SimilarityResult, 0)
	for li := 0; li < n; li++ {
		w := weights[li]
		for rank, item := range lists[li] {
			score := w / float64(k+rank+1)
			if pos, ok := index[item.ID]; ok {
				out[pos].Score += score
				out[pos].Text += "\n" + item.Text
				continue
			}
			index[item.ID] = len(out)
			out = append(out, domain.SimilarityResult{
				ID:         item.ID,
				Text:       item.Text,
				Score:      score,
				Collection: item.Collection,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func trimResults(results []domain.SimilarityResult, limit int) []domain.SimilarityResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
