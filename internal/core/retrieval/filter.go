package retrieval

import (
	"context"
	"fmt"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

// Judge decides per candidate id whether it answers the query.
// Verdicts come back in the judge's own order.
type Judge interface {
	Judge(ctx context.Context, query string, candidates []domain.SimilarityResult) ([]domain.RelevanceVerdict, error)
}

// RelevanceFilter is the precision pass run over retrieval candidates.
type RelevanceFilter struct {
	judge Judge
}

func NewRelevanceFilter(judge Judge) *RelevanceFilter {
	return &RelevanceFilter{judge: judge}
}

// Filter keeps the candidates judged relevant to query. Candidates sharing an id are
// shown to the judge once with their texts joined; each kept id maps back to its last
// original candidate. Output follows verdict order.
func (f *RelevanceFilter) Filter(ctx context.Context, candidates []domain.SimilarityResult, query string) ([]domain.SimilarityResult, error) {
	if len(candidates) == 0 {
		return []domain.SimilarityResult{}, nil
	}

	views, originals := dedupeCandidates(candidates)
	verdicts, err := f.judge.Judge(ctx, query, views)
	if err != nil {
		return nil, err
	}
	if err := validateVerdicts(verdicts, originals); err != nil {
		return nil, err
	}

	out := make([]domain.SimilarityResult, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Relevant {
			out = append(out, originals[v.ID])
		}
	}
	return out, nil
}

func dedupeCandidates(candidates []domain.SimilarityResult) ([]domain.SimilarityResult, map[string]domain.SimilarityResult) {
	index := make(map[string]int, len(candidates))
	originals := make(map[string]domain.SimilarityResult, len(candidates))
	views := make([]domain.SimilarityResult, 0, len(candidates))
	for _, c := range candidates {
		originals[c.ID] = c
		if pos, ok := index[c.ID]; ok {
			views[pos].Text += "\n" + c.Text
			continue
		}
		index[c.ID] = len(views)
		views = append(views, c)
	}
	return views, originals
}

func validateVerdicts(verdicts []domain.RelevanceVerdict, originals map[string]domain.SimilarityResult) error {
	seen := make(map[string]struct{}, len(verdicts))
	for _, v := range verdicts {
		if _, ok := originals[v.ID]; !ok {
			return domain.WrapError(domain.ErrParse, "validate verdicts", fmt.Errorf("unknown candidate id %q", v.ID))
		}
		if _, dup := seen[v.ID]; dup {
			return domain.WrapError(domain.ErrParse, "validate verdicts", fmt.Errorf("duplicate verdict for id %q", v.ID))
		}
		seen[v.ID] = struct{}{}
	}
	if len(seen) != len(originals) {
		for id := range originals {
			if _, ok := seen[id]; !ok {
				return domain.WrapError(domain.ErrParse, "validate verdicts", fmt.Errorf("missing verdict for id %q", id))
			}
		}
	}
	return nil
}
