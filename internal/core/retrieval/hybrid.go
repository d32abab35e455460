package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

// Searcher is a single collection that can be queried by text.
type Searcher interface {
	Query(ctx context.Context, text string, opts ...QueryOption) ([]domain.SimilarityResult, error)
}

// SearchObserver receives per-search retrieval statistics.
type SearchObserver interface {
	ObserveSearch(candidates, survivors int, duration time.Duration, err error)
}

type HybridConfig struct {
	TitleTopK       int
	DescriptionTopK int
	ContentTopK     int
	BodyKeep        int
	BodyWeights     []float64
	RRFK            int
	Parallel        bool
}

func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		TitleTopK:       5,
		DescriptionTopK: 30,
		ContentTopK:     30,
		BodyKeep:        3,
		BodyWeights:     []float64{0.6, 0.4},
		RRFK:            DefaultRRFK,
		Parallel:        true,
	}
}

// HybridRetriever finds artifacts for a free-text query. Title hits are trusted
// directly; description and content hits must first win a weighted fusion.
type HybridRetriever struct {
	title       Searcher
	description Searcher
	content     Searcher
	filter      *RelevanceFilter
	cfg         HybridConfig
	observer    SearchObserver
}

func NewHybridRetriever(title, description, content Searcher, filter *RelevanceFilter, cfg HybridConfig) *HybridRetriever {
	def := DefaultHybridConfig()
	if cfg.TitleTopK <= 0 {
		cfg.TitleTopK = def.TitleTopK
	}
	if cfg.DescriptionTopK <= 0 {
		cfg.DescriptionTopK = def.DescriptionTopK
	}
	if cfg.ContentTopK <= 0 {
		cfg.ContentTopK = def.ContentTopK
	}
	if cfg.BodyKeep <= 0 {
		cfg.BodyKeep = def.BodyKeep
	}
	if len(cfg.BodyWeights) != 2 {
		cfg.BodyWeights = def.BodyWeights
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = def.RRFK
	}
	return &HybridRetriever{
		title:       title,
		description: description,
		content:     content,
		filter:      filter,
		cfg:         cfg,
	}
}

// NewHybridRetrieverFromRegistry wires the three standard collections.
func NewHybridRetrieverFromRegistry(registry *Registry, filter *RelevanceFilter, cfg HybridConfig) *HybridRetriever {
	return NewHybridRetriever(
		registry.Collection(domain.CollectionTitle),
		registry.Collection(domain.CollectionDescription),
		registry.Collection(domain.CollectionContent),
		filter,
		cfg,
	)
}

func (h *HybridRetriever) SetObserver(observer SearchObserver) {
	h.observer = observer
}

// Search returns copies of the matching database records marked as not presented.
// The result is never nil on success; an empty set means nothing matched.
func (h *HybridRetriever) Search(ctx context.Context, query, originalUtterance string, database *domain.ArtifactSet) (*domain.ArtifactSet, error) {
	start := time.Now()
	candidates := 0
	result, err := func() (*domain.ArtifactSet, error) {
		pool, err := h.candidatePool(ctx, query)
		if err != nil {
			return nil, err
		}
		candidates = len(pool)

		kept, err := h.filter.Filter(ctx, pool, originalUtterance)
		if err != nil {
			return nil, fmt.Errorf("filter candidates: %w", err)
		}

		out := domain.NewArtifactSet()
		for _, hit := range kept {
			artifact, ok := database.Get(hit.ID)
			if !ok {
				slog.Warn("search_hit_not_in_database", "artifact_id", hit.ID, "collection", hit.Collection)
				continue
			}
			artifact.IsPresented = false
			out.Add(artifact)
		}
		return out, nil
	}()

	if h.observer != nil {
		h.observer.ObserveSearch(candidates, result.Len(), time.Since(start), err)
	}
	return result, err
}

func (h *HybridRetriever) candidatePool(ctx context.Context, query string) ([]domain.SimilarityResult, error) {
	var title, description, content []domain.SimilarityResult
	queries := []func(context.Context) error{
		func(ctx context.Context) (err error) {
			title, err = h.title.Query(ctx, query, WithTopK(h.cfg.TitleTopK))
			return wrapSearchError(domain.CollectionTitle, err)
		},
		func(ctx context.Context) (err error) {
			description, err = h.description.Query(ctx, query, WithTopK(h.cfg.DescriptionTopK))
			return wrapSearchError(domain.CollectionDescription, err)
		},
		func(ctx context.Context) (err error) {
			content, err = h.content.Query(ctx, query, WithTopK(h.cfg.ContentTopK))
			return wrapSearchError(domain.CollectionContent, err)
		},
	}

	if h.cfg.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for _, q := range queries {
			g.Go(func() error { return q(gctx) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for _, q := range queries {
			if err := q(ctx); err != nil {
				return nil, err
			}
		}
	}

	body := trimResults(FuseRRF([][]domain.SimilarityResult{description, content}, h.cfg.BodyWeights, h.cfg.RRFK), h.cfg.BodyKeep)

	pool := make([]domain.SimilarityResult, 0, len(title)+len(body))
	pool = append(pool, title...)
	pool = append(pool, body...)
	return pool, nil
}

func wrapSearchError(collection string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("query %s collection: %w", collection, err)
}
