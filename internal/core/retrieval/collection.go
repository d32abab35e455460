package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/vec/search"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

const (
	DefaultCutoff         = 0.4
	DefaultTopK           = 60
	DefaultBuildBatchSize = 100
)

type queryOptions struct {
	cutoff float64
	topK   int
}

// QueryOption tunes a single collection query.
type QueryOption func(*queryOptions)

func WithCutoff(cutoff float64) QueryOption {
	return func(o *queryOptions) { o.cutoff = cutoff }
}

func WithTopK(topK int) QueryOption {
	return func(o *queryOptions) {
		if topK > 0 {
			o.topK = topK
		}
	}
}

// Collection is the in-memory embedding index of one named document set.
type Collection struct {
	name      string
	embedder  ports.Embedder
	store     ports.CollectionStore
	batchSize int

	loadOnce sync.Once
	loadErr  error

	mu    sync.RWMutex
	docs  []domain.DocumentEmbedding
	norms []float32
}

func NewCollection(name string, embedder ports.Embedder, store ports.CollectionStore) *Collection {
	return &Collection{
		name:      name,
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBuildBatchSize,
	}
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Load reads the persisted collection once; later calls return the first outcome.
func (c *Collection) Load(ctx context.Context) error {
	c.loadOnce.Do(func() {
		docs, err := c.store.LoadCollection(ctx, c.name)
		if err != nil {
			if !domain.IsKind(err, domain.ErrLoad) {
				err = domain.WrapError(domain.ErrLoad, "load collection "+c.name, err)
			}
			c.loadErr = err
			return
		}
		c.replace(docs)
	})
	return c.loadErr
}

// Query embeds text and returns stored documents ranked by cosine similarity.
// Results below the cutoff are dropped; equal scores keep load order.
func (c *Collection) Query(ctx context.Context, text string, opts ...QueryOption) ([]domain.SimilarityResult, error) {
	o := queryOptions{cutoff: DefaultCutoff, topK: DefaultTopK}
	for _, opt := range opts {
		opt(&o)
	}

	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, wrapEmbeddingError("embed query", err)
	}
	queryNorm := search.Float32s(vector).Magnitude()

	c.mu.RLock()
	results := make([]domain.SimilarityResult, 0, len(c.docs))
	for i, doc := range c.docs {
		score := cosine(vector, queryNorm, doc.Vector, c.norms[i])
		if score < o.cutoff {
			continue
		}
		results = append(results, domain.SimilarityResult{
			ID:         doc.ID,
			Text:       doc.Text,
			Score:      score,
			Collection: c.name,
		})
	}
	c.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > o.topK {
		results = results[:o.topK]
	}
	return results, nil
}

// Build embeds docs in batches, persists them and swaps the in-memory index.
// Persisting is best-effort: a crash mid-write may leave a partial file pair.
func (c *Collection) Build(ctx context.Context, docs []domain.DocumentEmbedding) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	vectors := make([][]float32, 0, len(docs))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch, err := c.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return wrapEmbeddingError(fmt.Sprintf("embed batch %d-%d", start, end), err)
		}
		if len(batch) != end-start {
			return domain.WrapError(
				domain.ErrEmbeddingService,
				"embed batch",
				fmt.Errorf("expected %d vectors, got %d", end-start, len(batch)),
			)
		}
		vectors = append(vectors, batch...)
	}

	built := make([]domain.DocumentEmbedding, len(docs))
	for i, doc := range docs {
		built[i] = domain.DocumentEmbedding{ID: doc.ID, Text: doc.Text, Vector: vectors[i]}
	}

	if err := c.store.SaveCollection(ctx, c.name, built); err != nil {
		return fmt.Errorf("persist collection %s: %w", c.name, err)
	}
	c.replace(built)
	return nil
}

// SetBatchSize overrides the number of texts sent per embedding request.
func (c *Collection) SetBatchSize(n int) {
	if n > 0 {
		c.batchSize = n
	}
}

func (c *Collection) replace(docs []domain.DocumentEmbedding) {
	norms := make([]float32, len(docs))
	for i, doc := range docs {
		norms[i] = search.Float32s(doc.Vector).Magnitude()
	}
	c.mu.Lock()
	c.docs = docs
	c.norms = norms
	c.mu.Unlock()
}

// cosine treats zero-length or mismatched vectors as unrelated.
func cosine(a []float32, normA float32, b []float32, normB float32) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	distance := search.Float32s(a).CosineDistance(b)
	return 1 - float64(distance)
}

func wrapEmbeddingError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrEmbeddingService) {
		return err
	}
	return domain.WrapError(domain.ErrEmbeddingService, operation, err)
}
