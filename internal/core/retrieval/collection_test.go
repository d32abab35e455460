package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/viant/vec/search"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			v = []float32{1, 1}
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type memoryStore struct {
	docs    map[string][]domain.DocumentEmbedding
	loadErr error
	loads   int
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string][]domain.DocumentEmbedding)}
}

func (s *memoryStore) LoadCollection(_ context.Context, name string) ([]domain.DocumentEmbedding, error) {
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	docs, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return docs, nil
}

func (s *memoryStore) SaveCollection(_ context.Context, name string, docs []domain.DocumentEmbedding) error {
	s.saves++
	s.docs[name] = docs
	return nil
}

func loadedCollection(t *testing.T, embedder *fakeEmbedder, docs []domain.DocumentEmbedding) *Collection {
	t.Helper()
	store := newMemoryStore()
	store.docs["test"] = docs
	c := NewCollection("test", embedder, store)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return c
}

func TestCollectionQueryAppliesCutoffOrderAndTopK(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"백자": {1, 0}}}
	c := loadedCollection(t, embedder, []domain.DocumentEmbedding{
		{ID: "a", Text: "a", Vector: []float32{1, 0}},
		{ID: "b", Text: "b", Vector: []float32{0.8, 0.6}},
		{ID: "c", Text: "c", Vector: []float32{0, 1}},
		{ID: "d", Text: "d", Vector: []float32{0.6, 0.8}},
		{ID: "e", Text: "e", Vector: []float32{2, 0}},
		{ID: "f", Text: "f", Vector: []float32{-1, 0}},
	})

	results, err := c.Query(context.Background(), "백자")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []string{"a", "e", "b", "d"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d: %+v", len(want), len(results), results)
	}
	for i, id := range want {
		if results[i].ID != id {
			t.Fatalf("result %d: expected %s, got %s", i, id, results[i].ID)
		}
		if results[i].Score < DefaultCutoff {
			t.Fatalf("result %s below cutoff: %f", results[i].ID, results[i].Score)
		}
		if i > 0 && results[i].Score > results[i-1].Score {
			t.Fatalf("scores not non-increasing at %d", i)
		}
		if results[i].Collection != "test" {
			t.Fatalf("expected collection name on result, got %q", results[i].Collection)
		}
	}
	if math.Abs(results[2].Score-0.8) > 1e-5 {
		t.Fatalf("expected cosine 0.8 for b, got %f", results[2].Score)
	}

	limited, err := c.Query(context.Background(), "백자", WithTopK(3), WithCutoff(0.7))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(limited) != 3 || limited[2].ID != "b" {
		t.Fatalf("expected top 3 ending with b, got %+v", limited)
	}
}

func TestCollectionQueryTreatsZeroVectorsAsUnrelated(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {0, 0}}}
	c := loadedCollection(t, embedder, []domain.DocumentEmbedding{
		{ID: "a", Text: "a", Vector: []float32{1, 0}},
	})

	results, err := c.Query(context.Background(), "q", WithCutoff(-1))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].Score != 0 {
		t.Fatalf("expected single zero score, got %+v", results)
	}
}

func TestCollectionLoadIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.docs["title"] = []domain.DocumentEmbedding{{ID: "a", Text: "a", Vector: []float32{1}}}
	c := NewCollection("title", &fakeEmbedder{}, store)

	for i := 0; i < 3; i++ {
		if err := c.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}
	if store.loads != 1 {
		t.Fatalf("expected exactly one store read, got %d", store.loads)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 document, got %d", c.Len())
	}
}

func TestCollectionLoadReturnsLoadError(t *testing.T) {
	store := newMemoryStore()
	store.loadErr = errors.New("no such file")
	c := NewCollection("content", &fakeEmbedder{}, store)

	err := c.Load(context.Background())
	if !domain.IsKind(err, domain.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if again := c.Load(context.Background()); !domain.IsKind(again, domain.ErrLoad) {
		t.Fatalf("expected sticky ErrLoad, got %v", again)
	}
	if store.loads != 1 {
		t.Fatalf("expected one load attempt, got %d", store.loads)
	}
}

func TestCollectionQueryWrapsEmbeddingFailure(t *testing.T) {
	c := loadedCollection(t, &fakeEmbedder{}, []domain.DocumentEmbedding{{ID: "a", Vector: []float32{1}}})
	c.embedder = &fakeEmbedder{err: errors.New("upstream 500")}

	_, err := c.Query(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
}

func TestCollectionBuildBatchesEmbeddingCalls(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	store := newMemoryStore()
	c := NewCollection("description", embedder, store)

	docs := make([]domain.DocumentEmbedding, 250)
	for i := range docs {
		docs[i] = domain.DocumentEmbedding{ID: fmt.Sprintf("id-%d", i), Text: fmt.Sprintf("doc %d", i)}
	}
	if err := c.Build(context.Background(), docs); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(embedder.calls) != 3 {
		t.Fatalf("expected 3 embedding calls, got %d", len(embedder.calls))
	}
	for i, size := range []int{100, 100, 50} {
		if len(embedder.calls[i]) != size {
			t.Fatalf("batch %d: expected %d texts, got %d", i, size, len(embedder.calls[i]))
		}
	}
	if len(store.docs["description"]) != 250 || store.docs["description"][249].Vector == nil {
		t.Fatalf("expected persisted vectors for all documents")
	}
	if c.Len() != 250 {
		t.Fatalf("expected in-memory index to be replaced, got %d docs", c.Len())
	}
}

func TestCollectionBuildDoesNotPersistOnEmbeddingFailure(t *testing.T) {
	store := newMemoryStore()
	c := NewCollection("title", &fakeEmbedder{err: errors.New("timeout")}, store)

	err := c.Build(context.Background(), []domain.DocumentEmbedding{{ID: "a", Text: "a"}})
	if !domain.IsKind(err, domain.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("expected nothing persisted, got %d saves", store.saves)
	}
}

func TestRegistryReturnsSameCollectionPerName(t *testing.T) {
	store := newMemoryStore()
	store.docs["title"] = []domain.DocumentEmbedding{{ID: "a", Vector: []float32{1}}}
	registry := NewRegistry(&fakeEmbedder{}, store)

	first := registry.Collection("title")
	second := registry.Collection("title")
	if first != second {
		t.Fatalf("expected one instance per collection name")
	}
	if registry.Collection("content") == first {
		t.Fatalf("expected distinct instances for distinct names")
	}

	if err := registry.Load(context.Background(), "title", "title"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if store.loads != 1 {
		t.Fatalf("expected a single load, got %d", store.loads)
	}
	if err := registry.Load(context.Background(), "content"); !domain.IsKind(err, domain.ErrLoad) {
		t.Fatalf("expected ErrLoad for missing collection, got %v", err)
	}
}

type countingStore struct {
	docs  []domain.DocumentEmbedding
	loads atomic.Int32
}

func (s *countingStore) LoadCollection(context.Context, string) ([]domain.DocumentEmbedding, error) {
	s.loads.Add(1)
	return s.docs, nil
}

func (s *countingStore) SaveCollection(context.Context, string, []domain.DocumentEmbedding) error {
	return nil
}

func TestRegistryLoadsOnceUnderConcurrentFirstAccess(t *testing.T) {
	store := &countingStore{docs: []domain.DocumentEmbedding{{ID: "a", Text: "불상", Vector: []float32{1, 0}}}}
	registry := NewRegistry(&fakeEmbedder{}, store)

	const workers = 32
	start := make(chan struct{})
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- registry.Collection(domain.CollectionTitle).Load(context.Background())
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}
	if got := store.loads.Load(); got != 1 {
		t.Fatalf("expected a single load, got %d", got)
	}
	if registry.Collection(domain.CollectionTitle).Len() != 1 {
		t.Fatalf("expected loaded documents to be visible")
	}
}

func TestCosineScores(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{2, 0}, 1},
		{[]float32{1, 0}, []float32{0, 3}, 0},
		{[]float32{1, 1}, []float32{-1, -1}, -1},
		{[]float32{0, 0}, []float32{1, 0}, 0},
		{[]float32{1, 0}, []float32{1, 0, 0}, 0},
	}
	for _, tc := range cases {
		got := cosine(tc.a, search.Float32s(tc.a).Magnitude(), tc.b, search.Float32s(tc.b).Magnitude())
		if math.Abs(got-tc.want) > 1e-6 {
			t.Fatalf("cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
