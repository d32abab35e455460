package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

// Embedder calls an OpenAI-compatible embeddings API. Upstage uses separate
// models for passages and queries.
type Embedder struct {
	client       *openai.Client
	passageModel openai.EmbeddingModel
	queryModel   openai.EmbeddingModel
	executor     *resilience.Executor
}

func NewEmbedder(cfg Config, queryModel string) *Embedder {
	if queryModel == "" {
		queryModel = cfg.Model
	}
	return &Embedder{
		client:       newClient(cfg),
		passageModel: openai.EmbeddingModel(cfg.Model),
		queryModel:   openai.EmbeddingModel(queryModel),
	}
}

func (e *Embedder) WithResilience(executor *resilience.Executor) *Embedder {
	e.executor = executor
	return e
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, e.passageModel, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, e.queryModel, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, model openai.EmbeddingModel, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	resp, err := resilience.Do(ctx, e.executor, "openai.embed", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return e.client.CreateEmbeddings(ctx, req)
	}, resilience.WithoutRetry(classifyError))
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingService, "create embeddings", wrapTemporaryIfNeeded("create embeddings", parseAPIError(err)))
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrEmbeddingService,
			"create embeddings",
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		)
	}

	out := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = item.Embedding
	}
	return out, nil
}
