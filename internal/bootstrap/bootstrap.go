package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/museum-docent/internal/config"
	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
	"github.com/kirillkom/museum-docent/internal/core/retrieval"
	"github.com/kirillkom/museum-docent/internal/core/usecase"
	"github.com/kirillkom/museum-docent/internal/infrastructure/cache/redis"
	"github.com/kirillkom/museum-docent/internal/infrastructure/catalog/jsonfile"
	"github.com/kirillkom/museum-docent/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/museum-docent/internal/infrastructure/llm/openai"
	"github.com/kirillkom/museum-docent/internal/infrastructure/mail/smtp"
	"github.com/kirillkom/museum-docent/internal/infrastructure/mcp/slack"
	"github.com/kirillkom/museum-docent/internal/infrastructure/queue/nats"
	"github.com/kirillkom/museum-docent/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
	"github.com/kirillkom/museum-docent/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/museum-docent/internal/infrastructure/vector/npyfile"
	"github.com/kirillkom/museum-docent/internal/infrastructure/websearch/tavily"
	"github.com/kirillkom/museum-docent/internal/observability/metrics"
)

// API holds everything the HTTP service serves.
type API struct {
	Config config.Config

	Database     *domain.ArtifactSet
	Images       ports.ImageSource
	Searcher     ports.ArtifactSearcher
	Sessions     *usecase.SessionManager
	Reservations *usecase.ReservationService

	closer
}

// Worker holds the reservation job consumer.
type Worker struct {
	Config config.Config

	Queue     ports.ReservationQueue
	ProcessUC ports.ReservationProcessor

	closer
}

// Indexer builds the search collections from the catalog.
type Indexer struct {
	Config config.Config

	Indexer *usecase.CollectionIndexer

	closer
}

type closer struct {
	closeFns []func()
}

func (c *closer) onClose(fn func()) {
	c.closeFns = append(c.closeFns, fn)
}

// Close releases resources in reverse acquisition order.
func (c *closer) Close() {
	for i := len(c.closeFns) - 1; i >= 0; i-- {
		c.closeFns[i]()
	}
	c.closeFns = nil
}

func NewAPI(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.HTTPServerMetrics) (_ *API, err error) {
	const service = "api"
	api := &API{Config: cfg}
	defer func() {
		if err != nil {
			api.Close()
		}
	}()

	observers := m.Observers(service)
	executor := resilience.NewExecutor(cfg.Resilience()).WithLogger(logger).WithObserver(observers)

	storage, err := localfs.New(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("init data storage: %w", err)
	}
	catalog := jsonfile.New(storage, cfg.RelicIndexKey, cfg.GuideProgramKey, cfg.ImagePrefix)
	database, err := catalog.LoadArtifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	guideProgram, err := catalog.LoadGuideProgram(ctx)
	if err != nil {
		return nil, fmt.Errorf("load guide program: %w", err)
	}

	chat, embedder := newLLM(cfg, executor)
	model := metrics.InstrumentChatModel(chat, m, service, "docent")
	embedder, err = withEmbeddingCache(cfg, &api.closer, embedder, m.EmbeddingCacheTotal(), logger)
	if err != nil {
		return nil, err
	}

	registry := retrieval.NewRegistry(embedder, npyfile.New(storage, cfg.VectorStorePrefix))
	if err := registry.Load(ctx, domain.CollectionTitle, domain.CollectionDescription, domain.CollectionContent); err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	hybridCfg := retrieval.DefaultHybridConfig()
	hybridCfg.Parallel = cfg.HybridParallel
	filter := retrieval.NewRelevanceFilter(retrieval.NewLLMJudge(model, usecase.DocentSystemPrompt))
	retriever := retrieval.NewHybridRetrieverFromRegistry(registry, filter, hybridCfg)
	retriever.SetObserver(observers)

	web := tavily.New(tavily.Config{
		APIKey:     cfg.TavilyAPIKey,
		BaseURL:    cfg.TavilyBaseURL,
		MaxResults: cfg.TavilyMaxResults,
	}).WithResilience(executor)

	router := usecase.NewToolRouter(model, retriever, web).
		WithObserver(observers).
		WithLogger(logger)
	sessions := usecase.NewSessionManager(database, guideProgram, usecase.SessionDeps{
		Model:  model,
		Images: catalog,
		Router: router,
	}, cfg.SessionTTL()).WithLogger(logger)
	m.TrackActiveSessions(func() float64 { return float64(sessions.Len()) })

	db, err := openReservationStore(ctx, cfg, &api.closer)
	if err != nil {
		return nil, err
	}
	queue, err := newQueue(cfg, executor, logger, &api.closer)
	if err != nil {
		return nil, err
	}
	reservations := usecase.NewReservationService(postgres.NewReservationRepository(db), queue).
		WithObserver(observers)

	api.Database = database
	api.Images = catalog
	api.Searcher = retriever
	api.Sessions = sessions
	api.Reservations = reservations
	logger.Info("api_bootstrapped",
		"artifacts", database.Len(),
		"llm_provider", cfg.LLMProvider,
		"title_docs", registry.Collection(domain.CollectionTitle).Len(),
	)
	return api, nil
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.WorkerMetrics) (_ *Worker, err error) {
	const service = "worker"
	worker := &Worker{Config: cfg}
	defer func() {
		if err != nil {
			worker.Close()
		}
	}()

	observers := m.Observers(service)
	executor := resilience.NewExecutor(cfg.Resilience()).WithLogger(logger).WithObserver(observers)

	chat, _ := newLLM(cfg, executor)
	model := metrics.InstrumentChatModel(chat, m, service, "reservation")

	chatops, err := slack.New(slack.Config{
		ServerURL: cfg.SlackMCPURL,
		BotToken:  cfg.SlackBotToken,
		APIKey:    cfg.SmitheryAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init slack mcp client: %w", err)
	}
	chatops.WithResilience(executor)
	worker.onClose(func() { _ = chatops.Close() })

	mailer := smtp.New(smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SenderEmail,
	}).WithResilience(executor)

	db, err := openReservationStore(ctx, cfg, &worker.closer)
	if err != nil {
		return nil, err
	}
	queue, err := newQueue(cfg, executor, logger, &worker.closer)
	if err != nil {
		return nil, err
	}

	agent := usecase.NewReservationAgent(model, chatops, cfg.ThreadPollInterval()).WithLogger(logger)
	worker.Queue = queue
	worker.ProcessUC = usecase.NewProcessReservationUseCase(
		postgres.NewReservationRepository(db),
		agent,
		mailer,
		cfg.ManagerEmail,
	).WithObserver(observers).WithLogger(logger)
	return worker, nil
}

func NewIndexer(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *Indexer, err error) {
	ix := &Indexer{Config: cfg}
	defer func() {
		if err != nil {
			ix.Close()
		}
	}()

	executor := resilience.NewExecutor(cfg.Resilience()).WithLogger(logger)
	storage, err := localfs.New(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("init data storage: %w", err)
	}
	_, embedder := newLLM(cfg, executor)
	embedder, err = withEmbeddingCache(cfg, &ix.closer, embedder, nil, logger)
	if err != nil {
		return nil, err
	}

	catalog := jsonfile.New(storage, cfg.RelicIndexKey, cfg.GuideProgramKey, cfg.ImagePrefix)
	registry := retrieval.NewRegistry(embedder, npyfile.New(storage, cfg.VectorStorePrefix))
	ix.Indexer = usecase.NewCollectionIndexer(catalog, registry).WithLogger(logger)
	return ix, nil
}

func newLLM(cfg config.Config, executor *resilience.Executor) (ports.ChatModel, ports.Embedder) {
	if cfg.LLMProvider == "ollama" {
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel).WithResilience(executor)
		return ollama.NewChatModel(client), ollama.NewEmbedder(client)
	}

	chat := openai.NewChatModel(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ChatModel,
	}).WithResilience(executor)
	embedder := openai.NewEmbedder(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.EmbeddingModel,
	}, cfg.EmbeddingQueryModel).WithResilience(executor)
	return chat, embedder
}

func withEmbeddingCache(
	cfg config.Config,
	c *closer,
	inner ports.Embedder,
	cacheTotal *prometheus.CounterVec,
	logger *slog.Logger,
) (ports.Embedder, error) {
	if !cfg.EmbeddingCacheEnabled {
		return inner, nil
	}
	store, err := redis.NewStore(redis.Config{
		Addrs:    cfg.RedisAddrs,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.EmbeddingCacheTTL())
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	c.onClose(store.Close)

	model := cfg.EmbeddingModel
	if cfg.LLMProvider == "ollama" {
		model = cfg.OllamaEmbedModel
	}
	return redis.NewCachedEmbedder(inner, store, model, cacheTotal, logger), nil
}

func openReservationStore(ctx context.Context, cfg config.Config, c *closer) (*sql.DB, error) {
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	c.onClose(func() { _ = db.Close() })

	repo := postgres.NewReservationRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func newQueue(cfg config.Config, executor *resilience.Executor, logger *slog.Logger, c *closer) (*nats.Queue, error) {
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ConnectTimeout:     2 * time.Second,
		ReconnectWait:      2 * time.Second,
		QueueGroup:         cfg.NATSQueueGroup,
		JobTimeout:         cfg.JobTimeout(),
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	c.onClose(queue.Close)
	return queue, nil
}
