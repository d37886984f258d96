package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/bookshelf-aibot/internal/config"
	"github.com/kirillkom/bookshelf-aibot/internal/core/ports"
	"github.com/kirillkom/bookshelf-aibot/internal/core/usecase"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/booksearch"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/cache/memcache"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/extractor"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/llm/openai"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/prompts"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/queue/nats"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/resilience"
	"github.com/kirillkom/bookshelf-aibot/internal/infrastructure/search/websearch"
)

// Observer receives pipeline stage timings and resilience events. The HTTP metrics
// registry satisfies it.
type Observer interface {
	ports.StageObserver
	resilience.StateObserver
}

// Core holds the use cases shared by the API and the MCP tool server.
type Core struct {
	Classifier     *usecase.IntentClassifierUseCase
	DeepSearch     *usecase.DeepSearchUseCase
	Documents      *usecase.DocumentAnalysisUseCase
	Books          *usecase.BookSearchUseCase
	Interpretation *usecase.InterpretationUseCase
	Chat           *usecase.ChatUseCase
	Upload         *usecase.DocumentUploadUseCase
}

type App struct {
	Config config.Config
	Core   *Core

	// Sessions is nil when no session store is configured.
	Sessions *usecase.SessionRecorderUseCase

	closeFns []func()
}

// New wires the API: use cases, session event publishing and the session read model.
func New(ctx context.Context, cfg config.Config, observer Observer) (*App, error) {
	app := &App{Config: cfg}

	// Session tracking is best effort on the API side: pipelines keep serving without it.
	var publisher ports.SessionPublisher
	if strings.TrimSpace(cfg.NATSURL) != "" {
		queue, err := newQueue(cfg, observer)
		if err != nil {
			slog.Warn("session_publisher_disabled", "error", err.Error())
		} else {
			app.onClose(queue.Close)
			publisher = queue
		}
	}

	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		db, repo, err := openSessionStore(ctx, cfg)
		if err != nil {
			slog.Warn("session_store_disabled", "error", err.Error())
		} else {
			app.onClose(func() { _ = db.Close() })
			app.Sessions = usecase.NewSessionRecorderUseCase(repo)
		}
	}

	core, closeCore, err := NewCore(ctx, cfg, usecase.NewSessionTracker(publisher), observer)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.onClose(closeCore)
	app.Core = core
	return app, nil
}

// NewCore builds every use case on top of the LLM, web search and book search adapters.
// A nil observer disables stage and resilience reporting.
func NewCore(ctx context.Context, cfg config.Config, tracker *usecase.SessionTracker, observer Observer) (*Core, func(), error) {
	promptSet, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load prompts: %w", err)
	}

	cache, closeCache := newCache(ctx, cfg)
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second

	var stageObserver ports.StageObserver
	var stateObserver resilience.StateObserver
	if observer != nil {
		stageObserver = observer
		stateObserver = observer
	}

	llmTimeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	llm := openai.New(cfg.LLMBaseURL, openai.Options{
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		Timeout:     llmTimeout,
		Executor:    newExecutor(cfg, 0, stateObserver),
	})

	searchTimeout := time.Duration(cfg.WebSearchTimeoutSeconds) * time.Second
	searcher := websearch.New(cfg.WebSearchURL, websearch.Options{
		APIKey:   cfg.WebSearchAPIKey,
		EngineID: cfg.WebSearchEngineID,
		Timeout:  searchTimeout,
		Executor: newExecutor(cfg, searchTimeout, stateObserver),
		Cache:    cache,
		CacheTTL: cacheTTL,
	})

	bookTimeout := time.Duration(cfg.BookSearchTimeoutSeconds) * time.Second
	retriever, err := booksearch.New(cfg.BookSearchURL, booksearch.Options{
		Timeout:          bookTimeout,
		Executor:         newExecutor(cfg, bookTimeout, stateObserver),
		Cache:            cache,
		CacheTTL:         cacheTTL,
		PlainTextPattern: cfg.BookPlainTextTemplate,
	})
	if err != nil {
		closeCache()
		return nil, nil, fmt.Errorf("init book search client: %w", err)
	}

	deepCfg := usecase.DeepSearchConfig{
		Model:              cfg.LLMModel,
		Temperature:        cfg.LLMTemperature,
		Fanout:             cfg.DeepSearchFanout,
		SnippetsPerKeyword: cfg.SearchSnippetsPerKeyword,
		BranchTimeout:      time.Duration(cfg.DeepSearchBranchTimeoutSeconds) * time.Second,
	}
	replyCfg := usecase.ReplyConfig{
		Model:        cfg.LLMModel,
		Temperature:  cfg.LLMTemperature,
		HistoryLimit: cfg.ChatHistoryLimit,
	}

	classifier := usecase.NewIntentClassifierUseCase(llm, promptSet, cfg.ClassifierModel())
	books := usecase.NewBookSearchUseCase(retriever, tracker, usecase.BookSearchConfig{
		TopK:               cfg.BookSearchTopK,
		PerQueryTopK:       cfg.BookSearchPerQueryTopK,
		MinRating:          cfg.BookSearchMinRating,
		ResponseFormat:     cfg.BookSearchResponseFormat,
		SelectionThreshold: cfg.BookSelectionThreshold,
		SelectionMax:       cfg.BookSelectionMax,
	})
	interpretation := usecase.NewInterpretationUseCase(llm, promptSet, tracker, replyCfg)

	core := &Core{
		Classifier:     classifier,
		DeepSearch:     usecase.NewDeepSearchUseCase(llm, searcher, promptSet, tracker, stageObserver, deepCfg),
		Documents:      usecase.NewDocumentAnalysisUseCase(llm, promptSet, tracker, stageObserver, deepCfg),
		Books:          books,
		Interpretation: interpretation,
		Chat:           usecase.NewChatUseCase(classifier, books, interpretation, llm, promptSet, replyCfg),
		Upload:         usecase.NewDocumentUploadUseCase(extractor.New(int64(cfg.UploadMaxBytes)), cfg.UploadMaxRunes),
	}
	return core, closeCache, nil
}

// Worker records session events published by the API into Postgres.
type Worker struct {
	Config   config.Config
	Queue    *nats.Queue
	Recorder *usecase.SessionRecorderUseCase

	closeFns []func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	db, repo, err := openSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := newQueue(cfg, nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Worker{
		Config:   cfg,
		Queue:    queue,
		Recorder: usecase.NewSessionRecorderUseCase(repo),
		closeFns: []func(){
			queue.Close,
			func() { _ = db.Close() },
		},
	}, nil
}

func (w *Worker) Close() {
	for _, fn := range w.closeFns {
		fn()
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func openSessionStore(ctx context.Context, cfg config.Config) (*sql.DB, *postgres.SessionRepository, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSessionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

func newQueue(cfg config.Config, observer resilience.StateObserver) (*nats.Queue, error) {
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               "bookshelf-aibot",
		ResilienceExecutor: newExecutor(cfg, 2*time.Second, observer),
	})
	if err != nil {
		return nil, fmt.Errorf("init session queue: %w", err)
	}
	return queue, nil
}

func newExecutor(cfg config.Config, attemptTimeout time.Duration, observer resilience.StateObserver) *resilience.Executor {
	rcfg := resilience.DefaultConfig()
	rcfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	rcfg.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(rcfg.WithAttemptTimeout(attemptTimeout))
	if observer != nil {
		executor.WithObserver(observer)
	}
	return executor
}

// newCache prefers Redis when REDIS_ADDR is set and reachable, otherwise an in-process cache.
func newCache(ctx context.Context, cfg config.Config) (ports.Cache, func()) {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return memcache.New(ttl), func() {}
	}

	redis := rediscache.New(rediscache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redis.Ping(pingCtx); err != nil {
		slog.Warn("redis_unavailable_using_memory_cache", "addr", cfg.RedisAddr, "error", err.Error())
		_ = redis.Close()
		return memcache.New(ttl), func() {}
	}
	return redis, func() { _ = redis.Close() }
}
