package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/ai"
	"github.com/suPer8Hu/clarity-chat/internal/chat"
	"github.com/suPer8Hu/clarity-chat/internal/config"
	"github.com/suPer8Hu/clarity-chat/internal/db"
	"github.com/suPer8Hu/clarity-chat/internal/httpapi"
	"github.com/suPer8Hu/clarity-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/clarity-chat/internal/knowledge"
	"github.com/suPer8Hu/clarity-chat/internal/leads"
	"github.com/suPer8Hu/clarity-chat/internal/logger"
	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
	"github.com/suPer8Hu/clarity-chat/internal/settings"
	"github.com/suPer8Hu/clarity-chat/internal/sitefetch"
	"github.com/suPer8Hu/clarity-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/clarity-chat/internal/store/redisstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb,
		&chat.Conversation{}, &chat.Message{},
		&leads.Lead{}, &leads.ConsentEvent{},
		&settings.Setting{},
		&knowledge.Document{}, &knowledge.Chunk{},
	); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	ctx := context.Background()
	st := settings.NewStore(gdb, logger.Component("settings"))
	if err := st.InitializeDefaults(ctx); err != nil {
		log.Fatal().Err(err).Msg("initialize settings")
	}

	// page cache is optional
	var pageCache sitefetch.PageCache
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, site pages will not be cached")
		_ = rds.Close()
	} else {
		pageCache = rds
		defer rds.Close()
	}

	backend := generationBackend(cfg, log)
	var embedder knowledge.Embedder
	if backend != nil {
		embedder = ai.NewOpenAIEmbedder(backend, cfg.EmbeddingModel)
	}
	var completion ai.CompletionClient
	if backend != nil {
		completion = backend
	}

	chain := ai.NewChain(logger.Component("generation"),
		ai.NewManagedPromptStage(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIPromptID, cfg.OpenAIPromptVersion),
		ai.NewCompletionStage(completion),
		ai.NewOfflineStage(),
	).WithStageTimeout(cfg.GenerationStageTimeout)

	kRepo := knowledge.NewRepo(gdb)
	site := sitefetch.NewFetcher(cfg.SiteBaseURL, cfg.FetchTimeout, pageCache, cfg.SiteCacheTTL, logger.Component("sitefetch"))
	docs := knowledge.NewRetriever(kRepo, embedder, cfg.EmbedTimeout, logger.Component("retriever"))
	agg := retrieval.NewAggregator(site, docs, cfg.FetchTimeout, logger.Component("context"))

	var publisher leads.Publisher
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, lead events will not be published")
	} else {
		publisher = pub
		defer pub.Close()
	}
	leadSvc := leads.NewService(gdb, publisher, logger.Component("leads"))

	repo := chat.NewRepo(gdb)
	orch := chat.NewOrchestrator(repo, st, agg, chain, leadSvc, chat.OrchestratorConfig{
		ContextWindow:     cfg.ContextWindow,
		PassageMaxChars:   cfg.PassageMaxChars,
		GenerationTimeout: cfg.GenerationTimeout,
	}, logger.Component("turn"))

	h := handlers.NewHandler(cfg, handlers.Deps{
		Turns:    orch,
		Sessions: chat.NewService(repo),
		Leads:    leadSvc,
		Settings: st,
		Docs:     knowledge.NewService(kRepo, embedder, logger.Component("ingest")),
	}, logger.Component("http"))
	r := httpapi.NewRouter(h, logger.Component("http"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-sigCtx.Done()
	log.Info().Msg("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// generationBackend resolves AI_BACKEND through the registry. A nil result
// leaves the completion stage unavailable so turns fall through to offline.
func generationBackend(cfg config.Config, log zerolog.Logger) ai.Backend {
	reg := ai.NewRegistry()
	reg.Register("openai", ai.OpenAICompatible(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, false))
	reg.Register("openrouter", ai.OpenAICompatible(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, false))
	reg.Register("ollama", ai.OpenAICompatible(cfg.OllamaBaseURL, "ollama", true))

	b, err := reg.Get(cfg.AIBackend)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.AIBackend).Msg("completion backend unavailable")
		return nil
	}
	return b
}
