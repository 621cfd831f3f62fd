package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"agentforge/chat-api/internal/config"
	"agentforge/chat-api/internal/domain/agent"
	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/domain/preference"
	"agentforge/chat-api/internal/domain/tool"
	"agentforge/chat-api/internal/infrastructure/auth"
	"agentforge/chat-api/internal/infrastructure/llmprovider"
	"agentforge/chat-api/internal/infrastructure/logger"
	"agentforge/chat-api/internal/infrastructure/metrics"
	"agentforge/chat-api/internal/infrastructure/observability"
	"agentforge/chat-api/internal/infrastructure/ratelimit"
	"agentforge/chat-api/internal/infrastructure/redisstore"
	"agentforge/chat-api/internal/infrastructure/sandbox"
	"agentforge/chat-api/internal/infrastructure/webreader"
	"agentforge/chat-api/internal/interfaces/httpserver"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/agenthandler"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/chathandler"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/documenthandler"
	"agentforge/chat-api/internal/interfaces/httpserver/handlers/modelhandler"
	v1 "agentforge/chat-api/internal/interfaces/httpserver/routes/v1"
	"agentforge/chat-api/internal/tools"
	"agentforge/chat-api/internal/worker"
)

const toolArgsLogLimit = 256

type Application struct {
	httpServer *httpserver.HTTPServer
	pool       *worker.Pool
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HTTPServer, pool *worker.Pool, log zerolog.Logger) *Application {
	return &Application{httpServer: httpServer, pool: pool, log: log}
}

// Start runs the worker pool and the HTTP server until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	a.pool.Start(ctx)
	defer func() {
		a.log.Info().Msg("stopping worker pool")
		a.pool.Stop()
	}()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.httpServer.Run(ctx)
	})
	eg.Go(func() error {
		a.logTaskErrors(ctx)
		return nil
	})
	return eg.Wait()
}

func (a *Application) logTaskErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case te := <-a.pool.Errors():
			event := a.log.Warn()
			if te.Final {
				event = a.log.Error()
			}
			event.Err(te.Err).
				Str("task_id", te.TaskID).
				Str("kind", te.Kind).
				Int("attempt", te.Attempt).
				Bool("final", te.Final).
				Msg("background task failed")
		}
	}
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := observability.Init(ctx, observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		TracingEnabled: cfg.EnableTracing,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPHeaders:    cfg.OTLPHeaders,
		OTLPInsecure:   cfg.OTLPInsecure,
		SamplingRate:   cfg.TraceSamplingRate,
		PIILevel:       observability.PIILevel(cfg.PIILevel),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer store.Close()
	checks := store.checks

	authenticator, err := auth.NewJWTAuthenticator(ctx, auth.Config{
		JWKSURL:      cfg.AuthJWKSURL,
		HMACSecret:   cfg.AuthHMACSecret,
		Issuer:       cfg.AuthIssuer,
		Audience:     cfg.AuthAudience,
		RefreshEvery: cfg.AuthJWKSRefresh,
		ClockSkew:    cfg.AuthClockSkew,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize authenticator")
	}
	checks["auth"] = func(context.Context) error {
		if !authenticator.Ready() {
			return errors.New("jwks unavailable")
		}
		return nil
	}

	var (
		limiter ratelimit.Limiter
		locker  worker.Locker
	)
	if cfg.RateLimitEnabled {
		local, err := ratelimit.NewLocalLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitMaxKeys)
		if err != nil {
			log.Fatal().Err(err).Msg("create rate limiter")
		}
		limiter = local
	}
	if cfg.RedisURL != "" {
		redisClient, err := redisstore.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer redisClient.Close()
		locker = redisstore.NewLocker(redisClient, log)
		if limiter != nil {
			limiter = ratelimit.NewFallbackLimiter(ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow), limiter, log)
		}
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	entries, err := llmprovider.LoadCatalog(cfg.ModelsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load model catalog")
	}
	counter := llmprovider.NewTokenCounter()
	resolver, err := llmprovider.NewCatalogResolver(entries, llmprovider.NewOpenAIFactory(counter, cfg.LLMTimeout), cfg.BackendCacheSize, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build model resolver")
	}

	documentService := document.NewService(store.repos.Documents, resolver, log)
	deps := tools.Deps{
		Documents: documentService,
		Web: webreader.NewReader(webreader.Config{
			Timeout:              cfg.WebReaderTimeout,
			MaxBodyBytes:         cfg.WebReaderMaxBytes,
			MaxChars:             cfg.WebReaderMaxChars,
			AllowPrivateNetworks: cfg.WebReaderAllowPrivate,
		}),
	}
	if cfg.ImageAPIKey != "" {
		deps.Images = llmprovider.NewImageBackend(llmprovider.NewClient(cfg.ImageBaseURL, cfg.ImageAPIKey, cfg.LLMTimeout), cfg.ImageModel, cfg.ImageSize)
	}
	if runner := sandbox.NewClient(cfg.SandboxURL, cfg.SandboxTimeout); runner != nil {
		deps.Sandbox = runner
	}
	registry, err := tool.NewRegistry(tools.All(deps)...)
	if err != nil {
		log.Fatal().Err(err).Msg("register tools")
	}

	toolLog := log.With().Str("component", "tools").Logger()
	executor := tool.NewExecutor(registry, tool.ExecutorConfig{
		DefaultTimeout: cfg.ToolDefaultTimeout,
		Timeouts:       cfg.ToolTimeouts,
		MaxConcurrency: cfg.ToolMaxConcurrency,
		OnSettled: func(s tool.Settlement) {
			metrics.ObserveToolSettlement(s)
			toolLog.Debug().
				Str("tool", s.Call.Name).
				Str("state", string(s.State)).
				Str("args", provider.Sanitizer.ToolArgs(s.Call.Args, toolArgsLogLimit)).
				Dur("duration", s.Duration).
				Msg("tool settled")
		},
	}, log)
	generator := tool.NewOrchestrator(executor, cfg.MaxToolSteps, counter, log)

	workerPool := worker.NewPool(store.queue, worker.Config{
		WorkerCount:  cfg.WorkerCount,
		PollInterval: cfg.WorkerPollInterval,
		TaskTimeout:  cfg.TaskTimeout,
		Retry:        cfg.TitleRetryPolicy(),
	}, observability.NewTaskTracer(provider.Tracer), log)
	titleService := chat.NewTitleService(store.repos.Chats, chat.NewLLMTitleGenerator(resolver, cfg.TitleModel), log)
	workerPool.Register(worker.KindTitle, worker.TitleHandler(titleService, locker, cfg.TitleLockTTL))

	agentService := agent.NewService(store.repos.Agents)
	ledger := billing.NewLedger(store.repos.Ledger, cfg.BillingInitialCredits, log)
	preferenceService := preference.NewService(store.repos.Preferences, resolver, cfg.DefaultModel)
	turns := chat.NewTurnOrchestrator(
		store.repos.Chats,
		agentService,
		resolver,
		generator,
		ledger,
		preferenceService,
		worker.NewTitleScheduler(store.queue, workerPool),
		chat.TurnConfig{
			DefaultModel:        cfg.DefaultModel,
			DefaultSystemPrompt: cfg.DefaultSystemPrompt,
			MinCredits:          cfg.BillingMinCredits,
			OnTurnComplete:      metrics.ObserveTurn,
		},
		log,
	)

	route := v1.NewV1Route(
		v1.NewChatRoute(chathandler.NewChatHandler(turns, chat.NewService(store.repos.Chats), cfg.StreamBuffer, log)),
		v1.NewDocumentRoute(documenthandler.NewDocumentHandler(documentService)),
		v1.NewAgentRoute(agenthandler.NewAgentHandler(agentService)),
		v1.NewModelRoute(modelhandler.NewModelHandler(resolver, preferenceService, ledger)),
	)
	httpServer := httpserver.NewHTTPServer(cfg, route, authenticator, limiter, provider, checks, log)

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.ServiceVersion).
		Int("models", len(entries)).
		Int("tools", len(registry.Definitions(nil))).
		Bool("database", cfg.UsesDatabase()).
		Bool("redis", cfg.RedisURL != "").
		Msg("starting chat api")

	app := NewApplication(httpServer, workerPool, log)
	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}
	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
