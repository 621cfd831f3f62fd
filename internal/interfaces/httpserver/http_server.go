package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/config"
	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/infrastructure/observability"
	"agentforge/chat-api/internal/infrastructure/ratelimit"
	middleware "agentforge/chat-api/internal/interfaces/httpserver/middlewares"
	v1 "agentforge/chat-api/internal/interfaces/httpserver/routes/v1"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type HTTPServer struct {
	engine *gin.Engine
	cfg    *config.Config
	log    zerolog.Logger
}

// NewHTTPServer wires the middleware chain and routes. limiter may be nil to
// disable rate limiting.
func NewHTTPServer(
	cfg *config.Config,
	v1Route *v1.V1Route,
	authenticator auth.Authenticator,
	limiter ratelimit.Limiter,
	provider *observability.Provider,
	checks map[string]ReadinessCheck,
	log zerolog.Logger,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := &HTTPServer{
		engine: gin.New(),
		cfg:    cfg,
		log:    log.With().Str("component", "http-server").Logger(),
	}

	server.engine.Use(gin.Recovery())
	server.engine.Use(middleware.RequestID())
	if provider != nil {
		server.engine.Use(middleware.TracingMiddleware(provider.Tracer, provider.Sanitizer))
	}
	server.engine.Use(middleware.LoggingMiddleware(log))
	server.engine.Use(middleware.MetricsMiddleware())
	server.engine.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	server.engine.GET("/readyz", readyz(checks))
	server.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := server.engine.Group("/")
	api.Use(middleware.AuthMiddleware(authenticator, log))
	if limiter != nil {
		api.Use(middleware.RateLimitMiddleware(limiter, log))
	}
	v1Route.RegisterRouter(api)
	return server
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// the configured shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func readyz(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		failures := gin.H{}
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": failures})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
