package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/docs"
	"github.com/fatflowers/subscriptions/internal/app/api/handlers"
	mw "github.com/fatflowers/subscriptions/internal/app/api/middleware"
	"github.com/fatflowers/subscriptions/internal/app/service/auth"
	"github.com/fatflowers/subscriptions/internal/app/service/plan"
	"github.com/fatflowers/subscriptions/internal/app/service/statistics"
	subsvc "github.com/fatflowers/subscriptions/internal/app/service/subscription"
	cfgpkg "github.com/fatflowers/subscriptions/pkg/config"
	"github.com/fatflowers/subscriptions/pkg/metrics"
)

// Routes gathers everything the HTTP API serves.
type Routes struct {
	fx.In

	Log     *zap.SugaredLogger
	Cfg     *cfgpkg.Config
	Auth    *auth.Service
	Plans   *plan.Service
	Subs    *subsvc.Service
	Stats   *statistics.Service
	History handlers.HistoryReader
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, d Routes) {
	log := d.Log
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	authn := mw.AuthMiddleware(d.Auth, log)
	admin := []gin.HandlerFunc{authn, mw.RequireAdmin()}
	limiter := mw.RateLimitMiddleware(mw.NewIPRateLimiter(d.Cfg.RateLimit.RPS, d.Cfg.RateLimit.Burst))

	handlers.RegisterAuthRoutes(apiV1.Group("/auth"), apiV1.Group("/auth", authn), d.Auth, limiter, log)
	handlers.RegisterPlanRoutes(apiV1.Group("/plans", authn), apiV1.Group("/plans", admin...), d.Plans, log)
	handlers.RegisterSubscriptionRoutes(apiV1.Group("/subscriptions", authn), apiV1.Group("/subscriptions", admin...), d.Subs, d.History, log)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin", admin...), d.Stats, log)
}

// registerMetrics serves the default registry, business collectors included, on metrics_addr.
func registerMetrics(lc fx.Lifecycle, r *gin.Engine, cfg *cfgpkg.Config, log *zap.SugaredLogger) error {
	if cfg.MetricsAddr == "" {
		return nil
	}
	m, err := metrics.NewHTTP(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, log)
	if err != nil {
		return err
	}
	r.Use(m.Middleware())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := m.Start(cfg.MetricsAddr); err != nil {
				return err
			}
			log.Infow("metrics started", "addr", cfg.MetricsAddr)
			return nil
		},
		OnStop: m.Stop,
	})
	return nil
}

// newHandler wraps the engine with CORS handling.
func newHandler(cfg *cfgpkg.Config, r *gin.Engine) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: true,
	}).Handler(r)
}

func runServer(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.SugaredLogger, cfg *cfgpkg.Config, h http.Handler) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server error", "err", err)
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine, newHandler),
	fx.Invoke(registerMetrics),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
