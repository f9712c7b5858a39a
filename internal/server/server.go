// Package server exposes the research pipeline over HTTP: run
// submission, run inspection, live progress via SSE, schedules and
// operational endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/agent/core"
	"github.com/thinhkhuat/scribe/internal/agent/telemetry"
	"github.com/thinhkhuat/scribe/internal/provider"
	"github.com/thinhkhuat/scribe/internal/queue/streams"
	"github.com/thinhkhuat/scribe/internal/research"
	"github.com/thinhkhuat/scribe/internal/store"
)

// Run wires all dependencies and serves until the listener fails or
// ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	tel := telemetry.NewTelemetry(cfg.Telemetry)
	defer tel.Shutdown()

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(tel.Registry(), promhttp.HandlerOpts{})))

	if err := store.Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		baseLogger.Printf("migrations: %v (continuing; schema may already be current)", err)
	}
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	}

	registry, err := provider.NewRegistry(cfg.Providers)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}
	controller := provider.NewController(registry, cfg.Providers, nil)
	controller.SetObserver(tel.ProviderObserver())

	var cache *research.Cache
	if cfg.Research.CacheEnabled {
		cache, err = research.NewCache()
		if err != nil {
			return fmt.Errorf("building source cache: %w", err)
		}
	}
	var fetcher *research.Fetcher
	if cfg.Research.FetchEnabled {
		fetcher = research.NewFetcher(cfg.Research)
	}

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	researcher := core.NewSectionResearcher(controller, cache, fetcher, cfg.Research, orchLogger)

	hub := NewHub()
	go hub.Start(ctx)
	emitters := core.MultiEmitter{hub, &core.LogEmitter{Logger: orchLogger}}
	if rdb != nil && cfg.Storage.Redis.Stream != "" {
		publisher, perr := streams.NewPublisher(rdb, cfg.Storage.Redis.Stream)
		if perr != nil {
			return perr
		}
		emitters = append(emitters, streams.NewEmitter(publisher))
	}

	orch, err := core.NewOrchestrator(cfg, controller, researcher, tel, orchLogger,
		core.WithEmitter(emitters),
		core.WithTranslator(core.NewTranslatorAgent(controller, orchLogger)),
	)
	if err != nil {
		return err
	}

	runs := &RunsHandler{
		Cfg:    cfg,
		Store:  st,
		Orch:   orch,
		Tel:    tel,
		Hub:    hub,
		Logger: baseLogger,
	}
	api := e.Group("/api")
	runs.Register(api)

	sched := &Scheduler{
		Cfg:    cfg,
		Store:  st,
		Rdb:    rdb,
		Runs:   runs,
		Logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}
	sched.Start(ctx)

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(cfg.Server.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
