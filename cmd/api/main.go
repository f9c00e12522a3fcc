package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrivoice-platform/internal/advisor"
	"agrivoice-platform/internal/agents"
	"agrivoice-platform/internal/analytics"
	"agrivoice-platform/internal/audit"
	"agrivoice-platform/internal/auth"
	"agrivoice-platform/internal/config"
	"agrivoice-platform/internal/flow"
	"agrivoice-platform/internal/session"
	"agrivoice-platform/internal/telephony"
	"agrivoice-platform/internal/voice"
	"agrivoice-platform/pkg/logger"
	"agrivoice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Session tracking core.
	registry := session.NewRegistry(cfg.Session.IdleTimeout)
	repo := session.NewPostgresRepo(db)
	tracker := session.NewTracker(registry, repo, session.DefaultScorePolicy(), log)

	// Voice side services.
	var renderer *voice.Renderer
	if cfg.Voice.RenderBaseURL != "" {
		renderer, err = voice.NewRenderer(voice.Config{
			BaseURL:   cfg.Voice.RenderBaseURL,
			APIKey:    cfg.Voice.RenderAPIKey,
			CacheSize: cfg.Voice.CacheSize,
		}, log)
		if err != nil {
			log.Error("voice renderer init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("VOICE_RENDER_URL not set, falling back to provider TTS")
	}

	queryAdvisor := advisor.New(advisor.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	}, log)

	directory := agents.NewDirectory(rdb, cfg.Session.AgentStickyTTL)
	limiter := utils.CallCap{RDB: rdb, Limit: 2, TTL: time.Hour}

	webhooks := telephony.Handlers{
		Tracker:  tracker,
		Flow:     flow.NewEngine(cfg.Session.MaxMenuRetries),
		Repo:     repo,
		Advisor:  queryAdvisor,
		Agents:   directory,
		Limiter:  limiter,
		BasePath: "/webhooks/voice",
		Log:      log,
	}
	if renderer != nil {
		webhooks.Renderer = renderer
	}

	analyticsService := analytics.NewService(repo, tracker)
	auditService := audit.NewService(audit.NewPostgresRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		Auth:      authManager,
		Webhooks:  webhooks,
		Analytics: analyticsService,
		Audit:     auditService,
		Agents:    directory,
		DB:        db,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
