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

	"dialops/internal/analytics"
	"dialops/internal/audit"
	"dialops/internal/auth"
	"dialops/internal/config"
	"dialops/internal/directory"
	"dialops/internal/ghl"
	"dialops/internal/httpapi"
	"dialops/internal/numbers"
	"dialops/internal/twilio"
	"dialops/pkg/logger"
	"dialops/pkg/utils"

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

	if cfg.App.Env == "production" {
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

	// Provider and CRM adapters.
	var twilioOpts []twilio.Option
	if cfg.Twilio.BaseURL != "" {
		twilioOpts = append(twilioOpts, twilio.WithBaseURL(cfg.Twilio.BaseURL, ""))
	}
	twilioClient := twilio.NewClient(
		cfg.Twilio.AccountSID,
		cfg.Twilio.AuthToken,
		cfg.Twilio.MessagingServiceSID,
		log,
		twilioOpts...,
	)

	var crmOpts []ghl.Option
	if cfg.CRM.BaseURL != "" {
		crmOpts = append(crmOpts, ghl.WithBaseURL(cfg.CRM.BaseURL))
	}
	crmClient := ghl.NewClient(cfg.CRM.APIKey, cfg.CRM.LocationID, log, crmOpts...)

	// Services.
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	numbersSvc := numbers.NewService(
		twilioClient,
		crmClient,
		auditSvc,
		log,
		numbers.WithLocker(numbers.NewRedisLocker(rdb)),
	)

	directorySvc := directory.NewService(directory.NewPostgresStore(db), crmClient, auditSvc, log)

	zone := cfg.Analytics.ReferenceZone()
	analyticsSvc := analytics.NewService(
		twilioClient,
		twilioClient,
		crmClient,
		crmClient,
		crmClient,
		analytics.NewRedisCache(rdb, cfg.Analytics.CacheTTL, log),
		analytics.Settings{
			Zone:       zone,
			FetchLimit: cfg.Analytics.CallFetchLimit,
		},
		log,
	)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:      authManager,
		Analytics: analyticsSvc,
		Numbers:   numbersSvc,
		Directory: directorySvc,
		CallLog:   twilioClient,
		Zone:      zone,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
