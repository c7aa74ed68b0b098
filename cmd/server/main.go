package main

import (
	// Standard library
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/api"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/audit"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/config"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/middleware"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/templates"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/webhook"
	"github.com/Jianwei07/prompt-temp-v1/pkg/logger"
)

// repository is everything the server needs from the remote repository.
type repository interface {
	templates.Repository
	approval.Repository
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		WithSource:  !cfg.IsProduction(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "web-server")

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "bitbucket_mode", cfg.Bitbucket.Mode)
	appLogger.Debug("effective configuration\n" + cfg.PrintConfig())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Audit log
	var auditLogger audit.AuditLogger = audit.NopLogger{}
	if cfg.Audit.LogPath != "" {
		fileAudit, err := audit.NewFileAuditLogger(cfg.Audit.LogPath)
		if err != nil {
			appLogger.Error("audit logger init failed", "path", cfg.Audit.LogPath, "error", err)
			os.Exit(1)
		}
		defer func() { _ = fileAudit.Close() }()
		auditLogger = fileAudit
		appLogger.Info("audit log ready", "path", cfg.Audit.LogPath)
	}

	repo, err := newRepository(cfg, logInstance)
	if err != nil {
		appLogger.Error("bitbucket client init failed", "error", err)
		os.Exit(1)
	}

	workflow := approval.NewWorkflow(repo, approval.Config{
		DefaultBranch: cfg.Bitbucket.DefaultBranch,
		IndexPath:     cfg.Bitbucket.IndexPath,
	},
		approval.WithLogger(logInstance),
		approval.WithAuditLogger(auditLogger),
	)

	store := templates.NewStore(repo, templates.StoreConfig{
		DefaultBranch:   cfg.Bitbucket.DefaultBranch,
		IndexPath:       cfg.Bitbucket.IndexPath,
		RequireApproval: cfg.Templates.RequireApproval,
		FallbackActor:   cfg.Templates.ActingUsername,
		ListConcurrency: cfg.Templates.ListConcurrency,
		HistoryEnabled:  cfg.Templates.HistoryEnabled,
	},
		templates.WithApprover(workflow),
		templates.WithAuditLogger(auditLogger),
		templates.WithLogger(logInstance),
	)
	appLogger.Info("template store ready",
		"workspace", cfg.Bitbucket.Workspace,
		"repo", cfg.Bitbucket.RepoSlug,
		"branch", cfg.Bitbucket.DefaultBranch,
		"require_approval", store.RequiresApproval(),
	)

	translator, err := webhook.NewTranslator(workflow, logInstance)
	if err != nil {
		appLogger.Error("webhook translator init failed", "error", err)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	// Health and metrics endpoints (no authentication required)
	startTime := time.Now()
	r.GET("/health", healthCheckHandler(cfg, startTime))
	r.GET("/readiness", readinessCheckHandler(cfg, repo))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.RegisterRoutes(r, store, translator, logInstance, middleware.ResolveActor([]byte(cfg.Security.JWTSecret)))
	if mem, ok := repo.(*bitbucket.MemoryClient); ok {
		registerMemoryReviewRoutes(r, mem, workflow, logInstance)
	}

	// Create HTTP server with graceful shutdown
	serverAddr := cfg.GetServerAddr()
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("server starting", "addr", serverAddr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		return
	}
	appLogger.Info("server shutdown complete")
}

// newRepository builds the Bitbucket client, or an in-process repository in
// memory mode.
func newRepository(cfg *config.Config, log *slog.Logger) (repository, error) {
	if cfg.Bitbucket.Mode == config.ModeMemory {
		log.Warn("using in-memory repository; data is lost on restart, review deletion PRs via /api/dev/pull-requests")
		return bitbucket.NewMemoryClient(cfg.Bitbucket.DefaultBranch), nil
	}
	client, err := bitbucket.NewClient(bitbucket.Config{
		BaseURL:     cfg.Bitbucket.APIURL,
		Workspace:   cfg.Bitbucket.Workspace,
		RepoSlug:    cfg.Bitbucket.RepoSlug,
		Username:    cfg.Bitbucket.Username,
		AppPassword: cfg.Bitbucket.AppPassword,
		AccessToken: cfg.Bitbucket.AccessToken,
		Timeout:     cfg.Bitbucket.Timeout,
	}, bitbucket.WithLogger(log.With("component", "bitbucket")))
	if err != nil {
		return nil, err
	}
	return client, nil
}
