package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ideahub/api/internal/app"
	"ideahub/api/internal/authpw"
	"ideahub/api/internal/config"
	"ideahub/api/internal/email"
	"ideahub/api/internal/gitrepo"
	"ideahub/api/internal/logger"
	"ideahub/api/internal/search"
	"ideahub/api/internal/session"
	"ideahub/api/internal/storage"
	"ideahub/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		zlog.Fatal("migrations failed", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		zlog.Fatal("failed to create repos dir", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, zlog)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, zlog)

	var files storage.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		files, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			zlog.Fatal("minio connection failed", zap.Error(err))
		}
		zlog.Info("storing attachments in MinIO", zap.String("bucket", cfg.MinioBucket))
	} else {
		files, err = storage.NewLocalStore(cfg.UploadsDir)
		if err != nil {
			zlog.Fatal("failed to create uploads dir", zap.Error(err))
		}
		zlog.Info("storing attachments on local disk", zap.String("dir", cfg.UploadsDir))
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	// Without SMTP, accounts are verified at signup so dev setups stay usable.
	accounts := authpw.NewService(dataStore, !mailer.IsConfigured())

	deps := app.Dependencies{
		Store:    dataStore,
		Accounts: accounts,
		Git:      gitService,
		Search:   searchService,
		Files:    files,
		Mailer:   mailer,
		Logger:   zlog,
	}
	// Sessions stays nil unless Redis is configured; the service then keeps
	// refresh tokens in Postgres.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			zlog.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		zlog.Info("keeping refresh sessions in Redis")
	}

	service := app.New(cfg, deps)
	if err := service.Bootstrap(ctx); err != nil {
		zlog.Warn("bootstrap error, will retry on next restart", zap.Error(err))
	}

	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	httpServer := app.NewHTTPServer(service, cfg, zlog)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("IdeaHub API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
}
