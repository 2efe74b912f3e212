package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/storefront/internal/config"
	"github.com/prudhvinik1/storefront/internal/database"
	"github.com/prudhvinik1/storefront/internal/handlers"
	"github.com/prudhvinik1/storefront/internal/logging"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/services"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, logger)
	if err != nil {
		logger.Fatal("failed to create postgres pool", zap.Error(err))
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("failed to create redis client", zap.Error(err))
	}
	defer redisClient.Close()

	catalogURL, err := url.Parse(cfg.CatalogBaseURL)
	if err != nil {
		logger.Fatal("invalid CATALOG_BASE_URL", zap.Error(err))
	}

	accountRepo := repositories.NewPostgresAccountRepository(postgresPool)
	credentialRepo := repositories.NewRedisCredentialRepository(redisClient, logger)
	recordRepo := repositories.NewRedisSessionRecordRepository(redisClient, logger)
	catalogRepo := repositories.NewHTTPCatalogRepository(&http.Client{Timeout: cfg.HTTPClientTimeout}, *catalogURL)

	authService := services.NewAuthService(accountRepo, credentialRepo, cfg.JWTSecret, cfg.JWTExpiry, cfg.BcryptCost)
	catalogService := services.NewCatalogService(catalogRepo, cfg.CatalogPageSize)

	handler := handlers.New(authService, recordRepo, catalogService, logger)

	// Start Server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.ServerPort))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
}
