package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	webAdapter "inventory-engine/internal/adapters/web"
	"inventory-engine/internal/bootstrap"
	"inventory-engine/internal/config"
	"inventory-engine/internal/logger"
)

func main() {
	_ = godotenv.Load()

	// 1. Load Configuration
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	appLogger := logger.Must(logger.Config{
		IsDevelopment:     cfg.IsDevelopment(),
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	defer appLogger.Sync()

	if cfg.JWT.SecretKey == "change-me-in-production" && !cfg.IsDevelopment() {
		appLogger.Fatal("JWT_SECRET must be set outside development")
	}

	// 3. Wire storage, notifiers and services
	ctx := context.Background()
	stack, err := bootstrap.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not initialize engine", zap.Error(err))
	}
	defer stack.Close()

	// 4. Start the reservation sweep
	if err := stack.Sweep.Start(); err != nil {
		appLogger.Fatal("Could not schedule reservation sweep", zap.Error(err))
	}
	defer stack.Sweep.Stop()

	// 5. HTTP server
	handler := webAdapter.NewHandler(stack.Service, webAdapter.Options{
		JWTSecret:      cfg.JWT.SecretKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         appLogger,
		Metrics:        stack.Metrics,
		MetricsHandler: stack.Metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		appLogger.Info("HTTP server starting", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
