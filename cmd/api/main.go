package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nel/api/internal/app"
	"nel/api/internal/bootstrap"
	"nel/api/internal/config"
	"nel/api/internal/logger"
)

func main() {
	cfg := config.Load()
	if err := logger.InitLogger(logger.LogConfig{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()
	zlog := logger.GetLogger()

	ctx := context.Background()
	deps, err := bootstrap.Open(ctx, cfg, true)
	if err != nil {
		zlog.Fatal("startup failed", zap.Error(err))
	}
	defer deps.Close()

	if cfg.CronEnabled {
		if err := deps.Scheduler.Start(); err != nil {
			zlog.Fatal("scheduler failed", zap.Error(err))
		}
	}

	httpServer := app.NewHTTPServer(deps.Service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("NEL API listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	deps.Scheduler.Stop(shutdownCtx)
}
