// Package main запускает HTTP-сервер сервиса juice-shop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/giannisgkountras/juice-shop/internal/captcha"
	"github.com/giannisgkountras/juice-shop/internal/config"
	"github.com/giannisgkountras/juice-shop/internal/handler"
	"github.com/giannisgkountras/juice-shop/internal/middleware"
	"github.com/giannisgkountras/juice-shop/internal/repository"
	"github.com/giannisgkountras/juice-shop/internal/service"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	challenges, err := captcha.NewStore(cfg.RedisAddress)
	if err != nil {
		sugar.Fatalw("redis initialization error", "error", err.Error())
	}
	defer challenges.Close()

	svc := service.NewService(repo, challenges)
	defer svc.Close()

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.SeedAccounts(seedCtx, cfg.ApplicationDomain); err != nil {
		seedCancel()
		sugar.Fatalw("seed accounts error", "error", err.Error())
	}
	seedCancel()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting juice-shop server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
