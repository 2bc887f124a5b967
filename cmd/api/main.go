package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sprintmail/internal/app"
	"sprintmail/internal/config"
	"sprintmail/internal/handler"
	"sprintmail/internal/httpserver"
	"sprintmail/pkg/logger"
	"sprintmail/pkg/mq"
	"sprintmail/pkg/outbox"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	a, err := app.New(cfg, log, "sprintmail-api")
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	handlers := httpserver.Handlers{
		SprintEmail:   handler.NewSprintEmailHandler(a.Generation, log),
		TrainingEmail: handler.NewTrainingEmailHandler(a.Learning, log),
		Catalog:       handler.NewCatalogHandler(a.Catalog, log),
		Assistant:     handler.NewAssistantHandler(a.Assistant, log),
	}

	// outbox 重放只在 postgres 存储下可用
	if a.Outbox != nil {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		handlers.Admin = handler.NewAdminHandler(outbox.NewReplayService(a.Outbox, publisher, log), log)
	}

	router := httpserver.NewRouter(handlers, cfg.JWT.Secret, a.Store)
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting sprintmail API", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down sprintmail API gracefully...")
	// 生成请求包含多次串行补全调用，留足时间
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("sprintmail API shutdown complete")
}
