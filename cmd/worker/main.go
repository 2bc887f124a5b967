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

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/app"
	"sprintmail/internal/config"
	"sprintmail/internal/httpserver"
	"sprintmail/internal/mqhandler"
	"sprintmail/pkg/logger"
	"sprintmail/pkg/mq"
	"sprintmail/pkg/outbox"
	redisclient "sprintmail/pkg/redis"
	"sprintmail/pkg/util"
)

const (
	analyzeQueue     = "training_email.uploaded.analyze.q"
	successRateQueue = "feedback.submitted.success_rate.q"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Storage.Driver != config.StorageDriverPostgres {
		log.Fatal("Worker requires postgres storage", zap.String("driver", cfg.Storage.Driver))
	}

	a, err := app.New(cfg, log, "sprintmail-worker")
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	ttl := time.Duration(cfg.Worker.DedupTTLSeconds) * time.Second
	deduper := util.NewDeduper(rdb, ttl, log)
	retryCounter := util.NewRetryCounter(rdb, ttl)

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// (1) outbox -> MQ
	dispatcher := outbox.NewDispatcher(a.Outbox, publisher, log).
		WithInterval(time.Duration(cfg.Worker.OutboxIntervalMS) * time.Millisecond).
		WithBatchSize(cfg.Worker.OutboxBatchSize)
	go dispatcher.Start(ctx)

	// (2) training_email.uploaded -> Analyze
	analyzeHandler := mqhandler.NewTrainingEmailUploadedHandler(a.Learning, deduper, retryCounter, cfg.Worker.MaxRetries, log)
	analyzeConsumer := startConsumer(cfg.MQ.URL, analyzeQueue, mqcontracts.TrainingEmailUploaded, analyzeHandler.Handle, log)
	defer analyzeConsumer.Close()

	// (3) feedback.submitted -> success rate
	feedbackHandler := mqhandler.NewFeedbackSubmittedHandler(a.Store, log)
	feedbackConsumer := startConsumer(cfg.MQ.URL, successRateQueue, mqcontracts.FeedbackSubmitted, feedbackHandler.Handle, log)
	defer feedbackConsumer.Close()

	srv := &http.Server{
		Addr:              cfg.Worker.MetricsPort,
		Handler:           httpserver.NewHealthRouter(a.Store).Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Worker health server starting", zap.String("port", cfg.Worker.MetricsPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Health server failed", zap.Error(err))
		}
	}()

	log.Info("sprintmail worker is running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down sprintmail worker gracefully...")
	analyzeConsumer.Stop()
	feedbackConsumer.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}
	log.Info("sprintmail worker shutdown complete")
}

func startConsumer(url, queue, routingKey string, h mq.MessageHandler, log *zap.Logger) *mq.Consumer {
	log.Info("Initializing consumer", zap.String("queue", queue), zap.String("routing_key", routingKey))
	consumer, err := mq.NewConsumer(url, queue, routingKey, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.String("queue", queue), zap.Error(err))
	}
	consumer.SetHandler(h)
	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Consumer failed", zap.String("queue", queue), zap.Error(err))
		}
	}()
	return consumer
}
