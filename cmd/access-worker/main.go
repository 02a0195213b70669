package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/SergeiKhy/linktrack/internal/broker"
	"github.com/SergeiKhy/linktrack/internal/config"
	applog "github.com/SergeiKhy/linktrack/internal/logger"
	"github.com/SergeiKhy/linktrack/internal/repository"
	"go.uber.org/zap"
)

// access-worker читает записи о переходах из RabbitMQ и пишет их в PostgreSQL пачками
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := applog.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if err := repository.Migrate(cfg.DB, logger); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	mq, err := broker.NewRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mq.Close()

	deliveries, err := mq.Consume(broker.DefaultBatchSize)
	if err != nil {
		logger.Fatal("Failed to start consuming", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := broker.NewConsumer(repository.NewAccessLogRepository(db), broker.ConsumerOptions{}, logger)

	logger.Info("Access worker started", zap.String("queue", cfg.RabbitMQ.Queue))
	if err := consumer.Run(ctx, deliveries); err != nil {
		logger.Error("Access worker stopped", zap.Error(err))
		return
	}
	logger.Info("Access worker exited")
}
