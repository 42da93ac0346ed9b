// Command relay publishes ledger events from the MySQL outbox to Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"merchshop/internal/config"
	"merchshop/internal/infrastructure/database"
	"merchshop/internal/infrastructure/mq"
	"merchshop/internal/job"
	"merchshop/internal/repository"
	"merchshop/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Ledger.Storage != config.StorageMySQL {
		logger.Log.Error("relay needs mysql storage", logger.String("storage", cfg.Ledger.Storage))
		logger.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.Error("relay exited", logger.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.OpenMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	publisher, err := mq.Dial(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Log.Warn("close kafka producer", logger.Error(err))
		}
	}()

	sender := job.NewOutboxSender(repository.NewOutboxRepository(db), publisher, job.OutboxSenderOptions{
		Interval:   cfg.Ledger.RelayInterval,
		BatchSize:  cfg.Ledger.RelayBatchSize,
		MaxRetries: cfg.Ledger.MaxPublishRetries,
	})
	sender.Start(ctx)
	return nil
}
