package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"merchshop/internal/auth"
	"merchshop/internal/catalog"
	"merchshop/internal/config"
	"merchshop/internal/handler"
	"merchshop/internal/infrastructure/cache"
	"merchshop/internal/infrastructure/database"
	"merchshop/internal/infrastructure/lock"
	"merchshop/internal/repository"
	"merchshop/internal/service"
	"merchshop/internal/store"
	"merchshop/internal/store/memory"
	"merchshop/pkg/idgen"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.Error("server exited", logger.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	cat, err := catalog.New(cfg.Catalog.Items)
	if err != nil {
		return err
	}

	var st store.Store
	switch cfg.Ledger.Storage {
	case config.StorageMemory:
		logger.Log.Warn("using in-memory storage, balances are lost on restart")
		st = memory.New()
	default:
		db, err := database.OpenMySQL(&cfg.MySQL)
		if err != nil {
			return err
		}
		defer database.Close(db)
		st = repository.NewStore(db)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Ledger.LockBackend == config.LockBackendRedis {
		rdb, err := cache.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Ledger.LockTTL)
	}

	tokens := auth.NewTokenManager(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	h := handler.NewHandler(
		service.NewAccountService(st, auth.NewBcryptHasher(0), cfg.Ledger.StartingBalance),
		service.NewLedgerService(st, locker, cat, service.LedgerOptions{
			MaxRetries:   cfg.Ledger.MaxRetries,
			RetryBackoff: cfg.Ledger.RetryBackoff,
			EventTopic:   ledgerEventTopic(cfg),
		}),
		service.NewHistoryService(st),
		tokens,
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(h, tokens),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("http server listening",
			logger.Int("port", cfg.Server.Port),
			logger.String("storage", cfg.Ledger.Storage),
			logger.String("lock_backend", cfg.Ledger.LockBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Log.Info("server stopped")
	return nil
}

// ledgerEventTopic returns the outbox topic, or "" when no relay can drain the
// outbox. The relay only reads MySQL.
func ledgerEventTopic(cfg *config.Config) string {
	if cfg.Ledger.Storage == config.StorageMemory {
		return ""
	}
	return cfg.Kafka.Topic.LedgerEvents
}
