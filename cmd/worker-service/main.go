package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/config"
	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/cuongbtq/gigmarket-be/internal/settlement"
	"github.com/cuongbtq/gigmarket-be/internal/validator"
	"github.com/cuongbtq/gigmarket-be/internal/worker"
	"github.com/cuongbtq/gigmarket-be/shared/logger"
	"github.com/cuongbtq/gigmarket-be/shared/postgresql"
	"github.com/cuongbtq/gigmarket-be/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	var (
		rabbitClient *rabbitmq.Client
		source       worker.DeliverySource
		publisher    events.Publisher = events.NopPublisher{}
	)

	// Initialize RabbitMQ client
	if cfg.RabbitMQ.IsEnabled() {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			dbClient.Close()
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}

		appLogger.Info("RabbitMQ connection established")

		source = rabbitClient
		// A failed reconcile must not feed the queue it is consuming.
		publisher = events.Without(events.NewRabbitPublisher(rabbitClient, appLogger.Logger), events.EscrowReconcile)
	} else {
		appLogger.Warn("RabbitMQ disabled, reconciling by polling only")
	}

	db := dbClient.GetDB()
	services := service.New(service.Dependencies{
		Repo:       storage.NewStore(db, appLogger.Logger),
		Settlement: initSettlement(&cfg.Settlement, settlement.NewPostgresStore(db), appLogger.Logger),
		Publisher:  publisher,
		Validator:  validator.New(),
		Logger:     appLogger.Logger,
	})

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Reconciler:    services.Escrows,
		Source:        source,
		WorkerID:      cfg.App.Name,
		Concurrency:   cfg.Worker.Concurrency,
		JobTimeout:    cfg.Worker.JobTimeout,
		PollInterval:  cfg.Worker.PollInterval,
		PollBatchSize: cfg.Worker.PollBatchSize,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		cleanup()
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		BindingKeys:        cfg.BindingKeys,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initSettlement builds the ledger shared with the API service
func initSettlement(cfg *config.SettlementConfig, store settlement.LedgerStore, logger *slog.Logger) settlement.Client {
	return settlement.NewRetryingClient(settlement.NewLedger(store, logger), settlement.RetryPolicy{
		CallTimeout:       cfg.CallTimeout,
		Attempts:          cfg.RetryAttempts,
		Interval:          cfg.RetryInterval,
		BackoffMultiplier: cfg.BackoffMultiplier,
	}, logger)
}
