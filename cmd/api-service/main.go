package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/handler"
	"github.com/cuongbtq/gigmarket-be/internal/api/router"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage/memory"
	"github.com/cuongbtq/gigmarket-be/internal/config"
	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/cuongbtq/gigmarket-be/internal/filestore"
	"github.com/cuongbtq/gigmarket-be/internal/settlement"
	"github.com/cuongbtq/gigmarket-be/internal/validator"
	"github.com/cuongbtq/gigmarket-be/internal/worker"
	"github.com/cuongbtq/gigmarket-be/shared/logger"
	"github.com/cuongbtq/gigmarket-be/shared/postgresql"
	"github.com/cuongbtq/gigmarket-be/shared/rabbitmq"
	"github.com/gin-gonic/gin"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	issueToken := flag.String("issue-token", "", "Print a bearer token for <user-id>:<role> and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of a token printed by -issue-token")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	authCfg := router.AuthConfig{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer}
	if *issueToken != "" {
		return printToken(authCfg, *issueToken, *tokenTTL)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	var (
		dbClient    *postgresql.Client
		repo        storage.Repository
		ledgerStore settlement.LedgerStore
		checks      = map[string]router.HealthCheck{}
	)

	if cfg.Database.InMemory() {
		appLogger.Warn("Using in-memory repository, data is lost on restart")
		repo = memory.New()
	} else {
		// Initialize PostgreSQL client
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		appLogger.Info("Database connection established")

		if cfg.Database.MigrationsPath != "" {
			if err := dbClient.Migrate(cfg.Database.MigrationsPath); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}

		repo = storage.NewStore(dbClient.GetDB(), appLogger.Logger)
		checks["database"] = dbClient.HealthCheck
	}

	if cfg.Settlement.Ledger == "postgres" {
		ledgerStore = settlement.NewPostgresStore(dbClient.GetDB())
	} else {
		ledgerStore = settlement.NewMemoryStore()
	}
	ledger := initSettlement(&cfg.Settlement, ledgerStore, appLogger.Logger)

	// Initialize RabbitMQ client
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.IsEnabled() {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		appLogger.Info("RabbitMQ connection established")
		publisher = events.NewRabbitPublisher(rabbitClient, appLogger.Logger)
		checks["rabbitmq"] = rabbitClient.HealthCheck
	} else {
		appLogger.Warn("RabbitMQ disabled, lifecycle events are dropped")
	}

	services := service.New(service.Dependencies{
		Repo:       repo,
		Settlement: ledger,
		Publisher:  publisher,
		Validator:  validator.New(),
		Logger:     appLogger.Logger,
	})

	// Initialize file storage
	fileStorage, err := filestore.New(filestore.Config{
		Type:      cfg.Storage.Type,
		BasePath:  cfg.Storage.BasePath,
		BaseURL:   cfg.Storage.BaseURL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	var filesDir string
	if local, ok := fileStorage.(*filestore.LocalStorage); ok {
		filesDir = local.BasePath()
	}

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, &handler.Dependencies{
		Logger:        appLogger.Logger,
		Services:      services,
		Uploader:      filestore.NewUploader(fileStorage, appLogger.Logger),
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}, router.Config{
		ServiceName:  cfg.App.Name,
		Auth:         authCfg,
		FilesDir:     filesDir,
		HealthChecks: checks,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The in-memory repository is invisible to the worker service, so
	// pending escrows are reconciled in-process instead.
	var reconciler *worker.Worker
	if cfg.Database.InMemory() && cfg.Worker.PollInterval > 0 {
		reconciler = worker.NewWorker(&worker.Config{
			Logger:        appLogger.Logger,
			Reconciler:    services.Escrows,
			WorkerID:      cfg.App.Name + "-reconciler",
			Concurrency:   1,
			JobTimeout:    cfg.Worker.JobTimeout,
			PollInterval:  cfg.Worker.PollInterval,
			PollBatchSize: cfg.Worker.PollBatchSize,
		})
		go func() {
			if err := reconciler.Start(ctx); err != nil {
				appLogger.Error("In-process reconciler failed", slog.Any("error", err))
			}
		}()
	}

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		appLogger.Error("Server failed to start",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	cancel()
	if reconciler != nil {
		reconciler.Stop()
	}

	if dbClient != nil {
		appLogger.Info("Database pool stats", slog.String("stats", dbClient.Stats()))
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// printToken writes a signed token for "<user-id>:<role>" to stdout.
func printToken(cfg router.AuthConfig, value string, ttl time.Duration) error {
	userID, role, ok := strings.Cut(value, ":")
	if !ok || userID == "" || !domain.Role(role).Valid() {
		return fmt.Errorf("invalid -issue-token value %q, want <user-id>:<employer|freelancer|verifier>", value)
	}

	token, err := router.NewToken(cfg, domain.Identity{ID: userID, Role: domain.Role(role)}, ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
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

// initSettlement builds the simulated ledger behind the retry policy
func initSettlement(cfg *config.SettlementConfig, store settlement.LedgerStore, logger *slog.Logger) settlement.Client {
	ledger := settlement.NewLedger(store, logger)

	return settlement.NewRetryingClient(ledger, settlement.RetryPolicy{
		CallTimeout:       cfg.CallTimeout,
		Attempts:          cfg.RetryAttempts,
		Interval:          cfg.RetryInterval,
		BackoffMultiplier: cfg.BackoffMultiplier,
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, deps *handler.Dependencies, routerCfg router.Config) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Debug("Router configured",
		slog.String("service", routerCfg.ServiceName),
		slog.Bool("serve_files", routerCfg.FilesDir != ""),
	)

	return router.SetupRouter(deps, routerCfg)
}
