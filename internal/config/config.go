package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Settlement SettlementConfig `yaml:"settlement"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres (lib/pq), pgx or memory
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// InMemory reports whether the in-process repository is selected.
func (d DatabaseConfig) InMemory() bool {
	return d.Driver == "memory"
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled     *bool            `yaml:"enabled"`
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	User        string           `yaml:"user"`
	Password    string           `yaml:"password"`
	VHost       string           `yaml:"vhost"`
	Exchange    ExchangeConfig   `yaml:"exchange"`
	Queue       QueueConfig      `yaml:"queue"`
	RoutingKey  string           `yaml:"routing_key"`
	BindingKeys []string         `yaml:"binding_keys"`
	Connection  ConnectionConfig `yaml:"connection"`
	Publish     PublishConfig    `yaml:"publish"`
	Consumer    ConsumerConfig   `yaml:"consumer"`
}

// IsEnabled defaults to true when the key is absent.
func (r RabbitMQConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds escrow reconciliation worker configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollBatchSize   int           `yaml:"poll_batch_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// StorageConfig selects where uploaded attachments are kept
type StorageConfig struct {
	Type      string `yaml:"type"` // local or s3
	BasePath  string `yaml:"base_path"`
	BaseURL   string `yaml:"base_url"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SettlementConfig configures the simulated escrow ledger and its call policy
type SettlementConfig struct {
	Ledger            string        `yaml:"ledger"` // memory or postgres
	CallTimeout       time.Duration `yaml:"call_timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// Load reads the configuration file, expanding ${VAR} references from the
// environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration needed by the API service
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}

	switch c.Storage.Type {
	case "", "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	return c.validateSettlement()
}

// ValidateWorker checks the configuration needed by the worker service
func (c *Config) ValidateWorker() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Database.InMemory() {
		return fmt.Errorf("worker requires a shared database, memory driver is not supported")
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Settlement.Ledger == "memory" {
		return fmt.Errorf("worker requires the postgres settlement ledger")
	}

	return c.validateSettlement()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "", "postgres", "pgx":
	case "memory":
		return nil
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.IsEnabled() {
		return nil
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateSettlement() error {
	switch c.Settlement.Ledger {
	case "", "memory", "postgres":
	default:
		return fmt.Errorf("unsupported settlement ledger: %s", c.Settlement.Ledger)
	}

	if c.Settlement.Ledger == "postgres" && c.Database.InMemory() {
		return fmt.Errorf("postgres settlement ledger requires a postgres database")
	}

	if c.Settlement.RetryAttempts < 0 {
		return fmt.Errorf("settlement retry_attempts must not be negative")
	}

	return nil
}
