// Package config provides configuration management for the msgdispatch server.
// It loads settings from environment variables with sensible defaults and
// overlays an optional YAML file named by MSGDISPATCH_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Broker kinds.
const (
	BrokerOutbox = "outbox"
	BrokerMemory = "memory"
	BrokerKafka  = "kafka"
	BrokerNATS   = "nats"
	BrokerAMQP   = "amqp"
	BrokerRedis  = "redis"
)

// Resolver strategies.
const (
	ResolverHeader  = "header"
	ResolverPayload = "payload"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "MSGDISPATCH_CONFIG"

// Config holds all configuration for the msgdispatch server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Broker   BrokerConfig   `yaml:"broker"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the outbox database configuration.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql, postgres, sqlite3
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Prefix   string `yaml:"prefix"`  // Table prefix (default: "msgdispatch_")
	Migrate  bool   `yaml:"migrate"` // Apply bundled migrations on startup
}

// BrokerConfig selects and configures the transport.
type BrokerConfig struct {
	Kind          string   `yaml:"kind"`
	URL           string   `yaml:"url"`           // nats, amqp, redis
	Brokers       []string `yaml:"brokers"`       // kafka
	ConsumerGroup string   `yaml:"consumerGroup"` // kafka, amqp queue, redis group
	Exchange      string   `yaml:"exchange"`      // amqp
	Destination   string   `yaml:"destination"`   // destination of the demo listener
}

// DispatchConfig configures type tagging and listener behavior.
type DispatchConfig struct {
	ApplicationName string   `yaml:"applicationName"`
	Resolver        string   `yaml:"resolver"`
	HeaderField     string   `yaml:"headerField"`
	PayloadField    string   `yaml:"payloadField"`
	SensitiveFields []string `yaml:"sensitiveFields"`
}

// WorkerConfig holds outbox worker configuration.
type WorkerConfig struct {
	BatchSize           int           `yaml:"batchSize"`
	Interval            time.Duration `yaml:"interval"`
	EnableNotifications bool          `yaml:"enableNotifications"`
}

// Load loads configuration from environment variables, then applies the
// YAML file named by MSGDISPATCH_CONFIG, if any, and validates the result.
// Follows 12-factor app principles - configuration via environment.
func Load() (*Config, error) {
	cfg := FromEnv()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a configuration from environment variables and defaults
// without validating it.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite3"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "msgdispatch"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "msgdispatch.db"),
			Prefix:   getEnv("DB_PREFIX", "msgdispatch_"),
			Migrate:  getEnvBool("DB_MIGRATE", true),
		},
		Broker: BrokerConfig{
			Kind:          getEnv("BROKER_KIND", BrokerMemory),
			URL:           getEnv("BROKER_URL", ""),
			Brokers:       getEnvList("KAFKA_BROKERS", nil),
			ConsumerGroup: getEnv("BROKER_CONSUMER_GROUP", "msgdispatch"),
			Exchange:      getEnv("AMQP_EXCHANGE", "msgdispatch"),
			Destination:   getEnv("BROKER_DESTINATION", "orders"),
		},
		Dispatch: DispatchConfig{
			ApplicationName: getEnv("DISPATCH_APPLICATION", "msgdispatch-server"),
			Resolver:        getEnv("DISPATCH_RESOLVER", ResolverHeader),
			HeaderField:     getEnv("DISPATCH_HEADER_FIELD", "messageType"),
			PayloadField:    getEnv("DISPATCH_PAYLOAD_FIELD", "type"),
			SensitiveFields: getEnvList("DISPATCH_SENSITIVE_FIELDS", nil),
		},
		Worker: WorkerConfig{
			BatchSize:           getEnvInt("WORKER_BATCH_SIZE", 100),
			Interval:            getEnvDuration("WORKER_INTERVAL", 30*time.Second),
			EnableNotifications: getEnvBool("WORKER_ENABLE_NOTIFICATIONS", true),
		},
	}
}

// overlayFile decodes the YAML file at path over c. Keys missing from the
// file keep their current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate implements validation.Validatable.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Database, validation.When(c.Broker.Kind == BrokerOutbox, validation.By(validateDatabase))),
		validation.Field(&c.Broker),
		validation.Field(&c.Dispatch),
		validation.Field(&c.Worker, validation.When(c.Broker.Kind == BrokerOutbox, validation.By(validateWorker))),
	)
}

// Validate implements validation.Validatable.
func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// Validate implements validation.Validatable.
func (c BrokerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Kind, validation.Required,
			validation.In(BrokerOutbox, BrokerMemory, BrokerKafka, BrokerNATS, BrokerAMQP, BrokerRedis)),
		validation.Field(&c.URL, validation.When(
			c.Kind == BrokerNATS || c.Kind == BrokerAMQP || c.Kind == BrokerRedis,
			validation.Required,
		)),
		validation.Field(&c.Brokers, validation.When(c.Kind == BrokerKafka, validation.Required)),
		validation.Field(&c.ConsumerGroup, validation.When(
			c.Kind == BrokerKafka || c.Kind == BrokerAMQP || c.Kind == BrokerRedis,
			validation.Required,
		)),
		validation.Field(&c.Destination, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (c DispatchConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Resolver, validation.Required, validation.In(ResolverHeader, ResolverPayload)),
		validation.Field(&c.HeaderField, validation.When(c.Resolver == ResolverHeader, validation.Required)),
		validation.Field(&c.PayloadField, validation.Required),
	)
}

func validateDatabase(value any) error {
	c, _ := value.(DatabaseConfig)
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In("mysql", "postgres", "sqlite3")),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.Password, validation.When(c.Driver != "sqlite3", validation.Required)),
	)
}

func validateWorker(value any) error {
	c, _ := value.(WorkerConfig)
	return validation.ValidateStruct(&c,
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Second)),
	)
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
