package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BrokerMemory, cfg.Broker.Kind)
	assert.Equal(t, "orders", cfg.Broker.Destination)
	assert.Equal(t, ResolverHeader, cfg.Dispatch.Resolver)
	assert.Equal(t, "messageType", cfg.Dispatch.HeaderField)
	assert.Equal(t, 30*time.Second, cfg.Worker.Interval)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("BROKER_KIND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DISPATCH_RESOLVER", "payload")
	t.Setenv("DISPATCH_SENSITIVE_FIELDS", "cardNumber,iban")
	t.Setenv("WORKER_INTERVAL", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, ResolverPayload, cfg.Dispatch.Resolver)
	assert.Equal(t, []string{"cardNumber", "iban"}, cfg.Dispatch.SensitiveFields)
	assert.Equal(t, 5*time.Second, cfg.Worker.Interval)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgdispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
broker:
  kind: redis
  url: redis://localhost:6379/0
dispatch:
  sensitiveFields: [password]
worker:
  interval: 10s
`), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("SERVER_HOST", "127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "keys absent from the file keep their env value")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BrokerRedis, cfg.Broker.Kind)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Broker.URL)
	assert.Equal(t, "msgdispatch", cfg.Broker.ConsumerGroup)
	assert.Equal(t, []string{"password"}, cfg.Dispatch.SensitiveFields)
	assert.Equal(t, 10*time.Second, cfg.Worker.Interval)
}

func TestLoad_FileErrors(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))
	t.Setenv(FileEnv, path)
	_, err = Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantKey string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown broker", mutate: func(c *Config) { c.Broker.Kind = "mqtt" }, wantKey: "Broker"},
		{name: "nats without url", mutate: func(c *Config) { c.Broker.Kind = BrokerNATS }, wantKey: "Broker"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Broker.Kind = BrokerKafka }, wantKey: "Broker"},
		{name: "unknown resolver", mutate: func(c *Config) { c.Dispatch.Resolver = "envelope" }, wantKey: "Dispatch"},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantKey: "Server"},
		{
			name: "outbox on sqlite needs no password",
			mutate: func(c *Config) {
				c.Broker.Kind = BrokerOutbox
			},
		},
		{
			name: "outbox on mysql needs a password",
			mutate: func(c *Config) {
				c.Broker.Kind = BrokerOutbox
				c.Database.Driver = "mysql"
			},
			wantKey: "Database",
		},
		{
			name: "outbox with unknown driver",
			mutate: func(c *Config) {
				c.Broker.Kind = BrokerOutbox
				c.Database.Driver = "oracle"
			},
			wantKey: "Database",
		},
		{
			name: "outbox with sub-second interval",
			mutate: func(c *Config) {
				c.Broker.Kind = BrokerOutbox
				c.Worker.Interval = time.Millisecond
			},
			wantKey: "Worker",
		},
		{
			name: "database ignored for other brokers",
			mutate: func(c *Config) {
				c.Database.Driver = "oracle"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(FileEnv, "")
			cfg := FromEnv()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}

			var errs validation.Errors
			require.True(t, errors.As(err, &errs), "got %v", err)
			assert.Contains(t, errs, tt.wantKey)
		})
	}
}

func TestGetDSN(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{driver: "mysql", want: "u:p@tcp(db:3306)/app?parseTime=true"},
		{driver: "postgres", want: "host=db port=3306 user=u password=p dbname=app sslmode=disable"},
		{driver: "sqlite3", want: "app"},
		{driver: "oracle", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			c := DatabaseConfig{Driver: tt.driver, Host: "db", Port: 3306, User: "u", Password: "p", Database: "app"}
			assert.Equal(t, tt.want, c.GetDSN())
		})
	}
}
