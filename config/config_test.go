package config_test

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-viewer-backend/config"
)

func TestNewConfig_Defaults(t *testing.T) {
	viper.Reset()
	cfg, err := config.NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost:4000", cfg.Server.Addr())
	assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 10000, cfg.Store.BufferSize)
	assert.Equal(t, 30*time.Minute, cfg.Store.Retention)
	assert.Equal(t, 500, cfg.Hub.SnapshotLimit)
	assert.Equal(t, 10*time.Second, cfg.Hub.WriteTimeout)
	assert.True(t, cfg.Stdin.Enabled)
	assert.Empty(t, cfg.FileSource.Paths)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Elasticsearch.Enabled)
}

func TestNewConfig_Environment(t *testing.T) {
	viper.Reset()
	t.Setenv("SERVER_PORT", "5000")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("RETENTION_MINUTES", "0")
	t.Setenv("FILE_SOURCE_PATHS", "/var/log/a.log, /var/log/*.log ,")
	t.Setenv("HUB_WRITE_TIMEOUT", "3s")

	cfg, err := config.NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.Zero(t, cfg.Store.Retention)
	assert.Equal(t, []string{"/var/log/a.log", "/var/log/*.log"}, cfg.FileSource.Paths)
	assert.Equal(t, 3*time.Second, cfg.Hub.WriteTimeout)
}

func TestNewConfig_FlagsOverrideEnvironment(t *testing.T) {
	viper.Reset()
	t.Setenv("SERVER_PORT", "5000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "6000", "-b", "50", "--retention", "5"}))

	cfg, err := config.NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "6000", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Store.BufferSize)
	assert.Equal(t, 5*time.Minute, cfg.Store.Retention)
}

func TestNewConfig_InvalidBackend(t *testing.T) {
	viper.Reset()
	t.Setenv("STORE_BACKEND", "redis")

	_, err := config.NewConfig()
	assert.ErrorContains(t, err, "STORE_BACKEND")
}

func TestValidate(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "4000"},
		Store:  config.StoreConfig{Backend: config.BackendMemory},
		Kafka:  config.KafkaConfig{SinkEnabled: true},
	}
	assert.ErrorContains(t, cfg.Validate(), "KAFKA_BROKERS")

	cfg.Kafka.Brokers = []string{"kafka:9092"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.Hub.SendQueue)
	assert.Equal(t, 100, cfg.Sink.BatchSize)
}
