package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := fromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "minishop-checkout", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 3, cfg.CartMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled())
}

func TestPostgresBackendRequiresStores(t *testing.T) {
	_, err := fromEnv(envMap(map[string]string{"STORE_BACKEND": "postgres"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "REDIS_ADDR")

	cfg, err := fromEnv(envMap(map[string]string{
		"STORE_BACKEND": "Postgres",
		"DATABASE_URL":  "postgres://localhost/shop",
		"REDIS_ADDR":    "localhost:6379",
		"REDIS_DB":      "2",
	}))
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestInvalidValuesAreReported(t *testing.T) {
	_, err := fromEnv(envMap(map[string]string{
		"STORE_BACKEND":     "mongo",
		"CART_MAX_ATTEMPTS": "0",
		"SHUTDOWN_TIMEOUT":  "soon",
		"REDIS_DB":          "-1",
	}))
	require.Error(t, err)
	for _, want := range []string{"STORE_BACKEND", "CART_MAX_ATTEMPTS", "SHUTDOWN_TIMEOUT", "REDIS_DB"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestKafkaBrokersAreSplit(t *testing.T) {
	cfg, err := fromEnv(envMap(map[string]string{"KAFKA_BROKERS": "a:9092, b:9092,,"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoadReadsProcessEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("CART_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.CartMaxAttempts)
}
