package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOnly() aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "BFF",
		SkipFiles: true,
		SkipFlags: true,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BFF_UPSTREAM_BASE_URL", "https://api.example.com")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := loadConfig(envOnly())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 50, cfg.Bundle.MaxOrders)
	assert.Equal(t, 8, cfg.Bundle.Concurrency)
	assert.True(t, cfg.Bundle.RejectDuplicates)
	assert.Equal(t, "bundle.labels", cfg.Events.Topic)
	assert.Empty(t, cfg.Events.Brokers)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("BFF_UPSTREAM_BASE_URL", "https://api.example.com")
	t.Setenv("BFF_BUNDLE_MAX_ORDERS", "10")
	t.Setenv("BFF_BUNDLE_REJECT_DUPLICATES", "false")
	t.Setenv("BFF_EVENTS_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("DATABASE_URL", "postgres://bff@db/bff")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(envOnly())
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Bundle.MaxOrders)
	assert.False(t, cfg.Bundle.RejectDuplicates)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "postgres://bff@db/bff", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("missing upstream", func(t *testing.T) {
		t.Setenv("BFF_UPSTREAM_BASE_URL", "")
		_, err := loadConfig(envOnly())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream URL is required")
	})

	t.Run("zero concurrency", func(t *testing.T) {
		t.Setenv("BFF_UPSTREAM_BASE_URL", "https://api.example.com")
		t.Setenv("BFF_BUNDLE_CONCURRENCY", "0")
		_, err := loadConfig(envOnly())
		require.Error(t, err)
	})
}
