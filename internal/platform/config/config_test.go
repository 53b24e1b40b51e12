package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("AUDIT_WORKERS", "")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "audit.entries", cfg.Kafka.EntriesTopic)
	assert.Equal(t, 16, cfg.Audit.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Audit.PurgeInterval)
	assert.True(t, cfg.Audit.NotificationsEnabled)
	assert.False(t, cfg.Audit.RejectWhenBusy)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AUDIT_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("AUDIT_WORKERS", "4")
	t.Setenv("AUDIT_LOCK_TIMEOUT", "250ms")
	t.Setenv("AUDIT_ASYNC_REJECT_WHEN_BUSY", "true")
	t.Setenv("AUDIT_NOTIFICATIONS", "false")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Audit.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Audit.LockTimeout)
	assert.True(t, cfg.Audit.RejectWhenBusy)
	assert.False(t, cfg.Audit.NotificationsEnabled)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("AUDIT_WORKERS", "many")
	t.Setenv("AUDIT_PURGE_INTERVAL", "daily")

	cfg := FromEnv()

	assert.Equal(t, 16, cfg.Audit.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Audit.PurgeInterval)
}
