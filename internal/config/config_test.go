package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Host: "localhost"}}
	cfg.applyDefaults()

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 5*time.Second, cfg.Redis.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownTimeout)
	assert.Equal(t, "decade_month", cfg.ETL.Reduction)
	assert.True(t, cfg.ReadDatabase.ReadOnly)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Redis:  RedisConfig{Host: "cache", Port: 6380, ConnectTimeout: time.Second},
		Worker: WorkerConfig{ShutdownTimeout: 90 * time.Second},
	}
	cfg.applyDefaults()

	assert.Equal(t, "cache:6380", cfg.Redis.Addr())
	assert.Equal(t, time.Second, cfg.Redis.ConnectTimeout)
	assert.Equal(t, 90*time.Second, cfg.Worker.ShutdownTimeout)
}
