package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APPLY_TIMEOUT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("DOCSTORE_TYPE", "")

	cfg := loadServerConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "redis", cfg.DocstoreType)
	assert.Equal(t, 30*time.Second, cfg.ApplyTimeout)
	assert.Equal(t, 2*time.Second, cfg.PreviewTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(100<<20), cfg.MaxUploadSize)
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APPLY_TIMEOUT", "45s")
	t.Setenv("STORAGE_TYPE", "MinIO")
	t.Setenv("DOCSTORE_TYPE", "Memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")

	cfg := loadServerConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.ApplyTimeout)
	assert.Equal(t, "minio", cfg.StorageType)
	assert.Equal(t, "memory", cfg.DocstoreType)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestLoadRedisConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("QUEUE_RETRY_DELAY", "soon")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := loadRedisConfig()
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, time.Minute, cfg.RetryDelay)
	assert.Equal(t, 24*time.Hour, cfg.StatusTTL)
	assert.True(t, loadMinioConfig().UseSSL)
}
