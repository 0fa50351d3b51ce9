package config

import (
	"strings"
	"sync"
	"time"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

// ServerConfig 服务配置
type ServerConfig struct {
	Port           string
	Mode           string // gin mode
	StorageType    string // s3 | minio | memory
	DocstoreType   string // redis | memory
	AllowedOrigins []string
	MaxUploadSize  int64
	LogLevel       string
	LogDir         string

	PreviewTimeout     time.Duration
	ApplyTimeout       time.Duration
	DefaultPreviewRows int
	StagingRetention   time.Duration
	CleanupSchedule    string // cron spec for storage:cleanup
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()
		serverConfig = loadServerConfig()
	})
	return serverConfig
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:               getEnv("PORT", "8080"),
		Mode:               getEnv("GIN_MODE", "release"),
		StorageType:        strings.ToLower(getEnv("STORAGE_TYPE", "s3")),
		DocstoreType:       strings.ToLower(getEnv("DOCSTORE_TYPE", "redis")),
		AllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MaxUploadSize:      int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 100)) << 20,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogDir:             getEnv("LOG_DIR", "logs"),
		PreviewTimeout:     getEnvDuration("PREVIEW_TIMEOUT", 2*time.Second),
		ApplyTimeout:       getEnvDuration("APPLY_TIMEOUT", 30*time.Second),
		DefaultPreviewRows: getEnvInt("PREVIEW_ROWS", 100),
		StagingRetention:   getEnvDuration("STAGING_RETENTION", 24*time.Hour),
		CleanupSchedule:    getEnv("CLEANUP_SCHEDULE", "@every 1h"),
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
