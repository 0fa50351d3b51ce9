package config

import (
	"sync"
	"time"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig backs the task queue, task status and the document store.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	KeyPrefix      string
	Concurrency    int
	MaxRetries     int
	RetryDelay     time.Duration
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadEnv()
		redisConfig = loadRedisConfig()
	})
	return redisConfig
}

func loadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
		Password:       getEnv("REDIS_PASSWORD", ""),
		DB:             getEnvInt("REDIS_DB", 0),
		KeyPrefix:      getEnv("REDIS_KEY_PREFIX", "dsp"),
		Concurrency:    getEnvInt("WORKER_CONCURRENCY", 5),
		MaxRetries:     getEnvInt("QUEUE_MAX_RETRIES", 3),
		RetryDelay:     getEnvDuration("QUEUE_RETRY_DELAY", time.Minute),
		ProcessTimeout: getEnvDuration("QUEUE_PROCESS_TIMEOUT", 30*time.Minute),
		StatusTTL:      getEnvDuration("TASK_STATUS_TTL", 24*time.Hour),
	}
}
