package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/feichai0017/dataset-processor/config"
	"github.com/feichai0017/dataset-processor/internal/app"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
	"github.com/feichai0017/dataset-processor/pkg/worker"
)

func main() {
	cfg := config.GetServerConfig()
	redisCfg := config.GetRedisConfig()

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", filepath.Join(cfg.LogDir, "worker.log")}),
		logger.WithErrorPaths([]string{"stderr", filepath.Join(cfg.LogDir, "worker-error.log")}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queueCfg := queue.ConfigFromEnv()
	q, err := queue.NewAsynqQueue(queueCfg)
	if err != nil {
		log.Error("Failed to connect task queue", logger.Error(err))
		os.Exit(1)
	}
	defer q.Close()

	services, err := app.New(ctx, app.Options{Server: cfg, Queue: q}, log)
	if err != nil {
		log.Error("Failed to init services", logger.Error(err))
		os.Exit(1)
	}
	defer services.Close()

	// 创建 worker
	pipelineWorker := worker.NewPipelineWorker(&worker.Config{
		Redis:       queueCfg.RedisOpt(),
		Concurrency: redisCfg.Concurrency,
		Queues:      worker.DefaultQueues(),
		RetryDelay:  redisCfg.RetryDelay,
	}, services.Pipeline, services.Datasets, log.Named("worker"))

	if err := pipelineWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// 周期性清理 staging 输出
	scheduler, err := queue.NewScheduler(queueCfg, cfg.CleanupSchedule)
	if err != nil {
		log.Error("Failed to create scheduler", logger.Error(err))
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		log.Error("Failed to start scheduler", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started",
		logger.Int("concurrency", redisCfg.Concurrency),
		logger.String("cleanupSchedule", cfg.CleanupSchedule),
	)

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	scheduler.Shutdown()
	pipelineWorker.Stop()
	log.Info("Worker stopped")
}
