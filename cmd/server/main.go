package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/api/handlers"
	"github.com/feichai0017/dataset-processor/api/routes"
	"github.com/feichai0017/dataset-processor/config"
	"github.com/feichai0017/dataset-processor/internal/app"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
)

func main() {
	cfg := config.GetServerConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", filepath.Join(cfg.LogDir, "app.log")}),
		logger.WithErrorPaths([]string{"stderr", filepath.Join(cfg.LogDir, "error.log")}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// async applies are optional; the API still serves without redis
	opts := app.Options{Server: cfg}
	q, err := queue.GetQueue()
	if err != nil {
		log.Warn("Task queue unavailable, async apply disabled", logger.Error(err))
	} else {
		defer q.Close()
		opts.Queue = q
	}

	services, err := app.New(ctx, opts, log)
	if err != nil {
		log.Fatal("Failed to init services", logger.Error(err))
	}
	defer services.Close()

	// init handlers
	h := handlers.NewHandlers(&handlers.Services{
		Registry:  services.Registry,
		Validator: services.Validator,
		Datasets:  services.Datasets,
		Configs:   services.Configs,
		Pipeline:  services.Pipeline,
		Versions:  services.Versions,
	}, log)

	gin.SetMode(cfg.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxUploadSize
	routes.SetupRoutes(r, h, log, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
