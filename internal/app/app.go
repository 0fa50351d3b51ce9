// Package app wires the services shared by the API server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/dataset-processor/config"
	"github.com/feichai0017/dataset-processor/internal/engine"
	"github.com/feichai0017/dataset-processor/internal/service/dataset"
	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/internal/utils/validator"
	"github.com/feichai0017/dataset-processor/pkg/docstore"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
	"github.com/feichai0017/dataset-processor/pkg/storage"
)

type App struct {
	Registry  *transform.Registry
	Validator *validator.TransformationValidator
	Versions  *version.Manager
	Datasets  *dataset.Service
	Configs   *transformation.ConfigService
	Pipeline  *transformation.PipelineService
	Queue     queue.Queue

	closers []func() error
}

// Options selects optional collaborators. A nil Queue disables async applies.
type Options struct {
	Server *config.ServerConfig
	Queue  queue.Queue
}

// New builds every service from configuration.
func New(ctx context.Context, opts Options, log logger.Logger) (*App, error) {
	cfg := opts.Server
	if cfg == nil {
		cfg = config.GetServerConfig()
	}

	blobs, err := storage.NewStorage(storage.StorageType(cfg.StorageType), log)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	a := &App{Queue: opts.Queue}
	store, err := a.newDocstore(ctx, cfg.DocstoreType, log)
	if err != nil {
		return nil, err
	}

	a.Registry = transform.NewRegistry()
	a.Validator = validator.NewTransformationValidator(a.Registry, log.Named("validator"), nil)
	engineCfg := engine.DefaultConfig()
	engineCfg.PreviewTimeout = cfg.PreviewTimeout
	engineCfg.ApplyTimeout = cfg.ApplyTimeout
	engineCfg.DefaultPreviewRows = cfg.DefaultPreviewRows
	newEngine := func() *engine.Engine {
		return engine.New(a.Registry, a.Validator, log.Named("engine"), engineCfg)
	}

	a.Versions = version.NewManager(store, log.Named("versions"))
	a.Datasets = dataset.NewService(blobs, a.Versions, a.Validator, log.Named("datasets"), &dataset.ServiceConfig{
		MaxFileSize:      cfg.MaxUploadSize,
		AllowedTypes:     []string{".csv"},
		MaxConcurrent:    5,
		StagingRetention: cfg.StagingRetention,
	})
	a.Configs = transformation.NewConfigService(store, a.Registry, a.Versions, a.Datasets, newEngine, log.Named("configs"))
	a.Pipeline = transformation.NewPipelineService(a.Configs, a.Versions, a.Datasets, newEngine, log.Named("pipeline"))
	if opts.Queue != nil {
		a.Pipeline.WithQueue(opts.Queue)
	}
	return a, nil
}

func (a *App) newDocstore(ctx context.Context, kind string, log logger.Logger) (docstore.Store, error) {
	switch kind {
	case "memory":
		log.Warn("Using in-memory document store; metadata is lost on restart")
		return docstore.NewMemoryStore(), nil
	case "", "redis":
		rc := config.GetRedisConfig()
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := docstore.NewRedisStore(client, rc.KeyPrefix, log.Named("docstore"))
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported docstore type: %s", kind)
	}
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
