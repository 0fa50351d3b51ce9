package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
)

// ApplyHandler runs a queued config apply.
type ApplyHandler interface {
	HandleApplyTask(ctx context.Context, task *queue.Task) error
}

// StagingCleaner removes expired uncommitted pipeline output.
type StagingCleaner interface {
	CleanupStaging(ctx context.Context) (int, error)
}

// PipelineWorker consumes pipeline:apply and storage:cleanup tasks.
type PipelineWorker struct {
	BaseWorker
	pipeline ApplyHandler
	cleaner  StagingCleaner
}

func NewPipelineWorker(cfg *Config, pipeline ApplyHandler, cleaner StagingCleaner, log logger.Logger) *PipelineWorker {
	w := &PipelineWorker{
		pipeline: pipeline,
		cleaner:  cleaner,
	}
	w.init(cfg, log)

	// 注册任务处理器
	w.registerHandlers(w.mux)
	return w
}

func (w *PipelineWorker) registerHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskTypePipelineApply, w.handlePipelineApply)
	mux.HandleFunc(queue.TaskTypeStorageCleanup, w.handleStorageCleanup)
}

func (w *PipelineWorker) handlePipelineApply(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		// malformed payloads never succeed on retry
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" || task.Payload["configId"] == "" {
		w.logger.Error("Invalid task data",
			logger.String("taskId", task.ID),
			logger.Any("payload", task.Payload),
		)
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	w.logger.Info("Processing apply task",
		logger.String("taskId", task.ID),
		logger.String("configId", task.Payload["configId"]),
	)
	if err := w.pipeline.HandleApplyTask(ctx, &task); err != nil {
		w.logger.Error("Apply task failed",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
		return err
	}
	w.logger.Info("Apply task completed", logger.String("taskId", task.ID))
	return nil
}

func (w *PipelineWorker) handleStorageCleanup(ctx context.Context, _ *asynq.Task) error {
	removed, err := w.cleaner.CleanupStaging(ctx)
	if err != nil {
		w.logger.Error("Storage cleanup failed", logger.Error(err))
		return err
	}
	w.logger.Info("Storage cleanup finished", logger.Int("removed", removed))
	return nil
}
