package transformation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
)

// ErrQueueUnavailable is returned by async operations when no queue is set.
var ErrQueueUnavailable = errors.New("task queue is not configured")

// WithQueue enables asynchronous config applies.
func (s *PipelineService) WithQueue(q queue.Queue) *PipelineService {
	s.queue = q
	return s
}

// EnqueueApply schedules ApplyConfig on a worker and returns the pending
// status.
func (s *PipelineService) EnqueueApply(ctx context.Context, configID, userID string) (*queue.TaskStatus, error) {
	if s.queue == nil {
		return nil, ErrQueueUnavailable
	}
	// fail fast on unknown configs instead of in the worker
	if _, err := s.configs.Get(ctx, configID); err != nil {
		return nil, err
	}

	task := &queue.Task{
		ID:       uuid.New().String(),
		Type:     queue.TaskTypePipelineApply,
		Priority: 2,
		Payload: map[string]string{
			"configId": configID,
			"userId":   userID,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Error("Failed to enqueue apply task",
			logger.String("configId", configID),
			logger.Error(err),
		)
		return nil, err
	}

	status := &queue.TaskStatus{
		TaskID:    task.ID,
		Type:      task.Type,
		Status:    queue.StatusPending,
		StartedAt: task.CreatedAt,
	}
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
	}

	s.logger.Info("Apply task enqueued",
		logger.String("taskId", task.ID),
		logger.String("configId", configID),
	)
	return status, nil
}

// HandleApplyTask runs a queued apply and records its final status.
func (s *PipelineService) HandleApplyTask(ctx context.Context, task *queue.Task) error {
	if task == nil || task.Payload == nil || task.Payload["configId"] == "" {
		return fmt.Errorf("invalid task: missing config id")
	}
	if s.queue == nil {
		return ErrQueueUnavailable
	}
	configID := task.Payload["configId"]

	status := &queue.TaskStatus{
		TaskID:    task.ID,
		Type:      task.Type,
		Status:    queue.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.saveStatus(ctx, status)

	result, err := s.ApplyConfig(ctx, configID, task.Payload["userId"])

	finished := time.Now().UTC()
	status.FinishedAt = &finished
	if err != nil {
		status.Status = queue.StatusFailed
		status.Error = err.Error()
		if result != nil && result.FailedStep != nil {
			status.Result = map[string]string{"failed_step": fmt.Sprint(*result.FailedStep)}
		}
		s.saveStatus(ctx, status)
		return err
	}

	status.Status = queue.StatusCompleted
	status.Progress = 1.0
	status.Result = map[string]string{
		"config_id":   configID,
		"version_id":  result.Version.ID,
		"output_path": result.OutputPath,
	}
	s.saveStatus(ctx, status)
	return nil
}

// TaskStatus looks up an async task.
func (s *PipelineService) TaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	if s.queue == nil {
		return nil, ErrQueueUnavailable
	}
	return s.queue.GetTaskStatus(ctx, taskID)
}

// CancelTask cancels an async task.
func (s *PipelineService) CancelTask(ctx context.Context, taskID string) error {
	if s.queue == nil {
		return ErrQueueUnavailable
	}
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

func (s *PipelineService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}
