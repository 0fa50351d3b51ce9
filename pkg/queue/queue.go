// Package queue runs long pipeline applies and housekeeping on asynq.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/dataset-processor/config"
)

// TaskType 定义任务类型
const (
	TaskTypePipelineApply  = "pipeline:apply"
	TaskTypeStorageCleanup = "storage:cleanup"
)

// Task states recorded in TaskStatus.Status.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var queueNames = []string{"critical", "default", "low"}

// ErrTaskNotFound is returned when neither the status store nor any queue
// knows the task.
var ErrTaskNotFound = errors.New("task not found")

// Queue 接口定义
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

// Task 定义任务结构
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   map[string]string `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// TaskStatus 定义任务状态
type TaskStatus struct {
	TaskID     string            `json:"task_id"`
	Type       string            `json:"type,omitempty"`
	Status     string            `json:"status"`
	Progress   float64           `json:"progress"`
	Error      string            `json:"error,omitempty"`
	Result     map[string]string `json:"result,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	KeyPrefix      string
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *QueueConfig
}

// ConfigFromEnv builds a queue config from the redis settings.
func ConfigFromEnv() *QueueConfig {
	rc := config.GetRedisConfig()
	return &QueueConfig{
		RedisAddr:      rc.Addr,
		RedisPassword:  rc.Password,
		RedisDB:        rc.DB,
		KeyPrefix:      rc.KeyPrefix,
		MaxRetries:     rc.MaxRetries,
		ProcessTimeout: rc.ProcessTimeout,
		StatusTTL:      rc.StatusTTL,
	}
}

// GetQueue 获取队列实例
func GetQueue() (*AsynqQueue, error) {
	return NewAsynqQueue(ConfigFromEnv())
}

// RedisOpt returns the asynq connection options for cfg.
func (cfg *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &AsynqQueue{
		client:    asynq.NewClient(cfg.RedisOpt()),
		inspector: asynq.NewInspector(cfg.RedisOpt()),
		redis:     redisClient,
		cfg:       cfg,
	}, nil
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.Retention(q.cfg.StatusTTL),
	}
	if task.ID != "" {
		opts = append(opts, asynq.TaskID(task.ID))
	}

	// 根据优先选择队列
	switch task.Priority {
	case 1:
		opts = append(opts, asynq.Queue("critical"))
	case 2:
		opts = append(opts, asynq.Queue("default"))
	default:
		opts = append(opts, asynq.Queue("low"))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID
	return nil
}

// GetTaskStatus reads the saved status, falling back to the queues.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, q.statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask deletes a queued task or cancels a running one.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		if info.State == asynq.TaskStateActive {
			err = q.inspector.CancelProcessing(taskID)
		} else {
			err = q.inspector.DeleteTask(name, taskID)
		}
		if err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		now := time.Now().UTC()
		return q.SaveStatus(ctx, &TaskStatus{
			TaskID:     taskID,
			Type:       info.Type,
			Status:     StatusCancelled,
			StartedAt:  now,
			FinishedAt: &now,
		})
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// SaveStatus stores status for StatusTTL.
func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, q.statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// Close releases the queue's connections.
func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func (q *AsynqQueue) statusKey(taskID string) string {
	return fmt.Sprintf("%s:task_status:%s", q.cfg.KeyPrefix, taskID)
}

// convertAsynqStatus 将 asynq 状态转换为 TaskStatus
func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		Type:      info.Type,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStateActive:
		status.Status = StatusRunning
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 1.0
		completed := info.CompletedAt
		status.FinishedAt = &completed
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
	default:
		status.Status = StatusPending
	}
	return status
}

// NewScheduler registers the periodic storage cleanup task.
func NewScheduler(cfg *QueueConfig, cronspec string) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(cfg.RedisOpt(), &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := scheduler.Register(cronspec, asynq.NewTask(TaskTypeStorageCleanup, nil), asynq.Queue("low")); err != nil {
		return nil, fmt.Errorf("failed to register cleanup schedule: %w", err)
	}
	return scheduler, nil
}
