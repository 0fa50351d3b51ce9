package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertAsynqStatus(t *testing.T) {
	completedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		info     *asynq.TaskInfo
		status   string
		progress float64
		errMsg   string
	}{
		{"pending", &asynq.TaskInfo{ID: "t1", State: asynq.TaskStatePending}, StatusPending, 0, ""},
		{"scheduled", &asynq.TaskInfo{ID: "t1", State: asynq.TaskStateScheduled}, StatusPending, 0, ""},
		{"active", &asynq.TaskInfo{ID: "t1", State: asynq.TaskStateActive}, StatusRunning, 0.5, ""},
		{"completed", &asynq.TaskInfo{ID: "t1", State: asynq.TaskStateCompleted, CompletedAt: completedAt}, StatusCompleted, 1, ""},
		{"retry", &asynq.TaskInfo{ID: "t1", State: asynq.TaskStateRetry, LastErr: "boom"}, StatusFailed, 0, "boom"},
		{"archived", &asynq.TaskInfo{ID: "t1", State: asynq.TaskStateArchived, LastErr: "dead"}, StatusFailed, 0, "dead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertAsynqStatus(tt.info)
			assert.Equal(t, "t1", got.TaskID)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.progress, got.Progress)
			assert.Equal(t, tt.errMsg, got.Error)
		})
	}

	done := convertAsynqStatus(tests[3].info)
	require.NotNil(t, done.FinishedAt)
	assert.Equal(t, completedAt, *done.FinishedAt)
}

func TestStatusKeyIsPrefixed(t *testing.T) {
	q := &AsynqQueue{cfg: &QueueConfig{KeyPrefix: "dsp"}}
	assert.Equal(t, "dsp:task_status:abc", q.statusKey("abc"))
}
