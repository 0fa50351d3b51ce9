package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
)

type fakePipeline struct {
	tasks []*queue.Task
	err   error
}

func (f *fakePipeline) HandleApplyTask(_ context.Context, task *queue.Task) error {
	f.tasks = append(f.tasks, task)
	return f.err
}

type fakeCleaner struct {
	calls int
	err   error
}

func (f *fakeCleaner) CleanupStaging(context.Context) (int, error) {
	f.calls++
	return 3, f.err
}

func newTestWorker(p ApplyHandler, c StagingCleaner) *PipelineWorker {
	return &PipelineWorker{
		BaseWorker: BaseWorker{mux: asynq.NewServeMux(), logger: logger.NewTestLogger()},
		pipeline:   p,
		cleaner:    c,
	}
}

func applyTask(t *testing.T, task queue.Task) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	return asynq.NewTask(queue.TaskTypePipelineApply, payload)
}

func TestHandlePipelineApply(t *testing.T) {
	p := &fakePipeline{}
	w := newTestWorker(p, &fakeCleaner{})
	w.registerHandlers(w.mux)

	err := w.mux.ProcessTask(context.Background(), applyTask(t, queue.Task{
		ID:      "t1",
		Type:    queue.TaskTypePipelineApply,
		Payload: map[string]string{"configId": "c1", "userId": "u1"},
	}))
	require.NoError(t, err)
	require.Len(t, p.tasks, 1)
	assert.Equal(t, "c1", p.tasks[0].Payload["configId"])
}

func TestHandlePipelineApply_InvalidPayloadSkipsRetry(t *testing.T) {
	p := &fakePipeline{}
	w := newTestWorker(p, &fakeCleaner{})

	err := w.handlePipelineApply(context.Background(), asynq.NewTask(queue.TaskTypePipelineApply, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.handlePipelineApply(context.Background(), applyTask(t, queue.Task{ID: "t1"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, p.tasks)
}

func TestHandlePipelineApply_PropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	w := newTestWorker(&fakePipeline{err: boom}, &fakeCleaner{})
	err := w.handlePipelineApply(context.Background(), applyTask(t, queue.Task{
		ID:      "t1",
		Payload: map[string]string{"configId": "c1"},
	}))
	assert.ErrorIs(t, err, boom)
}

func TestHandleStorageCleanup(t *testing.T) {
	c := &fakeCleaner{}
	w := newTestWorker(&fakePipeline{}, c)
	w.registerHandlers(w.mux)

	require.NoError(t, w.mux.ProcessTask(context.Background(), asynq.NewTask(queue.TaskTypeStorageCleanup, nil)))
	assert.Equal(t, 1, c.calls)

	c.err = errors.New("bucket unavailable")
	assert.Error(t, w.handleStorageCleanup(context.Background(), nil))
}
