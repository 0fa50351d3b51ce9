package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/dataset-processor/config"
	"github.com/feichai0017/dataset-processor/internal/service/dataset"
	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

func memoryConfig() *config.ServerConfig {
	return &config.ServerConfig{
		StorageType:        "memory",
		DocstoreType:       "memory",
		MaxUploadSize:      1 << 20,
		PreviewTimeout:     time.Second,
		ApplyTimeout:       5 * time.Second,
		DefaultPreviewRows: 10,
		StagingRetention:   time.Hour,
	}
}

func TestNew_InMemory(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, Options{Server: memoryConfig()}, logger.NewTestLogger())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Datasets.Upload(ctx, dataset.UploadRequest{
		UserID:    "u1",
		DatasetID: "ds1",
		Filename:  "a.csv",
		Reader:    strings.NewReader("x\n1\n1\n"),
	})
	require.NoError(t, err)

	cfg, err := a.Configs.Create(ctx, transformation.CreateConfigRequest{UserID: "u1", DatasetID: "ds1"})
	require.NoError(t, err)
	_, err = a.Pipeline.EnqueueApply(ctx, cfg.ID, "u1")
	assert.ErrorIs(t, err, transformation.ErrQueueUnavailable)
}

func TestNew_RejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.DocstoreType = "mongo"
	_, err := New(context.Background(), Options{Server: cfg}, logger.NewTestLogger())
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.StorageType = "gcs"
	_, err = New(context.Background(), Options{Server: cfg}, logger.NewTestLogger())
	assert.Error(t, err)
}
