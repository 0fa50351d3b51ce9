package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/dataset-processor/internal/engine"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/service/dataset"
	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/pkg/converters"
	"github.com/feichai0017/dataset-processor/pkg/queue"
	"github.com/feichai0017/dataset-processor/pkg/storage"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"config not found", fmt.Errorf("get: %w", transformation.ErrConfigNotFound), http.StatusNotFound},
		{"version not found", version.ErrVersionNotFound, http.StatusNotFound},
		{"task not found", queue.ErrTaskNotFound, http.StatusNotFound},
		{"missing object", fmt.Errorf("load: %w", storage.ErrNotFound), http.StatusNotFound},
		{"config exists", transformation.ErrConfigExists, http.StatusConflict},
		{"version conflict", version.ErrConcurrencyConflict, http.StatusConflict},
		{"bad parameter", &transform.ParameterError{Type: models.TypeFillMissing, Field: "method", Message: "unknown"}, http.StatusBadRequest},
		{"empty pipeline", transformation.ErrEmptyPipeline, http.StatusBadRequest},
		{"no dataset", transformation.ErrDatasetRequired, http.StatusBadRequest},
		{"negative retention", version.ErrInvalidRetention, http.StatusBadRequest},
		{"empty csv", converters.ErrEmptyDataset, http.StatusBadRequest},
		{"unsupported type", dataset.ErrUnsupportedFileType, http.StatusUnsupportedMediaType},
		{"too large", dataset.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"timeout", &engine.ExecutionError{Type: models.TypeRemoveOutliers, StepIndex: 0, Err: engine.ErrTimeout}, http.StatusGatewayTimeout},
		{"execution", &engine.ExecutionError{Type: models.TypeConvertType, StepIndex: 1, Err: errors.New("bad value")}, http.StatusUnprocessableEntity},
		{"integrity", &version.IntegrityError{DatasetID: "ds1", Reason: "base exists"}, http.StatusUnprocessableEntity},
		{"no queue", transformation.ErrQueueUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
