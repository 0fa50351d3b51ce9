package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/internal/engine"
	"github.com/feichai0017/dataset-processor/internal/service/dataset"
	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/internal/utils/validator"
	"github.com/feichai0017/dataset-processor/pkg/converters"
	"github.com/feichai0017/dataset-processor/pkg/docstore"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/queue"
	"github.com/feichai0017/dataset-processor/pkg/storage"
)

// Services bundles what the handlers call into.
type Services struct {
	Registry  *transform.Registry
	Validator *validator.TransformationValidator
	Datasets  *dataset.Service
	Configs   *transformation.ConfigService
	Pipeline  *transformation.PipelineService
	Versions  *version.Manager
}

type Handlers struct {
	Dataset        *DatasetHandler
	Transformation *TransformationHandler
	Config         *ConfigHandler
	Version        *VersionHandler
	Task           *TaskHandler
}

func NewHandlers(svc *Services, log logger.Logger) *Handlers {
	return &Handlers{
		Dataset:        &DatasetHandler{service: svc.Datasets, logger: log},
		Transformation: &TransformationHandler{registry: svc.Registry, validator: svc.Validator, pipeline: svc.Pipeline, logger: log},
		Config:         &ConfigHandler{configs: svc.Configs, pipeline: svc.Pipeline, logger: log},
		Version:        &VersionHandler{versions: svc.Versions, logger: log},
		Task:           &TaskHandler{pipeline: svc.Pipeline, logger: log},
	}
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		paramErr     *transform.ParameterError
		integrityErr *version.IntegrityError
		execErr      *engine.ExecutionError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, transformation.ErrConfigNotFound),
		errors.Is(err, version.ErrVersionNotFound),
		errors.Is(err, version.ErrLineageNotFound),
		errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transformation.ErrConfigExists),
		errors.Is(err, version.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.As(err, &paramErr),
		errors.Is(err, transformation.ErrEmptyPipeline),
		errors.Is(err, transformation.ErrDatasetRequired),
		errors.Is(err, version.ErrInvalidRetention),
		errors.Is(err, converters.ErrEmptyDataset):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, dataset.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &integrityErr), errors.As(err, &execErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transformation.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	status := http.StatusBadRequest
	if err != nil {
		status = statusFor(err)
	}
	respondError(c, log, status, message, err)
}

func respondError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
