package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

type TaskHandler struct {
	pipeline *transformation.PipelineService
	logger   logger.Logger
}

// GetStatus 获取任务状态
func (h *TaskHandler) GetStatus(c *gin.Context) {
	status, err := h.pipeline.TaskStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		handleError(c, h.logger, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// CancelTask 取消任务
func (h *TaskHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.pipeline.CancelTask(c.Request.Context(), taskID); err != nil {
		handleError(c, h.logger, "Failed to cancel task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"task_id": taskID,
	})
}
