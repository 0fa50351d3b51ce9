package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/api/middleware"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/internal/utils/validator"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

type TransformationHandler struct {
	registry  *transform.Registry
	validator *validator.TransformationValidator
	pipeline  *transformation.PipelineService
	logger    logger.Logger
}

// ValidateRequest 校验请求
type ValidateRequest struct {
	VersionID string                      `json:"version_id,omitempty"`
	DatasetID string                      `json:"dataset_id,omitempty"`
	Steps     []models.TransformationStep `json:"transformations" binding:"required"`
}

// Types lists the catalog.
func (h *TransformationHandler) Types(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transformations": h.registry.Types()})
}

// Preview 预览单步转换
func (h *TransformationHandler) Preview(c *gin.Context) {
	var req transformation.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	result, err := h.pipeline.Preview(c.Request.Context(), req)
	if err != nil {
		handleError(c, h.logger, "Failed to load dataset", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Apply 执行单步转换
func (h *TransformationHandler) Apply(c *gin.Context) {
	var req transformation.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.UserID = middleware.UserID(c)

	result, err := h.pipeline.ApplyStep(c.Request.Context(), req)
	if err != nil {
		handleError(c, h.logger, "Transformation failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Pipeline 执行多步转换
func (h *TransformationHandler) Pipeline(c *gin.Context) {
	var req transformation.PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.UserID = middleware.UserID(c)

	result, err := h.pipeline.RunPipeline(c.Request.Context(), req)
	if err != nil {
		if result != nil && result.PipelineResult != nil {
			h.logger.Warn("Pipeline failed", logger.Error(err))
			c.JSON(statusFor(err), result)
			return
		}
		handleError(c, h.logger, "Pipeline failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Validate dry-runs steps against the current data.
func (h *TransformationHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	summary, err := h.pipeline.ValidateSteps(c.Request.Context(), req.VersionID, req.DatasetID, req.Steps)
	if err != nil {
		handleError(c, h.logger, "Failed to validate transformations", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Suggestions proposes cleaning steps for a version or dataset.
func (h *TransformationHandler) Suggestions(c *gin.Context) {
	v, df, err := h.pipeline.Source(c.Request.Context(), c.Query("version_id"), c.Query("dataset_id"))
	if err != nil {
		handleError(c, h.logger, "Failed to load dataset", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version_id":  v.ID,
		"suggestions": h.validator.SuggestTransformations(df),
	})
}
