package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/api/middleware"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

const maxRecipeSize = 1 << 20

type ConfigHandler struct {
	configs  *transformation.ConfigService
	pipeline *transformation.PipelineService
	logger   logger.Logger
}

// Create 创建转换配置
func (h *ConfigHandler) Create(c *gin.Context) {
	var req transformation.CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.UserID = middleware.UserID(c)

	cfg, err := h.configs.Create(c.Request.Context(), req)
	if err != nil {
		handleError(c, h.logger, "Failed to create config", err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.configs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to get config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *ConfigHandler) List(c *gin.Context) {
	datasetID := c.Query("dataset_id")
	if datasetID == "" {
		respondError(c, h.logger, http.StatusBadRequest, "dataset_id is required", nil)
		return
	}
	cfgs, err := h.configs.ListByDataset(c.Request.Context(), datasetID)
	if err != nil {
		handleError(c, h.logger, "Failed to list configs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": cfgs})
}

// AddStep 追加转换步骤
func (h *ConfigHandler) AddStep(c *gin.Context) {
	var step models.TransformationStep
	if err := c.ShouldBindJSON(&step); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := h.configs.AddStep(c.Request.Context(), c.Param("id"), step)
	if err != nil {
		handleError(c, h.logger, "Failed to add step", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ClearSteps 清空转换步骤
func (h *ConfigHandler) ClearSteps(c *gin.Context) {
	cfg, err := h.configs.Clear(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to clear config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *ConfigHandler) Validate(c *gin.Context) {
	summary, err := h.configs.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to validate config", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Apply runs the config now, or on a worker with ?async=true.
func (h *ConfigHandler) Apply(c *gin.Context) {
	ctx := c.Request.Context()
	configID := c.Param("id")

	if c.Query("async") == "true" {
		status, err := h.pipeline.EnqueueApply(ctx, configID, middleware.UserID(c))
		if err != nil {
			handleError(c, h.logger, "Failed to enqueue apply", err)
			return
		}
		c.JSON(http.StatusAccepted, status)
		return
	}

	result, err := h.pipeline.ApplyConfig(ctx, configID, middleware.UserID(c))
	if err != nil {
		if result != nil && result.PipelineResult != nil {
			h.logger.Warn("Config apply failed", logger.String("configId", configID), logger.Error(err))
			c.JSON(statusFor(err), result)
			return
		}
		handleError(c, h.logger, "Failed to apply config", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ConfigHandler) Delete(c *gin.Context) {
	if err := h.configs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, h.logger, "Failed to delete config", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Config deleted successfully",
		"config_id": c.Param("id"),
	})
}

// Export 导出 YAML 配方
func (h *ConfigHandler) Export(c *gin.Context) {
	data, err := h.configs.ExportRecipe(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to export recipe", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=recipe_%s.yaml", c.Param("id")))
	c.Data(http.StatusOK, "application/yaml", data)
}

// Import 导入 YAML 配方
func (h *ConfigHandler) Import(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRecipeSize))
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := h.configs.ImportRecipe(c.Request.Context(), data, middleware.UserID(c), c.Query("dataset_id"))
	if err != nil {
		handleError(c, h.logger, "Failed to import recipe", err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}
