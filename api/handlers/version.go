package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

type VersionHandler struct {
	versions *version.Manager
	logger   logger.Logger
}

// CompareRequest 版本比较请求
type CompareRequest struct {
	Version1ID string `json:"version1_id" binding:"required"`
	Version2ID string `json:"version2_id" binding:"required"`
}

// PinRequest 固定版本请求
type PinRequest struct {
	Pinned *bool `json:"is_pinned" binding:"required"`
}

// RetentionRequest sets or clears (null) the retention period.
type RetentionRequest struct {
	RetentionDays *int `json:"retention_days"`
}

// List 获取数据集的版本列表
func (h *VersionHandler) List(c *gin.Context) {
	datasetID := c.Query("dataset_id")
	if datasetID == "" {
		respondError(c, h.logger, http.StatusBadRequest, "dataset_id is required", nil)
		return
	}
	versions, err := h.versions.ListVersions(c.Request.Context(), datasetID)
	if err != nil {
		handleError(c, h.logger, "Failed to list versions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dataset_id": datasetID,
		"versions":   versions,
		"total":      len(versions),
	})
}

func (h *VersionHandler) Get(c *gin.Context) {
	v, err := h.versions.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to get version", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *VersionHandler) Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cmp, err := h.versions.Compare(c.Request.Context(), req.Version1ID, req.Version2ID)
	if err != nil {
		handleError(c, h.logger, "Failed to compare versions", err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// Lineage returns the edge that produced a version.
func (h *VersionHandler) Lineage(c *gin.Context) {
	edge, err := h.versions.GetLineage(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to get lineage", err)
		return
	}
	c.JSON(http.StatusOK, edge)
}

// DatasetLineage returns every edge of a dataset.
func (h *VersionHandler) DatasetLineage(c *gin.Context) {
	datasetID := c.Query("dataset_id")
	if datasetID == "" {
		respondError(c, h.logger, http.StatusBadRequest, "dataset_id is required", nil)
		return
	}
	edges, err := h.versions.ListLineage(c.Request.Context(), datasetID)
	if err != nil {
		handleError(c, h.logger, "Failed to list lineage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dataset_id": datasetID, "lineage": edges})
}

func (h *VersionHandler) Pin(c *gin.Context) {
	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	v, err := h.versions.Pin(c.Request.Context(), c.Param("id"), *req.Pinned)
	if err != nil {
		handleError(c, h.logger, "Failed to pin version", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *VersionHandler) SetRetention(c *gin.Context) {
	var req RetentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	v, err := h.versions.SetRetention(c.Request.Context(), c.Param("id"), req.RetentionDays)
	if err != nil {
		handleError(c, h.logger, "Failed to set retention", err)
		return
	}
	c.JSON(http.StatusOK, v)
}
