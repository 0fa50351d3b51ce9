package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/api/middleware"
	"github.com/feichai0017/dataset-processor/internal/service/dataset"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

type DatasetHandler struct {
	service *dataset.Service
	logger  logger.Logger
}

// Upload 上传单个数据集
func (h *DatasetHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	result, err := h.service.Upload(c.Request.Context(), dataset.UploadRequest{
		UserID:    middleware.UserID(c),
		DatasetID: c.PostForm("dataset_id"),
		Filename:  header.Filename,
		Reader:    file,
	})
	if err != nil {
		handleError(c, h.logger, "Failed to upload dataset", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// UploadBatch 批量上传数据集
func (h *DatasetHandler) UploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid form data", err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		respondError(c, h.logger, http.StatusBadRequest, "No files provided", nil)
		return
	}

	results, err := h.service.UploadBatch(c.Request.Context(), middleware.UserID(c), files)
	if err != nil {
		handleError(c, h.logger, fmt.Sprintf("Uploaded %d of %d datasets", len(results), len(files)), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  fmt.Sprintf("Uploaded %d datasets", len(results)),
		"datasets": results,
	})
}
