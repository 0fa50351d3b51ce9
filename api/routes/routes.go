package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/dataset-processor/api/handlers"
	"github.com/feichai0017/dataset-processor/api/middleware"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger, origins []string) {
	// 全局中间件
	r.Use(middleware.CORS(origins))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger.NewContextLogger(log)))

	r.GET("/health", handlers.HealthCheck)

	// API 版本组
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Identity())

	datasets := v1.Group("/datasets")
	{
		datasets.POST("", h.Dataset.Upload)
		datasets.POST("/batch", h.Dataset.UploadBatch)
	}

	// 转换路由组
	transformations := v1.Group("/transformations")
	{
		transformations.GET("/types", h.Transformation.Types)
		transformations.GET("/suggestions", h.Transformation.Suggestions)
		transformations.POST("/preview", h.Transformation.Preview)
		transformations.POST("/apply", h.Transformation.Apply)
		transformations.POST("/pipeline", h.Transformation.Pipeline)
		transformations.POST("/validate", h.Transformation.Validate)
	}

	configs := v1.Group("/configs")
	{
		configs.POST("", h.Config.Create)
		configs.GET("", h.Config.List)
		configs.POST("/import", h.Config.Import)
		configs.GET("/:id", h.Config.Get)
		configs.DELETE("/:id", h.Config.Delete)
		configs.POST("/:id/steps", h.Config.AddStep)
		configs.DELETE("/:id/steps", h.Config.ClearSteps)
		configs.POST("/:id/validate", h.Config.Validate)
		configs.POST("/:id/apply", h.Config.Apply)
		configs.GET("/:id/export", h.Config.Export)
	}

	// 版本与血缘
	versions := v1.Group("/versions")
	{
		versions.GET("", h.Version.List)
		versions.POST("/compare", h.Version.Compare)
		versions.GET("/:id", h.Version.Get)
		versions.GET("/:id/lineage", h.Version.Lineage)
		versions.PUT("/:id/pin", h.Version.Pin)
		versions.PUT("/:id/retention", h.Version.SetRetention)
	}
	v1.GET("/lineage", h.Version.DatasetLineage)

	tasks := v1.Group("/tasks")
	{
		tasks.GET("/:taskId", h.Task.GetStatus)
		tasks.DELETE("/:taskId", h.Task.CancelTask)
	}
}
