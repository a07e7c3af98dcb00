package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP routes. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.Log), CorsMiddleware())

	router.GET("/health", h.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	transfers := router.Group("/api/filetransfer")
	{
		transfers.POST("", h.RunTransfer)        // legacy route of run
		transfers.POST("/run", h.RunTransfer)    // copy or push a source directory
		transfers.POST("/upload", h.UploadFiles) // multipart upload to FTP
		transfers.GET("/checkftp", h.CheckFTP)
		transfers.GET("/logs", h.GetLogs)
		transfers.GET("/checksum", h.GetChecksumLogs)
		transfers.POST("/clearlogs", h.ClearLogs)
		transfers.GET("/files", h.ListFiles)
		transfers.GET("/batches/:id", h.GetBatch)
	}

	return router
}
