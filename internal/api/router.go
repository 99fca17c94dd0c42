package api

import (
	"net/http"

	"github.com/Rishav0123/sentimatix/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SetupRouter mounts the API under /api/v1. Everything except /health
// sits behind auth.
func SetupRouter(h *Handler, auth gin.HandlerFunc, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(log))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "sentimatix", "version": h.version, "docs": "/api/v1/tools"})
	})

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health)

	secured := v1.Group("")
	secured.Use(auth)
	{
		secured.GET("/tools", h.ListTools)
		secured.POST("/call", h.Call)
		secured.POST("/explain", h.Explain)
		secured.POST("/rag/query", h.RAGQuery)
		secured.POST("/correlation", h.Correlation)
		secured.GET("/stats", h.Stats)
	}
	return r
}
