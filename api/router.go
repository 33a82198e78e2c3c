// Package api serves the local operator API over HTTP
package api

import (
	"time"

	"sbr_monitor/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every route to h
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/measurements", h.ListMeasurements)
		api.POST("/measurements", h.CreateMeasurement)
		api.DELETE("/measurements/:id", h.DeleteMeasurement)
		api.GET("/summary", h.Summary)

		api.GET("/sync/settings", h.GetSettings)
		api.PUT("/sync/settings", h.UpdateSettings)
		api.POST("/sync/id/generate", h.GenerateSyncID)
		api.DELETE("/sync/id", h.ClearSyncID)
		api.GET("/sync/id/qr", h.SyncIDQR)
		api.GET("/sync/status", h.Status)
		api.POST("/sync/push", h.Push)
		api.POST("/sync/pull", h.Pull)
		api.POST("/sync/pull/replace", h.PullReplace)
		api.POST("/sync/full", h.FullSync)

		api.GET("/export", h.ExportJSON)
		api.GET("/export.csv", h.ExportCSV)
		api.GET("/export/code", h.ExportCode)
		api.POST("/import", h.Import)
	}
	return r
}

// RequestLogger logs one line per request at debug level
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s -> %d (%v)\n", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
