package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/api/handlers/uploads"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/metrics"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
)

type Options struct {
	ServiceName string
	Tracing     bool
	// Auth runs before every /api route. It may be nil.
	Auth gin.HandlerFunc
	Log  zerolog.Logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.GuestTokenHeader)
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

func RegisterRoutes(r *gin.Engine, h *uploads.Handler, opts Options) {
	if opts.Tracing {
		r.Use(gintrace.Middleware(opts.ServiceName))
	}
	// Enable CORS for preflight requests
	r.Use(corsMiddleware())
	r.Use(requestLogger(opts.Log.With().Str("component", "http").Logger()))
	r.Use(metricsMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if opts.Auth != nil {
		api.Use(opts.Auth)
	}
	{
		api.GET("/health", h.Health)

		api.POST("/upload", h.Upload)
		api.GET("/uploads", h.List)
		api.GET("/uploads/:id", h.Show)
		api.GET("/uploads/:id/download", h.Download)
		api.GET("/uploads/:id/thumbnails", h.Thumbnails)
		api.PUT("/uploads/:id/rename", h.Rename)
		api.DELETE("/uploads/:id", h.Delete)
		api.POST("/uploads/:id/restore", h.Restore)

		api.GET("/stats", h.Stats)
		api.POST("/cleanup", h.Cleanup)
	}
}
