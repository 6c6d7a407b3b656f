// Package api exposes the configuration service over HTTP with gin.
package api

import (
	"expvar"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"configforge/internal/core"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// ServiceName labels HTTP server spans.
const ServiceName = "configforge"

// Options configures NewRouter.
type Options struct {
	Logger *slog.Logger
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Expvar mounts GET /debug/vars.
	Expvar bool
	// TracerProvider enables a server span per request when set.
	TracerProvider trace.TracerProvider
}

// NewRouter builds the gin engine with recovery, request logging and every
// route registered.
func NewRouter(svc *core.Service, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.TracerProvider != nil {
		router.Use(otelgin.Middleware(ServiceName, otelgin.WithTracerProvider(opts.TracerProvider)))
	}
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	if opts.Expvar {
		router.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	}

	RegisterRoutes(router.Group("/v1"), NewHandlers(svc, logger))
	return router
}

// RegisterRoutes mounts the configuration API on group.
func RegisterRoutes(group *gin.RouterGroup, h *Handlers) {
	group.GET("/state", h.HandleState)
	group.GET("/review", h.HandleReview)
	group.GET("/options/:level", h.HandleOptions)
	group.PUT("/hierarchy", h.HandleSelectHierarchy)
	group.PUT("/step", h.HandleSetStep)
	group.POST("/recalc", h.HandleRecalc)

	group.PATCH("/parameters/:id", h.HandleUpdateParameter)
	group.DELETE("/parameters/:id/value", h.HandleResetParameter)

	group.POST("/calculations", h.HandleCreateCalculation)
	group.PUT("/calculations/:id", h.HandleSaveCalculation)
	group.PATCH("/calculations/:id", h.HandleUpdateCalculation)
	group.DELETE("/calculations/:id", h.HandleRemoveCalculation)

	group.GET("/patches", h.HandleListPatches)
	group.POST("/patches/validate", h.HandleValidatePatches)
	group.POST("/patches/apply", h.HandleApplyPatches)
	group.POST("/patches/rollback", h.HandleRollback)
	group.POST("/patches/commit", h.HandleCommit)

	group.POST("/ask", h.HandleAsk)
	group.POST("/configurations", h.HandleSaveConfiguration)
	group.GET("/configurations", h.HandleListConfigurations)
	group.GET("/configurations/*key", h.HandleGetConfiguration)
	group.DELETE("/configurations/*key", h.HandleDeleteConfiguration)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		started := time.Now()
		c.Next()
		logger.Debug("http request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}
