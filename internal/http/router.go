// Package httpapi wires the HTTP transport (Gin) to the distribution engine,
// middleware, route handlers, and the websocket endpoint. It centralizes
// cross-cutting concerns: tracing, correlation IDs, structured logging, panic
// recovery, metrics, rate limiting, CORS, and security headers.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after the logger
//  5. Body size limiter
//  6. Gzip (REST only; the websocket route bypasses compression)
//  7. Metrics
//  8. Rate limiter (per IP)
//  9. CORS and security headers
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dilduck/fallcentalert/internal/config"
	"github.com/dilduck/fallcentalert/internal/engine"
	"github.com/dilduck/fallcentalert/internal/http/handlers"
	"github.com/dilduck/fallcentalert/internal/http/middleware"
	"github.com/dilduck/fallcentalert/internal/session"
	"github.com/dilduck/fallcentalert/internal/ws"
)

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine: the REST API under /api, the websocket endpoint at /ws, and the
// health and metrics endpoints.
func RegisterRoutes(r *gin.Engine, eng *engine.Engine, registry *session.Registry, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)

	// 8) CORS posture (allow all when no origins configured, as the
	// reference deployment serves the dashboard from arbitrary hosts)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(eng, registry)

	// REST API
	api := r.Group("/api", gzip.Gzip(gzip.DefaultCompression), rl.Handler())
	{
		api.GET("/products", h.ListProducts)
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)
		api.GET("/sessions", h.ListSessions)
	}

	// Websocket client channel (no gzip, no rate limit: one long-lived
	// connection per viewer)
	wsHandler := ws.NewHandler(eng, log.Logger)
	r.GET("/ws", wsHandler.Serve)
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies fail on read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
