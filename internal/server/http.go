package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/health"
	"github.com/mbd888/safescore/internal/idgen"
	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/internal/metrics"
	"github.com/mbd888/safescore/internal/ratelimit"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/security"
	"github.com/mbd888/safescore/internal/validation"
)

// endpoints is the route list advertised by GET /api.
var endpoints = []string{
	"GET /v1/wallets/:address/risk",
	"GET /v1/wallets/:address/report",
	"GET /v1/wallets/:address/assessments",
	"GET /v1/wallets/:address/assessments/latest",
	"POST /v1/wallets/batch",
	"POST /v1/score",
	"GET /v1/protocols/:name",
	"GET /ws",
}

func (s *Server) setupMiddleware() {
	rl := ratelimit.DefaultConfig()
	if rps := s.cfg.RateLimitRPS; rps > 0 {
		rl.RequestsPerMinute = rps * 60
		rl.BurstSize = max(rl.BurstSize, rps)
	}
	s.rateLimiter = ratelimit.New(rl)

	s.router.Use(
		gin.CustomRecovery(s.recoverPanic),
		security.HeadersMiddleware(),
		security.CORSMiddleware(s.allowedOrigins()),
		validation.RequestSizeMiddleware(validation.MaxRequestSize),
		s.rateLimiter.Middleware(),
		metrics.Middleware(),
		s.requestIDMiddleware(),
		s.loggingMiddleware(),
	)
}

func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	logging.L(c.Request.Context()).Error("panic recovered",
		"error", recovered,
		"path", c.Request.URL.Path,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An unexpected error occurred",
	})
}

// allowedOrigins is CORS_ORIGINS, or any origin in development when unset.
func (s *Server) allowedOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 && s.cfg.IsDevelopment() {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

// requestIDMiddleware keeps a caller's X-Request-ID (load balancer, MCP
// bridge) or mints one, and puts a tagged logger on the request context.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := validation.SanitizeString(c.GetHeader("X-Request-ID"), 64)
		if id == "" {
			id = idgen.New()
		}
		ctx := logging.WithLogger(logging.WithRequestID(c.Request.Context(), id), s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		logger := logging.L(c.Request.Context()).With(
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		switch {
		case status >= 500:
			logger.Error("request completed", "client_ip", c.ClientIP())
		case status >= 400:
			logger.Warn("request completed")
		default:
			logger.Info("request completed")
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/ws", gin.WrapF(s.realtimeHub.HandleWebSocket))
	s.router.GET("/api", s.infoHandler)

	v1 := s.router.Group("/v1", validation.AddressParamMiddleware())
	risk.NewHandler(s.service).RegisterRoutes(v1)
	if s.protocols != nil {
		defillama.NewHandler(s.protocols).RegisterRoutes(v1)
	}
	v1.GET("/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// healthHandler answers 503 when a critical dependency is down and
// "degraded" when only optional upstreams are.
func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	resp := HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if !ok {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	for _, ch := range checks {
		if !ch.Healthy {
			resp.Status = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) livenessHandler(c *gin.Context) {
	probe(c, s.healthy.Load(), "alive", "unhealthy")
}

func (s *Server) readinessHandler(c *gin.Context) {
	probe(c, s.ready.Load(), "ready", "not_ready")
}

func probe(c *gin.Context, up bool, yes, no string) {
	if up {
		c.JSON(http.StatusOK, gin.H{"status": yes})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": no})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "SafeScore",
		"description": "Ethereum wallet risk scoring",
		"version":     s.version,
		"llmEnabled":  s.oracle != nil,
		"storage":     s.storageKind(),
		"maxBatch":    risk.MaxBatchSize,
		"endpoints":   endpoints,
	})
}
