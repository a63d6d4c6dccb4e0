package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resumate/internal/editor"
	"resumate/internal/extract"
	"resumate/internal/jobfetch"
	"resumate/internal/peersync"
	"resumate/internal/projects"
	"resumate/internal/services/health"
	"resumate/internal/shared/config"
	"resumate/internal/shared/metrics"
	"resumate/internal/shared/server/middleware"
	"resumate/internal/shared/server/respond"
	"resumate/internal/snapshot"
	"resumate/internal/tuning"
)

// RouterDeps carries the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	EditorHandler   *editor.Handler
	ProjectHandler  *projects.Handler
	SnapshotHandler *snapshot.Handler
	TuneHandler     *tuning.Handler
	PeerHandler     *peersync.Handler
	PeerRelay       *peersync.Relay
	JobHandler      *jobfetch.Handler
	ExtractHandler  *extract.Handler
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	metrics.Register()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		metrics.Middleware(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	if deps.Config.RateLimitRPS > 0 {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:  deps.RateLimiter,
			GroupFor: rateLimitGroup,
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: deps.Config.RateLimitRPS, Burst: deps.Config.RateLimitBurst},
				"POLLING": {Rate: deps.Config.RateLimitRPS * 5, Burst: deps.Config.RateLimitBurst * 5},
				"LLM":     {Rate: 0.2, Burst: 3},
			},
		}))
	}

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}
	api.GET("/health", func(c *gin.Context) {
		report := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	if deps.EditorHandler != nil {
		deps.EditorHandler.RegisterRoutes(api)
	}
	if deps.ProjectHandler != nil {
		deps.ProjectHandler.RegisterRoutes(api)
	}
	if deps.SnapshotHandler != nil {
		deps.SnapshotHandler.RegisterRoutes(api)
	}
	if deps.TuneHandler != nil {
		deps.TuneHandler.RegisterRoutes(api)
	}
	if deps.PeerHandler != nil {
		deps.PeerHandler.RegisterRoutes(api)
	}
	if deps.PeerRelay != nil {
		deps.PeerRelay.RegisterRoutes(api)
	}
	if deps.JobHandler != nil {
		deps.JobHandler.RegisterRoutes(api)
	}
	if deps.ExtractHandler != nil {
		deps.ExtractHandler.RegisterRoutes(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	switch c.FullPath() {
	case "/api/v1/peer/status", "/api/v1/health", "/api/v1/state":
		if c.Request.Method == http.MethodGet {
			return "POLLING"
		}
	case "/api/v1/tune":
		if c.Request.Method == http.MethodPost {
			return "LLM"
		}
	}
	return "DEFAULT"
}

// Addr normalizes the listen address.
func Addr(bind, port string) string {
	if port == "" {
		port = "8080"
	}
	if port[0] == ':' {
		return bind + port
	}
	return bind + ":" + port
}
