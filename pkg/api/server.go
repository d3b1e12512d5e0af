package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/cache"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/log"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/metrics"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/portforward"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/session"
)

// defaultCacheTTL is how long a cached kubectl read stays fresh
const defaultCacheTTL = 15 * time.Second

// App bundles the dependencies the HTTP surface works against
type App struct {
	Runner   executor.Runner
	Cache    *cache.Cache
	Orch     session.Orchestrator
	Forwards *portforward.Manager
	CacheTTL time.Duration
}

// Server is the dashboard HTTP and WebSocket endpoint
type Server struct {
	app    *App
	logger zerolog.Logger
	http   *http.Server
}

// NewServer builds the router and wires all routes
func NewServer(app *App, addr string) *Server {
	if app.CacheTTL == 0 {
		app.CacheTTL = defaultCacheTTL
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestMetrics())

	s := &Server{
		app:    app,
		logger: log.WithComponent("api"),
	}
	s.registerRoutes(engine)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	api.GET("/resources/:resource", s.listResource)
	api.GET("/resources/:resource/:name", s.getResource)
	api.DELETE("/resources/:resource/:name", s.deleteResource)
	api.POST("/apply", s.applyManifest)
	api.POST("/deployments/:name/scale", s.scaleDeployment)
	api.GET("/awsauth", s.getAWSAuth)
	api.GET("/portforward", s.portForwardStatus)
	api.POST("/portforward", s.startPortForward)
	api.DELETE("/portforward", s.stopPortForward)
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
