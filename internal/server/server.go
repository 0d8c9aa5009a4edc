package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ragkit/internal/app"
	"ragkit/pkg/logger"
)

type Server struct {
	router *gin.Engine
	app    *app.App
	http   *http.Server
}

// New creates a new server instance
func New(a *app.App) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	s := &Server{
		app:    a,
		router: router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHealthCheck())
	s.router.GET("/metrics", gin.WrapH(s.app.Metrics.Handler()))

	s.router.POST("/v1/embeddings", s.handleEmbeddings())
	s.router.POST("/v1/documents", s.handleIngestDocuments())
	s.router.DELETE("/v1/documents/:id", s.handleDeleteDocument())
	s.router.POST("/v1/retrieve", s.handleRetrieve())
	s.router.POST("/v1/query", s.handleQuery())
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	cfg := s.app.Config.Server
	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	logger.Info("server listening", "addr", cfg.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP())
	}
}
