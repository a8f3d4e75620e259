// Package server exposes a csvagent session over a JSON HTTP API.
package server

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nao1215/csvagent"
	"github.com/nao1215/csvagent/internal/config"
)

// SessionFactory creates the session the API works on
type SessionFactory func() *csvagent.Session

// Server serves one active session. POST /api/reset replaces it with a new one.
type Server struct {
	cfg        config.ServerConfig
	newSession SessionFactory
	logger     *slog.Logger
	router     *gin.Engine

	mu      sync.Mutex
	session *csvagent.Session
}

// New creates a Server
func New(cfg config.ServerConfig, newSession SessionFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		newSession: newSession,
		logger:     logger,
		session:    newSession(),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	}
	s.registerRoutes(router)
	s.router = router
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.health)

	api := router.Group("/api")
	{
		api.POST("/upload", s.upload)
		api.GET("/table", s.table)
		api.PUT("/columns", s.columns)
		api.POST("/export", s.export)
		api.GET("/export/download", s.download)
		api.POST("/chat", s.chat)
		api.POST("/ask", s.ask)
		api.GET("/history", s.history)
		api.POST("/reset", s.reset)
	}
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an http.Server listening on the configured address
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

// Close releases the active session
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Close()
}

// current returns the active session
func (s *Server) current() *csvagent.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
