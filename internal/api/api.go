// Package api exposes the session registry over HTTP and a websocket event
// stream. Every JSON response uses the Response envelope.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/ledger"
	"github.com/matheus3301/wppbridge/internal/registry"
	"github.com/matheus3301/wppbridge/internal/session"
	"go.uber.org/zap"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Deliveries lists ledger entries for a session.
type Deliveries interface {
	List(ctx context.Context, sessionID string, limit int) ([]ledger.Entry, error)
}

// Config controls the router.
type Config struct {
	// APIKey protects every route except /health. Empty disables auth.
	APIKey      string
	CORSOrigins []string
	// MediaDir is served read-only under /media when set.
	MediaDir string
}

// Server holds the handlers' collaborators.
type Server struct {
	cfg        Config
	registry   *registry.Registry
	bus        *bus.Bus
	deliveries Deliveries
	logger     *zap.Logger
	router     *gin.Engine

	closeOnce sync.Once
	closing   chan struct{}
}

// New builds the router. deliveries may be nil.
func New(cfg Config, reg *registry.Registry, b *bus.Bus, deliveries Deliveries, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		registry:   reg,
		bus:        b,
		deliveries: deliveries,
		logger:     logger,
		router:     gin.New(),
		closing:    make(chan struct{}),
	}
	s.router.Use(gin.Recovery(), s.accessLog())
	s.router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close ends every open event stream. http.Server.Shutdown does not wait for
// hijacked connections.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Api-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// apiKeyAuth accepts the key from X-Api-Key or a bearer token.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Api-Key")
		if got == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
		}
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Message: "Missing X-Api-Key header"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{Message: "Invalid API key"})
			return
		}
		c.Next()
	}
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidID), errors.Is(err, session.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, registry.ErrAlreadyConnected),
		errors.Is(err, session.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), Response{Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Message: message})
}

// bind decodes the JSON body into req. It reports false after writing a 400.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// controller resolves the :id path parameter. It reports false after writing
// the error response.
func (s *Server) controller(c *gin.Context) (*session.Controller, bool) {
	ctrl, err := s.registry.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return ctrl, true
}
