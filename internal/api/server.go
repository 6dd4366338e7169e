// Package api exposes quantization registry introspection and a rate-limited
// demo invocation endpoint over HTTP.
package api

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/quantmod/internal/logger"
	"github.com/samcharles93/quantmod/pkg/nn"
	"github.com/samcharles93/quantmod/pkg/q8"
)

const requestIDHeader = "X-Request-Id"

// Server serves registry snapshots and demo invocations.
type Server struct {
	log     logger.Logger
	demo    *nn.Module
	vocab   int
	limiter *rate.Limiter

	// mu serializes access to the demo module. Modules are not safe for
	// concurrent invocation, and the materialize/flush hooks rewrite the
	// attribute maps that registry snapshots read.
	mu sync.Mutex
}

// NewServer builds a server around an optional demo module. demoQPS bounds
// how often the demo endpoint may invoke it.
func NewServer(log logger.Logger, demo *nn.Module, vocab int, demoQPS float64) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if demoQPS <= 0 {
		demoQPS = 5
	}
	return &Server{
		log:     log,
		demo:    demo,
		vocab:   vocab,
		limiter: rate.NewLimiter(rate.Limit(demoQPS), 1),
	}
}

// Register installs the server's routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.Use(requestID)
	e.GET("/healthz", s.health)
	e.GET("/v1/registry", s.registry)
	e.POST("/v1/demo/invoke", s.invoke)
}

// requestID tags every response with a fresh uuid.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		c.Response().Header().Set(requestIDHeader, uuid.NewString())
		return next(c)
	}
}

func (s *Server) health(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) registry(c *echo.Context) error {
	s.mu.Lock()
	stats := q8.Stats()
	s.mu.Unlock()
	return writeJSON(c, http.StatusOK, RegistryResponse{Modules: stats})
}

func (s *Server) invoke(c *echo.Context) error {
	if s.demo == nil {
		return writeError(c, http.StatusNotFound, "no demo module loaded")
	}
	if !s.limiter.Allow() {
		return writeError(c, http.StatusTooManyRequests, "demo invocation rate exceeded")
	}

	var req InvokeRequest
	if err := readJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Token < 0 || req.Token >= s.vocab {
		return writeError(c, http.StatusBadRequest, "token id out of range")
	}

	s.mu.Lock()
	logits, err := s.demo.Invoke([]float32{float32(req.Token)})
	s.mu.Unlock()
	if err != nil {
		s.log.Error("demo invocation failed", "token", req.Token, "err", err)
		return writeError(c, http.StatusInternalServerError, err.Error())
	}

	top := 0
	for i, v := range logits {
		if v > logits[top] {
			top = i
		}
	}
	return writeJSON(c, http.StatusOK, InvokeResponse{
		Token:    req.Token,
		Logits:   len(logits),
		TopToken: top,
	})
}
