// Package server exposes an HTTP query surface over the evaluation
// engine: submit a program with POST /evaluate, then read back materialized
// relations with GET /relations/{name}.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duynguyendang/gca-datalog/internal/engine"
	"github.com/duynguyendang/gca-datalog/internal/term"
)

// maxRetainedRuns bounds how many evaluate results the server keeps
// addressable at once. Each run owns its own in-memory Badger instance,
// so retaining runs without bound would leak an LSM tree and its
// compactor goroutines per POST /evaluate; evicting the oldest run closes
// it instead.
const maxRetainedRuns = 64

// run holds one evaluate call's resolved program and its result, so a
// later GET /relations/{name} can look values back up by run ID.
type run struct {
	prog   term.Program
	result *engine.Result
}

// Server holds the state for the HTTP query surface: a set of evaluated
// runs, addressable by the RunID engine.Run assigned each one.
type Server struct {
	mu     sync.RWMutex
	runs   *lru.Cache[string, *run]
	latest string

	logger *slog.Logger
	router *gin.Engine
}

// NewServer builds a Server with routes registered. A nil logger disables
// structured logging.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runs, _ := lru.NewWithEvict(maxRetainedRuns, func(_ string, r *run) {
		_ = r.result.Close()
	})
	s := &Server{
		runs:   runs,
		logger: logger,
		router: gin.Default(),
	}
	s.setupRoutes()
	return s
}

// Run starts the HTTP server on addr.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Close releases every retained run's storage. Call it when shutting the
// server down; in-flight requests may still be using a run's Handles.
func (s *Server) Close() {
	s.runs.Purge()
}

// Handler exposes the underlying gin engine, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/evaluate", s.handleEvaluate)
	s.router.GET("/relations/:name", s.handleRelation)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.Status(http.StatusOK)
}
