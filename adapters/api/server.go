// Package api serves the combination engine over HTTP.
package api

import (
	"context"
	"net/http"

	"gocombine/domain/combination"
	"gocombine/internal"
	"gocombine/internal/compat"
	"gocombine/internal/config"
	"gocombine/internal/errors"
	"gocombine/internal/scan"
	"gocombine/ports"

	"github.com/gin-gonic/gin"
)

// Server exposes runs over a gin router.
type Server struct {
	router *gin.Engine
	cfg    *config.Config
	policy compat.Policy
	dict   *compat.Dictionary
	repo   ports.ResultRepository
	logger *internal.Logger
}

// NewServer wires the router. dict may be nil; requests asking for an
// explicit policy then have to carry their own dictionary.
func NewServer(cfg *config.Config, policy compat.Policy, dict *compat.Dictionary, repo ports.ResultRepository, logger *internal.Logger) *Server {
	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router: gin.New(),
		cfg:    cfg,
		policy: policy,
		dict:   dict,
		repo:   repo,
		logger: logger.WithComponent("api"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.POST("/combine", s.handleRun(combination.ModeCombine))
	api.POST("/exclusion", s.handleRun(combination.ModeExclude))
	api.POST("/pathfind", s.handleRun(combination.ModePathfind))
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/runs/:id/report", s.handleReport)
	api.DELETE("/runs/:id", s.handleDeleteRun)
}

// Handler returns the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr until the server fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening on %s", addr)
	return s.router.Run(addr)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

// runner builds a scan runner for one request. Requests may override the
// configured policy and ntop.
func (s *Server) runner(req *RunRequest) (*scan.Runner, error) {
	policy := s.policy
	if req.Policy != "" || req.Dictionary != nil || req.Unknown != "" {
		unknown, err := compat.ParseUnknown(req.Unknown)
		if err != nil {
			return nil, err
		}
		dict := s.dict
		if req.Dictionary != nil {
			d := compat.NewDictionary(req.Dictionary)
			dict = &d
		}
		name := req.Policy
		if name == "" {
			name = s.cfg.Combiner.Policy
		}
		if policy, err = compat.NewPolicy(name, dict, unknown); err != nil {
			return nil, err
		}
	}
	ntop := s.cfg.Scan.NTop
	if req.NTop > 0 {
		ntop = req.NTop
	}
	return scan.NewRunner(scan.Settings{
		Options:         s.cfg.LikelihoodOptions(),
		Policy:          policy,
		NTop:            ntop,
		Workers:         s.cfg.Scan.Workers,
		MaxCombinations: s.cfg.Scan.MaxCombinations,
		Logger:          s.logger,
	})
}

func (s *Server) scanContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Scan.Timeout > 0 {
		return context.WithTimeout(parent, s.cfg.Scan.Timeout)
	}
	return context.WithCancel(parent)
}

// statusOf maps error codes to HTTP statuses.
func statusOf(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput, errors.CodeConfigInvalid, errors.CodeInvalidLimit:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}
