package api

import (
	"net/http"
	"strconv"
	"time"

	"gocombine/adapters/points"
	"gocombine/adapters/report"
	"gocombine/domain/combination"
	"gocombine/domain/core"
	"gocombine/internal/errors"

	"github.com/gin-gonic/gin"
)

// RunRequest is the body of the run endpoints.
type RunRequest struct {
	Points     []points.PointSpec  `json:"points" binding:"required"`
	Policy     string              `json:"policy,omitempty"`
	Unknown    string              `json:"unknown,omitempty"`
	Dictionary map[string][]string `json:"dictionary,omitempty"`
	NTop       int                 `json:"ntop,omitempty"`
}

// RunResponse wraps a finished run with its summary.
type RunResponse struct {
	Run     *combination.Run `json:"run"`
	Summary report.Summary   `json:"summary"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleRun(mode combination.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, http.StatusBadRequest, errors.WithCode(errors.CodeInvalidInput, errors.Wrap(err, "malformed run request")))
			return
		}
		pts, err := points.FromSpecs(req.Points)
		if err != nil {
			s.fail(c, statusOf(err), err)
			return
		}
		runner, err := s.runner(&req)
		if err != nil {
			s.fail(c, statusOf(err), err)
			return
		}

		ctx, cancel := s.scanContext(c.Request.Context())
		defer cancel()
		run, err := runner.Run(ctx, mode, pts)
		if err != nil {
			s.fail(c, http.StatusServiceUnavailable, err)
			return
		}
		if err := s.repo.SaveRun(c.Request.Context(), run); err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusCreated, RunResponse{Run: run, Summary: report.Summarize(run)})
	}
}

func (s *Server) runFromPath(c *gin.Context) (*combination.Run, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, errors.InvalidInput(err.Error()))
		return nil, false
	}
	run, err := s.repo.GetRun(c.Request.Context(), id)
	if err != nil {
		if core.IsNotFoundError(err) {
			s.fail(c, http.StatusNotFound, err)
		} else {
			s.fail(c, http.StatusInternalServerError, err)
		}
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(c *gin.Context) {
	if run, ok := s.runFromPath(c); ok {
		c.JSON(http.StatusOK, RunResponse{Run: run, Summary: report.Summarize(run)})
	}
}

// handleReport renders HTML, or Markdown with ?format=md.
func (s *Server) handleReport(c *gin.Context) {
	run, ok := s.runFromPath(c)
	if !ok {
		return
	}
	if c.Query("format") == "md" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(run)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(run))
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, http.StatusBadRequest, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	runs, err := s.repo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, errors.InvalidInput(err.Error()))
		return
	}
	if err := s.repo.DeleteRun(c.Request.Context(), id); err != nil {
		if core.IsNotFoundError(err) {
			s.fail(c, http.StatusNotFound, err)
		} else {
			s.fail(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.Status(http.StatusNoContent)
}
