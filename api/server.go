package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"video-essay-pipeline/config"
	"video-essay-pipeline/jobs"
	"video-essay-pipeline/research"
	"video-essay-pipeline/types"
)

type Jobs interface {
	Submit(ctx context.Context, req types.GenerationRequest) (*types.RunState, error)
	Get(ctx context.Context, id string) (*types.RunState, error)
	Cancel(ctx context.Context, id string) (*types.RunState, error)
}

type Topics interface {
	Suggest(ctx context.Context, category string) ([]research.Topic, error)
}

type Server struct {
	jobs   Jobs
	topics Topics
	cfg    *config.Config
	log    *slog.Logger
}

// NewRouter constructs a Gin engine with every route registered. topics may
// be nil, in which case the topics route answers 503.
func NewRouter(cfg *config.Config, j Jobs, topics Topics, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{jobs: j, topics: topics, cfg: cfg, log: logger.With("component", "api")}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/health", s.handleHealth)
	v1 := r.Group("/api/v1")
	{
		v1.POST("/videos", s.createVideo)
		v1.GET("/videos/:id", s.getVideo)
		v1.DELETE("/videos/:id", s.cancelVideo)
		v1.GET("/videos/:id/download", s.downloadVideo)
		v1.GET("/topics", s.listTopics)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     s.cfg.Server.Version,
		"environment": s.cfg.Environment,
	})
}

func (s *Server) createVideo(c *gin.Context) {
	var req types.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload: " + err.Error()})
		return
	}
	st, err := s.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

func (s *Server) getVideo(c *gin.Context) {
	st, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) cancelVideo(c *gin.Context) {
	st, err := s.jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": st.ID, "status": "canceling"})
}

func (s *Server) downloadVideo(c *gin.Context) {
	st, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if st.Stage != types.StageDone || st.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "video is not ready", "stage": st.Stage})
		return
	}
	path := st.Result.Video.Path
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "artifact no longer available"})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) listTopics(c *gin.Context) {
	if s.topics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "topic research is disabled"})
		return
	}
	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	topics, err := s.topics.Suggest(c.Request.Context(), category)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "topics": topics})
}

// fail maps classified errors to a status and a message safe to show.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, jobs.ErrFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, types.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrProvider):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": types.PublicMessage(err), "kind": types.KindOf(err)})
}
