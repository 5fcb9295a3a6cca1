package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scipunch/newsdesk/aggregator"
	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/view"
)

// Runner starts load cycles
type Runner interface {
	RunOnce(ctx context.Context, force bool) (*aggregator.State, bool, error)
}

// ConfigProvider returns the current config
type ConfigProvider interface {
	Load() config.Config
}

// StateReader returns the last committed aggregate state
type StateReader interface {
	State() *aggregator.State
}

type Server struct {
	state    StateReader
	runner   Runner
	provider ConfigProvider
}

func NewServer(state StateReader, runner Runner, provider ConfigProvider) *Server {
	return &Server{state: state, runner: runner, provider: provider}
}

// NewRouter returns a gin engine with recovery, request logging and the API routes
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/feeds", s.listFeeds)
		v1.POST("/refresh", s.refresh)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listArticles(c *gin.Context) {
	mode, err := view.Parse(c.Query("category"), c.Query("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": err.Error(),
		})
		return
	}

	state := s.state.State()
	articles := view.Select(state, mode, s.provider.Load().Views.Merged)

	c.JSON(http.StatusOK, gin.H{
		"code":      "ok",
		"message":   "success",
		"view":      mode.String(),
		"loaded_at": state.LoadedAt,
		"data":      articles,
	})
}

func (s *Server) listFeeds(c *gin.Context) {
	state := s.state.State()
	c.JSON(http.StatusOK, gin.H{
		"code":       "ok",
		"message":    "success",
		"loaded_at":  state.LoadedAt,
		"categories": view.Categories(state, s.provider.Load().Views.Merged),
		"data":       state.Statuses,
	})
}

func (s *Server) refresh(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	// A cycle is not cancelled when the client goes away
	ctx := context.WithoutCancel(c.Request.Context())
	state, started, err := s.runner.RunOnce(ctx, force)
	switch {
	case errors.Is(err, aggregator.ErrNoSources):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "no_sources",
			"message": err.Error(),
		})
		return
	case err != nil:
		slog.Error("refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	case !started:
		c.JSON(http.StatusAccepted, gin.H{
			"code":    "busy",
			"message": "a load cycle is already running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":      "ok",
		"message":   "success",
		"loaded_at": state.LoadedAt,
		"articles":  len(state.Articles),
		"data":      state.Statuses,
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}
