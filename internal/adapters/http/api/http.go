// Package api serves the operational HTTP surface of the pipeline.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/okian/tapsense/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// ReadRecent returns the newest samples of a session, ascending.
	ReadRecent(ctx context.Context, session string, limit int) ([]model.Sample, error)

	// Publish raises a named bus event. Returns false for unknown channels.
	Publish(name string) bool

	// Ready reports whether the store accepts operations.
	Ready() bool
}

// Server wires HTTP routes for the ops API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	channelsHandler *ChannelsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps),
		channelsHandler: NewChannelsHandler(deps),
	}
}

// NewEngine returns a gin engine with recovery, CORS and metrics middleware.
func NewEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(MetricsMiddleware())
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.healthHandler.HandleHealth)
	r.GET("/metrics", s.healthHandler.HandleMetrics)
	r.GET("/stats", s.statsHandler.HandleStats)
	r.GET("/sessions/:id/recent", s.sessionsHandler.HandleRecent)
	r.POST("/channels/:name", s.channelsHandler.HandlePublish)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: msg})
}
