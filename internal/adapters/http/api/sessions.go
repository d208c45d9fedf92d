package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/model"
)

// Recent-history query bounds.
const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// SessionsHandler serves session history.
type SessionsHandler struct {
	deps Dependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps Dependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type recentResponse struct {
	SessionID string         `json:"sessionId"`
	Count     int            `json:"count"`
	Samples   []model.Sample `json:"samples"`
}

// HandleRecent handles GET /sessions/:id/recent?limit=N.
func (h *SessionsHandler) HandleRecent(c *gin.Context) {
	session := c.Param("id")
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("%w: limit must be an integer", ErrBadRequest))
			return
		}
		limit = min(n, maxRecentLimit)
	}

	samples, err := h.deps.ReadRecent(c.Request.Context(), session, limit)
	switch {
	case errors.Is(err, store.ErrInvalidSession):
		writeError(c, http.StatusBadRequest, "invalid_session", err)
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, "read_failed", err)
		return
	}

	c.JSON(http.StatusOK, recentResponse{
		SessionID: session,
		Count:     len(samples),
		Samples:   samples,
	})
}
