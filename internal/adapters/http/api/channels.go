package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ChannelsHandler raises bus events on request.
type ChannelsHandler struct {
	deps Dependencies
}

// NewChannelsHandler creates a new channels handler.
func NewChannelsHandler(deps Dependencies) *ChannelsHandler {
	return &ChannelsHandler{deps: deps}
}

type publishResponse struct {
	Status  string `json:"status"`
	Channel string `json:"channel"`
}

// HandlePublish handles POST /channels/:name.
func (h *ChannelsHandler) HandlePublish(c *gin.Context) {
	name := c.Param("name")
	if !h.deps.Publish(name) {
		writeError(c, http.StatusNotFound, "unknown_channel", fmt.Errorf("%w: %q", ErrUnknownChannel, name))
		return
	}
	c.JSON(http.StatusAccepted, publishResponse{Status: "published", Channel: name})
}
