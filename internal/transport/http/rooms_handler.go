package http

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/peerlink/internal/proto"
	"github.com/vovakirdan/peerlink/internal/relay"
)

// RoomsHandler serves the room directory over REST for tools and dashboards.
type RoomsHandler struct {
	hub *relay.Hub
	log *zerolog.Logger
}

// NewRoomsHandler creates a new rooms handler.
func NewRoomsHandler(hub *relay.Hub, logger *zerolog.Logger) *RoomsHandler {
	return &RoomsHandler{hub: hub, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomsResponse lists the visible rooms of one game version.
type RoomsResponse struct {
	Version string              `json:"version"`
	Rooms   []proto.RoomSummary `json:"rooms"`
}

// List handles the room listing.
// GET /api/rooms?version=1.0
func (h *RoomsHandler) List(c *gin.Context) {
	version := c.Query("version")
	if version == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "version query parameter required"})
		return
	}

	all, err := h.hub.Rooms(c.Request.Context(), version)
	if err != nil {
		h.log.Error().Err(err).Str("version", version).Msg("list rooms")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "relay unavailable"})
		return
	}

	visible := make([]proto.RoomSummary, 0, len(all))
	for _, r := range all {
		if r.Visible {
			visible = append(visible, r)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].Name < visible[j].Name })

	c.JSON(http.StatusOK, RoomsResponse{Version: version, Rooms: visible})
}
