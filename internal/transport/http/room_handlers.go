package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/core"
	"github.com/vovakirdan/duelsync-server/internal/proto"
)

// RoomHandlers provides HTTP handlers for room pairing endpoints.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// CreateRoom makes the caller the owner of a new room.
// GET /room?id&s&r
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	q := bindProof(c)
	client, ok := h.hub.Lookup(q.ID)
	if !ok {
		c.JSON(http.StatusOK, proto.RoomResult{Q: false})
		return
	}

	room, err := h.hub.CreateRoom(client, q.Proof, q.Rice)
	if err != nil {
		h.log.Debug().Err(err).Str("client_id", q.ID).Str("reason", core.Code(err)).Msg("create room rejected")
		c.JSON(http.StatusOK, proto.RoomResult{Q: false})
		return
	}

	h.log.Info().Str("client_id", q.ID).Str("room_id", room.ID).Msg("room created")
	c.JSON(http.StatusOK, proto.RoomResult{Q: true, ID: room.ID})
}

// JoinRoom makes the caller the second member of a room.
// GET /room/:roomid?id&s&r
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	q := bindProof(c)
	roomID := c.Param("roomid")
	client, ok := h.hub.Lookup(q.ID)
	room, found := h.hub.LookupRoom(roomID)
	if !ok || !found {
		c.JSON(http.StatusOK, proto.RoomResult{Q: false})
		return
	}

	if err := h.hub.JoinRoom(client, room, q.Proof, q.Rice); err != nil {
		h.log.Debug().Err(err).Str("client_id", q.ID).Str("room_id", roomID).Str("reason", core.Code(err)).Msg("join room rejected")
		c.JSON(http.StatusOK, proto.RoomResult{Q: false})
		return
	}

	h.log.Info().Str("client_id", q.ID).Str("room_id", roomID).Msg("room joined")
	c.JSON(http.StatusOK, proto.RoomResult{Q: true, ID: room.ID})
}
