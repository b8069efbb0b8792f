package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/core"
	"github.com/vovakirdan/duelsync-server/internal/proto"
	"github.com/vovakirdan/duelsync-server/internal/store"
)

const defaultHistoryLimit = 20

// MatchHistory lists recorded match results.
type MatchHistory interface {
	History(ctx context.Context, clientID string, limit int) ([]*store.Match, error)
	RoomHistory(ctx context.Context, roomID string, limit int) ([]*store.Match, error)
}

// APIHandlers provides HTTP handlers for client registration endpoints.
type APIHandlers struct {
	hub     *core.Hub
	history MatchHistory
	log     *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, history MatchHistory, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub:     hub,
		history: history,
		log:     logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// proofQuery holds the credentials every client operation carries.
type proofQuery struct {
	ID    string `form:"id"`
	Proof string `form:"s"`
	Rice  string `form:"r"`
}

func bindProof(c *gin.Context) proofQuery {
	var q proofQuery
	// Missing fields stay empty and fail verification.
	_ = c.ShouldBindQuery(&q)
	return q
}

// Register issues a new client.
// GET /hi
func (h *APIHandlers) Register(c *gin.Context) {
	client := h.hub.Register(c.ClientIP())
	c.JSON(http.StatusOK, proto.Registered{Q: true, ID: client.ID, S: client.Secret()})
}

// Unregister removes a client. Unknown clients count as already gone.
// GET /bye?id&s&r
func (h *APIHandlers) Unregister(c *gin.Context) {
	q := bindProof(c)
	client, ok := h.hub.Lookup(q.ID)
	if !ok {
		c.JSON(http.StatusOK, proto.Result{Q: true})
		return
	}

	removed := h.hub.Unregister(client, q.Proof, q.Rice, false)
	if !removed {
		h.log.Debug().Str("client_id", q.ID).Msg("unregister rejected")
	}
	c.JSON(http.StatusOK, proto.Result{Q: removed})
}

// Renew extends a client's lifetime.
// GET /plz?id&s&r
func (h *APIHandlers) Renew(c *gin.Context) {
	q := bindProof(c)
	client, ok := h.hub.Lookup(q.ID)
	if !ok {
		c.JSON(http.StatusOK, proto.Result{Q: false})
		return
	}

	renewed := h.hub.Renew(client, q.Proof, q.Rice)
	if !renewed {
		h.log.Debug().Str("client_id", q.ID).Msg("renew rejected")
	}
	c.JSON(http.StatusOK, proto.Result{Q: renewed})
}

// History lists the recorded results of a client, newest first.
// GET /history/:clientid?limit
func (h *APIHandlers) History(c *gin.Context) {
	clientID := c.Param("clientid")
	limit, ok := h.historyLimit(c)
	if !ok {
		return
	}

	matches, err := h.history.History(c.Request.Context(), clientID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("client_id", clientID).Msg("failed to list matches")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.MatchRecord, 0, len(matches))
	for _, m := range matches {
		won := m.WinnerID == clientID
		record := matchRecord(m)
		record.Won = &won
		response = append(response, record)
	}
	c.JSON(http.StatusOK, response)
}

// RoomHistory lists the recorded results played under a room code, newest first.
// GET /room/:roomid/history?limit
func (h *APIHandlers) RoomHistory(c *gin.Context) {
	roomID := c.Param("roomid")
	limit, ok := h.historyLimit(c)
	if !ok {
		return
	}

	matches, err := h.history.RoomHistory(c.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list room matches")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.MatchRecord, 0, len(matches))
	for _, m := range matches {
		response = append(response, matchRecord(m))
	}
	c.JSON(http.StatusOK, response)
}

// historyLimit writes the error response itself when it returns false.
func (h *APIHandlers) historyLimit(c *gin.Context) (int, bool) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "match history disabled"})
		return 0, false
	}
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return 0, false
	}
	return n, true
}

func matchRecord(m *store.Match) proto.MatchRecord {
	return proto.MatchRecord{
		ID:       m.ID,
		RoomID:   m.RoomID,
		WinnerID: m.WinnerID,
		LoserID:  m.LoserID,
		Note:     m.Note,
		EndedAt:  m.EndedAt,
	}
}

// Health reports liveness and registry sizes.
// GET /health
func (h *APIHandlers) Health(c *gin.Context) {
	stats := h.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"clients":     stats.Clients,
		"rooms":       stats.Rooms,
		"connections": stats.Connections,
	})
}
