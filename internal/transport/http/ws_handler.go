package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/config"
	"github.com/vovakirdan/duelsync-server/internal/core"
)

const flushTimeout = time.Second

// WSHandler upgrades HTTP connections on /{roomId}/{clientId} and bridges them
// to a core.Connection.
type WSHandler struct {
	hub             *core.Hub
	originPatterns  []string
	maxMessageBytes int64
	ratePerMinute   int
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:             hub,
		originPatterns:  cfg.AllowedOrigins,
		maxMessageBytes: cfg.MaxMessageBytes,
		ratePerMinute:   cfg.RateLimitPerMinute,
		log:             logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	roomID, clientID, ok := parseSocketPath(r.URL.Path)
	if !ok {
		conn.Close(StatusNotFound, core.ErrCodeNotFound)
		return
	}

	session, err := h.hub.Attach(roomID, clientID)
	if err != nil {
		h.log.Debug().Err(err).Str("room_id", roomID).Str("client_id", clientID).Msg("ws attach rejected")
		status, reason := closeStatus(err)
		conn.Close(status, reason)
		return
	}
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := h.log.With().
		Str("client_id", clientID).
		Str("room_id", roomID).
		Str("remote_addr", r.RemoteAddr).
		Logger()
	logger.Debug().Msg("ws connected")

	limiter := newRateLimiter(h.ratePerMinute)
	limiter.startReset(ctx.Done())

	readErr := make(chan error, 1)
	go func() {
		err := h.readLoop(ctx, conn, session, limiter)
		session.Destroy(err)
		readErr <- err
	}()

	// The write side owns the close frame so queued frames go out first.
	if err := h.writeLoop(ctx, conn, session); err != nil {
		session.Destroy(err)
	}
	cause := session.Err()
	status, reason := closeStatus(cause)
	if closeErr := conn.Close(status, reason); closeErr != nil && !peerClosed(closeErr) {
		logger.Debug().Err(closeErr).Msg("ws close failed")
	}
	cancel()

	if err := <-readErr; peerClosed(err) {
		logger.Debug().Msg("ws closed by client")
	} else {
		logger.Debug().Err(cause).Str("reason", core.Code(cause)).Msg("ws closed")
	}
}

// readLoop feeds frames into the session until it fails. Each read is bounded by
// the session's remaining lifetime.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Connection, limiter *rateLimiter) error {
	for {
		remaining := session.Remaining()
		if remaining <= 0 {
			return fmt.Errorf("read: %w", core.ErrExpired)
		}

		readCtx, cancel := context.WithTimeout(ctx, remaining)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("read: %w", core.ErrExpired)
			}
			return err
		}

		if !limiter.allow() {
			return fmt.Errorf("%w: rate limit exceeded", core.ErrProtocolViolation)
		}
		if err := session.Receive(data); err != nil {
			return err
		}
	}
}

// writeLoop writes queued frames until the session closes. Frames still queued
// at that point are flushed. A nil return means the session ended.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Connection) error {
	for {
		select {
		case data := <-session.Outbound():
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.log.Debug().Err(err).Str("client_id", session.ClientID()).Msg("write ws frame")
				return err
			}
		case <-session.Done():
			h.flush(conn, session)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) flush(conn *websocket.Conn, session *core.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case data := <-session.Outbound():
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// parseSocketPath splits /{roomId}/{clientId}.
func parseSocketPath(path string) (roomID, clientID string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
