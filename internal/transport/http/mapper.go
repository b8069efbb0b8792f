package http

import (
	"context"
	"errors"

	"github.com/coder/websocket"

	"github.com/vovakirdan/duelsync-server/internal/core"
)

// Application close codes sent to clients. The close reason carries core.Code.
const (
	StatusAuthMismatch      websocket.StatusCode = 4001
	StatusProtocolViolation websocket.StatusCode = 4002
	StatusExpired           websocket.StatusCode = 4003
	StatusNotFound          websocket.StatusCode = 4004
	StatusNotMember         websocket.StatusCode = 4005
	StatusPeerUnavailable   websocket.StatusCode = 4006
	StatusSuperseded        websocket.StatusCode = 4007
	StatusRoomClosed        websocket.StatusCode = 4008
)

var closeStatuses = map[string]websocket.StatusCode{
	core.ErrCodeAuthMismatch:      StatusAuthMismatch,
	core.ErrCodeProtocolViolation: StatusProtocolViolation,
	core.ErrCodeExpired:           StatusExpired,
	core.ErrCodeNotFound:          StatusNotFound,
	core.ErrCodeNotMember:         StatusNotMember,
	core.ErrCodePeerUnavailable:   StatusPeerUnavailable,
	core.ErrCodeSuperseded:        StatusSuperseded,
	core.ErrCodeRoomClosed:        StatusRoomClosed,
}

// closeStatus maps a teardown cause to the close frame sent to the client.
func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, core.ErrBye):
		return websocket.StatusNormalClosure, core.ErrCodeBye
	case errors.Is(err, context.Canceled):
		return websocket.StatusGoingAway, "shutdown"
	}
	if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
		return websocket.StatusNormalClosure, "closing"
	}

	code := core.Code(err)
	if status, ok := closeStatuses[code]; ok {
		return status, code
	}
	return websocket.StatusInternalError, core.ErrCodeInternal
}

// peerClosed reports whether err means the client went away on its own.
func peerClosed(err error) bool {
	s := websocket.CloseStatus(err)
	return s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway || s == websocket.StatusNoStatusRcvd
}
