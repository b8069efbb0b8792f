package core

import "errors"

// Error codes used as websocket close reasons and in logs.
const (
	ErrCodeAuthMismatch      = "auth_mismatch"
	ErrCodeProtocolViolation = "protocol_violation"
	ErrCodeExpired           = "expired"
	ErrCodeNotFound          = "not_found"
	ErrCodeRoomFull          = "room_full"
	ErrCodeNotMember         = "not_member"
	ErrCodePeerUnavailable   = "peer_unavailable"
	ErrCodeSuperseded        = "superseded"
	ErrCodeRoomClosed        = "room_closed"
	ErrCodeBye               = "bye"
	ErrCodeInternal          = "internal"
)

var (
	// ErrAuthMismatch means a hash proof did not verify.
	ErrAuthMismatch = errors.New("auth proof mismatch")
	// ErrProtocolViolation means a frame was malformed or not valid in the current state.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrExpired means a client or connection outlived its TTL.
	ErrExpired = errors.New("expired")
	// ErrNotFound means a client or room id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrRoomFull means the dad slot is taken by another client.
	ErrRoomFull = errors.New("room full")
	// ErrNotMember means the client is neither mom nor dad of the room.
	ErrNotMember = errors.New("not a member of room")
	// ErrPeerUnavailable means the opponent has no live connection or is in the wrong state.
	ErrPeerUnavailable = errors.New("peer unavailable")
	// ErrSuperseded means the client attached a newer connection.
	ErrSuperseded = errors.New("connection superseded")
	// ErrRoomClosed means the connection was closed because its room was torn down.
	ErrRoomClosed = errors.New("room closed")
	// ErrBye means the client asked to close the connection.
	ErrBye = errors.New("bye")
)

// Code maps an error to its stable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthMismatch):
		return ErrCodeAuthMismatch
	case errors.Is(err, ErrProtocolViolation):
		return ErrCodeProtocolViolation
	case errors.Is(err, ErrExpired):
		return ErrCodeExpired
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrRoomFull):
		return ErrCodeRoomFull
	case errors.Is(err, ErrNotMember):
		return ErrCodeNotMember
	case errors.Is(err, ErrPeerUnavailable):
		return ErrCodePeerUnavailable
	case errors.Is(err, ErrSuperseded):
		return ErrCodeSuperseded
	case errors.Is(err, ErrRoomClosed):
		return ErrCodeRoomClosed
	case errors.Is(err, ErrBye):
		return ErrCodeBye
	default:
		return ErrCodeInternal
	}
}
