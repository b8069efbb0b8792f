package utils

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

const (
	// RoomCodeLength is the number of characters in a room code.
	RoomCodeLength = 6

	roomCodeAlphabet = "0123456789"
)

// NewClientID returns a random client identifier.
func NewClientID() string {
	return uuid.NewString()
}

// NewSecret returns a random opaque bearer secret.
func NewSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRoomCode returns a random numeric room code. Callers check for collisions.
func NewRoomCode() string {
	var b strings.Builder
	b.Grow(RoomCodeLength)
	for range RoomCodeLength {
		b.WriteByte(roomCodeAlphabet[rand.IntN(len(roomCodeAlphabet))])
	}
	return b.String()
}
