package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Match is one recorded end declaration.
type Match struct {
	ID       int64
	RoomID   string
	WinnerID string
	LoserID  string
	Note     json.RawMessage // opaque payload sent with end, may be empty
	EndedAt  time.Time
}

// MatchStore handles match result persistence. Sessions, clients and rooms
// live in memory only.
type MatchStore interface {
	// RecordMatch persists a result and sets its ID.
	RecordMatch(ctx context.Context, m *Match) error

	// GetMatch retrieves a result by ID.
	GetMatch(ctx context.Context, id int64) (*Match, error)

	// ListMatchesByRoom lists results of a room, newest first.
	ListMatchesByRoom(ctx context.Context, roomID string, limit int) ([]*Match, error)

	// ListMatchesByClient lists results the client took part in, newest first.
	ListMatchesByClient(ctx context.Context, clientID string, limit int) ([]*Match, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MatchStore

	// Close closes the underlying database connection.
	Close() error
}
