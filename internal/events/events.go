package events

import (
	"context"
	"encoding/json"
	"time"
)

// SubjectMatchEnded carries a MatchEnded for every processed end declaration.
const SubjectMatchEnded = "duelsync.match.ended"

// MatchEnded is the payload published when a player declares the end of a match.
type MatchEnded struct {
	MatchID  int64           `json:"matchId,omitempty"`
	RoomID   string          `json:"roomId"`
	WinnerID string          `json:"winnerId"`
	LoserID  string          `json:"loserId"`
	Note     json.RawMessage `json:"note,omitempty"`
	EndedAt  time.Time       `json:"endedAt"`
}

// Publisher delivers domain events to subscribers outside the process.
type Publisher interface {
	PublishMatchEnded(ctx context.Context, ev MatchEnded) error
	Close() error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

// PublishMatchEnded implements Publisher.
func (Nop) PublishMatchEnded(context.Context, MatchEnded) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
