package proto

import (
	"encoding/json"
	"time"
)

// REST bodies keep the short keys existing clients read: the secret travels as
// "s" and the room code of create and join as "id".

// Registered is the /hi response. S is the client's secret.
type Registered struct {
	Q  bool   `json:"q"`
	ID string `json:"id,omitempty"`
	S  string `json:"s,omitempty"`
}

// Result is the response of operations that only report success.
type Result struct {
	Q bool `json:"q"`
}

// RoomResult is the create and join response. ID is the room code.
type RoomResult struct {
	Q  bool   `json:"q"`
	ID string `json:"id,omitempty"`
}

// MatchRecord is one entry of a client's match history.
type MatchRecord struct {
	ID       int64           `json:"id"`
	RoomID   string          `json:"roomId"`
	WinnerID string          `json:"winnerId"`
	LoserID  string          `json:"loserId"`
	// Won is set only in a client's own history.
	Won      *bool           `json:"won,omitempty"`
	Note     json.RawMessage `json:"note,omitempty"`
	EndedAt  time.Time       `json:"endedAt"`
}
