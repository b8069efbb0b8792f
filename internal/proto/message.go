package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Frame tags carried in the "t" field.
const (
	TagHi    = "hi"
	TagTime  = "time"
	TagReady = "ready"
	TagKnock = "knock"
	TagBalls = "balls"
	TagMove  = "move"
	TagEnd   = "end"
	TagBye   = "bye"
)

// ErrBadField is returned when a frame field is missing or has the wrong shape.
var ErrBadField = errors.New("bad frame field")

// Inbound is any frame sent by a client. Which fields are populated depends on T.
type Inbound struct {
	T string `json:"t"`

	// hi
	R Nonce  `json:"r"`
	S string `json:"s"`

	// time
	L *float64        `json:"l"`
	D *float64        `json:"d"`
	C json.RawMessage `json:"c"` // round index for time, opaque for balls

	// knock, end
	N json.RawMessage `json:"n"`

	// balls
	P  json.RawMessage `json:"p"`
	PI json.RawMessage `json:"pi"`

	// move
	From  json.RawMessage `json:"from"`
	To    json.RawMessage `json:"to"`
	Since json.RawMessage `json:"since"`
	GT    json.RawMessage `json:"gt"`
}

// Round decodes C as a non-negative integer round index.
func (in *Inbound) Round() (int, error) {
	if len(in.C) == 0 {
		return 0, fmt.Errorf("%w: c missing", ErrBadField)
	}
	var f float64
	if err := json.Unmarshal(in.C, &f); err != nil {
		return 0, fmt.Errorf("%w: c: %v", ErrBadField, err)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: c=%v", ErrBadField, f)
	}
	return int(f), nil
}

// Nonce is a caller-chosen value. Clients send either a string or a number; the
// number's literal JSON text is kept so proofs computed over it stay stable.
type Nonce string

// UnmarshalJSON accepts a JSON string or any other literal.
func (n *Nonce) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Nonce(s)
		return nil
	}
	if string(b) == "null" {
		*n = ""
		return nil
	}
	*n = Nonce(b)
	return nil
}

// Time is a clock-sync probe. L is the server's send time in milliseconds.
type Time struct {
	T string  `json:"t"`
	L float64 `json:"l"`
	C int     `json:"c"`
}

// Ready announces completed clock sync.
type Ready struct {
	T      string  `json:"t"`
	S      bool    `json:"s"`
	O      bool    `json:"o"`
	M      bool    `json:"m"`
	Offset float64 `json:"offset"`
	Ping   float64 `json:"ping"`
}

// Knock is forwarded to the opponent. O translates the sender's clock into the
// receiver's.
type Knock struct {
	T  string          `json:"t"`
	ID string          `json:"id"`
	N  json.RawMessage `json:"n,omitempty"`
	O  float64         `json:"o"`
}

// Balls is the authoritative start payload.
type Balls struct {
	T  string          `json:"t"`
	P  json.RawMessage `json:"p,omitempty"`
	C  json.RawMessage `json:"c,omitempty"`
	PI json.RawMessage `json:"pi,omitempty"`
}

// Move is relayed verbatim.
type Move struct {
	T     string          `json:"t"`
	From  json.RawMessage `json:"from,omitempty"`
	To    json.RawMessage `json:"to,omitempty"`
	Since json.RawMessage `json:"since,omitempty"`
	GT    json.RawMessage `json:"gt,omitempty"`
}

// End tells a player whether they won.
type End struct {
	T string `json:"t"`
	W bool   `json:"w"`
}
