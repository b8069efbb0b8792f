package core

import "github.com/vovakirdan/duelsync-server/internal/proto"

// State is the protocol phase of a Connection. Phases only move forward.
type State int

const (
	// StateHandshaking is entered on attach; accepts hi and time.
	StateHandshaking State = iota
	// StateReady means clock sync completed and no knock was issued yet.
	StateReady
	// StateKnocked means this side asked to start.
	StateKnocked
	// StatePlaying means the start barrier was crossed and relay is active.
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateKnocked:
		return "knocked"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Synced reports whether clock sync has completed.
func (s State) Synced() bool {
	return s != StateHandshaking
}

// awaitingStart is true between sync and the start barrier.
func (s State) awaitingStart() bool {
	return s == StateReady || s == StateKnocked
}

var transitions = map[State][]State{
	StateHandshaking: {StateReady},
	StateReady:       {StateKnocked, StatePlaying},
	StateKnocked:     {StateKnocked, StatePlaying},
}

// acceptedTags lists the tags each phase handles. bye is accepted everywhere and
// Playing hands every tag to the relay.
var acceptedTags = map[State]map[string]bool{
	StateHandshaking: {proto.TagHi: true, proto.TagTime: true},
	StateReady:       {proto.TagKnock: true, proto.TagBalls: true},
	StateKnocked:     {proto.TagKnock: true, proto.TagBalls: true},
}

func (s State) canTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s State) accepts(tag string) bool {
	if s == StatePlaying {
		return true
	}
	return acceptedTags[s][tag]
}
