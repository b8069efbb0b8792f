package core

import (
	"fmt"

	"github.com/vovakirdan/duelsync-server/internal/proto"
)

// relay forwards game frames between the two playing connections. Frame
// contents are not validated. A peer that reattached and has not crossed the
// start barrier again counts as unavailable.
func (c *Connection) relay(in *proto.Inbound) error {
	peer := c.peerLocked()
	if peer == nil || peer.state != StatePlaying {
		return fmt.Errorf("relay: %w", ErrPeerUnavailable)
	}

	switch in.T {
	case proto.TagMove:
		peer.send(proto.Move{
			T:     proto.TagMove,
			From:  in.From,
			To:    in.To,
			Since: in.Since,
			GT:    in.GT,
		})
	case proto.TagEnd:
		// The sender of every processed end is declared the winner. Simultaneous
		// claims are not reconciled.
		c.send(proto.End{T: proto.TagEnd, W: true})
		peer.send(proto.End{T: proto.TagEnd, W: false})
		c.hub.publish(MatchResult{
			RoomID:   c.room.ID,
			WinnerID: c.client.ID,
			LoserID:  peer.client.ID,
			Note:     in.N,
			EndedAt:  c.hub.clock.Now(),
		})
	}
	return nil
}
