package core

import (
	"fmt"
	"time"

	"github.com/vovakirdan/duelsync-server/internal/auth"
	"github.com/vovakirdan/duelsync-server/internal/proto"
)

// Clock sync parameters.
const (
	// SyncRounds is the number of time samples collected before Ready.
	SyncRounds = 20
	// SyncWindow bounds the whole sync exchange after a valid hi.
	SyncWindow = 20 * time.Second
	// SyncPacing is the delay between rounds.
	SyncPacing = 100 * time.Millisecond

	pingDecay = 0.9
)

// clockSync is the working set of the offset estimator. Times are milliseconds
// on the hub's monotonic clock.
type clockSync struct {
	authed     bool
	round      int  // round index of the last time frame sent
	awaiting   bool // a reply to round is expected
	lastSentAt float64
	samples    []float64
	offset     float64
	ping       float64
}

// hello verifies the socket proof and opens round 0.
func (c *Connection) hello(in *proto.Inbound) error {
	if !c.client.hashMatches(in.S, auth.ContextSocketJoin, string(in.R)) {
		return fmt.Errorf("hi: %w", ErrAuthMismatch)
	}
	c.timing.authed = true
	c.expiresAt = c.hub.clock.Now().Add(SyncWindow)
	c.stopPacerLocked()
	c.sendProbe(0)
	return nil
}

// syncRound consumes a time reply. The offset sample is (d + l - now) / 2 and
// ping is an exponential moving average of round trips.
func (c *Connection) syncRound(in *proto.Inbound) error {
	if !c.timing.authed {
		return fmt.Errorf("%w: time before hi", ErrProtocolViolation)
	}
	round, err := in.Round()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if in.L == nil || in.D == nil {
		return fmt.Errorf("%w: time without l or d", ErrProtocolViolation)
	}
	if !c.timing.awaiting || round != c.timing.round {
		return fmt.Errorf("%w: unexpected time round %d", ErrProtocolViolation, round)
	}

	now := c.hub.sinceEpoch()
	roundTrip := now - c.timing.lastSentAt
	sample := (*in.D + *in.L - now) / 2
	c.timing.ping = c.timing.ping*pingDecay + roundTrip*(1-pingDecay)
	if round == 0 {
		c.timing.samples = c.timing.samples[:0]
	}
	c.timing.samples = append(c.timing.samples, sample)
	c.timing.awaiting = false

	if round+1 < SyncRounds {
		next := round + 1
		c.pacer = c.hub.clock.AfterFunc(SyncPacing, func() { c.pace(next) })
		return nil
	}

	c.timing.offset = mean(c.timing.samples)
	c.expiresAt = c.hub.clock.Now().Add(SessionTTL)
	if err := c.advance(StateReady); err != nil {
		return err
	}

	peer := c.peerLocked()
	c.send(proto.Ready{
		T:      proto.TagReady,
		S:      true,
		O:      peer != nil && peer.state.Synced(),
		M:      c.room.isMom(c.client),
		Offset: c.timing.offset,
		Ping:   c.timing.ping,
	})
	return nil
}

// pace fires after SyncPacing and sends the next probe unless the exchange moved on.
func (c *Connection) pace(round int) {
	c.room.mu.Lock()
	defer c.room.mu.Unlock()

	if c.closed() || c.state != StateHandshaking || c.timing.awaiting || c.timing.round != round-1 {
		return
	}
	c.pacer = nil
	c.sendProbe(round)
}

func (c *Connection) sendProbe(round int) {
	c.timing.round = round
	c.timing.awaiting = true
	c.timing.lastSentAt = c.hub.sinceEpoch()
	c.send(proto.Time{T: proto.TagTime, L: c.timing.lastSentAt, C: round})
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
