package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vovakirdan/duelsync-server/internal/proto"
)

// Connection lifetimes. Each phase replaces expiresAt.
const (
	// AuthGrace bounds the time between attach and a valid hi.
	AuthGrace = 3 * time.Second
	// SessionTTL is the lifetime after clock sync completes.
	SessionTTL = 10 * time.Minute

	outboundBuffer = 32
)

// Connection is the per-socket protocol state machine of one client.
//
// Protocol fields are guarded by room.mu, which is shared with the opponent's
// connection so start and relay handling is linearizable per room.
type Connection struct {
	hub    *Hub
	client *Client
	room   *Room

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	reason    error

	// room.mu guarded
	state     State
	expiresAt time.Time
	timing    clockSync
	pacer     clockwork.Timer
}

func newConnection(h *Hub, c *Client, r *Room) *Connection {
	return &Connection{
		hub:       h,
		client:    c,
		room:      r,
		out:       make(chan []byte, outboundBuffer),
		done:      make(chan struct{}),
		state:     StateHandshaking,
		expiresAt: h.clock.Now().Add(AuthGrace),
	}
}

// ClientID returns the id of the owning client.
func (c *Connection) ClientID() string {
	return c.client.ID
}

// RoomID returns the id of the room the connection is bound to.
func (c *Connection) RoomID() string {
	return c.room.ID
}

// Outbound yields encoded frames for the transport to write.
func (c *Connection) Outbound() <-chan []byte {
	return c.out
}

// Done is closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection was closed, or nil while it is open.
func (c *Connection) Err() error {
	select {
	case <-c.done:
		return c.reason
	default:
		return nil
	}
}

// State returns the current protocol phase.
func (c *Connection) State() State {
	c.room.mu.Lock()
	defer c.room.mu.Unlock()
	return c.state
}

// Remaining returns the time left before the connection expires.
func (c *Connection) Remaining() time.Duration {
	c.room.mu.Lock()
	defer c.room.mu.Unlock()
	return c.expiresAt.Sub(c.hub.clock.Now())
}

// Receive handles one encoded frame. A non-nil error means the connection has
// been destroyed.
func (c *Connection) Receive(data []byte) error {
	var in proto.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		err = fmt.Errorf("%w: decode frame: %v", ErrProtocolViolation, err)
		c.Destroy(err)
		return err
	}
	if err := c.handle(&in); err != nil {
		c.Destroy(err)
		return err
	}
	return nil
}

// Destroy closes the connection and, if it is still the client's live one,
// tears down the client's room membership. Safe to call more than once.
func (c *Connection) Destroy(reason error) {
	c.hub.dropConnection(c, reason)
}

func (c *Connection) handle(in *proto.Inbound) error {
	c.room.mu.Lock()
	defer c.room.mu.Unlock()

	if c.closed() {
		return c.reason
	}
	if c.hub.clock.Now().After(c.expiresAt) {
		return fmt.Errorf("%s frame: %w", c.state, ErrExpired)
	}
	if in.T == proto.TagBye {
		return ErrBye
	}
	if !c.state.accepts(in.T) {
		return fmt.Errorf("%w: %q in %s", ErrProtocolViolation, in.T, c.state)
	}

	switch {
	case c.state == StateHandshaking:
		if in.T == proto.TagHi {
			return c.hello(in)
		}
		return c.syncRound(in)
	case c.state.awaitingStart():
		if in.T == proto.TagKnock {
			return c.knock(in)
		}
		return c.balls(in)
	default:
		return c.relay(in)
	}
}

// knock marks this side as ready to start and tells the opponent.
func (c *Connection) knock(in *proto.Inbound) error {
	if err := c.advance(StateKnocked); err != nil {
		return err
	}
	peer := c.peerLocked()
	if peer == nil {
		return nil
	}
	peer.send(proto.Knock{
		T:  proto.TagKnock,
		ID: c.client.ID,
		N:  in.N,
		O:  peer.timing.offset - c.timing.offset,
	})
	return nil
}

// balls crosses the start barrier. Only mom may send it, and only after dad knocked.
func (c *Connection) balls(in *proto.Inbound) error {
	if !c.room.isMom(c.client) {
		return fmt.Errorf("%w: balls from non-owner", ErrProtocolViolation)
	}
	dad := c.peerLocked()
	if dad == nil || dad.state != StateKnocked {
		return fmt.Errorf("balls: %w", ErrPeerUnavailable)
	}
	if !c.state.canTransition(StatePlaying) || !dad.state.canTransition(StatePlaying) {
		return fmt.Errorf("%w: balls in %s", ErrProtocolViolation, c.state)
	}

	dad.send(proto.Balls{T: proto.TagBalls, P: in.P, C: in.C, PI: in.PI})
	c.state = StatePlaying
	dad.state = StatePlaying
	return nil
}

func (c *Connection) advance(to State) error {
	if !c.state.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrProtocolViolation, c.state, to)
	}
	c.state = to
	return nil
}

// peerLocked returns the opponent's live connection. Caller holds room.mu.
func (c *Connection) peerLocked() *Connection {
	opponent, err := c.room.opponentOf(c.client)
	if err != nil {
		return nil
	}
	return opponent.liveConn()
}

// send queues a frame. A full queue closes the connection; the transport then
// destroys it.
func (c *Connection) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Error().Err(err).Str("client_id", c.client.ID).Msg("encode frame")
		return
	}
	select {
	case <-c.done:
	case c.out <- data:
	default:
		c.hub.log.Warn().Str("client_id", c.client.ID).Msg("outbound queue full, closing connection")
		c.close(fmt.Errorf("%w: slow consumer", ErrProtocolViolation))
	}
}

func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// close marks the connection closed. It takes no locks.
func (c *Connection) close(reason error) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

func (c *Connection) stopPacerLocked() {
	if c.pacer != nil {
		c.pacer.Stop()
		c.pacer = nil
	}
}
