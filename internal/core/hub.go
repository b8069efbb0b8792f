package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/auth"
	"github.com/vovakirdan/duelsync-server/internal/utils"
)

// ClientTTL is how long a client record lives after register, renew, create or join.
const ClientTTL = 10 * time.Minute

// GameOverHook receives every processed end declaration.
type GameOverHook interface {
	GameOver(ctx context.Context, result MatchResult) error
}

// MatchResult describes one end declaration.
type MatchResult struct {
	RoomID   string
	WinnerID string
	LoserID  string
	Note     json.RawMessage
	EndedAt  time.Time
}

// Stats is a snapshot of registry sizes.
type Stats struct {
	Clients     int `json:"clients"`
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Hub owns the client and room registries and every link between clients, rooms
// and connections.
//
// Lock order is Hub.mu before Room.mu. Connection handlers take only Room.mu and
// release it before calling back into the Hub.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	rooms   map[string]*Room

	clock         clockwork.Clock
	epoch         time.Time
	log           *zerolog.Logger
	hook          GameOverHook
	results       chan MatchResult
	sweepInterval time.Duration

	newClientID func() string
	newSecret   func() string
	newRoomCode func() string
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) { h.log = logger }
}

// WithGameOverHook sets the collaborator notified on every end declaration.
func WithGameOverHook(hook GameOverHook) Option {
	return func(h *Hub) { h.hook = hook }
}

// WithSweepInterval enables the periodic expiry sweep in Run. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(h *Hub) { h.sweepInterval = d }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]*Room),
		clock:       clockwork.NewRealClock(),
		log:         &nop,
		results:     make(chan MatchResult, 64),
		newClientID: utils.NewClientID,
		newSecret:   utils.NewSecret,
		newRoomCode: utils.NewRoomCode,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.epoch = h.clock.Now()
	return h
}

// Run sweeps expired clients and dispatches game-over results until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	var sweep <-chan time.Time
	if h.sweepInterval > 0 {
		ticker := h.clock.NewTicker(h.sweepInterval)
		defer ticker.Stop()
		sweep = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep:
			if n := h.Sweep(); n > 0 {
				h.log.Debug().Int("clients", n).Msg("swept expired clients")
			}
		case result := <-h.results:
			if h.hook == nil {
				continue
			}
			if err := h.hook.GameOver(ctx, result); err != nil {
				h.log.Warn().Err(err).Str("room_id", result.RoomID).Msg("game over hook failed")
			}
		}
	}
}

// Register issues a new client with a fresh id and secret.
func (h *Hub) Register(ip string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.newClientID()
	for h.clients[id] != nil {
		id = h.newClientID()
	}
	c := &Client{
		ID:        id,
		IP:        ip,
		secret:    h.newSecret(),
		expiresAt: h.clock.Now().Add(ClientTTL),
	}
	h.clients[id] = c
	h.log.Debug().Str("client_id", id).Str("ip", ip).Msg("client registered")
	return c
}

// Lookup resolves a client id without validating its TTL.
func (h *Hub) Lookup(id string) (*Client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	return c, ok
}

// LookupRoom resolves a room id.
func (h *Hub) LookupRoom(id string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	return r, ok
}

// RoomOf returns the room the client is currently a member of.
func (h *Hub) RoomOf(c *Client) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.room
}

// ConnectionOf returns the client's attached connection.
func (h *Hub) ConnectionOf(c *Client) *Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.conn
}

// Validate reports whether c is registered and unexpired. A failed validation
// unregisters the client.
func (h *Hub) Validate(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.validateLocked(c)
}

func (h *Hub) validateLocked(c *Client) bool {
	if h.clients[c.ID] == c && h.clock.Now().Before(c.expiresAt) {
		return true
	}
	h.unregisterLocked(c)
	return false
}

// Unregister removes the client and tears down its room. Unless forced, a live
// client must present a valid proof; an expired one is removed regardless.
func (h *Hub) Unregister(c *Client, proof, rice string, force bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !force && h.validateLocked(c) && !c.hashMatches(proof, auth.ContextUnregisterClient, rice) {
		return false
	}
	h.unregisterLocked(c)
	return true
}

func (h *Hub) unregisterLocked(c *Client) {
	if h.clients[c.ID] == c {
		delete(h.clients, c.ID)
		h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
	}
	h.leaveRoomLocked(c)
}

// Renew extends the client's TTL. A failed renewal removes the client from its room.
func (h *Hub) Renew(c *Client, proof, rice string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.validateLocked(c) || !c.hashMatches(proof, auth.ContextRenewClient, rice) {
		h.leaveRoomLocked(c)
		return false
	}
	c.expiresAt = h.clock.Now().Add(ClientTTL)
	return true
}

// CreateRoom makes c the mom of a new room, destroying any room c was in.
func (h *Hub) CreateRoom(c *Client, proof, rice string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.authorizeLocked(c, proof, auth.ContextCreateRoom, rice); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	id := h.newRoomCode()
	for h.rooms[id] != nil {
		id = h.newRoomCode()
	}
	room := newRoom(id, c)
	h.rooms[id] = room
	// Already authenticated for this room.
	if err := h.enterLocked(c, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	h.log.Debug().Str("client_id", c.ID).Str("room_id", id).Msg("room created")
	return room, nil
}

// JoinRoom makes c a member of room. On success c leaves any other room.
func (h *Hub) JoinRoom(c *Client, room *Room, proof, rice string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.authorizeLocked(c, proof, auth.ContextJoinRoom, rice); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	if room.destroyed || h.rooms[room.ID] != room {
		return fmt.Errorf("join room %s: %w", room.ID, ErrNotFound)
	}
	if err := h.enterLocked(c, room); err != nil {
		return fmt.Errorf("join room %s: %w", room.ID, err)
	}
	h.log.Debug().Str("client_id", c.ID).Str("room_id", room.ID).Msg("room joined")
	return nil
}

func (h *Hub) authorizeLocked(c *Client, proof, context, rice string) error {
	if !h.validateLocked(c) {
		return ErrExpired
	}
	if !c.hashMatches(proof, context, rice) {
		return ErrAuthMismatch
	}
	return nil
}

func (h *Hub) enterLocked(c *Client, room *Room) error {
	if err := room.join(c); err != nil {
		return err
	}
	if prev := c.room; prev != nil && prev != room {
		h.destroyRoomLocked(prev)
	}
	c.room = room
	c.expiresAt = h.clock.Now().Add(ClientTTL)
	return nil
}

// leaveRoomLocked clears c's links before touching the room so the teardown
// never re-enters c.
func (h *Hub) leaveRoomLocked(c *Client) {
	room := c.room
	if room == nil {
		return
	}
	h.detachLocked(c, ErrRoomClosed)
	c.room = nil
	// Any departure ends the room.
	h.destroyRoomLocked(room)
}

// DestroyRoom tears the room down and detaches both members.
func (h *Hub) DestroyRoom(room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyRoomLocked(room)
}

func (h *Hub) destroyRoomLocked(room *Room) {
	if room.destroyed {
		return
	}
	room.destroyed = true
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
	}

	room.mu.Lock()
	mom, dad := room.mom, room.dad
	room.dad = nil
	room.mu.Unlock()

	for _, member := range []*Client{mom, dad} {
		if member == nil || member.room != room {
			continue
		}
		h.detachLocked(member, ErrRoomClosed)
		member.room = nil
	}
	h.log.Debug().Str("room_id", room.ID).Msg("room destroyed")
}

// detachLocked closes and unlinks c's connection. The connection is bound to
// c.room, whose mutex guards the link.
func (h *Hub) detachLocked(c *Client, reason error) {
	conn := c.conn
	if conn == nil {
		return
	}
	conn.room.mu.Lock()
	c.conn = nil
	conn.stopPacerLocked()
	conn.close(reason)
	conn.room.mu.Unlock()
}

// Attach binds a new connection to (roomID, clientID). An existing connection of
// the client is superseded.
func (h *Hub) Attach(roomID, clientID string) (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[roomID]
	client := h.clients[clientID]
	if room == nil || client == nil {
		return nil, fmt.Errorf("attach %s/%s: %w", roomID, clientID, ErrNotFound)
	}
	if !h.validateLocked(client) {
		return nil, fmt.Errorf("attach %s/%s: %w", roomID, clientID, ErrExpired)
	}
	if client.room != room || !room.hasMember(client) {
		return nil, fmt.Errorf("attach %s/%s: %w", roomID, clientID, ErrNotMember)
	}

	conn := newConnection(h, client, room)
	room.mu.Lock()
	prev := client.conn
	if prev != nil {
		prev.stopPacerLocked()
		prev.close(ErrSuperseded)
	}
	client.conn = conn
	room.mu.Unlock()

	h.log.Debug().Str("client_id", clientID).Str("room_id", roomID).Msg("connection attached")
	return conn, nil
}

// dropConnection closes conn and, when it is still the client's live
// connection, cascades the departure to the room.
func (h *Hub) dropConnection(conn *Connection, reason error) {
	conn.close(reason)

	h.mu.Lock()
	defer h.mu.Unlock()

	c := conn.client
	if c.conn != conn {
		return
	}
	h.log.Debug().
		Str("client_id", c.ID).
		Str("room_id", conn.room.ID).
		Str("reason", Code(reason)).
		Err(reason).
		Msg("connection dropped")

	if c.room == nil {
		h.detachLocked(c, reason)
		return
	}
	h.leaveRoomLocked(c)
}

// Sweep unregisters expired clients that have no connection attached.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	n := 0
	for _, c := range h.clients {
		if now.Before(c.expiresAt) || c.conn != nil {
			continue
		}
		h.unregisterLocked(c)
		n++
	}
	return n
}

// Stats returns registry sizes.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{Clients: len(h.clients), Rooms: len(h.rooms)}
	for _, c := range h.clients {
		if c.conn != nil {
			s.Connections++
		}
	}
	return s
}

// sinceEpoch returns monotonic milliseconds since the hub was created.
func (h *Hub) sinceEpoch() float64 {
	return float64(h.clock.Since(h.epoch)) / float64(time.Millisecond)
}

// publish queues a result for the game-over hook without blocking.
func (h *Hub) publish(result MatchResult) {
	if h.hook == nil {
		return
	}
	select {
	case h.results <- result:
	default:
		h.log.Warn().Str("room_id", result.RoomID).Msg("game over queue full, result dropped")
	}
}
