package core

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/duelsync-server/internal/auth"
	"github.com/vovakirdan/duelsync-server/internal/proto"
)

type harness struct {
	t     testing.TB
	hub   *Hub
	clock *clockwork.FakeClock
	rice  int
}

func newHarness(t testing.TB, opts ...Option) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clock)}, opts...)
	return &harness{t: t, hub: NewHub(opts...), clock: clock}
}

func (h *harness) nextRice() string {
	h.rice++
	return strconv.Itoa(h.rice)
}

// proof returns a fresh rice and the matching proof for context.
func (h *harness) proof(c *Client, context string) (proof, rice string) {
	rice = h.nextRice()
	return auth.Proof(c.Secret(), auth.Scope(context, rice)), rice
}

func (h *harness) createRoom(c *Client) *Room {
	h.t.Helper()
	proof, rice := h.proof(c, auth.ContextCreateRoom)
	room, err := h.hub.CreateRoom(c, proof, rice)
	require.NoError(h.t, err)
	return room
}

func (h *harness) joinRoom(c *Client, room *Room) error {
	proof, rice := h.proof(c, auth.ContextJoinRoom)
	return h.hub.JoinRoom(c, room, proof, rice)
}

// pair registers mom and dad and puts them in one room.
func (h *harness) pair() (*Room, *Client, *Client) {
	h.t.Helper()
	mom := h.hub.Register("10.0.0.1")
	dad := h.hub.Register("10.0.0.2")
	room := h.createRoom(mom)
	require.NoError(h.t, h.joinRoom(dad, room))
	return room, mom, dad
}

func (h *harness) attach(room *Room, c *Client) *Connection {
	h.t.Helper()
	conn, err := h.hub.Attach(room.ID, c.ID)
	require.NoError(h.t, err)
	return conn
}

func (h *harness) send(conn *Connection, frame map[string]any) error {
	h.t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(h.t, err)
	return conn.Receive(data)
}

func (h *harness) hello(conn *Connection, c *Client) {
	h.t.Helper()
	rice := h.nextRice()
	proof := auth.Proof(c.Secret(), auth.Scope(auth.ContextSocketJoin, rice))
	require.NoError(h.t, h.send(conn, map[string]any{"t": proto.TagHi, "r": rice, "s": proof}))
}

// sync answers every probe immediately with d=diff and returns the ready frame.
func (h *harness) sync(conn *Connection, diff float64) map[string]any {
	h.t.Helper()
	for round := range SyncRounds {
		probe := mustFrame(h.t, conn, proto.TagTime)
		require.EqualValues(h.t, round, probe["c"])
		l := probe["l"].(float64)
		require.NoError(h.t, h.send(conn, map[string]any{"t": proto.TagTime, "l": l, "d": diff, "c": round}))
		if round+1 < SyncRounds {
			h.clock.Advance(SyncPacing)
		}
	}
	return mustFrame(h.t, conn, proto.TagReady)
}

// connect attaches, authenticates and syncs a client.
func (h *harness) connect(room *Room, c *Client) (*Connection, map[string]any) {
	h.t.Helper()
	conn := h.attach(room, c)
	h.hello(conn, c)
	return conn, h.sync(conn, 0)
}

// mustFrame waits for the next frame and checks its tag.
func mustFrame(t testing.TB, conn *Connection, tag string) map[string]any {
	t.Helper()

	select {
	case data := <-conn.Outbound():
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		require.Equal(t, tag, frame["t"], "unexpected frame %s", data)
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s frame not received", tag)
		return nil
	}
}

// drain returns every frame already queued.
func drain(conn *Connection) []map[string]any {
	var frames []map[string]any
	for {
		select {
		case data := <-conn.Outbound():
			var frame map[string]any
			_ = json.Unmarshal(data, &frame)
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func requireClosed(t testing.TB, conn *Connection) {
	t.Helper()
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s was not closed", conn.ClientID())
	}
}

type recordingHook struct {
	mu      sync.Mutex
	results []MatchResult
	seen    chan struct{}
}

func newRecordingHook() *recordingHook {
	return &recordingHook{seen: make(chan struct{}, 16)}
}

func (r *recordingHook) GameOver(_ context.Context, result MatchResult) error {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recordingHook) wait(t *testing.T) MatchResult {
	t.Helper()
	select {
	case <-r.seen:
	case <-time.After(2 * time.Second):
		t.Fatalf("game over hook was not called")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[len(r.results)-1]
}
