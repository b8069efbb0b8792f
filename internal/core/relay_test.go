package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/duelsync-server/internal/proto"
)

// play connects both members and crosses the start barrier.
func (h *harness) play() (room *Room, mom, dad *Client, momConn, dadConn *Connection) {
	h.t.Helper()
	room, mom, dad = h.pair()
	momConn, _ = h.connect(room, mom)
	dadConn, _ = h.connect(room, dad)
	require.NoError(h.t, h.send(dadConn, map[string]any{"t": proto.TagKnock}))
	mustFrame(h.t, momConn, proto.TagKnock)
	require.NoError(h.t, h.send(momConn, map[string]any{"t": proto.TagBalls}))
	mustFrame(h.t, dadConn, proto.TagBalls)
	return room, mom, dad, momConn, dadConn
}

func TestMoveIsRelayedVerbatim(t *testing.T) {
	h := newHarness(t)
	_, _, _, momConn, dadConn := h.play()

	require.NoError(t, momConn.Receive([]byte(`{"t":"move","from":[3,4],"to":{"x":5},"since":1200.5,"gt":"q"}`)))

	data := <-dadConn.Outbound()
	assert.JSONEq(t, `{"t":"move","from":[3,4],"to":{"x":5},"since":1200.5,"gt":"q"}`, string(data))
	assert.Empty(t, drain(momConn))

	require.NoError(t, h.send(dadConn, map[string]any{"t": proto.TagMove, "from": 1}))
	move := mustFrame(t, momConn, proto.TagMove)
	assert.EqualValues(t, 1, move["from"])
}

func TestEndDeclaresSenderWinner(t *testing.T) {
	hook := newRecordingHook()
	h := newHarness(t, WithGameOverHook(hook))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.hub.Run(ctx)

	room, mom, dad, momConn, dadConn := h.play()

	require.NoError(t, h.send(dadConn, map[string]any{"t": proto.TagEnd, "n": map[string]any{"score": 3}}))

	win := mustFrame(t, dadConn, proto.TagEnd)
	lose := mustFrame(t, momConn, proto.TagEnd)
	assert.Equal(t, true, win["w"])
	assert.Equal(t, false, lose["w"])

	result := hook.wait(t)
	assert.Equal(t, room.ID, result.RoomID)
	assert.Equal(t, dad.ID, result.WinnerID)
	assert.Equal(t, mom.ID, result.LoserID)
	assert.JSONEq(t, `{"score":3}`, string(result.Note))
	assert.Equal(t, h.clock.Now(), result.EndedAt)

	// The room stays open after an end.
	assert.Equal(t, StatePlaying, momConn.State())
	assert.Nil(t, dadConn.Err())
}

func TestEveryEndIsProcessed(t *testing.T) {
	h := newHarness(t)
	_, _, _, momConn, dadConn := h.play()

	require.NoError(t, h.send(momConn, map[string]any{"t": proto.TagEnd}))
	require.NoError(t, h.send(dadConn, map[string]any{"t": proto.TagEnd}))

	var momFlags, dadFlags []any
	for _, f := range drain(momConn) {
		momFlags = append(momFlags, f["w"])
	}
	for _, f := range drain(dadConn) {
		dadFlags = append(dadFlags, f["w"])
	}
	assert.Equal(t, []any{true, false}, momFlags)
	assert.Equal(t, []any{false, true}, dadFlags)
}

func TestUnknownTagsAreIgnoredWhilePlaying(t *testing.T) {
	h := newHarness(t)
	_, _, _, momConn, dadConn := h.play()

	require.NoError(t, h.send(momConn, map[string]any{"t": "emote", "e": "wave"}))
	require.NoError(t, h.send(momConn, map[string]any{"t": proto.TagKnock}))
	require.NoError(t, h.send(momConn, map[string]any{"t": proto.TagHi}))

	assert.Empty(t, drain(dadConn))
	assert.Equal(t, StatePlaying, momConn.State())
}

func TestRelayAfterTeardownFails(t *testing.T) {
	h := newHarness(t)
	room, _, _, momConn, dadConn := h.play()

	h.hub.DestroyRoom(room)

	err := h.send(momConn, map[string]any{"t": proto.TagMove})
	require.ErrorIs(t, err, ErrRoomClosed)
	assert.Empty(t, drain(dadConn))
}

func TestGameOverQueueDoesNotBlockRelay(t *testing.T) {
	hook := newRecordingHook()
	h := newHarness(t, WithGameOverHook(hook))
	_, _, _, momConn, dadConn := h.play()

	// Run is not started; the queue fills and further results are dropped.
	for range cap(h.hub.results) + 5 {
		require.NoError(t, momConn.Receive([]byte(`{"t":"end"}`)))
		drain(momConn)
		drain(dadConn)
	}
	assert.Len(t, h.hub.results, cap(h.hub.results))
}

func TestRelayToReattachedPeerFails(t *testing.T) {
	hook := newRecordingHook()
	h := newHarness(t, WithGameOverHook(hook))
	room, _, dad, momConn, oldDad := h.play()

	newDad := h.attach(room, dad)
	requireClosed(t, oldDad)

	err := h.send(momConn, map[string]any{"t": proto.TagMove, "from": 1})
	require.ErrorIs(t, err, ErrPeerUnavailable)
	requireClosed(t, momConn)

	// The unauthenticated socket never sees game frames and goes down with the room.
	assert.Empty(t, drain(newDad))
	requireClosed(t, newDad)
	assert.ErrorIs(t, newDad.Err(), ErrRoomClosed)
	_, ok := h.hub.LookupRoom(room.ID)
	assert.False(t, ok)
	assert.Empty(t, h.hub.results)
}

func TestEndToReattachedPeerIsNotRecorded(t *testing.T) {
	h := newHarness(t, WithGameOverHook(newRecordingHook()))
	room, _, dad, momConn, _ := h.play()
	newDad := h.attach(room, dad)

	err := h.send(momConn, map[string]any{"t": proto.TagEnd})
	require.ErrorIs(t, err, ErrPeerUnavailable)

	assert.Empty(t, drain(momConn))
	assert.Empty(t, drain(newDad))
	assert.Empty(t, h.hub.results)
}

func TestRelayWithClosedPeerDestroysSender(t *testing.T) {
	h := newHarness(t)
	room, _, dad, momConn, dadConn := h.play()

	// Dad stops reading: the frame that overflows its queue closes it while
	// the room is still registered.
	for range outboundBuffer + 1 {
		require.NoError(t, h.send(momConn, map[string]any{"t": proto.TagMove}))
	}
	requireClosed(t, dadConn)
	assert.Same(t, dadConn, h.hub.ConnectionOf(dad))
	_, ok := h.hub.LookupRoom(room.ID)
	require.True(t, ok)

	err := h.send(momConn, map[string]any{"t": proto.TagMove})
	require.ErrorIs(t, err, ErrPeerUnavailable)
	requireClosed(t, momConn)
	assert.ErrorIs(t, momConn.Err(), ErrPeerUnavailable)
	_, ok = h.hub.LookupRoom(room.ID)
	assert.False(t, ok)
}
