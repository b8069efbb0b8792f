package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/vovakirdan/duelsync-server/internal/auth"
	"github.com/vovakirdan/duelsync-server/internal/proto"
	"github.com/vovakirdan/duelsync-server/internal/store"
)

func TestPairingOverREST(t *testing.T) {
	s := startTestServers(t, nil)

	a := s.register(t)
	b := s.register(t)
	c := s.register(t)

	roomID := s.createRoom(t, a)

	res := s.joinRoom(t, b, roomID)
	if !res.Q || res.ID != roomID {
		t.Fatalf("expected b to join %s, got %+v", roomID, res)
	}

	res = s.joinRoom(t, c, roomID)
	if res.Q {
		t.Fatalf("expected third client to be rejected, got %+v", res)
	}

	room, ok := s.hub.LookupRoom(roomID)
	if !ok {
		t.Fatal("room should still exist")
	}
	if room.Dad().ID != b.ID {
		t.Errorf("expected dad %s, got %s", b.ID, room.Dad().ID)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	s := startTestServers(t, nil)
	a := s.register(t)

	res := s.joinRoom(t, a, "000000")
	if res.Q {
		t.Fatalf("expected join of unknown room to fail, got %+v", res)
	}
}

func TestCreateRoomRejectsWrongProof(t *testing.T) {
	s := startTestServers(t, nil)
	a := s.register(t)

	var res proto.RoomResult
	// A proof for renew must not create a room.
	getJSON(t, s.api.URL+signed("/room", a, auth.ContextRenewClient), &res)
	if res.Q {
		t.Fatalf("expected create room to fail, got %+v", res)
	}

	getJSON(t, s.api.URL+"/room?id="+a.ID, &res)
	if res.Q {
		t.Fatalf("expected create room without proof to fail, got %+v", res)
	}
}

func TestRenewAndUnregister(t *testing.T) {
	s := startTestServers(t, nil)
	a := s.register(t)

	var res proto.Result
	getJSON(t, s.api.URL+signed("/plz", a, auth.ContextRenewClient), &res)
	if !res.Q {
		t.Fatal("expected renew to succeed")
	}

	getJSON(t, s.api.URL+signed("/plz", proto.Registered{ID: "ghost", S: "x"}, auth.ContextRenewClient), &res)
	if res.Q {
		t.Fatal("expected renew of unknown client to fail")
	}

	getJSON(t, s.api.URL+signed("/bye", a, auth.ContextCreateRoom), &res)
	if res.Q {
		t.Fatal("expected unregister with wrong proof to fail")
	}

	getJSON(t, s.api.URL+signed("/bye", a, auth.ContextUnregisterClient), &res)
	if !res.Q {
		t.Fatal("expected unregister to succeed")
	}
	if _, ok := s.hub.Lookup(a.ID); ok {
		t.Fatal("client should be gone")
	}

	// Unknown clients are already gone.
	getJSON(t, s.api.URL+signed("/bye", a, auth.ContextUnregisterClient), &res)
	if !res.Q {
		t.Fatal("expected unregister of unknown client to succeed")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServers(t, nil)
	s.register(t)

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if code := getJSON(t, s.api.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("unexpected status: %d", code)
	}
	if body.Status != "ok" || body.Clients != 1 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestRootIsBadRequest(t *testing.T) {
	s := startTestServers(t, nil)

	if code := getJSON(t, s.api.URL+"/", nil); code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := startTestServers(t, nil)

	req, err := http.NewRequest(http.MethodOptions, s.api.URL+"/hi", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Origin", "https://game.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allow origin *, got %q", got)
	}
}

type stubHistory struct {
	matches []*store.Match
	err     error
	limit   int
	roomID  string
}

func (s *stubHistory) History(_ context.Context, _ string, limit int) ([]*store.Match, error) {
	s.limit = limit
	return s.matches, s.err
}

func (s *stubHistory) RoomHistory(_ context.Context, roomID string, limit int) ([]*store.Match, error) {
	s.roomID = roomID
	s.limit = limit
	return s.matches, s.err
}

func TestHistory(t *testing.T) {
	endedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	history := &stubHistory{matches: []*store.Match{
		{ID: 2, RoomID: "111111", WinnerID: "b", LoserID: "a", EndedAt: endedAt},
		{ID: 1, RoomID: "111111", WinnerID: "a", LoserID: "b", Note: json.RawMessage(`{"score":3}`), EndedAt: endedAt},
	}}
	s := startTestServers(t, history)

	var records []proto.MatchRecord
	if code := getJSON(t, s.api.URL+"/history/a?limit=5", &records); code != http.StatusOK {
		t.Fatalf("unexpected status: %d", code)
	}
	if history.limit != 5 {
		t.Errorf("expected limit 5, got %d", history.limit)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Won == nil || records[1].Won == nil || *records[0].Won || !*records[1].Won {
		t.Errorf("unexpected won flags: %+v", records)
	}
	if string(records[1].Note) != `{"score":3}` {
		t.Errorf("unexpected note %s", records[1].Note)
	}

	if code := getJSON(t, s.api.URL+"/history/a?limit=nope", nil); code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad limit, got %d", code)
	}

	history.err = errors.New("db down")
	if code := getJSON(t, s.api.URL+"/history/a", nil); code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	s := startTestServers(t, nil)

	if code := getJSON(t, s.api.URL+"/history/a", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", code)
	}
	if code := getJSON(t, s.api.URL+"/room/111111/history", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 for room history, got %d", code)
	}
}

func TestRoomHistory(t *testing.T) {
	endedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	history := &stubHistory{matches: []*store.Match{
		{ID: 1, RoomID: "111111", WinnerID: "a", LoserID: "b", EndedAt: endedAt},
	}}
	s := startTestServers(t, history)

	var records []proto.MatchRecord
	if code := getJSON(t, s.api.URL+"/room/111111/history", &records); code != http.StatusOK {
		t.Fatalf("unexpected status: %d", code)
	}
	if history.roomID != "111111" || history.limit != 20 {
		t.Errorf("unexpected query room=%q limit=%d", history.roomID, history.limit)
	}
	if len(records) != 1 || records[0].WinnerID != "a" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Won != nil {
		t.Errorf("room history must not carry a won flag")
	}

	if code := getJSON(t, s.api.URL+"/room/111111/history?limit=0", nil); code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad limit, got %d", code)
	}

	history.err = errors.New("db down")
	if code := getJSON(t, s.api.URL+"/room/111111/history", nil); code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", code)
	}
}
