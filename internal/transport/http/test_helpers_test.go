package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/auth"
	"github.com/vovakirdan/duelsync-server/internal/config"
	"github.com/vovakirdan/duelsync-server/internal/core"
	"github.com/vovakirdan/duelsync-server/internal/proto"
)

type testServers struct {
	hub *core.Hub
	api *httptest.Server
	ws  *httptest.Server
}

var riceCounter atomic.Int64

// startTestServers runs the API and WS handlers on a fresh hub.
func startTestServers(t *testing.T, history MatchHistory, opts ...core.Option) *testServers {
	t.Helper()

	disabledLogger := zerolog.New(nil)
	hub := core.NewHub(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.WSAddr = ":0"
	cfg.ReadHeaderTimeout = time.Second

	api := httptest.NewServer(NewAPIServer(hub, history, &cfg, &disabledLogger).Handler)
	ws := httptest.NewServer(NewWSServer(hub, &cfg, &disabledLogger).Handler)
	t.Cleanup(api.Close)
	t.Cleanup(ws.Close)

	return &testServers{hub: hub, api: api, ws: ws}
}

func getJSON(t *testing.T, rawURL string, out any) int {
	t.Helper()

	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s failed: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", rawURL, err)
		}
	}
	return resp.StatusCode
}

// register calls /hi and returns the issued credentials.
func (s *testServers) register(t *testing.T) proto.Registered {
	t.Helper()

	var reg proto.Registered
	if code := getJSON(t, s.api.URL+"/hi", &reg); code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !reg.Q || reg.ID == "" || reg.S == "" {
		t.Fatalf("unexpected register response: %+v", reg)
	}
	return reg
}

// signed builds path?id&s&r with a proof scoped to op.
func signed(path string, reg proto.Registered, op string) string {
	rice := strconv.FormatInt(riceCounter.Add(1), 10)
	q := url.Values{}
	q.Set("id", reg.ID)
	q.Set("s", auth.Proof(reg.S, auth.Scope(op, rice)))
	q.Set("r", rice)
	return path + "?" + q.Encode()
}

func (s *testServers) createRoom(t *testing.T, reg proto.Registered) string {
	t.Helper()

	var res proto.RoomResult
	getJSON(t, s.api.URL+signed("/room", reg, auth.ContextCreateRoom), &res)
	if !res.Q || len(res.ID) != 6 {
		t.Fatalf("unexpected create room response: %+v", res)
	}
	return res.ID
}

func (s *testServers) joinRoom(t *testing.T, reg proto.Registered, roomID string) proto.RoomResult {
	t.Helper()

	var res proto.RoomResult
	getJSON(t, s.api.URL+signed("/room/"+roomID, reg, auth.ContextJoinRoom), &res)
	return res
}

func (s *testServers) wsURL(roomID, clientID string) string {
	return strings.Replace(s.ws.URL, "http", "ws", 1) + "/" + roomID + "/" + clientID
}
