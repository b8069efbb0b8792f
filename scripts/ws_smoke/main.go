package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/duelsync-server/internal/auth"
	"github.com/vovakirdan/duelsync-server/internal/proto"
)

type frame map[string]any

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	apiAddr := flag.String("api", "http://localhost:3000", "REST API address")
	wsAddr := flag.String("ws", "ws://localhost:3001", "WebSocket address")
	timeout := flag.Duration("timeout", 15*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s := &smoke{api: *apiAddr, ws: *wsAddr}

	mom, err := s.register(ctx)
	if err != nil {
		return err
	}
	dad, err := s.register(ctx)
	if err != nil {
		return err
	}

	var created proto.RoomResult
	if err := s.get(ctx, s.signed("/room", mom, auth.ContextCreateRoom), &created); err != nil || !created.Q {
		return fmt.Errorf("create room: q=%v err=%v", created.Q, err)
	}
	var joined proto.RoomResult
	if err := s.get(ctx, s.signed("/room/"+created.ID, dad, auth.ContextJoinRoom), &joined); err != nil || !joined.Q {
		return fmt.Errorf("join room: q=%v err=%v", joined.Q, err)
	}
	log.Printf("room %s: mom=%s dad=%s", created.ID, mom.ID, dad.ID)

	momConn, err := s.connect(ctx, created.ID, mom)
	if err != nil {
		return fmt.Errorf("mom: %w", err)
	}
	defer momConn.Close(websocket.StatusNormalClosure, "bye")
	dadConn, err := s.connect(ctx, created.ID, dad)
	if err != nil {
		return fmt.Errorf("dad: %w", err)
	}
	defer dadConn.Close(websocket.StatusNormalClosure, "bye")

	steps := []struct {
		from, to *websocket.Conn
		send     frame
		expect   string
	}{
		{from: dadConn, to: momConn, send: frame{"t": proto.TagKnock, "n": "smoke"}, expect: proto.TagKnock},
		{from: momConn, to: dadConn, send: frame{"t": proto.TagBalls, "p": []int{1, 2, 3}}, expect: proto.TagBalls},
		{from: momConn, to: dadConn, send: frame{"t": proto.TagMove, "from": 0, "to": 1, "since": 0}, expect: proto.TagMove},
		{from: dadConn, to: momConn, send: frame{"t": proto.TagEnd, "n": "smoke"}, expect: proto.TagEnd},
	}
	for _, step := range steps {
		if err := wsjson.Write(ctx, step.from, step.send); err != nil {
			return fmt.Errorf("send %s: %w", step.send["t"], err)
		}
		got, err := read(ctx, step.to, step.expect)
		if err != nil {
			return err
		}
		fmt.Printf("Received %s: %v\n", step.expect, got)
	}

	if err := wsjson.Write(ctx, momConn, frame{"t": proto.TagBye}); err != nil {
		return fmt.Errorf("send bye: %w", err)
	}
	log.Println("smoke run complete")
	return nil
}

type smoke struct {
	api  string
	ws   string
	rice int
}

func (s *smoke) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.api+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *smoke) register(ctx context.Context) (proto.Registered, error) {
	var reg proto.Registered
	if err := s.get(ctx, "/hi", &reg); err != nil || !reg.Q {
		return reg, fmt.Errorf("register: q=%v err=%v", reg.Q, err)
	}
	return reg, nil
}

func (s *smoke) nextRice() string {
	s.rice++
	return strconv.Itoa(s.rice)
}

func (s *smoke) signed(path string, reg proto.Registered, op string) string {
	rice := s.nextRice()
	q := url.Values{}
	q.Set("id", reg.ID)
	q.Set("s", auth.Proof(reg.S, auth.Scope(op, rice)))
	q.Set("r", rice)
	return path + "?" + q.Encode()
}

// connect dials the room socket and runs the hi and clock sync exchange.
func (s *smoke) connect(ctx context.Context, roomID string, reg proto.Registered) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.ws+"/"+roomID+"/"+reg.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	rice := s.nextRice()
	hi := frame{"t": proto.TagHi, "r": rice, "s": auth.Proof(reg.S, auth.Scope(auth.ContextSocketJoin, rice))}
	if err := wsjson.Write(ctx, conn, hi); err != nil {
		return nil, fmt.Errorf("send hi: %w", err)
	}

	start := time.Now()
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
		switch f["t"] {
		case proto.TagTime:
			d := float64(time.Since(start).Milliseconds())
			if err := wsjson.Write(ctx, conn, frame{"t": proto.TagTime, "l": f["l"], "d": d, "c": f["c"]}); err != nil {
				return nil, fmt.Errorf("send time: %w", err)
			}
		case proto.TagReady:
			fmt.Printf("Ready: offset=%v ping=%v mom=%v\n", f["offset"], f["ping"], f["m"])
			return conn, nil
		default:
			return nil, fmt.Errorf("unexpected frame during sync: %v", f)
		}
	}
}

func read(ctx context.Context, conn *websocket.Conn, tag string) (frame, error) {
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		return nil, fmt.Errorf("read %s: %w", tag, err)
	}
	if f["t"] != tag {
		return nil, fmt.Errorf("expected %s, got %v", tag, f)
	}
	return f, nil
}
