package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/arena"
	"livestock.tv/internal/sim/tuning"
)

func startArena(t *testing.T) *arena.Arena {
	t.Helper()
	tune := tuning.Defaults()
	tune.TickRateHz = 100
	a := arena.New(tune, arena.Options{Seed: 5})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a
}

func dial(t *testing.T, a Arena) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(a, nil).Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads until a message of the given type arrives.
func next(t *testing.T, conn *websocket.Conn, typ string, match func([]byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("bad message %s: %v", b, err)
		}
		if base.Type == typ && (match == nil || match(b)) {
			return b
		}
	}
}

func control(t *testing.T, conn *websocket.Conn, m protocol.ControlMsg) {
	t.Helper()
	m.Type = protocol.TypeControl
	if m.ProtocolVersion == "" {
		m.ProtocolVersion = protocol.Version
	}
	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func errorCodeIs(code string) func([]byte) bool {
	return func(b []byte) bool {
		var e protocol.ErrorMsg
		_ = json.Unmarshal(b, &e)
		return e.Code == code
	}
}

func TestServer_WelcomeThenFrames(t *testing.T) {
	a := startArena(t)
	conn := dial(t, a)

	var w protocol.WelcomeMsg
	if err := json.Unmarshal(next(t, conn, protocol.TypeWelcome, nil), &w); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if w.SessionID == "" || w.MatchID == "" || w.State != protocol.StateStart || w.ArenaHalfExtent != 300 {
		t.Fatalf("welcome=%+v", w)
	}

	control(t, conn, protocol.ControlMsg{Action: protocol.ActionStart})
	control(t, conn, protocol.ControlMsg{Action: protocol.ActionDebugSpawn, Pressed: true})
	b := next(t, conn, protocol.TypeFrame, func(b []byte) bool {
		var f protocol.FrameMsg
		_ = json.Unmarshal(b, &f)
		return f.State == protocol.StateSpectating && len(f.Agents) > 0
	})
	var f protocol.FrameMsg
	_ = json.Unmarshal(b, &f)
	if f.MatchID != w.MatchID || !strings.HasPrefix(f.Agents[0].Name, "mrrow") {
		t.Fatalf("frame=%+v", f)
	}
}

func TestServer_ControlErrors(t *testing.T) {
	a := startArena(t)
	conn := dial(t, a)
	next(t, conn, protocol.TypeWelcome, nil)

	control(t, conn, protocol.ControlMsg{Action: protocol.ActionStart})
	control(t, conn, protocol.ControlMsg{Action: protocol.ActionStart})
	next(t, conn, protocol.TypeError, errorCodeIs(protocol.ErrBadTransition))

	n := 2
	control(t, conn, protocol.ControlMsg{Action: protocol.ActionConfigure, Config: &protocol.MatchConfigPatch{AgentsPerParticipant: &n}})
	next(t, conn, protocol.TypeError, errorCodeIs(protocol.ErrConfigFrozen))

	control(t, conn, protocol.ControlMsg{Action: "JUMP"})
	next(t, conn, protocol.TypeError, errorCodeIs(protocol.ErrBadAction))

	control(t, conn, protocol.ControlMsg{Action: protocol.ActionStart, ProtocolVersion: "0.1"})
	next(t, conn, protocol.TypeError, errorCodeIs(protocol.ErrProtoVersion))

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO","protocol_version":"1.0"}`))
	next(t, conn, protocol.TypeError, errorCodeIs(protocol.ErrProtoBadRequest))

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	next(t, conn, protocol.TypeError, errorCodeIs(protocol.ErrProtoBadRequest))
}

func TestServer_DisconnectUnwatches(t *testing.T) {
	a := startArena(t)
	conn := dial(t, a)
	next(t, conn, protocol.TypeWelcome, nil)
	waitWatchers(t, a, 1)
	_ = conn.Close()
	waitWatchers(t, a, 0)
}

func waitWatchers(t *testing.T, a *arena.Arena, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for a.Status().Watchers != n {
		if time.Now().After(deadline) {
			t.Fatalf("watchers=%d want %d", a.Status().Watchers, n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// stalledArena accepts requests but never runs a tick.
type stalledArena struct {
	controls chan arena.Control
	watch    chan arena.WatchRequest
	unwatch  chan string
}

func (s *stalledArena) Controls() chan<- arena.Control   { return s.controls }
func (s *stalledArena) Watch() chan<- arena.WatchRequest { return s.watch }
func (s *stalledArena) Unwatch() chan<- string           { return s.unwatch }

func TestServer_BusyArena(t *testing.T) {
	stalled := &stalledArena{
		controls: make(chan arena.Control),
		watch:    make(chan arena.WatchRequest, 1),
		unwatch:  make(chan string, 1),
	}
	go func() {
		req := <-stalled.watch
		req.Resp <- protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: req.SessionID}
	}()
	conn := dial(t, stalled)
	next(t, conn, protocol.TypeWelcome, nil)
	control(t, conn, protocol.ControlMsg{Action: protocol.ActionStart})
	next(t, conn, protocol.TypeError, errorCodeIs(protocol.ErrArenaBusy))
}
