package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/arena"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	maxMessage = 64 * 1024
)

// Arena is the part of the simulation a spectator connection talks to.
type Arena interface {
	Controls() chan<- arena.Control
	Watch() chan<- arena.WatchRequest
	Unwatch() chan<- string
}

type Server struct {
	arena Arena
	log   *log.Logger

	// FrameQueue is how many frames a slow watcher may lag before the
	// oldest is dropped.
	FrameQueue int

	upgrader websocket.Upgrader
}

func NewServer(a Arena, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		arena:      a,
		log:        logger,
		FrameQueue: 4,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessage)

		sessionID := uuid.NewString()
		frames := make(chan []byte, s.FrameQueue)
		welcome, ok := s.register(r.Context(), sessionID, frames)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "arena unavailable"), time.Now().Add(time.Second))
			return
		}
		defer s.unwatch(sessionID)

		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		s.log.Printf("session %s: watching match %s", sessionID, welcome.MatchID)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Replies to controls; never dropped, unlike frames.
		replies := make(chan []byte, 16)

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-replies:
				case b = <-frames:
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						cancel()
						return
					}
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if e := s.handleMessage(ctx, msg); e != nil {
				b, _ := json.Marshal(e)
				select {
				case replies <- b:
				case <-ctx.Done():
				}
			}
			if ctx.Err() != nil {
				break
			}
		}
		s.log.Printf("session %s: closed", sessionID)
	}
}

func (s *Server) register(ctx context.Context, sessionID string, frames chan []byte) (protocol.WelcomeMsg, bool) {
	resp := make(chan protocol.WelcomeMsg, 1)
	timeout := time.NewTimer(5 * time.Second)
	defer timeout.Stop()
	select {
	case s.arena.Watch() <- arena.WatchRequest{SessionID: sessionID, Out: frames, Resp: resp}:
	case <-ctx.Done():
		return protocol.WelcomeMsg{}, false
	case <-timeout.C:
		return protocol.WelcomeMsg{}, false
	}
	select {
	case w := <-resp:
		return w, true
	case <-ctx.Done():
	case <-timeout.C:
	}
	// Registered but never answered; make sure the arena forgets us.
	s.unwatch(sessionID)
	return protocol.WelcomeMsg{}, false
}

func (s *Server) unwatch(sessionID string) {
	select {
	case s.arena.Unwatch() <- sessionID:
	case <-time.After(time.Second):
		s.log.Printf("session %s: unwatch dropped", sessionID)
	}
}

// handleMessage applies one client message and returns the ERROR to send
// back, if any.
func (s *Server) handleMessage(ctx context.Context, msg []byte) *protocol.ErrorMsg {
	fail := func(code, text string) *protocol.ErrorMsg {
		e := protocol.NewError(code, text)
		return &e
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fail(protocol.ErrProtoBadRequest, "malformed message")
	}
	if base.Type != protocol.TypeControl {
		return fail(protocol.ErrProtoBadRequest, "expected CONTROL")
	}
	if base.ProtocolVersion != protocol.Version {
		return fail(protocol.ErrProtoVersion, "bad protocol_version")
	}
	var m protocol.ControlMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return fail(protocol.ErrProtoBadRequest, "malformed CONTROL")
	}

	c := arena.ControlFromMsg(m)
	// Camera updates stream at frame rate; don't wait on each one.
	if m.Action != protocol.ActionCamera {
		c.Resp = make(chan error, 1)
	}
	select {
	case s.arena.Controls() <- c:
	default:
		return fail(protocol.ErrArenaBusy, "control queue full")
	}
	if c.Resp == nil {
		return nil
	}

	timeout := time.NewTimer(2 * time.Second)
	defer timeout.Stop()
	select {
	case err := <-c.Resp:
		if err == nil {
			return nil
		}
		return fail(errorCode(err), err.Error())
	case <-timeout.C:
		return fail(protocol.ErrArenaBusy, "control not applied")
	case <-ctx.Done():
		return nil
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, arena.ErrInvalidTransition):
		return protocol.ErrBadTransition
	case errors.Is(err, arena.ErrConfigFrozen):
		return protocol.ErrConfigFrozen
	case errors.Is(err, arena.ErrUnknownAction), errors.Is(err, arena.ErrBadCamera):
		return protocol.ErrBadAction
	}
	return protocol.ErrInternal
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
