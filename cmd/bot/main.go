package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"livestock.tv/internal/protocol"
)

// bot drives an arena without a terminal: it connects, starts the match,
// optionally turns on debug spawns, then sweeps the camera and fires until
// someone wins. Useful for soak runs of a server with -no_chat.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		channel = flag.String("channel", "", "chat channel for CONNECT")
		spawn   = flag.Duration("spawn", 3*time.Second, "hold DEBUG_SPAWN this long after START (0: off)")
		every   = flag.Int("fire_every", 45, "fire every N frames")
		restart = flag.Bool("restart", false, "RESTART and play again after a match ends")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{conn: conn, log: logger, channel: *channel, spawnFor: *spawn, fireEvery: uint64(*every), restart: *restart}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s match=%s state=%s tick_rate=%d", w.SessionID, w.MatchID, w.State, w.TickRateHz)
			b.onState(w.State)

		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}
			b.onFrame(&f)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s %s", e.Code, e.Message)
			}
		}
	}
}

type bot struct {
	conn      *websocket.Conn
	log       *log.Logger
	channel   string
	spawnFor  time.Duration
	fireEvery uint64
	restart   bool

	state   string
	yaw     float64
	spawnAt time.Time
	firing  bool
}

func (b *bot) send(m protocol.ControlMsg) {
	m.Type = protocol.TypeControl
	m.ProtocolVersion = protocol.Version
	if err := b.conn.WriteJSON(m); err != nil {
		b.log.Printf("send %s: %v", m.Action, err)
	}
}

func (b *bot) onState(state string) {
	if state == b.state {
		return
	}
	b.state = state
	switch state {
	case protocol.StateStart:
		b.send(protocol.ControlMsg{Action: protocol.ActionConnect, Channel: b.channel})
	case protocol.StateConnected:
		b.send(protocol.ControlMsg{Action: protocol.ActionStart})
	case protocol.StateSpectating:
		if b.spawnFor > 0 {
			b.spawnAt = time.Now()
			b.send(protocol.ControlMsg{Action: protocol.ActionDebugSpawn, Pressed: true})
		}
	}
}

func (b *bot) onFrame(f *protocol.FrameMsg) {
	for _, e := range f.Effects {
		switch e.Kind {
		case protocol.EffectDestroy:
			if e.Name != "" {
				b.log.Printf("tick=%d %s out (%s)", f.Tick, e.Name, e.Cause)
			}
		case protocol.EffectNotice:
			b.log.Printf("tick=%d NOTICE %s", f.Tick, e.Message)
		case protocol.EffectState:
			if e.State == protocol.StateEnd {
				b.log.Printf("tick=%d match %s over, winner=%q", f.Tick, f.MatchID, e.Winner)
				if b.restart {
					b.send(protocol.ControlMsg{Action: protocol.ActionRestart})
				}
			}
		}
	}
	b.onState(f.State)
	if f.State != protocol.StateSpectating {
		return
	}

	if !b.spawnAt.IsZero() && time.Since(b.spawnAt) > b.spawnFor {
		b.spawnAt = time.Time{}
		b.send(protocol.ControlMsg{Action: protocol.ActionDebugSpawn})
		b.log.Printf("tick=%d %d agents spawned", f.Tick, len(f.Agents))
	}

	// Sweep the camera slowly back and forth across the arena.
	if f.Tick%10 == 0 {
		b.yaw = 0.6 * math.Sin(float64(f.Tick)/300)
		s, c := math.Sincos(b.yaw / 2)
		b.send(protocol.ControlMsg{
			Action: protocol.ActionCamera,
			Pos:    protocol.Vec3(0, 10, 300),
			Rot:    &[4]float64{0, s, 0, c},
		})
	}

	if b.fireEvery == 0 {
		return
	}
	switch {
	case b.firing:
		b.firing = false
		b.send(protocol.ControlMsg{Action: protocol.ActionFire})
	case f.Tick%b.fireEvery == 0 && len(f.Agents) > 0 && rand.Intn(3) > 0:
		b.firing = true
		b.send(protocol.ControlMsg{Action: protocol.ActionFire, Pressed: true})
	}
}
