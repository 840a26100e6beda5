package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"livestock.tv/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "arena ws url")
		channel = flag.String("channel", "", "chat channel for CONNECT (default: server's)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[console] ", log.LstdFlags|log.Lmicroseconds)
	c, err := dial(*url)
	if err != nil {
		logger.Fatalf("dial %s: %v", *url, err)
	}
	defer c.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		logger.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		logger.Fatalf("screen init: %v", err)
	}
	screen.SetStyle(styleDefault)

	err = run(screen, c, keys{channel: strings.TrimPrefix(strings.TrimSpace(*channel), "#")})
	screen.Fini()
	if err != nil {
		fmt.Fprintln(os.Stderr, "console:", err)
		os.Exit(1)
	}
}

// run is the UI loop: terminal events and server messages both land here.
func run(screen tcell.Screen, c *client, k keys) error {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	v := newView()
	release := make(chan protocol.ControlMsg, 4)
	render(screen, v)
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				screen.Sync()
			case *tcell.EventKey:
				out, quit := k.handle(ev, v)
				if quit {
					return nil
				}
				for _, m := range out {
					if err := c.Send(m); err != nil {
						return err
					}
					if m.Action == protocol.ActionFire && m.Pressed {
						time.AfterFunc(fireRelease*time.Millisecond, func() {
							release <- protocol.ControlMsg{Action: protocol.ActionFire}
						})
					}
				}
			}
		case m := <-release:
			if err := c.Send(m); err != nil {
				return err
			}
			continue
		case in, ok := <-c.Inbox:
			if !ok {
				return fmt.Errorf("connection closed")
			}
			switch m := in.(type) {
			case protocol.WelcomeMsg:
				v.applyWelcome(m)
			case protocol.FrameMsg:
				v.applyFrame(m)
			case protocol.ErrorMsg:
				v.applyError(m)
			case error:
				return m
			}
		}
		render(screen, v)
	}
}

type keys struct {
	channel string
}

// handle maps one key press onto the controls it sends. FIRE only reports
// the press; the caller schedules the release.
func (k keys) handle(ev *tcell.EventKey, v *view) (out []protocol.ControlMsg, quit bool) {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return nil, true
	case tcell.KeyLeft:
		v.turn(1)
		return []protocol.ControlMsg{v.cameraControl()}, false
	case tcell.KeyRight:
		v.turn(-1)
		return []protocol.ControlMsg{v.cameraControl()}, false
	case tcell.KeyUp:
		v.move(1)
		return []protocol.ControlMsg{v.cameraControl()}, false
	case tcell.KeyDown:
		v.move(-1)
		return []protocol.ControlMsg{v.cameraControl()}, false
	case tcell.KeyRune:
	default:
		return nil, false
	}

	switch ev.Rune() {
	case 'q', 'Q':
		return nil, true
	case 'c', 'C':
		return []protocol.ControlMsg{{Action: protocol.ActionConnect, Channel: k.channel}}, false
	case 's', 'S':
		return []protocol.ControlMsg{{Action: protocol.ActionStart}}, false
	case ' ':
		return []protocol.ControlMsg{{Action: protocol.ActionFire, Pressed: true}}, false
	case 'd', 'D':
		v.DebugSpawn = !v.DebugSpawn
		return []protocol.ControlMsg{{Action: protocol.ActionDebugSpawn, Pressed: v.DebugSpawn}}, false
	case 'r', 'R':
		v.DebugSpawn = false
		return []protocol.ControlMsg{{Action: protocol.ActionRestart}}, false
	}
	return nil, false
}
