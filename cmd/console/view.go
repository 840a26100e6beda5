package main

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/arena"
	"livestock.tv/internal/sim/physics"
)

const (
	maxNotices  = 6
	cameraStep  = 5.0
	cameraTurn  = math.Pi / 36 // 5 degrees
	fireRelease = 100          // ms; terminals report no key-up
)

// view is everything the console draws. It is only touched from the UI
// goroutine.
type view struct {
	SessionID  string
	MatchID    string
	State      string
	Tick       uint64
	TickRateHz int
	HalfExtent float64
	Winner     string

	Agents      []protocol.AgentView
	Projectiles []protocol.ProjectileView

	Camera     physics.Transform
	DebugSpawn bool
	Notices    []string
	Eliminated int
	Shots      int
}

func newView() *view {
	return &view{State: protocol.StateStart, HalfExtent: 300, Camera: arena.DefaultCamera}
}

func (v *view) applyWelcome(w protocol.WelcomeMsg) {
	v.SessionID = w.SessionID
	v.MatchID = w.MatchID
	v.State = w.State
	v.TickRateHz = w.TickRateHz
	if w.ArenaHalfExtent > 0 {
		v.HalfExtent = w.ArenaHalfExtent
	}
}

func (v *view) applyFrame(f protocol.FrameMsg) {
	if f.MatchID != v.MatchID {
		// RESTART: a fresh match starts from a clean slate.
		v.MatchID = f.MatchID
		v.Winner = ""
		v.Eliminated = 0
		v.Shots = 0
		v.DebugSpawn = false
	}
	v.Tick = f.Tick
	v.State = f.State
	v.Winner = f.Winner
	v.Agents = f.Agents
	v.Projectiles = f.Projectiles
	sort.Slice(v.Agents, func(i, j int) bool { return v.Agents[i].Name < v.Agents[j].Name })

	for _, e := range f.Effects {
		switch e.Kind {
		case protocol.EffectSpawn:
			if e.Name == "" {
				v.Shots++
			}
		case protocol.EffectDestroy:
			if e.Name != "" {
				v.Eliminated++
				v.notice(fmt.Sprintf("%s %s", e.Name, causeText(e.Cause)))
			}
		case protocol.EffectState:
			if e.State == protocol.StateEnd && e.Winner != "" {
				v.Winner = e.Winner
			}
		case protocol.EffectNotice:
			v.notice(e.Message)
		}
	}
}

func (v *view) applyError(e protocol.ErrorMsg) {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	v.notice(msg)
}

func (v *view) notice(s string) {
	v.Notices = append(v.Notices, s)
	if len(v.Notices) > maxNotices {
		v.Notices = v.Notices[len(v.Notices)-maxNotices:]
	}
}

// Banner is the big centred line: the winner once there is one.
func (v *view) Banner() string {
	if v.Winner != "" {
		return v.Winner + " WON"
	}
	if v.State == protocol.StateEnd {
		return "NO WINNER"
	}
	return ""
}

func causeText(cause string) string {
	switch cause {
	case protocol.CauseToppled:
		return "toppled over"
	case protocol.CauseOutOfBounds:
		return "left the arena"
	case "":
		return "was eliminated"
	}
	return "was eliminated (" + cause + ")"
}

func (v *view) turn(dir float64) { v.Camera = v.Camera.RotateY(dir * cameraTurn) }

// move slides the camera along its forward axis, flattened to the ground
// plane so arrow keys never change its height.
func (v *view) move(dir float64) {
	fwd := v.Camera.Forward()
	flat := mgl64.Vec3{fwd.X(), 0, fwd.Z()}
	if flat.Len() < 1e-9 {
		return
	}
	v.Camera.Pos = v.Camera.Pos.Add(flat.Normalize().Mul(dir * cameraStep))
}

// cameraControl is the CAMERA message for the current viewpoint.
func (v *view) cameraControl() protocol.ControlMsg {
	r := v.Camera.Rot
	return protocol.ControlMsg{
		Action: protocol.ActionCamera,
		Pos:    protocol.Vec3(v.Camera.Pos.X(), v.Camera.Pos.Y(), v.Camera.Pos.Z()),
		Rot:    &[4]float64{r.V.X(), r.V.Y(), r.V.Z(), r.W},
	}
}

// project maps an arena position (x, z) onto a w×h character grid seen from
// above, +X to the right and -Z up. ok is false outside the arena square.
func (v *view) project(x, z float64, w, h int) (col, row int, ok bool) {
	if w <= 0 || h <= 0 || v.HalfExtent <= 0 {
		return 0, 0, false
	}
	he := v.HalfExtent
	if x < -he || x > he || z < -he || z > he {
		return 0, 0, false
	}
	col = int((x + he) / (2 * he) * float64(w))
	row = int((z + he) / (2 * he) * float64(h))
	if col >= w {
		col = w - 1
	}
	if row >= h {
		row = h - 1
	}
	return col, row, true
}

// glyph picks a marker for an agent from its name and how far it leans.
func glyph(a protocol.AgentView) rune {
	rot := mgl64.Quat{W: a.Rot[3], V: mgl64.Vec3{a.Rot[0], a.Rot[1], a.Rot[2]}}
	if rot.Len() > 0 && rot.Normalize().Rotate(mgl64.Vec3{0, 1, 0}).Y() < 0.5 {
		return 'x'
	}
	for _, r := range a.Name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
	}
	return '@'
}
