package arena

import (
	"context"
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/chat"
	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/physics"
)

var (
	ErrInvalidTransition = errors.New("arena: invalid state transition")
	ErrConfigFrozen      = errors.New("arena: match config is frozen")
	ErrUnknownAction     = errors.New("arena: unknown control action")
	ErrBadCamera         = errors.New("arena: camera transform is not finite")
)

type AgentID uint64

// Agent is a live chat-spawned body. It exists exactly as long as its name is
// in the Registry.
type Agent struct {
	ID        AgentID
	Name      string
	Body      physics.BodyID
	MaxSpeed  float64
	SpawnTick uint64
}

type Projectile struct {
	Body      physics.BodyID
	SpawnTick uint64
}

// Substrate is the rigid-body world the arena drives. physics.World
// implements it.
type Substrate interface {
	Spawn(spec physics.BodySpec) physics.BodyID
	Despawn(id physics.BodyID)
	Transform(id physics.BodyID) (physics.Transform, bool)
	SetRotation(id physics.BodyID, rot mgl64.Quat) bool
	LinearVelocity(id physics.BodyID) (mgl64.Vec3, bool)
	SetLinearVelocity(id physics.BodyID, v mgl64.Vec3) bool
	Step(dt float64) []physics.CollisionStarted
}

// ChatListener connects to a chat channel and feeds q until ctx is cancelled.
// Listen must return immediately. chat.Bridge implements it.
type ChatListener interface {
	Listen(ctx context.Context, channel string, q *chat.Queue)
}

// TickLogger receives one entry for every tick that changed something
// observable. Implemented in internal/persistence/*.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	MatchID    string            `json:"match_id"`
	Tick       uint64            `json:"tick"`
	Time       time.Time         `json:"time"`
	TickRateHz int               `json:"tick_rate_hz"`
	State      string            `json:"state"`
	Chat       []RecordedChat    `json:"chat,omitempty"`
	Controls   []RecordedControl `json:"controls,omitempty"`
	Effects    []protocol.Effect `json:"effects,omitempty"`
	Population int               `json:"population"`
	Digest     string            `json:"digest"`
}

type RecordedChat struct {
	Sender  string   `json:"sender"`
	Text    string   `json:"text"`
	Spawned []string `json:"spawned,omitempty"`
}

type RecordedControl struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	Pressed bool   `json:"pressed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Control is an operator input, applied at the start of the next tick.
type Control struct {
	Action  string
	Channel string
	Pressed bool
	Camera  *physics.Transform
	Config  *protocol.MatchConfigPatch
	// Resp, if non-nil, receives the outcome once the control is applied.
	// It must be buffered.
	Resp chan error
}

// ControlFromMsg converts a wire CONTROL message.
func ControlFromMsg(m protocol.ControlMsg) Control {
	c := Control{
		Action:  m.Action,
		Channel: m.Channel,
		Pressed: m.Pressed,
		Config:  m.Config,
	}
	if m.Pos != nil && m.Rot != nil {
		c.Camera = &physics.Transform{
			Pos: mgl64.Vec3{m.Pos[0], m.Pos[1], m.Pos[2]},
			Rot: mgl64.Quat{W: m.Rot[3], V: mgl64.Vec3{m.Rot[0], m.Rot[1], m.Rot[2]}},
		}
	}
	return c
}

type WatchRequest struct {
	SessionID string
	Out       chan []byte
	Resp      chan protocol.WelcomeMsg
}

// Status is a lock-free snapshot of the arena for HTTP handlers.
type Status struct {
	MatchID    string  `json:"match_id"`
	State      string  `json:"state"`
	Tick       uint64  `json:"tick"`
	Population int     `json:"population"`
	Winner     string  `json:"winner,omitempty"`
	Watchers   int     `json:"watchers"`
	ChatQueue  int     `json:"chat_queue"`
	ChatDrops  uint64  `json:"chat_drops"`
	StepMS     float64 `json:"step_ms"`
}
