package arena

import (
	"context"
	"io"
	"log"
	"math/rand"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oklog/ulid/v2"

	"livestock.tv/internal/chat"
	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/physics"
	"livestock.tv/internal/sim/tuning"
)

// Agent collider: a box for the body plus a head sphere in front of it.
var (
	agentHalfExtents = mgl64.Vec3{0.75, 1.75, 1.5}
	agentHead        = physics.Sphere{Offset: mgl64.Vec3{0, 1, -1.5}, Radius: 1}
)

// DefaultCamera is where the viewer starts: above the +Z fence looking
// toward -Z.
var DefaultCamera = physics.NewTransform(mgl64.Vec3{0, 10, 300}, 0)

type Options struct {
	// Seed drives spawn placement and max speeds. Zero means seed 1.
	Seed   int64
	Logger *log.Logger
	// NewSubstrate builds the physics world for a fresh match. Defaults to
	// physics.NewWorld configured from the tuning.
	NewSubstrate func(t tuning.Tuning) Substrate
	// NewMatchID defaults to a fresh ULID.
	NewMatchID func() string
}

// Arena is the authoritative battle-royale simulation.
// All state must be accessed only from the arena loop goroutine.
type Arena struct {
	tune tuning.Tuning
	dt   float64
	log  *log.Logger
	rng  *rand.Rand

	newSubstrate func(t tuning.Tuning) Substrate
	newMatchID   func() string

	tick atomic.Uint64

	// Per-match state, replaced wholesale on restart.
	matchID     string
	match       tuning.Match
	state       MatchState
	winner      string
	phys        Substrate
	registry    *Registry
	byBody      map[physics.BodyID]*Agent
	projectiles map[physics.BodyID]*Projectile
	nextAgentID AgentID
	debugSeq    int
	peak        int

	chatQueue  *chat.Queue
	chatCancel context.CancelFunc
	chatBuf    []chat.Event

	camera      physics.Transform
	fireHeld    bool
	fireEdges   int
	debugHeld   bool
	baseCtx     context.Context
	listener    ChatListener
	tickLogger  TickLogger
	effects     []protocol.Effect
	recChat     []RecordedChat
	recControls []RecordedControl

	controls chan Control
	watch    chan WatchRequest
	unwatch  chan string
	stop     chan struct{}
	watchers map[string]chan []byte

	status atomic.Value // Status
}

func New(t tuning.Tuning, opts Options) *Arena {
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.NewSubstrate == nil {
		opts.NewSubstrate = func(t tuning.Tuning) Substrate { return physics.NewWorld(PhysicsConfig(t)) }
	}
	if opts.NewMatchID == nil {
		opts.NewMatchID = func() string { return ulid.Make().String() }
	}
	hz := t.TickRateHz
	if hz <= 0 {
		hz = tuning.Defaults().TickRateHz
		t.TickRateHz = hz
	}
	a := &Arena{
		tune:         t,
		dt:           1 / float64(hz),
		log:          opts.Logger,
		rng:          rand.New(rand.NewSource(opts.Seed)),
		newSubstrate: opts.NewSubstrate,
		newMatchID:   opts.NewMatchID,
		camera:       DefaultCamera,
		baseCtx:      context.Background(),
		controls:     make(chan Control, 256),
		watch:        make(chan WatchRequest, 64),
		unwatch:      make(chan string, 64),
		stop:         make(chan struct{}),
		watchers:     map[string]chan []byte{},
	}
	a.resetMatch()
	a.publishStatus(0)
	return a
}

// PhysicsConfig maps tuning onto the substrate's configuration.
func PhysicsConfig(t tuning.Tuning) physics.Config {
	return physics.Config{
		Gravity:          t.Physics.Gravity,
		GroundHalfExtent: t.Arena.HalfExtent,
		GroundHalfY:      t.Physics.GroundHalfY,
		TipSpeed:         t.Physics.TipSpeed,
		TipFactor:        t.Physics.TipFactor,
		AngularDrag:      t.Physics.AngularDrag,
		Restitution:      t.Physics.Restitution,
		GroundFriction:   t.Physics.GroundFriction,
	}
}

func (a *Arena) SetChatListener(l ChatListener) { a.listener = l }
func (a *Arena) SetTickLogger(l TickLogger)     { a.tickLogger = l }

func (a *Arena) Controls() chan<- Control   { return a.controls }
func (a *Arena) Watch() chan<- WatchRequest { return a.watch }
func (a *Arena) Unwatch() chan<- string     { return a.unwatch }
func (a *Arena) CurrentTick() uint64        { return a.tick.Load() }
func (a *Arena) TickRateHz() int            { return a.tune.TickRateHz }
func (a *Arena) Tuning() tuning.Tuning      { return a.tune }

// Status returns the snapshot published after the last tick. Safe to call
// from any goroutine.
func (a *Arena) Status() Status {
	s, _ := a.status.Load().(Status)
	return s
}

// Loop-owned accessors; tests and the loop goroutine only.

func (a *Arena) MatchID() string           { return a.matchID }
func (a *Arena) State() MatchState         { return a.state }
func (a *Arena) Winner() string            { return a.winner }
func (a *Arena) Registry() *Registry       { return a.registry }
func (a *Arena) Substrate() Substrate      { return a.phys }
func (a *Arena) MatchConfig() tuning.Match { return a.match }

func (a *Arena) Projectiles() []physics.BodyID {
	out := make([]physics.BodyID, 0, len(a.projectiles))
	for id := range a.projectiles {
		out = append(out, id)
	}
	sortBodyIDs(out)
	return out
}

// resetMatch discards the current match and begins a new one in Start.
func (a *Arena) resetMatch() {
	a.stopChat()
	a.matchID = a.newMatchID()
	a.match = a.tune.Match
	a.state = StateStart
	a.winner = ""
	a.phys = a.newSubstrate(a.tune)
	a.registry = NewRegistry()
	a.byBody = map[physics.BodyID]*Agent{}
	a.projectiles = map[physics.BodyID]*Projectile{}
	a.nextAgentID = 0
	a.debugSeq = 0
	a.peak = 0
	a.fireHeld = false
	a.fireEdges = 0
	a.debugHeld = false
	a.log.Printf("match %s: new match", a.matchID)
	a.emit(protocol.Effect{Kind: protocol.EffectState, State: StateStart.String()})
}

func (a *Arena) startChat(channel string) {
	a.stopChat()
	a.chatQueue = chat.NewQueue(a.tune.Chat.QueueCapacity)
	if a.listener == nil {
		a.log.Printf("match %s: no chat listener configured; %q not joined", a.matchID, channel)
		return
	}
	ctx, cancel := context.WithCancel(a.baseCtx)
	a.chatCancel = cancel
	a.listener.Listen(ctx, channel, a.chatQueue)
	a.log.Printf("match %s: listening on %q", a.matchID, channel)
}

func (a *Arena) stopChat() {
	if a.chatCancel != nil {
		a.chatCancel()
		a.chatCancel = nil
	}
	a.chatQueue = nil
}

func (a *Arena) emit(e protocol.Effect) {
	a.effects = append(a.effects, e)
}

func vecArr(v mgl64.Vec3) *[3]float64 { return &[3]float64{v[0], v[1], v[2]} }

func quatArr(q mgl64.Quat) *[4]float64 { return &[4]float64{q.V[0], q.V[1], q.V[2], q.W} }
