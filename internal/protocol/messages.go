package protocol

// Match states as they appear on the wire.
const (
	StateStart      = "START"
	StateConnected  = "CONNECTED"
	StateSpectating = "SPECTATING"
	StateEnd        = "END"
)

// Effect kinds.
const (
	EffectSpawn     = "SPAWN"
	EffectDestroy   = "DESTROY"
	EffectExplosion = "EXPLOSION"
	EffectState     = "STATE"
	EffectNotice    = "NOTICE"
)

// Destroy causes.
const (
	CauseToppled     = "TOPPLED"
	CauseOutOfBounds = "OUT_OF_BOUNDS"
	CauseDetonated   = "DETONATED"
	CauseExpired     = "EXPIRED"
)

// Control actions (client -> server).
const (
	ActionConnect    = "CONNECT"
	ActionStart      = "START"
	ActionFire       = "FIRE"
	ActionDebugSpawn = "DEBUG_SPAWN"
	ActionCamera     = "CAMERA"
	ActionConfigure  = "CONFIGURE"
	ActionRestart    = "RESTART"
)

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	MatchID         string  `json:"match_id"`
	State           string  `json:"state"`
	TickRateHz      int     `json:"tick_rate_hz"`
	ArenaHalfExtent float64 `json:"arena_half_extent"`
}

// FRAME (server -> client): the full visible state after one tick plus the
// side-effects that tick produced.
type FrameMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	MatchID         string           `json:"match_id"`
	Tick            uint64           `json:"tick"`
	State           string           `json:"state"`
	Winner          string           `json:"winner,omitempty"`
	Agents          []AgentView      `json:"agents"`
	Projectiles     []ProjectileView `json:"projectiles"`
	Effects         []Effect         `json:"effects,omitempty"`
}

type AgentView struct {
	Name string     `json:"name"`
	Pos  [3]float64 `json:"pos"`
	Rot  [4]float64 `json:"rot"` // x, y, z, w
	Vel  [3]float64 `json:"vel"`
}

type ProjectileView struct {
	ID  uint64     `json:"id"`
	Pos [3]float64 `json:"pos"`
}

// Effect is a side-effect request for the presentation layer. Which fields are
// set depends on Kind.
type Effect struct {
	Kind string `json:"kind"`

	// SPAWN / DESTROY of an agent carry Name; projectile effects carry ID.
	Name     string      `json:"name,omitempty"`
	ID       uint64      `json:"id,omitempty"`
	Pos      *[3]float64 `json:"pos,omitempty"`
	Rot      *[4]float64 `json:"rot,omitempty"`
	MaxSpeed float64     `json:"max_speed,omitempty"`
	Cause    string      `json:"cause,omitempty"`

	// STATE
	State  string `json:"state,omitempty"`
	Winner string `json:"winner,omitempty"`

	// NOTICE
	Message string `json:"message,omitempty"`
}

// CONTROL (client -> server)
type ControlMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          string `json:"action"`

	// CONNECT
	Channel string `json:"channel,omitempty"`
	// FIRE / DEBUG_SPAWN
	Pressed bool `json:"pressed,omitempty"`
	// CAMERA
	Pos *[3]float64 `json:"pos,omitempty"`
	Rot *[4]float64 `json:"rot,omitempty"`
	// CONFIGURE
	Config *MatchConfigPatch `json:"config,omitempty"`
}

// MatchConfigPatch carries the match settings a CONFIGURE control may change.
// Nil fields are left as they are.
type MatchConfigPatch struct {
	AgentsPerParticipant *int    `json:"agents_per_participant,omitempty"`
	FilterJoins          *bool   `json:"filter_joins,omitempty"`
	JoinCommand          *string `json:"join_command,omitempty"`
	Channel              *string `json:"channel,omitempty"`
}

func Vec3(x, y, z float64) *[3]float64 { return &[3]float64{x, y, z} }
