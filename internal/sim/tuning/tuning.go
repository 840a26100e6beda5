package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	Arena    Arena    `yaml:"arena"`
	Match    Match    `yaml:"match"`
	Steering Steering `yaml:"steering"`
	Weapon   Weapon   `yaml:"weapon"`
	Physics  Physics  `yaml:"physics"`
	Chat     Chat     `yaml:"chat"`
}

type Arena struct {
	HalfExtent  float64 `yaml:"half_extent"`
	SpawnHeight float64 `yaml:"spawn_height"`
	// Agents whose up-vector dot world-up drops below this are eliminated.
	ToppleUpDot float64 `yaml:"topple_up_dot"`
}

type Match struct {
	AgentsPerParticipant int    `yaml:"agents_per_participant"`
	FilterJoins          bool   `yaml:"filter_joins"`
	JoinCommand          string `yaml:"join_command"`
	Channel              string `yaml:"channel"`
	DebugSpawnName       string `yaml:"debug_spawn_name"`
}

type Steering struct {
	MaxSpeedMin    float64 `yaml:"max_speed_min"`
	MaxSpeedMax    float64 `yaml:"max_speed_max"`
	Acceleration   float64 `yaml:"acceleration"`
	TurnRate       float64 `yaml:"turn_rate"`
	TurnThreshold  float64 `yaml:"turn_threshold"`
	DriftDamping   float64 `yaml:"drift_damping"`
	DriftMaxHeight float64 `yaml:"drift_max_height"`
}

type Weapon struct {
	ProjectileSpeed  float64 `yaml:"projectile_speed"`
	ProjectileOffset float64 `yaml:"projectile_offset"`
	ProjectileRadius float64 `yaml:"projectile_radius"`
	BlastK           float64 `yaml:"blast_k"`
	// Projectiles older than this are culled without detonating.
	ProjectileTTLTicks int `yaml:"projectile_ttl_ticks"`
}

type Physics struct {
	Gravity        float64 `yaml:"gravity"`
	TipSpeed       float64 `yaml:"tip_speed"`
	TipFactor      float64 `yaml:"tip_factor"`
	AngularDrag    float64 `yaml:"angular_drag"`
	GroundHalfY    float64 `yaml:"ground_half_y"`
	AgentMass      float64 `yaml:"agent_mass"`
	Restitution    float64 `yaml:"restitution"`
	GroundFriction float64 `yaml:"ground_friction"`
}

type Chat struct {
	// Addr is the IRC server as host:port.
	Addr          string `yaml:"addr"`
	Insecure      bool   `yaml:"insecure"`
	Nick          string `yaml:"nick"`
	QueueCapacity int    `yaml:"queue_capacity"`
	JoinTimeoutMs int    `yaml:"join_timeout_ms"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz: 60,
		Arena: Arena{
			HalfExtent:  300,
			SpawnHeight: 3,
			ToppleUpDot: 0.1,
		},
		Match: Match{
			AgentsPerParticipant: 1,
			FilterJoins:          false,
			JoinCommand:          "!join",
			Channel:              "imnethen",
			DebugSpawnName:       "mrrow",
		},
		Steering: Steering{
			MaxSpeedMin:    40,
			MaxSpeedMax:    60,
			Acceleration:   1,
			TurnRate:       0.02,
			TurnThreshold:  1e-4,
			DriftDamping:   0.1,
			DriftMaxHeight: 5,
		},
		Weapon: Weapon{
			ProjectileSpeed:    1000,
			ProjectileOffset:   0.5,
			ProjectileRadius:   1,
			BlastK:             1e5,
			ProjectileTTLTicks: 600,
		},
		Physics: Physics{
			Gravity:        9.81,
			TipSpeed:       70,
			TipFactor:      0.02,
			AngularDrag:    0.05,
			GroundHalfY:    0.5,
			AgentMass:      20,
			Restitution:    0.3,
			GroundFriction: 0.01,
		},
		Chat: Chat{
			Addr:          "irc.chat.twitch.tv:6697",
			Nick:          "justinfan12345",
			QueueCapacity: 1024,
			JoinTimeoutMs: 10000,
		},
	}
}

// Load reads tuning.yaml on top of Defaults(). Keys absent from the file keep
// their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := Validate(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

// Validate checks raw yaml against the embedded tuning schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON-native types.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var inst any
	if err := json.Unmarshal(b, &inst); err != nil {
		return err
	}
	sch, err := jsonschema.CompileString("tuning.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile tuning schema: %w", err)
	}
	return sch.Validate(inst)
}

func (t *Tuning) applyDefaults() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.Arena.HalfExtent <= 0 {
		t.Arena.HalfExtent = d.Arena.HalfExtent
	}
	if t.Match.AgentsPerParticipant <= 0 {
		t.Match.AgentsPerParticipant = 1
	}
	if t.Match.JoinCommand == "" {
		t.Match.JoinCommand = d.Match.JoinCommand
	}
	if t.Match.DebugSpawnName == "" {
		t.Match.DebugSpawnName = d.Match.DebugSpawnName
	}
	if t.Steering.MaxSpeedMax < t.Steering.MaxSpeedMin {
		t.Steering.MaxSpeedMin, t.Steering.MaxSpeedMax = t.Steering.MaxSpeedMax, t.Steering.MaxSpeedMin
	}
	if t.Chat.QueueCapacity <= 0 {
		t.Chat.QueueCapacity = d.Chat.QueueCapacity
	}
	if t.Chat.JoinTimeoutMs <= 0 {
		t.Chat.JoinTimeoutMs = d.Chat.JoinTimeoutMs
	}
}
