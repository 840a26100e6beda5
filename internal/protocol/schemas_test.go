package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"livestock.tv/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v so the validator sees the same shape a client would.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	welcomeSchema := compile(t, "welcome.schema.json")
	frameSchema := compile(t, "frame.schema.json")
	controlSchema := compile(t, "control.schema.json")
	errorSchema := compile(t, "error.schema.json")

	validate(welcomeSchema, asJSON(t, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "2f1c3c9e-8b43-4b8e-9d59-1e0f0d6d4c11",
		MatchID:         "01JA2B3C4D5E6F7G8H9J0KMNPQ",
		State:           protocol.StateStart,
		TickRateHz:      60,
		ArenaHalfExtent: 300,
	}))

	validate(frameSchema, asJSON(t, protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		MatchID:         "01JA2B3C4D5E6F7G8H9J0KMNPQ",
		Tick:            42,
		State:           protocol.StateEnd,
		Winner:          "C",
		Agents: []protocol.AgentView{
			{Name: "C", Pos: [3]float64{1, 2.25, 3}, Rot: [4]float64{0, 0, 0, 1}, Vel: [3]float64{0, 0, -40}},
		},
		Projectiles: []protocol.ProjectileView{{ID: 9, Pos: [3]float64{0, 10, 250}}},
		Effects: []protocol.Effect{
			{Kind: protocol.EffectSpawn, Name: "C", Pos: protocol.Vec3(1, 3, 3), Rot: &[4]float64{0, 0, 0, 1}, MaxSpeed: 51.5},
			{Kind: protocol.EffectDestroy, Name: "A", Pos: protocol.Vec3(0, 0, 0), Cause: protocol.CauseToppled},
			{Kind: protocol.EffectExplosion, Pos: protocol.Vec3(0, 0, 0)},
			{Kind: protocol.EffectState, State: protocol.StateEnd, Winner: "C"},
			{Kind: protocol.EffectNotice, Message: "COULDNT CONNECT"},
		},
	}))

	var control any
	_ = json.Unmarshal([]byte(`{
	  "type":"CONTROL",
	  "protocol_version":"1.0",
	  "action":"CAMERA",
	  "pos":[0,10,300],
	  "rot":[0,0,0,1]
	}`), &control)
	validate(controlSchema, control)

	n := 3
	filter := true
	validate(controlSchema, asJSON(t, protocol.ControlMsg{
		Type:            protocol.TypeControl,
		ProtocolVersion: protocol.Version,
		Action:          protocol.ActionConfigure,
		Config:          &protocol.MatchConfigPatch{AgentsPerParticipant: &n, FilterJoins: &filter},
	}))

	validate(errorSchema, asJSON(t, protocol.NewError(protocol.ErrBadTransition, "already spectating")))
}

func TestSchemas_RejectMalformedControl(t *testing.T) {
	s := compile(t, "control.schema.json")
	bad := []string{
		`{"type":"CONTROL","protocol_version":"1.0","action":"JUMP"}`,
		`{"type":"CONTROL","protocol_version":"1.0","action":"CAMERA","pos":[0,10,300]}`,
		`{"type":"CONTROL","protocol_version":"1.0","action":"CONFIGURE"}`,
		`{"type":"CONTROL","protocol_version":"1.0","action":"CONNECT","channel":"has space"}`,
	}
	for _, raw := range bad {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("bad fixture %s: %v", raw, err)
		}
		if err := s.Validate(v); err == nil {
			t.Fatalf("expected rejection for %s", raw)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"CONTROL","protocol_version":"1.0","action":"FIRE","pressed":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != protocol.TypeControl || m.ProtocolVersion != protocol.Version {
		t.Fatalf("unexpected base: %+v", m)
	}
	if _, err := protocol.DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
}
