package arena

import (
	"fmt"
	"math"
	"testing"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/tuning"
)

func TestTrySpawn_NamesStayUnique(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	names := []string{"a", "b", "a", "c", "b", "a", "d"}
	accepted := 0
	for _, n := range names {
		if _, ok := h.a.TrySpawn(n, "hi"); ok {
			accepted++
		}
	}
	if accepted != 4 || h.a.Registry().Len() != 4 {
		t.Fatalf("accepted=%d len=%d want 4", accepted, h.a.Registry().Len())
	}
	if len(h.fake.bodies) != 4 {
		t.Fatalf("bodies=%d want one per live agent", len(h.fake.bodies))
	}
}

func TestTrySpawn_RejectedOutsideSpectating(t *testing.T) {
	h := newHarness(t, nil)
	if _, ok := h.a.TrySpawn("early", ""); ok {
		t.Fatalf("spawn accepted in START")
	}
	if _, ok := h.a.DebugSpawn(); ok {
		t.Fatalf("debug spawn accepted in START")
	}
	if _, ok := h.a.TrySpawn("", ""); ok {
		t.Fatalf("empty name accepted")
	}
}

func TestTrySpawn_FilterJoins(t *testing.T) {
	h := newHarness(t, func(tu *tuning.Tuning) {
		tu.Match.FilterJoins = true
		tu.Match.JoinCommand = "!join"
	})
	h.start(t)

	for i, text := range []string{"", "hello", "!JOIN", "!join please", "join", "!joi"} {
		if _, ok := h.a.TrySpawn(fmt.Sprintf("u%d", i), text); ok {
			t.Fatalf("text %q spawned with filter on", text)
		}
	}
	if h.a.Registry().Len() != 0 {
		t.Fatalf("registry should be empty")
	}
	if _, ok := h.a.TrySpawn("ok", "!join"); !ok {
		t.Fatalf("trigger command rejected")
	}
	if _, ok := h.a.TrySpawn("ok2", " !join \r"); !ok {
		t.Fatalf("trigger command with surrounding whitespace rejected")
	}
}

func TestSpawnParticipant_MultipleAgentsPartialSuccess(t *testing.T) {
	h := newHarness(t, func(tu *tuning.Tuning) { tu.Match.AgentsPerParticipant = 3 })
	h.start(t)

	if _, ok := h.a.TrySpawn("P#2", ""); !ok {
		t.Fatalf("pre-spawn failed")
	}
	ids := h.a.SpawnParticipant("P", "go")
	if len(ids) != 2 {
		t.Fatalf("spawned %d, want 2 (P#2 already alive)", len(ids))
	}
	for _, n := range []string{"P#1", "P#2", "P#3"} {
		if !h.a.Registry().Has(n) {
			t.Fatalf("missing %s", n)
		}
	}
	if again := h.a.SpawnParticipant("P", "go"); len(again) != 0 {
		t.Fatalf("second message spawned %d", len(again))
	}
	if h.a.Registry().Len() != 3 {
		t.Fatalf("len=%d want 3", h.a.Registry().Len())
	}
}

func TestParticipantNames(t *testing.T) {
	if got := ParticipantNames("x", 1); len(got) != 1 || got[0] != "x" {
		t.Fatalf("single: %v", got)
	}
	got := ParticipantNames("x", 2)
	if len(got) != 2 || got[0] != "x#1" || got[1] != "x#2" {
		t.Fatalf("multi: %v", got)
	}
}

func TestSpawn_PlacementWithinBounds(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	tu := h.a.Tuning()
	for i := 0; i < 200; i++ {
		ag := h.spawn(t, fmt.Sprintf("s%d", i))
		tr, _ := h.a.Substrate().Transform(ag.Body)
		if math.Abs(tr.Pos[0]) > tu.Arena.HalfExtent || math.Abs(tr.Pos[2]) > tu.Arena.HalfExtent {
			t.Fatalf("spawned outside arena: %v", tr.Pos)
		}
		if tr.Pos[1] != tu.Arena.SpawnHeight {
			t.Fatalf("spawn height %v", tr.Pos[1])
		}
		if ag.MaxSpeed < tu.Steering.MaxSpeedMin || ag.MaxSpeed > tu.Steering.MaxSpeedMax {
			t.Fatalf("max speed %v out of range", ag.MaxSpeed)
		}
		if up := tr.Up(); !near(up[1], 1, 1e-9) {
			t.Fatalf("spawned tilted: up=%v", up)
		}
	}
}

func TestSpawn_SeedIsDeterministic(t *testing.T) {
	run := func() []float64 {
		h := newHarness(t, nil)
		h.start(t)
		var out []float64
		for i := 0; i < 5; i++ {
			ag := h.spawn(t, fmt.Sprintf("s%d", i))
			tr, _ := h.a.Substrate().Transform(ag.Body)
			out = append(out, tr.Pos[0], tr.Pos[2], ag.MaxSpeed)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seeded spawns differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestDebugSpawn_SkipsTakenNames(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.spawn(t, "mrrow2")
	for i := 0; i < 3; i++ {
		if _, ok := h.a.DebugSpawn(); !ok {
			t.Fatalf("debug spawn %d failed", i)
		}
	}
	for _, n := range []string{"mrrow1", "mrrow2", "mrrow3", "mrrow4"} {
		if !h.a.Registry().Has(n) {
			t.Fatalf("missing %s; have %v", n, h.a.Registry().Names())
		}
	}
}

func TestDebugSpawn_LevelTriggeredOnePerTick(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.a.StepOnce(Control{Action: protocol.ActionDebugSpawn, Pressed: true})
	h.a.StepOnce()
	h.a.StepOnce()
	if n := h.a.Registry().Len(); n != 3 {
		t.Fatalf("held for 3 ticks: %d agents", n)
	}
	h.a.StepOnce(Control{Action: protocol.ActionDebugSpawn, Pressed: false})
	h.a.StepOnce()
	if n := h.a.Registry().Len(); n != 3 {
		t.Fatalf("released: %d agents", n)
	}
	if got := len(h.log.effects(protocol.EffectSpawn)); got != 3 {
		t.Fatalf("spawn effects=%d", got)
	}
}
