package arena

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/sim/physics"
)

func TestRightScore_SymmetricNeighboursCancel(t *testing.T) {
	for _, yaw := range []float64{0, 0.3, 1.7, math.Pi, 5.1} {
		self := physics.NewTransform(mgl64.Vec3{10, 3, -4}, yaw)
		r := self.Right()
		others := []mgl64.Vec3{
			self.Pos,
			self.Pos.Add(r.Mul(7)),
			self.Pos.Sub(r.Mul(7)),
		}
		score := RightScore(self, others)
		if math.Abs(score) > 1e-12 {
			t.Fatalf("yaw %v: score=%v want 0", yaw, score)
		}
		if turn := TurnFor(score, 1e-4, 0.02); turn != 0 {
			t.Fatalf("yaw %v: turn=%v want none", yaw, turn)
		}
	}
}

func TestRightScore_InverseSquareWeights(t *testing.T) {
	self := physics.NewTransform(mgl64.Vec3{}, 0)
	// Right axis is +X at yaw 0.
	score := RightScore(self, []mgl64.Vec3{{2, 0, 0}, {-4, 0, 0}})
	want := 1.0/4 - 1.0/16
	if !near(score, want, 1e-12) {
		t.Fatalf("score=%v want %v", score, want)
	}
	// Straight ahead is not "right", so it counts against.
	if s := RightScore(self, []mgl64.Vec3{{0, 0, -10}}); !near(s, -0.01, 1e-12) {
		t.Fatalf("ahead score=%v", s)
	}
	// Overlapping positions are ignored.
	if s := RightScore(self, []mgl64.Vec3{{0.05, 0, 0}}); s != 0 {
		t.Fatalf("overlap counted: %v", s)
	}
}

func TestTurnFor(t *testing.T) {
	cases := []struct {
		score, want float64
	}{
		{0, 0},
		{5e-5, 0},
		{-5e-5, 0},
		{0.5, 0.02},
		{-0.5, -0.02},
	}
	for _, c := range cases {
		if got := TurnFor(c.score, 1e-4, 0.02); got != c.want {
			t.Fatalf("TurnFor(%v)=%v want %v", c.score, got, c.want)
		}
	}
}

func TestTurnFor_CrowdedRightTurnsLeft(t *testing.T) {
	self := physics.NewTransform(mgl64.Vec3{}, 0)
	turn := TurnFor(RightScore(self, []mgl64.Vec3{{3, 0, 0}}), 1e-4, 0.02)
	fwd := self.RotateY(turn).Forward()
	// Left of -Z is -X.
	if fwd[0] >= 0 {
		t.Fatalf("turned toward the crowd: forward=%v", fwd)
	}
}

func TestSteer_ThrustSoftCapAndDrift(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ag := h.spawn(t, "solo")
	ag.MaxSpeed = 40

	// Below max speed: thrust along forward (-Z at yaw 0).
	h.fake.place(ag.Body, mgl64.Vec3{0, 3, 0}, 0, mgl64.Vec3{})
	h.a.StepOnce()
	v, _ := h.fake.LinearVelocity(ag.Body)
	if !near(v[2], -1, 1e-9) || !near(v[0], 0, 1e-9) {
		t.Fatalf("thrust: v=%v", v)
	}

	// Above max speed: no thrust, nothing clamps.
	h.fake.place(ag.Body, mgl64.Vec3{0, 3, 0}, 0, mgl64.Vec3{0, 0, -100})
	h.a.StepOnce()
	v, _ = h.fake.LinearVelocity(ag.Body)
	if !near(v[2], -100, 1e-9) {
		t.Fatalf("soft cap: v=%v", v)
	}

	// Near the ground sideways velocity is damped by 10%.
	h.fake.place(ag.Body, mgl64.Vec3{0, 3, 0}, 0, mgl64.Vec3{10, 0, 0})
	h.a.StepOnce()
	v, _ = h.fake.LinearVelocity(ag.Body)
	if !near(v[0], 9, 1e-9) || !near(v[2], -1, 1e-9) {
		t.Fatalf("drift damping: v=%v", v)
	}

	// Airborne: no damping.
	h.fake.place(ag.Body, mgl64.Vec3{0, 20, 0}, 0, mgl64.Vec3{10, 0, 0})
	h.a.StepOnce()
	v, _ = h.fake.LinearVelocity(ag.Body)
	if !near(v[0], 10, 1e-9) {
		t.Fatalf("airborne damping applied: v=%v", v)
	}
}

func TestSteer_VelocityFollowsHeading(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	self := h.spawn(t, "self")
	other := h.spawn(t, "other")
	self.MaxSpeed = 40

	h.fake.place(self.Body, mgl64.Vec3{0, 3, 0}, 0, mgl64.Vec3{0, 0, -10})
	h.fake.place(other.Body, mgl64.Vec3{5, 3, 0}, 0, mgl64.Vec3{})
	h.a.StepOnce()

	tr, _ := h.fake.Transform(self.Body)
	fwd := tr.Forward()
	if !near(fwd[0], -math.Sin(0.02), 1e-9) || !near(fwd[2], -math.Cos(0.02), 1e-9) {
		t.Fatalf("heading after left turn: %v", fwd)
	}
	v, _ := h.fake.LinearVelocity(self.Body)
	want := fwd.Mul(11)
	if !near(v[0], want[0], 1e-9) || !near(v[2], want[2], 1e-9) {
		t.Fatalf("velocity=%v want %v", v, want)
	}
}

func TestSteer_BadAgentDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	bad := h.spawn(t, "bad")
	good := h.spawn(t, "good")
	h.fake.place(bad.Body, mgl64.Vec3{0, 3, 0}, 0, mgl64.Vec3{math.NaN(), 0, 0})
	h.fake.place(good.Body, mgl64.Vec3{200, 3, 0}, 0, mgl64.Vec3{})

	h.a.steer()
	v, _ := h.fake.LinearVelocity(good.Body)
	if !near(v[2], -1, 1e-9) {
		t.Fatalf("good agent not steered: v=%v", v)
	}
}

func TestRotateHorizontal_KeepsVertical(t *testing.T) {
	v := rotateHorizontal(mgl64.Vec3{0, -3, -10}, math.Pi/2)
	if !near(v[0], -10, 1e-9) || !near(v[1], -3, 1e-12) || !near(v[2], 0, 1e-9) {
		t.Fatalf("rotated=%v", v)
	}
}
