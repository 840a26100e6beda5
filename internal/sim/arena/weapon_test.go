package arena

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/physics"
	"livestock.tv/internal/sim/tuning"
)

func TestBlastImpulse_InverseSquareFalloff(t *testing.T) {
	blast := mgl64.Vec3{5, 1, 5}
	k := 1e5
	for _, dir := range []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, mgl64.Vec3{1, 2, -3}.Normalize()} {
		near1 := BlastImpulse(blast.Add(dir.Mul(10)), blast, k)
		far := BlastImpulse(blast.Add(dir.Mul(20)), blast, k)
		if !near(near1.Len(), k/100, 1e-6) {
			t.Fatalf("|impulse| at 10 = %v want %v", near1.Len(), k/100)
		}
		if !near(near1.Len()/far.Len(), 4, 1e-9) {
			t.Fatalf("doubling distance ratio=%v want 4", near1.Len()/far.Len())
		}
		if !near(near1.Normalize().Dot(dir), 1, 1e-9) {
			t.Fatalf("impulse not pointing away from blast")
		}
	}
}

func TestBlastImpulse_ClampedAtCenter(t *testing.T) {
	k := 1e5
	if got := BlastImpulse(mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{}, k); !near(got.Len(), k, 1e-6) {
		t.Fatalf("inside unit distance: %v", got.Len())
	}
	got := BlastImpulse(mgl64.Vec3{}, mgl64.Vec3{}, k)
	if !near(got[1], k, 1e-6) || got[0] != 0 || got[2] != 0 {
		t.Fatalf("at center: %v", got)
	}
}

func TestFire_EdgeTriggered(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	fire := func(pressed bool) { h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: pressed}) }
	fire(true)
	if n := len(h.a.Projectiles()); n != 1 {
		t.Fatalf("after press: %d projectiles", n)
	}
	fire(true)
	h.a.StepOnce()
	if n := len(h.a.Projectiles()); n != 1 {
		t.Fatalf("holding fired again: %d projectiles", n)
	}
	fire(false)
	fire(true)
	if n := len(h.a.Projectiles()); n != 2 {
		t.Fatalf("second edge: %d projectiles", n)
	}

	// Press and release within one tick still counts as an edge.
	h.a.StepOnce(
		Control{Action: protocol.ActionFire, Pressed: false},
		Control{Action: protocol.ActionFire, Pressed: true},
		Control{Action: protocol.ActionFire, Pressed: false},
	)
	if n := len(h.a.Projectiles()); n != 3 {
		t.Fatalf("tap: %d projectiles", n)
	}
}

func TestFire_FromCamera(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: true})
	ids := h.a.Projectiles()
	b := h.fake.bodies[ids[0]]
	if b.spec.Kind != physics.Sensor {
		t.Fatalf("projectile kind %s", b.spec.Kind)
	}
	if want := (mgl64.Vec3{0, 10, 299.5}); !nearVec(b.spec.Transform.Pos, want) {
		t.Fatalf("spawn pos %v want %v", b.spec.Transform.Pos, want)
	}
	if want := (mgl64.Vec3{0, 0, -1000}); !nearVec(b.spec.LinVel, want) {
		t.Fatalf("velocity %v want %v", b.spec.LinVel, want)
	}

	// A turned camera fires along its own forward axis.
	cam := physics.NewTransform(mgl64.Vec3{10, 20, 30}, 1.2)
	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: false}, Control{Action: protocol.ActionCamera, Camera: &cam})
	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: true})
	ids = h.a.Projectiles()
	b = h.fake.bodies[ids[len(ids)-1]]
	if !nearVec(b.spec.LinVel, cam.Forward().Mul(1000)) {
		t.Fatalf("velocity %v want along %v", b.spec.LinVel, cam.Forward())
	}
}

func TestFire_IgnoredOutsideSpectating(t *testing.T) {
	h := newHarness(t, nil)
	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: true})
	h.a.StepOnce(Control{Action: protocol.ActionStart})
	if n := len(h.a.Projectiles()); n != 0 {
		t.Fatalf("edge from START fired later: %d", n)
	}
}

func TestDetonate_EitherPairOrder(t *testing.T) {
	for _, projFirst := range []bool{true, false} {
		h := newHarness(t, nil)
		h.start(t)
		ag := h.spawn(t, "target")
		h.fake.place(ag.Body, mgl64.Vec3{10, 3, 0}, 0, mgl64.Vec3{})
		h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: true})
		proj := h.a.Projectiles()[0]
		h.fake.place(proj, mgl64.Vec3{0, 3, 0}, 0, mgl64.Vec3{})

		pair := physics.CollisionStarted{A: proj, B: ag.Body}
		if !projFirst {
			pair = physics.CollisionStarted{A: ag.Body, B: proj}
		}
		h.fake.pending = []physics.CollisionStarted{pair}
		h.a.StepOnce()

		if n := len(h.a.Projectiles()); n != 0 {
			t.Fatalf("projFirst=%v: projectile survived", projFirst)
		}
		v, _ := h.fake.LinearVelocity(ag.Body)
		if !near(v[0], 1000, 10) {
			t.Fatalf("projFirst=%v: knockback v=%v want ~1000 on +X", projFirst, v)
		}
		if n := len(h.log.effects(protocol.EffectExplosion)); n != 1 {
			t.Fatalf("explosions=%d", n)
		}
	}
}

func TestDetonate_OncePerProjectileAndAccumulates(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ag := h.spawn(t, "target")
	h.fake.place(ag.Body, mgl64.Vec3{10, 3, 0}, 0, mgl64.Vec3{})

	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: true})
	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: false})
	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: true})
	ids := h.a.Projectiles()
	if len(ids) != 2 {
		t.Fatalf("projectiles=%d", len(ids))
	}
	for _, id := range ids {
		h.fake.place(id, mgl64.Vec3{0, 3, 0}, 0, mgl64.Vec3{})
	}
	h.fake.place(ag.Body, mgl64.Vec3{10, 3, 0}, 0, mgl64.Vec3{})
	ground := physics.BodyID(9999)
	h.fake.pending = []physics.CollisionStarted{
		{A: ids[0], B: ag.Body},
		{A: ids[0], B: ground},
		{A: ids[0], B: ids[1]},
	}
	h.a.StepOnce()

	if n := len(h.log.effects(protocol.EffectExplosion)); n != 2 {
		t.Fatalf("explosions=%d want 2", n)
	}
	v, _ := h.fake.LinearVelocity(ag.Body)
	if !near(v[0], 2000, 20) {
		t.Fatalf("two blasts should add up: v=%v", v)
	}
}

func TestDetonate_IgnoresPairsWithoutProjectile(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	a := h.spawn(t, "a")
	b := h.spawn(t, "b")
	h.fake.pending = []physics.CollisionStarted{{A: a.Body, B: b.Body}}
	h.a.StepOnce()
	if n := len(h.log.effects(protocol.EffectExplosion)); n != 0 {
		t.Fatalf("agent contact exploded")
	}
}

func TestProjectiles_Expire(t *testing.T) {
	h := newHarness(t, func(tu *tuning.Tuning) { tu.Weapon.ProjectileTTLTicks = 3 })
	h.start(t)
	h.a.StepOnce(Control{Action: protocol.ActionFire, Pressed: true})
	h.a.StepOnce()
	h.a.StepOnce()
	if len(h.a.Projectiles()) != 1 {
		t.Fatalf("expired too early")
	}
	h.a.StepOnce()
	if len(h.a.Projectiles()) != 0 {
		t.Fatalf("projectile outlived its ttl")
	}
	var expired bool
	for _, e := range h.log.effects(protocol.EffectDestroy) {
		if e.Cause == protocol.CauseExpired {
			expired = true
		}
	}
	if !expired || len(h.log.effects(protocol.EffectExplosion)) != 0 {
		t.Fatalf("expiry should destroy quietly")
	}
}
