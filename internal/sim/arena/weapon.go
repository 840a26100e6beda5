package arena

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/physics"
)

// BlastImpulse is the velocity change a detonation at blast applies to a body
// at pos: K/d² along the line away from the blast. d² is clamped to 1 so a
// body at the blast center gets a bounded kick, straight up.
func BlastImpulse(pos, blast mgl64.Vec3, k float64) mgl64.Vec3 {
	off := pos.Sub(blast)
	d2 := off.Dot(off)
	dir := worldUp
	if d2 > 1e-12 {
		dir = off.Mul(1 / math.Sqrt(d2))
	}
	if d2 < 1 {
		d2 = 1
	}
	return dir.Mul(k / d2)
}

// fire launches one projectile from the camera along its forward axis.
func (a *Arena) fire() physics.BodyID {
	w := a.tune.Weapon
	fwd := a.camera.Forward()
	pos := a.camera.Pos.Add(fwd.Mul(w.ProjectileOffset))
	id := a.phys.Spawn(physics.BodySpec{
		Kind:      physics.Sensor,
		Transform: physics.Transform{Pos: pos, Rot: a.camera.Rot},
		LinVel:    fwd.Mul(w.ProjectileSpeed),
		Spheres:   []physics.Sphere{{Radius: w.ProjectileRadius}},
		Mass:      1,
		Tag:       "projectile",
	})
	a.projectiles[id] = &Projectile{Body: id, SpawnTick: a.tick.Load()}
	a.emit(protocol.Effect{Kind: protocol.EffectSpawn, ID: uint64(id), Pos: vecArr(pos)})
	return id
}

// detonate handles this tick's collision starts. Either side of a pair may
// be the projectile; a projectile detonates at most once.
func (a *Arena) detonate(started []physics.CollisionStarted) int {
	n := 0
	for _, c := range started {
		for _, id := range [2]physics.BodyID{c.A, c.B} {
			if _, ok := a.projectiles[id]; !ok {
				continue
			}
			a.explode(id)
			n++
		}
	}
	return n
}

func (a *Arena) explode(id physics.BodyID) {
	tr, ok := a.phys.Transform(id)
	delete(a.projectiles, id)
	a.phys.Despawn(id)
	if !ok {
		return
	}
	blast := tr.Pos
	a.emit(protocol.Effect{Kind: protocol.EffectDestroy, ID: uint64(id), Pos: vecArr(blast), Cause: protocol.CauseDetonated})
	a.emit(protocol.Effect{Kind: protocol.EffectExplosion, Pos: vecArr(blast)})

	k := a.tune.Weapon.BlastK
	for _, ag := range a.registry.Agents() {
		atr, ok := a.phys.Transform(ag.Body)
		if !ok {
			continue
		}
		v, _ := a.phys.LinearVelocity(ag.Body)
		a.phys.SetLinearVelocity(ag.Body, v.Add(BlastImpulse(atr.Pos, blast, k)))
	}
}

// expireProjectiles culls projectiles that never hit anything.
func (a *Arena) expireProjectiles() {
	ttl := uint64(a.tune.Weapon.ProjectileTTLTicks)
	if ttl == 0 {
		return
	}
	now := a.tick.Load()
	for _, id := range a.Projectiles() {
		p := a.projectiles[id]
		if now-p.SpawnTick < ttl {
			continue
		}
		delete(a.projectiles, id)
		a.phys.Despawn(id)
		a.emit(protocol.Effect{Kind: protocol.EffectDestroy, ID: uint64(id), Cause: protocol.CauseExpired})
	}
}
