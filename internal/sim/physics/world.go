package physics

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

type Config struct {
	Gravity float64
	// Ground is a static slab centered on the origin: GroundHalfExtent wide on
	// X/Z and GroundHalfY thick, so its top face sits at y=GroundHalfY.
	GroundHalfExtent float64
	GroundHalfY      float64

	// Grounded bodies sliding faster than TipSpeed gain tipping spin
	// proportional to the excess speed times TipFactor.
	TipSpeed    float64
	TipFactor   float64
	AngularDrag float64

	Restitution    float64
	GroundFriction float64
}

// CollisionStarted reports a pair whose contact began during the last step.
// A < B always; consumers must not rely on which side is which.
type CollisionStarted struct {
	A BodyID
	B BodyID
}

type pairKey struct{ a, b BodyID }

func makePair(a, b BodyID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// World is a small fixed-step rigid-body integrator. It is not safe for
// concurrent use; the simulation goroutine owns it.
type World struct {
	cfg Config

	bodies map[BodyID]*Body
	order  []BodyID
	nextID BodyID
	ground BodyID

	contacts map[pairKey]struct{}
}

func NewWorld(cfg Config) *World {
	w := &World{
		cfg:      cfg,
		bodies:   map[BodyID]*Body{},
		contacts: map[pairKey]struct{}{},
	}
	w.ground = w.Spawn(BodySpec{
		Kind:        Static,
		Transform:   Transform{Rot: mgl64.QuatIdent()},
		HalfExtents: mgl64.Vec3{cfg.GroundHalfExtent, cfg.GroundHalfY, cfg.GroundHalfExtent},
		Tag:         "ground",
	})
	return w
}

func (w *World) Ground() BodyID { return w.ground }

func (w *World) Spawn(spec BodySpec) BodyID {
	w.nextID++
	id := w.nextID
	rot := spec.Transform.Rot
	if rot.Len() == 0 {
		rot = mgl64.QuatIdent()
	}
	b := &Body{
		ID:          id,
		Kind:        spec.Kind,
		Tag:         spec.Tag,
		Transform:   Transform{Pos: spec.Transform.Pos, Rot: rot.Normalize()},
		LinVel:      spec.LinVel,
		HalfExtents: spec.HalfExtents,
		Spheres:     append([]Sphere(nil), spec.Spheres...),
		Mass:        spec.Mass,
		prevPos:     spec.Transform.Pos,
	}
	w.bodies[id] = b
	w.order = append(w.order, id)
	return id
}

// Despawn removes a body. Removing an unknown id is a no-op.
func (w *World) Despawn(id BodyID) {
	if _, ok := w.bodies[id]; !ok || id == w.ground {
		return
	}
	delete(w.bodies, id)
	for i, v := range w.order {
		if v == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	for k := range w.contacts {
		if k.a == id || k.b == id {
			delete(w.contacts, k)
		}
	}
}

func (w *World) Body(id BodyID) (*Body, bool) {
	b, ok := w.bodies[id]
	return b, ok
}

func (w *World) Len() int { return len(w.bodies) }

func (w *World) Transform(id BodyID) (Transform, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return Transform{}, false
	}
	return b.Transform, true
}

func (w *World) SetRotation(id BodyID, rot mgl64.Quat) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	b.Transform.Rot = rot.Normalize()
	return true
}

func (w *World) LinearVelocity(id BodyID) (mgl64.Vec3, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return mgl64.Vec3{}, false
	}
	return b.LinVel, true
}

func (w *World) SetLinearVelocity(id BodyID, v mgl64.Vec3) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	b.LinVel = v
	return true
}

// Step integrates every body by dt seconds and returns the collision pairs
// that started touching during this step, sorted by (A, B).
func (w *World) Step(dt float64) []CollisionStarted {
	for _, id := range w.order {
		b := w.bodies[id]
		if b.Kind == Static {
			continue
		}
		b.prevPos = b.Transform.Pos
		b.LinVel = b.LinVel.Sub(axisY.Mul(w.cfg.Gravity * dt))
		b.Transform.Pos = b.Transform.Pos.Add(b.LinVel.Mul(dt))
		if b.Kind == Dynamic {
			w.integrateSpin(b, dt)
			w.resolveGround(b)
		}
	}
	w.separateDynamic()

	now := map[pairKey]struct{}{}
	w.collectContacts(now)

	var started []CollisionStarted
	for k := range now {
		if _, ok := w.contacts[k]; !ok {
			started = append(started, CollisionStarted{A: k.a, B: k.b})
		}
	}
	w.contacts = now
	sort.Slice(started, func(i, j int) bool {
		if started[i].A != started[j].A {
			return started[i].A < started[j].A
		}
		return started[i].B < started[j].B
	})
	return started
}

func (w *World) integrateSpin(b *Body, dt float64) {
	speed := b.AngVel.Len()
	if speed < 1e-9 {
		b.AngVel = mgl64.Vec3{}
		return
	}
	dq := mgl64.QuatRotate(speed*dt, b.AngVel.Mul(1/speed))
	b.Transform.Rot = dq.Mul(b.Transform.Rot).Normalize()
}

func (w *World) overGround(p mgl64.Vec3) bool {
	h := w.cfg.GroundHalfExtent
	return math.Abs(p.X()) <= h && math.Abs(p.Z()) <= h
}

func (w *World) resolveGround(b *Body) {
	b.grounded = false
	if !w.overGround(b.Transform.Pos) {
		return
	}
	top := w.cfg.GroundHalfY
	ext := b.extentY()
	// Bodies that already fell below the slab keep falling.
	if b.Transform.Pos.Y() < -top {
		return
	}
	if b.Transform.Pos.Y()-ext > top {
		return
	}
	b.grounded = true
	b.Transform.Pos[1] = top + ext
	if b.LinVel.Y() < 0 {
		vy := -b.LinVel.Y() * w.cfg.Restitution
		if vy < 1 {
			vy = 0
		}
		b.LinVel[1] = vy
	}

	horiz := mgl64.Vec3{b.LinVel.X(), 0, b.LinVel.Z()}
	if f := w.cfg.GroundFriction; f > 0 {
		b.LinVel[0] *= 1 - f
		b.LinVel[2] *= 1 - f
	}
	if s := horiz.Len(); s > w.cfg.TipSpeed && w.cfg.TipFactor > 0 {
		// Friction at the base topples the body toward its direction of travel.
		axis := axisY.Cross(horiz.Mul(1 / s))
		b.AngVel = b.AngVel.Add(axis.Mul((s - w.cfg.TipSpeed) * w.cfg.TipFactor))
	}
	b.AngVel = b.AngVel.Mul(1 - w.cfg.AngularDrag)
}

// separateDynamic pushes overlapping dynamic bodies apart and exchanges the
// normal component of their velocities.
func (w *World) separateDynamic() {
	for i := 0; i < len(w.order); i++ {
		a := w.bodies[w.order[i]]
		if a.Kind != Dynamic {
			continue
		}
		for j := i + 1; j < len(w.order); j++ {
			b := w.bodies[w.order[j]]
			if b.Kind != Dynamic {
				continue
			}
			d := b.Transform.Pos.Sub(a.Transform.Pos)
			d[1] = 0
			minDist := a.horizontalRadius() + b.horizontalRadius()
			distSq := d.Dot(d)
			if distSq >= minDist*minDist || distSq == 0 {
				continue
			}
			dist := math.Sqrt(distSq)
			n := d.Mul(1 / dist)
			push := n.Mul((minDist - dist) / 2)
			a.Transform.Pos = a.Transform.Pos.Sub(push)
			b.Transform.Pos = b.Transform.Pos.Add(push)

			vn := a.LinVel.Sub(b.LinVel).Dot(n)
			if vn <= 0 {
				continue
			}
			ma, mb := a.Mass, b.Mass
			if ma <= 0 {
				ma = 1
			}
			if mb <= 0 {
				mb = 1
			}
			imp := (1 + w.cfg.Restitution) * vn / (1/ma + 1/mb)
			a.LinVel = a.LinVel.Sub(n.Mul(imp / ma))
			b.LinVel = b.LinVel.Add(n.Mul(imp / mb))
		}
	}
}

func (w *World) collectContacts(out map[pairKey]struct{}) {
	ground := w.bodies[w.ground]
	for i, id := range w.order {
		a := w.bodies[id]
		if a.Kind == Static {
			continue
		}
		if a.grounded || w.sensorHitsGround(a) {
			out[makePair(a.ID, ground.ID)] = struct{}{}
		}
		for _, other := range w.order[i+1:] {
			b := w.bodies[other]
			if b.Kind == Static {
				continue
			}
			if w.touching(a, b) {
				out[makePair(a.ID, b.ID)] = struct{}{}
			}
		}
	}
}

func (w *World) sensorHitsGround(s *Body) bool {
	if s.Kind != Sensor {
		return false
	}
	top := w.cfg.GroundHalfY
	r := s.boundRadius()
	p0, p1 := s.prevPos, s.Transform.Pos
	if p1.Y()-r > top {
		return false
	}
	// Find where the sweep crosses the top face; bodies already below it count
	// only while inside the slab.
	if p0.Y()-r > top && p1.Y() != p0.Y() {
		t := (top + r - p0.Y()) / (p1.Y() - p0.Y())
		hit := p0.Add(p1.Sub(p0).Mul(t))
		return w.overGround(hit)
	}
	return w.overGround(p1) && p1.Y()+r >= -top
}

// touching tests a pair; when either side is a sensor the sensor's sweep from
// its previous position is used so fast bodies cannot pass through.
func (w *World) touching(a, b *Body) bool {
	if a.Kind != Sensor && b.Kind != Sensor {
		d := b.Transform.Pos.Sub(a.Transform.Pos)
		r := a.boundRadius() + b.boundRadius()
		if d.Dot(d) > r*r {
			return false
		}
		d[1] = 0
		minDist := a.horizontalRadius() + b.horizontalRadius()
		// Separation already ran, so resting neighbours sit exactly at minDist.
		return d.Len() <= minDist+1e-6
	}
	s, t := a, b
	if s.Kind != Sensor {
		s, t = b, a
	}
	return sweepHits(s, t)
}

func sweepHits(s, t *Body) bool {
	r := s.boundRadius()
	p0, p1 := s.prevPos, s.Transform.Pos
	seg := p1.Sub(p0)
	segLen := seg.Len()

	// Cheap reject against the target's bounding sphere.
	c := t.Transform.Pos
	if distPointSegment(c, p0, p1) > r+t.boundRadius() {
		return false
	}
	step := r
	if step <= 0 {
		step = 0.25
	}
	n := int(math.Ceil(segLen/step)) + 1
	for i := 0; i <= n; i++ {
		p := p0
		if n > 0 {
			p = p0.Add(seg.Mul(float64(i) / float64(n)))
		}
		if t.distanceTo(p) <= r {
			return true
		}
	}
	return false
}

func distPointSegment(p, a, b mgl64.Vec3) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Len()
	}
	t := mgl64.Clamp(p.Sub(a).Dot(ab)/l2, 0, 1)
	return p.Sub(a.Add(ab.Mul(t))).Len()
}
