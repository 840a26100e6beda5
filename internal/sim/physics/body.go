package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type BodyID uint64

type Kind uint8

const (
	Dynamic Kind = iota + 1
	Static
	// Sensor bodies integrate like Dynamic ones but are never pushed out of
	// contact; they only report collision starts.
	Sensor
)

func (k Kind) String() string {
	switch k {
	case Dynamic:
		return "DYNAMIC"
	case Static:
		return "STATIC"
	case Sensor:
		return "SENSOR"
	}
	return "UNKNOWN"
}

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

// Transform is a position plus orientation. Local axes follow the usual
// right-handed convention: +X right, +Y up, -Z forward.
type Transform struct {
	Pos mgl64.Vec3
	Rot mgl64.Quat
}

func NewTransform(pos mgl64.Vec3, yaw float64) Transform {
	return Transform{Pos: pos, Rot: mgl64.QuatRotate(yaw, axisY)}
}

func (t Transform) Forward() mgl64.Vec3 { return t.Rot.Rotate(axisZ.Mul(-1)) }
func (t Transform) Right() mgl64.Vec3   { return t.Rot.Rotate(axisX) }
func (t Transform) Up() mgl64.Vec3      { return t.Rot.Rotate(axisY) }

// RotateY yaws the transform about the world Y axis.
func (t Transform) RotateY(angle float64) Transform {
	t.Rot = mgl64.QuatRotate(angle, axisY).Mul(t.Rot).Normalize()
	return t
}

// Sphere is a collider sphere in body-local space.
type Sphere struct {
	Offset mgl64.Vec3
	Radius float64
}

// BodySpec describes a body to add. A zero HalfExtents means no box part.
type BodySpec struct {
	Kind      Kind
	Transform Transform
	LinVel    mgl64.Vec3

	HalfExtents mgl64.Vec3
	Spheres     []Sphere
	Mass        float64
	// Tag is opaque to the substrate; callers use it to tell bodies apart.
	Tag string
}

type Body struct {
	ID   BodyID
	Kind Kind
	Tag  string

	Transform Transform
	LinVel    mgl64.Vec3
	AngVel    mgl64.Vec3

	HalfExtents mgl64.Vec3
	Spheres     []Sphere
	Mass        float64

	prevPos  mgl64.Vec3
	grounded bool
}

// Grounded reports whether the body rested on the ground after the last step.
func (b *Body) Grounded() bool { return b.grounded }

// boundRadius is the radius of a sphere centered on the body origin that
// contains every collider part.
func (b *Body) boundRadius() float64 {
	r := b.HalfExtents.Len()
	for _, s := range b.Spheres {
		if v := s.Offset.Len() + s.Radius; v > r {
			r = v
		}
	}
	return r
}

// horizontalRadius is used for body-body separation between dynamic bodies.
func (b *Body) horizontalRadius() float64 {
	r := math.Max(b.HalfExtents.X(), b.HalfExtents.Z())
	for _, s := range b.Spheres {
		if s.Radius > r {
			r = s.Radius
		}
	}
	return r
}

// extentY is the half height of the rotated box along world Y.
func (b *Body) extentY() float64 {
	h := b.HalfExtents
	rot := b.Transform.Rot
	e := h.X()*math.Abs(rot.Rotate(axisX).Y()) +
		h.Y()*math.Abs(rot.Rotate(axisY).Y()) +
		h.Z()*math.Abs(rot.Rotate(axisZ).Y())
	for _, s := range b.Spheres {
		c := rot.Rotate(s.Offset).Y()
		if v := s.Radius - c; v > e {
			e = v
		}
	}
	return e
}

// distanceTo returns the distance from p to the closest collider part.
func (b *Body) distanceTo(p mgl64.Vec3) float64 {
	best := math.Inf(1)
	if b.HalfExtents != (mgl64.Vec3{}) {
		local := b.Transform.Rot.Conjugate().Rotate(p.Sub(b.Transform.Pos))
		h := b.HalfExtents
		clamped := mgl64.Vec3{
			mgl64.Clamp(local.X(), -h.X(), h.X()),
			mgl64.Clamp(local.Y(), -h.Y(), h.Y()),
			mgl64.Clamp(local.Z(), -h.Z(), h.Z()),
		}
		best = local.Sub(clamped).Len()
	}
	for _, s := range b.Spheres {
		c := b.Transform.Pos.Add(b.Transform.Rot.Rotate(s.Offset))
		if d := p.Sub(c).Len() - s.Radius; d < best {
			best = d
		}
	}
	if best < 0 {
		best = 0
	}
	return best
}
