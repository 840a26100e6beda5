package arena

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/sim/physics"
)

// Neighbours closer than this (squared) are the agent itself or an exact
// overlap and do not count.
const minNeighbourDist2 = 0.01

var (
	errMissingBody = errors.New("agent body missing")
	errNonFinite   = errors.New("non-finite state")
)

var worldUp = mgl64.Vec3{0, 1, 0}

// RightScore sums an inverse-square weight for every other position: positive
// for those on self's right, negative for those on its left.
func RightScore(self physics.Transform, others []mgl64.Vec3) float64 {
	right := self.Right()
	score := 0.0
	for _, p := range others {
		off := p.Sub(self.Pos)
		d2 := off.Dot(off)
		if d2 < minNeighbourDist2 {
			continue
		}
		sign := -1.0
		if off.Dot(right) > 0 {
			sign = 1
		}
		score += sign / d2
	}
	return score
}

// TurnFor converts a right-score into a yaw delta. A crowded right side
// yields a positive (left) turn; scores under threshold yield none.
func TurnFor(score, threshold, rate float64) float64 {
	switch {
	case math.Abs(score) < threshold:
		return 0
	case score > 0:
		return rate
	default:
		return -rate
	}
}

// rotateHorizontal yaws v's horizontal part about world Y, keeping v.Y.
func rotateHorizontal(v mgl64.Vec3, angle float64) mgl64.Vec3 {
	if angle == 0 {
		return v
	}
	r := mgl64.QuatRotate(angle, worldUp).Rotate(mgl64.Vec3{v[0], 0, v[2]})
	return mgl64.Vec3{r[0], v[1], r[2]}
}

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// steer runs one steering step for every live agent. Positions are sampled
// before any agent moves, so the order agents are visited in has no effect.
func (a *Arena) steer() {
	agents := a.registry.Agents()
	positions := make([]mgl64.Vec3, 0, len(agents))
	for _, ag := range agents {
		if tr, ok := a.phys.Transform(ag.Body); ok {
			positions = append(positions, tr.Pos)
		}
	}
	for _, ag := range agents {
		if err := a.steerAgent(ag, positions); err != nil {
			a.log.Printf("match %s: steering %q skipped: %v", a.matchID, ag.Name, err)
		}
	}
}

func (a *Arena) steerAgent(ag *Agent, positions []mgl64.Vec3) error {
	st := a.tune.Steering
	tr, ok := a.phys.Transform(ag.Body)
	if !ok {
		return errMissingBody
	}
	v, ok := a.phys.LinearVelocity(ag.Body)
	if !ok {
		return errMissingBody
	}
	if !finite(tr.Pos) || !finite(v) {
		return fmt.Errorf("%w: pos=%v vel=%v", errNonFinite, tr.Pos, v)
	}

	turn := TurnFor(RightScore(tr, positions), st.TurnThreshold, st.TurnRate)
	if turn != 0 {
		tr = tr.RotateY(turn)
		a.phys.SetRotation(ag.Body, tr.Rot)
		v = rotateHorizontal(v, turn)
	}

	// Soft cap: thrust only while below max speed; blasts may exceed it.
	if math.Hypot(v[0], v[2]) < ag.MaxSpeed {
		v = v.Add(tr.Forward().Mul(st.Acceleration))
	}

	if tr.Pos[1] <= st.DriftMaxHeight {
		right := tr.Right()
		v = v.Sub(right.Mul(right.Dot(v) * st.DriftDamping))
	}

	if !finite(v) {
		return fmt.Errorf("%w: vel=%v", errNonFinite, v)
	}
	a.phys.SetLinearVelocity(ag.Body, v)
	return nil
}
