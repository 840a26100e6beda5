package arena

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/chat"
	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/physics"
	"livestock.tv/internal/sim/tuning"
)

// fakeSubstrate moves bodies in straight lines and reports exactly the
// collisions a test queues.
type fakeSubstrate struct {
	next      physics.BodyID
	bodies    map[physics.BodyID]*fakeBody
	pending   []physics.CollisionStarted
	despawned map[physics.BodyID]int
	steps     int
}

type fakeBody struct {
	spec physics.BodySpec
	tr   physics.Transform
	v    mgl64.Vec3
}

func newFakeSubstrate() *fakeSubstrate {
	return &fakeSubstrate{bodies: map[physics.BodyID]*fakeBody{}, despawned: map[physics.BodyID]int{}}
}

func (f *fakeSubstrate) Spawn(spec physics.BodySpec) physics.BodyID {
	f.next++
	f.bodies[f.next] = &fakeBody{spec: spec, tr: spec.Transform, v: spec.LinVel}
	return f.next
}

func (f *fakeSubstrate) Despawn(id physics.BodyID) {
	if _, ok := f.bodies[id]; ok {
		f.despawned[id]++
		delete(f.bodies, id)
	}
}

func (f *fakeSubstrate) Transform(id physics.BodyID) (physics.Transform, bool) {
	b, ok := f.bodies[id]
	if !ok {
		return physics.Transform{}, false
	}
	return b.tr, true
}

func (f *fakeSubstrate) SetRotation(id physics.BodyID, rot mgl64.Quat) bool {
	b, ok := f.bodies[id]
	if ok {
		b.tr.Rot = rot
	}
	return ok
}

func (f *fakeSubstrate) LinearVelocity(id physics.BodyID) (mgl64.Vec3, bool) {
	b, ok := f.bodies[id]
	if !ok {
		return mgl64.Vec3{}, false
	}
	return b.v, true
}

func (f *fakeSubstrate) SetLinearVelocity(id physics.BodyID, v mgl64.Vec3) bool {
	b, ok := f.bodies[id]
	if ok {
		b.v = v
	}
	return ok
}

func (f *fakeSubstrate) Step(dt float64) []physics.CollisionStarted {
	f.steps++
	for _, b := range f.bodies {
		b.tr.Pos = b.tr.Pos.Add(b.v.Mul(dt))
	}
	out := f.pending
	f.pending = nil
	return out
}

func (f *fakeSubstrate) place(id physics.BodyID, pos mgl64.Vec3, yaw float64, v mgl64.Vec3) {
	b := f.bodies[id]
	b.tr = physics.NewTransform(pos, yaw)
	b.v = v
}

func (f *fakeSubstrate) topple(id physics.BodyID) {
	f.bodies[id].tr.Rot = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{1, 0, 0})
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []TickLogEntry
}

func (r *recordingLogger) WriteTick(e TickLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingLogger) effects(kind string) []protocol.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Effect
	for _, e := range r.entries {
		for _, ef := range e.Effects {
			if ef.Kind == kind {
				out = append(out, ef)
			}
		}
	}
	return out
}

// fakeListener records Listen calls and hands the queue to the test.
type fakeListener struct {
	calls    []string
	queue    *chat.Queue
	ctx      context.Context
	onListen func(q *chat.Queue)
}

func (l *fakeListener) Listen(ctx context.Context, channel string, q *chat.Queue) {
	l.calls = append(l.calls, channel)
	l.queue = q
	l.ctx = ctx
	if l.onListen != nil {
		l.onListen(q)
	}
}

type harness struct {
	a    *Arena
	fake *fakeSubstrate
	log  *recordingLogger
}

func newHarness(t *testing.T, mutate func(*tuning.Tuning)) *harness {
	t.Helper()
	tune := tuning.Defaults()
	if mutate != nil {
		mutate(&tune)
	}
	h := &harness{log: &recordingLogger{}}
	matchNum := 0
	h.a = New(tune, Options{
		Seed: 7,
		NewSubstrate: func(tuning.Tuning) Substrate {
			h.fake = newFakeSubstrate()
			return h.fake
		},
		NewMatchID: func() string {
			matchNum++
			return fmt.Sprintf("M%d", matchNum)
		},
	})
	h.a.SetTickLogger(h.log)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.a.StepOnce(Control{Action: protocol.ActionStart})
	if h.a.State() != StateSpectating {
		t.Fatalf("state=%s want SPECTATING", h.a.State())
	}
}

func (h *harness) spawn(t *testing.T, name string) *Agent {
	t.Helper()
	if _, ok := h.a.TrySpawn(name, ""); !ok {
		t.Fatalf("spawn %q rejected", name)
	}
	ag, _ := h.a.Registry().Get(name)
	return ag
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func nearVec(a, b mgl64.Vec3) bool { return a.Sub(b).Len() < 1e-9 }

func TestRegistry_InsertRemove(t *testing.T) {
	r := NewRegistry()
	if !r.Insert(&Agent{ID: 2, Name: "b"}) || !r.Insert(&Agent{ID: 1, Name: "a"}) {
		t.Fatalf("insert failed")
	}
	if r.Insert(&Agent{ID: 3, Name: "a"}) {
		t.Fatalf("duplicate name accepted")
	}
	if r.Insert(&Agent{ID: 4}) {
		t.Fatalf("empty name accepted")
	}
	if got := r.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("names=%v", got)
	}
	if ags := r.Agents(); ags[0].ID != 1 || ags[1].ID != 2 {
		t.Fatalf("agents not in spawn order")
	}
	if _, ok := r.Sole(); ok {
		t.Fatalf("two agents reported as sole")
	}
	if _, ok := r.Remove("a"); !ok {
		t.Fatalf("remove failed")
	}
	if _, ok := r.Remove("a"); ok {
		t.Fatalf("second remove should report missing")
	}
	if n, ok := r.Sole(); !ok || n != "b" {
		t.Fatalf("sole=%q,%v", n, ok)
	}
}

func TestMatchState_Transitions(t *testing.T) {
	allowed := map[[2]MatchState]bool{
		{StateStart, StateConnected}:      true,
		{StateStart, StateSpectating}:     true,
		{StateConnected, StateSpectating}: true,
		{StateSpectating, StateEnd}:       true,
	}
	all := []MatchState{StateStart, StateConnected, StateSpectating, StateEnd}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]MatchState{from, to}] {
				t.Fatalf("%s -> %s: got %v", from, to, got)
			}
		}
	}
}
