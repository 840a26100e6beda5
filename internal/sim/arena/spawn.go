package arena

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/physics"
)

// ParticipantNames lists the agent names one chat participant owns. With a
// single agent per participant the name is used as-is; otherwise each agent
// gets a 1-based "#i" suffix.
func ParticipantNames(sender string, perParticipant int) []string {
	if perParticipant <= 1 {
		return []string{sender}
	}
	out := make([]string, perParticipant)
	for i := range out {
		out[i] = fmt.Sprintf("%s#%d", sender, i+1)
	}
	return out
}

// qualifies applies the join filter.
func (a *Arena) qualifies(text string) bool {
	if !a.match.FilterJoins {
		return true
	}
	return strings.TrimSpace(text) == a.match.JoinCommand
}

// TrySpawn spawns one agent called name for a chat message with the given
// text. It returns false when the match is not running, the text fails the
// join filter, or the name is already alive.
func (a *Arena) TrySpawn(name, text string) (AgentID, bool) {
	if !a.qualifies(text) {
		return 0, false
	}
	return a.spawnNamed(name)
}

// SpawnParticipant applies TrySpawn for each of sender's agent names. Names
// already alive are skipped independently of the others.
func (a *Arena) SpawnParticipant(sender, text string) []AgentID {
	if sender == "" || !a.qualifies(text) {
		return nil
	}
	var out []AgentID
	for _, name := range ParticipantNames(sender, a.match.AgentsPerParticipant) {
		if id, ok := a.spawnNamed(name); ok {
			out = append(out, id)
		}
	}
	return out
}

// DebugSpawn spawns a synthetic agent named after the configured debug name
// plus the first unused counter value. The join filter does not apply.
func (a *Arena) DebugSpawn() (AgentID, bool) {
	if a.state != StateSpectating {
		return 0, false
	}
	base := a.match.DebugSpawnName
	for {
		a.debugSeq++
		name := fmt.Sprintf("%s%d", base, a.debugSeq)
		if a.registry.Has(name) {
			continue
		}
		return a.spawnNamed(name)
	}
}

func (a *Arena) spawnNamed(name string) (AgentID, bool) {
	if a.state != StateSpectating || name == "" || a.registry.Has(name) {
		return 0, false
	}
	half := a.tune.Arena.HalfExtent
	pos := mgl64.Vec3{
		(a.rng.Float64()*2 - 1) * half,
		a.tune.Arena.SpawnHeight,
		(a.rng.Float64()*2 - 1) * half,
	}
	yaw := a.rng.Float64() * 2 * math.Pi
	lo, hi := a.tune.Steering.MaxSpeedMin, a.tune.Steering.MaxSpeedMax
	maxSpeed := lo + a.rng.Float64()*(hi-lo)

	tr := physics.NewTransform(pos, yaw)
	body := a.phys.Spawn(physics.BodySpec{
		Kind:        physics.Dynamic,
		Transform:   tr,
		HalfExtents: agentHalfExtents,
		Spheres:     []physics.Sphere{agentHead},
		Mass:        a.tune.Physics.AgentMass,
		Tag:         "agent:" + name,
	})
	a.nextAgentID++
	ag := &Agent{
		ID:        a.nextAgentID,
		Name:      name,
		Body:      body,
		MaxSpeed:  maxSpeed,
		SpawnTick: a.tick.Load(),
	}
	a.registry.Insert(ag)
	a.byBody[body] = ag
	if n := a.registry.Len(); n > a.peak {
		a.peak = n
	}
	a.emit(protocol.Effect{
		Kind:     protocol.EffectSpawn,
		Name:     name,
		Pos:      vecArr(pos),
		Rot:      quatArr(tr.Rot),
		MaxSpeed: maxSpeed,
	})
	return ag.ID, true
}
