package arena

import (
	"math"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/physics"
)

// DeathCause reports why tr violates the arena rules, or "" if it does not.
func DeathCause(tr physics.Transform, halfExtent, toppleUpDot float64) string {
	if tr.Up().Dot(worldUp) < toppleUpDot {
		return protocol.CauseToppled
	}
	for _, c := range tr.Pos {
		if math.Abs(c) > halfExtent {
			return protocol.CauseOutOfBounds
		}
	}
	return ""
}

// eliminate removes every agent that toppled or left the arena and returns
// their names. An agent leaves the registry in the same step its body is
// despawned, so it can never be eliminated twice.
func (a *Arena) eliminate() []string {
	var out []string
	for _, ag := range a.registry.Agents() {
		tr, ok := a.phys.Transform(ag.Body)
		if !ok {
			a.log.Printf("match %s: %q has no body; dropping", a.matchID, ag.Name)
			a.removeAgent(ag)
			a.emit(protocol.Effect{Kind: protocol.EffectDestroy, Name: ag.Name})
			out = append(out, ag.Name)
			continue
		}
		cause := DeathCause(tr, a.tune.Arena.HalfExtent, a.tune.Arena.ToppleUpDot)
		if cause == "" {
			continue
		}
		a.removeAgent(ag)
		a.emit(protocol.Effect{Kind: protocol.EffectDestroy, Name: ag.Name, Pos: vecArr(tr.Pos), Cause: cause})
		a.emit(protocol.Effect{Kind: protocol.EffectExplosion, Pos: vecArr(tr.Pos)})
		a.log.Printf("match %s: %q eliminated (%s) at %.1f,%.1f,%.1f", a.matchID, ag.Name, cause, tr.Pos[0], tr.Pos[1], tr.Pos[2])
		out = append(out, ag.Name)
	}
	return out
}

func (a *Arena) removeAgent(ag *Agent) {
	a.registry.Remove(ag.Name)
	delete(a.byBody, ag.Body)
	a.phys.Despawn(ag.Body)
}

// checkWin ends the match when eliminations this tick left exactly one agent.
// Losing everyone at once leaves no winner and the match keeps running.
func (a *Arena) checkWin(eliminated []string) {
	if len(eliminated) == 0 || a.state != StateSpectating {
		return
	}
	name, ok := a.registry.Sole()
	if !ok {
		return
	}
	if err := a.transition(StateEnd, name); err != nil {
		a.log.Printf("match %s: %v", a.matchID, err)
		return
	}
	a.log.Printf("match %s: %s WON", a.matchID, name)
}
