package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"livestock.tv/internal/chat"
	"livestock.tv/internal/protocol"
)

// Run owns the arena until ctx is cancelled or Stop is called. Controls are
// buffered and applied at the next tick boundary.
func (a *Arena) Run(ctx context.Context) error {
	a.baseCtx = ctx
	defer a.stopChat()

	interval := time.Second / time.Duration(a.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Control
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stop:
			return nil
		case c := <-a.controls:
			pending = append(pending, c)
		case req := <-a.watch:
			a.handleWatch(req)
		case id := <-a.unwatch:
			delete(a.watchers, id)
		case <-ticker.C:
			a.stepInternal(pending)
			pending = pending[:0]
		}
	}
}

func (a *Arena) Stop() { close(a.stop) }

// StepOnce advances the arena by a single tick using the same ordering as
// Run. It is intended for tests and deterministic replays.
func (a *Arena) StepOnce(controls ...Control) (tick uint64, digest string) {
	tick = a.tick.Load()
	a.stepInternal(controls)
	return tick, a.stateDigest(tick)
}

func (a *Arena) handleWatch(req WatchRequest) {
	if req.Out != nil && req.SessionID != "" {
		a.watchers[req.SessionID] = req.Out
	}
	if req.Resp != nil {
		req.Resp <- protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       req.SessionID,
			MatchID:         a.matchID,
			State:           a.state.String(),
			TickRateHz:      a.tune.TickRateHz,
			ArenaHalfExtent: a.tune.Arena.HalfExtent,
		}
	}
}

// stepInternal runs one tick: controls, chat, spawns, fire, steering,
// physics, detonation, elimination, then logging and broadcast.
func (a *Arena) stepInternal(controls []Control) {
	stepStart := time.Now()
	nowTick := a.tick.Load()

	for _, c := range controls {
		rec := RecordedControl{Action: c.Action, Channel: c.Channel, Pressed: c.Pressed}
		if c.Action == protocol.ActionRestart {
			// Recorded against the match it closes.
			a.recControls = append(a.recControls, rec)
		}
		err := a.applyControl(c)
		if err != nil {
			rec.Error = err.Error()
		}
		// Camera updates arrive every frame from interactive clients; only
		// failed ones are worth a log line.
		switch {
		case c.Action == protocol.ActionRestart:
		case c.Action != protocol.ActionCamera || err != nil:
			a.recControls = append(a.recControls, rec)
		}
		if c.Resp != nil {
			select {
			case c.Resp <- err:
			default:
			}
		}
	}

	a.drainChat()

	if a.state == StateSpectating {
		if a.debugHeld {
			a.DebugSpawn()
		}
		for ; a.fireEdges > 0; a.fireEdges-- {
			a.fire()
		}
		a.steer()
		started := a.phys.Step(a.dt)
		a.detonate(started)
		a.expireProjectiles()
		a.checkWin(a.eliminate())
	}
	a.fireEdges = 0

	digest := a.stateDigest(nowTick)
	a.writeLog(nowTick, digest)
	a.broadcast(nowTick)
	a.effects = a.effects[:0]

	a.tick.Add(1)
	a.publishStatus(float64(time.Since(stepStart).Microseconds()) / 1000.0)
}

func (a *Arena) applyControl(c Control) error {
	switch c.Action {
	case protocol.ActionConnect:
		if a.chatQueue != nil {
			// Repeated connects collapse to the first.
			return nil
		}
		if err := a.transition(StateConnected, ""); err != nil {
			return err
		}
		channel := c.Channel
		if channel == "" {
			channel = a.match.Channel
		}
		a.match.Channel = strings.TrimPrefix(channel, "#")
		a.startChat(a.match.Channel)
		return nil
	case protocol.ActionStart:
		return a.transition(StateSpectating, "")
	case protocol.ActionFire:
		if c.Pressed && !a.fireHeld {
			a.fireEdges++
		}
		a.fireHeld = c.Pressed
		return nil
	case protocol.ActionDebugSpawn:
		a.debugHeld = c.Pressed
		return nil
	case protocol.ActionCamera:
		if c.Camera == nil || !finite(c.Camera.Pos) || c.Camera.Rot.Len() == 0 || math.IsNaN(c.Camera.Rot.Len()) {
			return ErrBadCamera
		}
		a.camera = *c.Camera
		a.camera.Rot = a.camera.Rot.Normalize()
		return nil
	case protocol.ActionConfigure:
		return a.configure(c.Config)
	case protocol.ActionRestart:
		// Close out the old match's log before its id changes.
		a.writeLog(a.tick.Load(), "")
		a.effects = a.effects[:0]
		a.resetMatch()
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
}

func (a *Arena) configure(p *protocol.MatchConfigPatch) error {
	if !a.state.configurable() {
		return fmt.Errorf("%w in %s", ErrConfigFrozen, a.state)
	}
	if p == nil {
		return nil
	}
	if p.AgentsPerParticipant != nil && *p.AgentsPerParticipant >= 1 {
		a.match.AgentsPerParticipant = *p.AgentsPerParticipant
	}
	if p.FilterJoins != nil {
		a.match.FilterJoins = *p.FilterJoins
	}
	if p.JoinCommand != nil && strings.TrimSpace(*p.JoinCommand) != "" {
		a.match.JoinCommand = strings.TrimSpace(*p.JoinCommand)
	}
	if p.Channel != nil && a.chatQueue == nil {
		a.match.Channel = strings.TrimPrefix(*p.Channel, "#")
	}
	return nil
}

// drainChat empties the chat queue. Messages only spawn while spectating;
// the rest are discarded so a late START does not replay a backlog.
func (a *Arena) drainChat() {
	if a.chatQueue == nil {
		return
	}
	a.chatBuf = a.chatQueue.Drain(a.chatBuf[:0])
	for _, ev := range a.chatBuf {
		switch ev.Kind {
		case chat.EventJoined:
			a.log.Printf("match %s: chat joined #%s", a.matchID, a.match.Channel)
		case chat.EventFailed:
			a.log.Printf("match %s: chat failed: %v", a.matchID, ev.Err)
			a.emit(protocol.Effect{Kind: protocol.EffectNotice, Message: "COULDNT CONNECT RESTART THE GAME"})
		case chat.EventMessage:
			rec := RecordedChat{Sender: ev.Sender, Text: ev.Text}
			if a.state == StateSpectating {
				for _, id := range a.SpawnParticipant(ev.Sender, ev.Text) {
					rec.Spawned = append(rec.Spawned, a.agentName(id))
				}
			}
			a.recChat = append(a.recChat, rec)
		}
	}
}

func (a *Arena) agentName(id AgentID) string {
	for _, ag := range a.byBody {
		if ag.ID == id {
			return ag.Name
		}
	}
	return ""
}

func (a *Arena) writeLog(nowTick uint64, digest string) {
	eventful := len(a.effects) > 0 || len(a.recChat) > 0 || len(a.recControls) > 0
	if a.tickLogger != nil && eventful {
		entry := TickLogEntry{
			MatchID:    a.matchID,
			Tick:       nowTick,
			Time:       time.Now().UTC(),
			TickRateHz: a.tune.TickRateHz,
			State:      a.state.String(),
			Chat:       a.recChat,
			Controls:   a.recControls,
			Effects:    append([]protocol.Effect(nil), a.effects...),
			Population: a.registry.Len(),
			Digest:     digest,
		}
		if err := a.tickLogger.WriteTick(entry); err != nil {
			a.log.Printf("tick log: %v", err)
		}
	}
	a.recChat = nil
	a.recControls = nil
}

func (a *Arena) buildFrame(nowTick uint64) protocol.FrameMsg {
	f := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		MatchID:         a.matchID,
		Tick:            nowTick,
		State:           a.state.String(),
		Winner:          a.winner,
		Agents:          []protocol.AgentView{},
		Projectiles:     []protocol.ProjectileView{},
		Effects:         a.effects,
	}
	for _, ag := range a.registry.Agents() {
		tr, ok := a.phys.Transform(ag.Body)
		if !ok {
			continue
		}
		v, _ := a.phys.LinearVelocity(ag.Body)
		f.Agents = append(f.Agents, protocol.AgentView{
			Name: ag.Name,
			Pos:  *vecArr(tr.Pos),
			Rot:  *quatArr(tr.Rot),
			Vel:  *vecArr(v),
		})
	}
	for _, id := range a.Projectiles() {
		tr, ok := a.phys.Transform(id)
		if !ok {
			continue
		}
		f.Projectiles = append(f.Projectiles, protocol.ProjectileView{ID: uint64(id), Pos: *vecArr(tr.Pos)})
	}
	return f
}

func (a *Arena) broadcast(nowTick uint64) {
	if len(a.watchers) == 0 {
		return
	}
	b, err := json.Marshal(a.buildFrame(nowTick))
	if err != nil {
		a.log.Printf("frame marshal: %v", err)
		return
	}
	for _, out := range a.watchers {
		sendLatest(out, b)
	}
}

func (a *Arena) publishStatus(stepMS float64) {
	s := Status{
		MatchID:    a.matchID,
		State:      a.state.String(),
		Tick:       a.tick.Load(),
		Population: a.registry.Len(),
		Winner:     a.winner,
		Watchers:   len(a.watchers),
		StepMS:     stepMS,
	}
	if a.chatQueue != nil {
		s.ChatQueue = a.chatQueue.Len()
		s.ChatDrops = a.chatQueue.Dropped()
	}
	a.status.Store(s)
}

// sendLatest delivers b, dropping the oldest queued frame if the watcher is
// behind.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
