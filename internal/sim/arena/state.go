package arena

import (
	"fmt"

	"livestock.tv/internal/protocol"
)

type MatchState uint8

const (
	// StateStart is pre-match configuration; the chat bridge is idle.
	StateStart MatchState = iota
	// StateConnected has the chat bridge running but spawning disabled.
	StateConnected
	// StateSpectating runs every gameplay system.
	StateSpectating
	// StateEnd is terminal for the match.
	StateEnd
)

func (s MatchState) String() string {
	switch s {
	case StateStart:
		return protocol.StateStart
	case StateConnected:
		return protocol.StateConnected
	case StateSpectating:
		return protocol.StateSpectating
	case StateEnd:
		return protocol.StateEnd
	}
	return "UNKNOWN"
}

// CanTransition reports whether s may move to next. Transitions only go
// forward; leaving End needs a new match.
func (s MatchState) CanTransition(next MatchState) bool {
	switch s {
	case StateStart:
		return next == StateConnected || next == StateSpectating
	case StateConnected:
		return next == StateSpectating
	case StateSpectating:
		return next == StateEnd
	}
	return false
}

// configurable reports whether match settings may still change.
func (s MatchState) configurable() bool {
	return s == StateStart || s == StateConnected
}

func (a *Arena) transition(next MatchState, winner string) error {
	if !a.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.state, next)
	}
	a.log.Printf("match %s: %s -> %s", a.matchID, a.state, next)
	a.state = next
	a.winner = winner
	a.emit(protocol.Effect{Kind: protocol.EffectState, State: next.String(), Winner: winner})
	return nil
}
