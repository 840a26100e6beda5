package main

import (
	"sort"
	"time"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/arena"
)

type matchSummary struct {
	MatchID    string
	First      time.Time
	Last       time.Time
	FirstTick  uint64
	LastTick   uint64
	LiveTick   uint64
	Live       bool
	EndTick    uint64
	Ended      bool
	Winner     string
	State      string
	TickRateHz int
	Spawns     int
	Shots      int
	Chat       int
	Peak       int
	Causes     map[string]int
	Order      []string // eliminated names, in order
}

// Duration of live play: from Spectating to End, or to the last entry.
func (m *matchSummary) Duration() time.Duration {
	if !m.Live || m.TickRateHz <= 0 {
		return 0
	}
	end := m.LastTick
	if m.Ended {
		end = m.EndTick
	}
	return time.Duration(end-m.LiveTick) * time.Second / time.Duration(m.TickRateHz)
}

type summarizer struct {
	byID map[string]*matchSummary
}

func newSummarizer() *summarizer { return &summarizer{byID: map[string]*matchSummary{}} }

func (s *summarizer) add(e arena.TickLogEntry) {
	m, ok := s.byID[e.MatchID]
	if !ok {
		m = &matchSummary{MatchID: e.MatchID, First: e.Time, FirstTick: e.Tick, Causes: map[string]int{}}
		s.byID[e.MatchID] = m
	}
	m.Last = e.Time
	m.LastTick = e.Tick
	m.State = e.State
	m.TickRateHz = e.TickRateHz
	m.Chat += len(e.Chat)
	if e.Population > m.Peak {
		m.Peak = e.Population
	}
	for _, ef := range e.Effects {
		switch ef.Kind {
		case protocol.EffectSpawn:
			if ef.Name == "" {
				m.Shots++
			} else {
				m.Spawns++
			}
		case protocol.EffectDestroy:
			if ef.Name == "" {
				continue
			}
			cause := ef.Cause
			if cause == "" {
				cause = "UNKNOWN"
			}
			m.Causes[cause]++
			m.Order = append(m.Order, ef.Name)
		case protocol.EffectState:
			switch ef.State {
			case protocol.StateSpectating:
				if !m.Live {
					m.Live = true
					m.LiveTick = e.Tick
				}
			case protocol.StateEnd:
				m.Ended = true
				m.EndTick = e.Tick
				m.Winner = ef.Winner
			}
		}
	}
}

// matches returns summaries ordered by first appearance.
func (s *summarizer) matches() []*matchSummary {
	out := make([]*matchSummary, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].First.Equal(out[j].First) {
			return out[i].First.Before(out[j].First)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out
}
