package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"livestock.tv/internal/protocol"
)

const panelWidth = 32

var (
	styleDefault    = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite)
	styleBorder     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleAgent      = tcell.StyleDefault.Foreground(tcell.ColorLime)
	styleDown       = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	styleProjectile = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleCamera     = tcell.StyleDefault.Foreground(tcell.ColorAqua).Bold(true)
	styleNotice     = tcell.StyleDefault.Foreground(tcell.ColorFuchsia)
	styleBanner     = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow).Bold(true)
	styleHelp       = tcell.StyleDefault.Foreground(tcell.ColorSilver)
)

func drawText(s tcell.Screen, x, y int, text string, style tcell.Style) {
	for i, r := range []rune(text) {
		s.SetContent(x+i, y, r, nil, style)
	}
}

func drawBox(s tcell.Screen, x, y, w, h int) {
	for i := x + 1; i < x+w-1; i++ {
		s.SetContent(i, y, tcell.RuneHLine, nil, styleBorder)
		s.SetContent(i, y+h-1, tcell.RuneHLine, nil, styleBorder)
	}
	for j := y + 1; j < y+h-1; j++ {
		s.SetContent(x, j, tcell.RuneVLine, nil, styleBorder)
		s.SetContent(x+w-1, j, tcell.RuneVLine, nil, styleBorder)
	}
	s.SetContent(x, y, tcell.RuneULCorner, nil, styleBorder)
	s.SetContent(x+w-1, y, tcell.RuneURCorner, nil, styleBorder)
	s.SetContent(x, y+h-1, tcell.RuneLLCorner, nil, styleBorder)
	s.SetContent(x+w-1, y+h-1, tcell.RuneLRCorner, nil, styleBorder)
}

// render draws the whole console: a top-down arena map, a status panel and
// the key help line.
func render(s tcell.Screen, v *view) {
	s.Clear()
	w, h := s.Size()
	if w < panelWidth+12 || h < 10 {
		drawText(s, 0, 0, "terminal too small", styleDefault)
		s.Show()
		return
	}

	mapW, mapH := w-panelWidth-1, h-1
	drawBox(s, 0, 0, mapW, mapH)
	innerW, innerH := mapW-2, mapH-2

	for _, p := range v.Projectiles {
		if c, r, ok := v.project(p.Pos[0], p.Pos[2], innerW, innerH); ok {
			s.SetContent(1+c, 1+r, '*', nil, styleProjectile)
		}
	}
	for _, a := range v.Agents {
		if c, r, ok := v.project(a.Pos[0], a.Pos[2], innerW, innerH); ok {
			g := glyph(a)
			st := styleAgent
			if g == 'x' {
				st = styleDown
			}
			s.SetContent(1+c, 1+r, g, nil, st)
		}
	}
	if c, r, ok := v.project(v.Camera.Pos.X(), v.Camera.Pos.Z(), innerW, innerH); ok {
		s.SetContent(1+c, 1+r, '#', nil, styleCamera)
	}

	if b := v.Banner(); b != "" {
		drawText(s, (mapW-len(b))/2, mapH/2, " "+b+" ", styleBanner)
	}

	x := mapW + 1
	y := 0
	line := func(text string, st tcell.Style) {
		if y < mapH {
			drawText(s, x, y, truncate(text, panelWidth-1), st)
		}
		y++
	}
	line("LIVESTOCK", styleCamera)
	line("match "+v.MatchID, styleDefault)
	line("state "+v.State, styleDefault)
	line(fmt.Sprintf("tick  %d", v.Tick), styleDefault)
	line(fmt.Sprintf("alive %d  out %d", len(v.Agents), v.Eliminated), styleDefault)
	line(fmt.Sprintf("shots %d  live %d", v.Shots, len(v.Projectiles)), styleDefault)
	if v.DebugSpawn {
		line("debug spawn ON", styleNotice)
	} else {
		y++
	}
	y++
	for i, a := range v.Agents {
		if i >= 8 {
			line(fmt.Sprintf("... %d more", len(v.Agents)-i), styleHelp)
			break
		}
		line(fmt.Sprintf("%c %-14s %6.1f %6.1f", glyph(a), a.Name, a.Pos[0], a.Pos[2]), styleAgent)
	}
	y++
	for _, n := range v.Notices {
		line(n, styleNotice)
	}

	drawText(s, 0, h-1, truncate(helpLine(v.State), w), styleHelp)
	s.Show()
}

func helpLine(state string) string {
	switch state {
	case protocol.StateStart:
		return "c connect  r restart  q quit"
	case protocol.StateConnected:
		return "s start  r restart  q quit"
	case protocol.StateSpectating:
		return "space fire  d debug spawn  arrows camera  r restart  q quit"
	}
	return "r restart  q quit"
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	if n <= 1 {
		return string(rs[:n])
	}
	return string(rs[:n-1]) + "…"
}
