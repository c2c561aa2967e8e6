package main

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/session"
	"github.com/milk9111/ravar/signal"
)

const (
	baseWidth  = 1280
	baseHeight = 720

	cueFrames = 45
)

type activeCue struct {
	cue    signal.Cue
	frames int
}

type Game struct {
	session   *session.Session
	presenter *presenter
	overlays  *overlays
	cue       activeCue
}

func NewGame(s *session.Session, p *presenter) *Game {
	g := &Game{
		session:   s,
		presenter: p,
		overlays:  newOverlays(s),
	}
	signal.Subscribe(s.Bus(), signal.CutsceneCue, func(c signal.Cue) {
		g.cue = activeCue{cue: c, frames: cueFrames}
	})
	return g
}

func (g *Game) Update() error {
	g.session.Update()
	if g.session.ExitRequested() {
		return ebiten.Termination
	}
	if g.cue.frames > 0 && !g.session.Clock().Frozen() {
		g.cue.frames--
	}
	g.overlays.Update(g.presenter)
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.presenter.DrawWorld(screen, g.session)
	if g.cue.frames > 0 {
		g.presenter.DrawCue(screen, g.session, g.cue.cue, g.cue.frames)
	}

	if b := g.session.Battle().View(); b.Active {
		drawBattle(screen, b)
	}
	g.overlays.Draw(screen, g.presenter)

	p := g.session.Phase()
	status := fmt.Sprintf("FPS: %.2f  phase: %s  previous: %s  chains: %d", ebiten.ActualFPS(), p.Current(), p.Previous(), g.session.Runner().Len())
	if p.Current() == phase.Pause {
		status += "  (paused)"
	}
	ebitenutil.DebugPrint(screen, status)
}

func (g *Game) LayoutF(outsideWidth, outsideHeight float64) (float64, float64) {
	return baseWidth, baseHeight
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	panic("shouldn't use Layout")
}
