package main

import (
	"image/color"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/milk9111/ravar/movement"
	"github.com/milk9111/ravar/scene"
	"github.com/milk9111/ravar/session"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/colornames"
)

const zoom = 3

// presenter keeps track of the scenes the streamer has made visible and
// draws the world ones.
type presenter struct {
	visible map[string]scene.Manifest
	log     logrus.FieldLogger
}

func newPresenter(log logrus.FieldLogger) *presenter {
	return &presenter{
		visible: make(map[string]scene.Manifest),
		log:     log.WithField("component", "presenter"),
	}
}

func (p *presenter) Show(m scene.Manifest) {
	p.visible[m.Name] = m
	p.log.WithField("scene", m.Name).Debug("show")
}

func (p *presenter) Hide(m scene.Manifest) {
	delete(p.visible, m.Name)
	p.log.WithField("scene", m.Name).Debug("hide")
}

func (p *presenter) Visible(name string) bool {
	_, ok := p.visible[name]
	return ok
}

func (p *presenter) worldScenes() []scene.Manifest {
	var out []scene.Manifest
	for _, m := range p.visible {
		if m.SceneScope() == signal.ScopeWorld {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func tileColor(tile rune) color.Color {
	switch tile {
	case scene.TileSolid:
		return colornames.Darkslategray
	case scene.TileGrass:
		return colornames.Forestgreen
	case scene.TileCave:
		return colornames.Dimgray
	default:
		return colornames.Tan
	}
}

// camera returns the screen offset that keeps the player centered.
func camera(s *session.Session) (float64, float64, float64) {
	size := s.Movement().Settings().TileSize * zoom
	pl := s.Movement().Player()
	px, py := playerPosition(pl)
	return baseWidth/2 - px*size - size/2, baseHeight/2 - py*size - size/2, size
}

func playerPosition(pl movement.Player) (float64, float64) {
	if !pl.Moving {
		return float64(pl.X), float64(pl.Y)
	}
	t := pl.Progress
	return float64(pl.FromX) + float64(pl.X-pl.FromX)*t, float64(pl.FromY) + float64(pl.Y-pl.FromY)*t
}

func (p *presenter) DrawWorld(screen *ebiten.Image, s *session.Session) {
	scenes := p.worldScenes()
	if len(scenes) == 0 {
		screen.Fill(colornames.Midnightblue)
		return
	}
	screen.Fill(colornames.Black)

	ox, oy, size := camera(s)
	for _, m := range scenes {
		for y := 0; y < m.Height(); y++ {
			for x := 0; x < m.Width(); x++ {
				wx := float64(m.Origin.X + x)
				wy := float64(m.Origin.Y + y)
				vector.FillRect(screen, float32(ox+wx*size), float32(oy+wy*size), float32(size), float32(size), tileColor(m.TileAt(x, y)), false)
			}
		}
		for _, portal := range m.Portals {
			wx := float64(m.Origin.X + portal.X)
			wy := float64(m.Origin.Y + portal.Y)
			vector.FillRect(screen, float32(ox+wx*size+size/4), float32(oy+wy*size+size/4), float32(size/2), float32(size/2), colornames.Mediumpurple, false)
		}
	}

	for _, a := range s.Movement().Actors() {
		x, y := a.Position()
		c := color.Color(colornames.Royalblue)
		if b, ok := a.(*movement.Battler); ok {
			c = colornames.Orange
			if !b.Alive() {
				c = colornames.Gray
			}
		}
		vector.FillRect(screen, float32(ox+float64(x)*size+2), float32(oy+float64(y)*size+2), float32(size-4), float32(size-4), c, false)
	}

	px, py := playerPosition(s.Movement().Player())
	vector.FillRect(screen, float32(ox+px*size+2), float32(oy+py*size+2), float32(size-4), float32(size-4), colornames.Crimson, false)
}

// DrawCue renders a cutscene beat. "flash" blinks the whole screen, anything
// else puts a marker over the named actor.
func (p *presenter) DrawCue(screen *ebiten.Image, s *session.Session, cue signal.Cue, framesLeft int) {
	if cue.Name == "flash" {
		if (framesLeft/5)%2 == 0 {
			screen.Fill(colornames.White)
		}
		return
	}
	ox, oy, size := camera(s)
	for _, a := range s.Movement().Actors() {
		if a.ActorID() != cue.Actor {
			continue
		}
		x, y := a.Position()
		ebitenutil.DebugPrintAt(screen, "!", int(ox+float64(x)*size+size/2), int(oy+float64(y)*size-size/2))
	}
}
