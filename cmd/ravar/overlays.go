package main

import (
	"fmt"
	"image/color"

	"github.com/ebitenui/ebitenui"
	imageui "github.com/ebitenui/ebitenui/image"
	"github.com/ebitenui/ebitenui/widget"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	ebtext "github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/milk9111/ravar/battle"
	"github.com/milk9111/ravar/session"
	"golang.org/x/image/colornames"
	"golang.org/x/image/font/basicfont"
)

var (
	white        = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	btnTextColor = &widget.ButtonTextColor{Idle: white}
)

// overlays holds one ebitenui tree per overlay scene. Each is drawn only while
// the streamer reports its scene as visible.
type overlays struct {
	session *session.Session

	menu   *ebitenui.UI
	pause  *ebitenui.UI
	dialog *ebitenui.UI

	speaker *widget.Text
	line    *widget.Text
}

func newOverlays(s *session.Session) *overlays {
	var face ebtext.Face = ebtext.NewGoXFace(basicfont.Face7x13)
	o := &overlays{session: s}

	o.menu = centeredPanel(&face, "RAVAR",
		button(&face, "Start", func() { s.Start() }),
		button(&face, "Exit", func() { s.Exit() }),
	)
	o.pause = centeredPanel(&face, "Paused",
		button(&face, "Resume", func() { s.Pause(false) }),
		button(&face, "Quit to menu", func() { s.Quit() }),
	)
	o.dialog, o.speaker, o.line = dialogBox(&face)
	return o
}

func button(face *ebtext.Face, label string, clicked func()) *widget.Button {
	img := imageui.NewNineSliceColor(color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 255})
	return widget.NewButton(
		widget.ButtonOpts.Image(&widget.ButtonImage{Idle: img, Pressed: img}),
		widget.ButtonOpts.Text(label, face, btnTextColor),
		widget.ButtonOpts.WidgetOpts(widget.WidgetOpts.LayoutData(widget.RowLayoutData{Position: widget.RowLayoutPositionCenter})),
		widget.ButtonOpts.ClickedHandler(func(args *widget.ButtonClickedEventArgs) {
			clicked()
		}),
	)
}

func centeredPanel(face *ebtext.Face, title string, buttons ...*widget.Button) *ebitenui.UI {
	panel := widget.NewContainer(
		widget.ContainerOpts.BackgroundImage(imageui.NewNineSliceColor(color.NRGBA{A: 200})),
		widget.ContainerOpts.Layout(widget.NewRowLayout(
			widget.RowLayoutOpts.Direction(widget.DirectionVertical),
			widget.RowLayoutOpts.Spacing(10),
			widget.RowLayoutOpts.Padding(&widget.Insets{Top: 20, Bottom: 20, Left: 30, Right: 30}),
		)),
		widget.ContainerOpts.WidgetOpts(
			widget.WidgetOpts.MinSize(baseWidth/3, baseHeight/3),
			widget.WidgetOpts.LayoutData(widget.AnchorLayoutData{HorizontalPosition: widget.AnchorLayoutPositionCenter, VerticalPosition: widget.AnchorLayoutPositionCenter}),
		),
	)
	panel.AddChild(widget.NewText(
		widget.TextOpts.Text(title, face, white),
		widget.TextOpts.WidgetOpts(widget.WidgetOpts.LayoutData(widget.RowLayoutData{Position: widget.RowLayoutPositionCenter})),
	))
	for _, b := range buttons {
		panel.AddChild(b)
	}

	root := widget.NewContainer(widget.ContainerOpts.Layout(widget.NewAnchorLayout()))
	root.AddChild(panel)
	return &ebitenui.UI{Container: root}
}

func dialogBox(face *ebtext.Face) (*ebitenui.UI, *widget.Text, *widget.Text) {
	speaker := widget.NewText(widget.TextOpts.Text("", face, colornames.Gold))
	line := widget.NewText(widget.TextOpts.Text("", face, white))

	panel := widget.NewContainer(
		widget.ContainerOpts.BackgroundImage(imageui.NewNineSliceColor(color.NRGBA{R: 0x10, G: 0x10, B: 0x30, A: 230})),
		widget.ContainerOpts.Layout(widget.NewRowLayout(
			widget.RowLayoutOpts.Direction(widget.DirectionVertical),
			widget.RowLayoutOpts.Spacing(8),
			widget.RowLayoutOpts.Padding(&widget.Insets{Top: 16, Bottom: 16, Left: 24, Right: 24}),
		)),
		widget.ContainerOpts.WidgetOpts(
			widget.WidgetOpts.MinSize(baseWidth-80, baseHeight/5),
			widget.WidgetOpts.LayoutData(widget.AnchorLayoutData{HorizontalPosition: widget.AnchorLayoutPositionCenter, VerticalPosition: widget.AnchorLayoutPositionEnd}),
		),
	)
	panel.AddChild(speaker)
	panel.AddChild(line)

	root := widget.NewContainer(widget.ContainerOpts.Layout(widget.NewAnchorLayout()))
	root.AddChild(panel)
	return &ebitenui.UI{Container: root}, speaker, line
}

func (o *overlays) names() (menu, pause, dialog string) {
	ov := o.session.Config().Overlays
	return ov.MainMenu, ov.Pause, ov.Dialog
}

func (o *overlays) Update(p *presenter) {
	menu, pause, dialog := o.names()

	view := o.session.Dialog().View()
	o.speaker.Label = view.Speaker
	o.line.Label = view.Text
	if view.Active && !view.Typing && view.Line+1 < view.Lines {
		o.line.Label += " >"
	}

	switch {
	case p.Visible(menu):
		o.menu.Update()
	case p.Visible(pause):
		o.pause.Update()
	case p.Visible(dialog) || view.Active:
		o.dialog.Update()
	}
}

func (o *overlays) Draw(screen *ebiten.Image, p *presenter) {
	menu, pause, dialog := o.names()
	if o.session.Dialog().Active() && (p.Visible(dialog) || dialog == "") {
		o.dialog.Draw(screen)
	}
	if p.Visible(pause) {
		o.pause.Draw(screen)
	}
	if p.Visible(menu) {
		o.menu.Draw(screen)
	}
}

func drawBattle(screen *ebiten.Image, v battle.View) {
	screen.Fill(colornames.Darkolivegreen)

	drawFighter(screen, v.Opponent, baseWidth-420, 80)
	drawFighter(screen, v.Player, 120, baseHeight-260)

	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s battle  round %d  opponents left %d", v.Source, v.Round, v.Left), 20, baseHeight-40)
}

func drawFighter(screen *ebiten.Image, f battle.Fighter, x, y float32) {
	vector.FillRect(screen, x, y, 300, 90, colornames.Whitesmoke, false)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s  Lv%d", f.Species, f.Level), int(x)+10, int(y)+10)

	ratio := float32(0)
	if f.MaxHP > 0 {
		ratio = float32(f.HP) / float32(f.MaxHP)
	}
	bar := colornames.Limegreen
	if ratio < 0.25 {
		bar = colornames.Crimson
	}
	vector.FillRect(screen, x+10, y+50, 280, 14, colornames.Dimgray, false)
	vector.FillRect(screen, x+10, y+50, 280*ratio, 14, bar, false)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("HP %d/%d", f.HP, f.MaxHP), int(x)+10, int(y)+68)
}
