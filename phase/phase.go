package phase

import "github.com/milk9111/ravar/signal"

// Phase is one mutually exclusive mode of the session.
type Phase int

const (
	World Phase = iota
	Battle
	Dialog
	Cutscene
	Pause
	Menu
)

var phaseNames = [...]string{
	World:    "world",
	Battle:   "battle",
	Dialog:   "dialog",
	Cutscene: "cutscene",
	Pause:    "pause",
	Menu:     "menu",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Parse returns the phase with the given name.
func Parse(name string) (Phase, bool) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), true
		}
	}
	return 0, false
}

// Change is the payload of Changed.
type Change struct {
	From  Phase
	To    Phase
	Cause string
}

var Changed = signal.NewKind[Change]("PhaseChanged")

// Reader is the read-only view adapters get of the orchestrator.
type Reader interface {
	Current() Phase
	Previous() Phase
}

// Ticker is a per-frame update hook run only while its phase is current.
type Ticker interface {
	Tick()
}

// TickFunc adapts a plain function to Ticker.
type TickFunc func()

func (f TickFunc) Tick() {
	if f != nil {
		f()
	}
}
