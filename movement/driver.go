package movement

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/milk9111/ravar/input"
	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/scene"
	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

const (
	keyPortal         = "movement.portal"
	keyApproachPrefix = "movement.approach:"
)

var (
	ErrUnknownActor = errors.New("movement: unknown actor")
	ErrCanceled     = errors.New("movement: canceled")
)

// Scenes is what the driver needs from the scene streamer.
type Scenes interface {
	LoadedScenes(scope signal.SceneScope) []scene.Manifest
	LoadOverlay(name string, additive bool) sequence.Completion
	UnloadOverlay(name string) sequence.Completion
}

// Clock reports the session time elapsed during the current frame, zero
// while frozen.
type Clock interface {
	Delta() float64
}

type AreaMonster struct {
	Species string
	Level   int
	Weight  int
}

type Settings struct {
	TilesPerSecond float64
	TileSize       float64
	ApproachFrames int
	Thresholds     map[string]int
	Areas          map[string][]AreaMonster
	WildRoutine    string
}

type Player struct {
	X, Y     int
	FacingX  int
	FacingY  int
	Moving   bool
	FromX    int
	FromY    int
	Progress float64
	Placed   bool
}

// Driver moves the player over the tile map while the session is in World,
// and turns steps into encounters, dialogs and portal trips.
type Driver struct {
	bus    *signal.Bus
	runner *sequence.Runner
	group  *signal.Group
	scenes Scenes
	input  input.State
	clock  Clock
	rng    *rand.Rand
	log    logrus.FieldLogger

	settings Settings
	m        *Map
	dirty    bool
	player   Player
	npcs     map[string]*NPC
	battlers map[string]*Battler
}

func NewDriver(bus *signal.Bus, runner *sequence.Runner, scenes Scenes, in input.State, clock Clock, rng *rand.Rand, settings Settings, log logrus.FieldLogger) *Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if settings.ApproachFrames <= 0 {
		settings.ApproachFrames = 1
	}
	d := &Driver{
		bus:      bus,
		runner:   runner,
		group:    signal.NewGroup(bus),
		scenes:   scenes,
		input:    in,
		clock:    clock,
		rng:      rng,
		log:      log.WithField("component", "movement"),
		settings: settings,
		dirty:    true,
		player:   Player{FacingY: 1},
		npcs:     make(map[string]*NPC),
		battlers: make(map[string]*Battler),
	}

	signal.On(d.group, signal.SceneLoaded, d.onScene)
	signal.On(d.group, signal.SceneUnloaded, d.onScene)
	signal.On(d.group, signal.RespawnRequested, d.onRespawn)
	signal.On(d.group, phase.Changed, d.onPhaseChanged)
	return d
}

func (d *Driver) Close() {
	d.group.Release()
	d.cancelChains()
}

// SetSettings swaps tuning values, e.g. after a config reload.
func (d *Driver) SetSettings(s Settings) {
	if s.ApproachFrames <= 0 {
		s.ApproachFrames = 1
	}
	d.settings = s
}

// Player returns the player state, placing the player first if the world
// changed since the last tick.
func (d *Driver) Player() Player {
	d.ensureMap()
	return d.player
}

func (d *Driver) Settings() Settings {
	return d.settings
}

// Battler returns the live state of a battler seen in any loaded scene.
func (d *Driver) Battler(id string) (*Battler, bool) {
	b, ok := d.battlers[id]
	return b, ok
}

// Actors lists NPCs and battlers standing in loaded scenes, ordered by id.
func (d *Driver) Actors() []Actor {
	d.ensureMap()
	out := make([]Actor, 0, len(d.npcs)+len(d.battlers))
	for _, n := range d.npcs {
		if d.loaded(n) {
			out = append(out, n)
		}
	}
	for _, b := range d.battlers {
		if d.loaded(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID() < out[j].ActorID() })
	return out
}

func (d *Driver) Map() *Map {
	d.ensureMap()
	return d.m
}

func (d *Driver) onScene(ev signal.SceneEvent) {
	if ev.Scope == signal.ScopeWorld {
		d.dirty = true
	}
}

func (d *Driver) onRespawn(r signal.Respawn) {
	d.ensureMap()
	x, y, ok := d.m.Spawn()
	if !ok {
		d.log.WithField("reason", r.Reason).Warn("respawn requested with no world loaded")
		return
	}
	d.player.X, d.player.Y = x, y
	d.player.Moving = false
	d.player.Progress = 0
	d.player.Placed = true
	d.log.WithFields(logrus.Fields{"reason": r.Reason, "x": x, "y": y}).Info("player respawned")
}

func (d *Driver) onPhaseChanged(c phase.Change) {
	if c.To == phase.Menu {
		d.cancelChains()
		d.player.Placed = false
		d.player.Moving = false
	}
}

func (d *Driver) cancelChains() {
	d.runner.Cancel(keyPortal)
	for id := range d.battlers {
		d.runner.Cancel(keyApproachPrefix + id)
	}
}

// ensureMap rebuilds the map after the set of world scenes changed.
func (d *Driver) ensureMap() {
	if !d.dirty && d.m != nil {
		return
	}
	d.dirty = false

	manifests := d.scenes.LoadedScenes(signal.ScopeWorld)
	d.m = BuildMap(manifests, d.settings.TileSize)

	for _, man := range manifests {
		for _, def := range man.NPCs {
			n, ok := d.npcs[def.ID]
			if !ok {
				n = &NPC{def: def}
				d.npcs[def.ID] = n
			}
			n.place(man.Origin)
			d.m.PlaceActor(n)
		}
		for _, def := range man.Battlers {
			b, ok := d.battlers[def.ID]
			if !ok {
				b = &Battler{def: def, area: man.Area}
				d.battlers[def.ID] = b
			}
			b.place(man.Origin)
			d.m.PlaceActor(b)
		}
	}

	if !d.player.Placed || !d.m.Walkable(d.player.X, d.player.Y) {
		if x, y, ok := d.m.Spawn(); ok {
			d.player.X, d.player.Y = x, y
			d.player.Placed = true
		}
	}
	d.log.WithField("scenes", len(manifests)).Debug("map rebuilt")
}

// Tick advances the player by one frame. It only runs while the session is
// in World.
func (d *Driver) Tick() {
	d.ensureMap()
	if d.m.Empty() {
		return
	}

	if d.player.Moving {
		d.player.Progress += d.settings.TilesPerSecond * d.delta()
		if d.player.Progress < 1 {
			return
		}
		d.player.Moving = false
		d.player.Progress = 0
		d.arrive()
		return
	}

	snap := d.input.Current()
	if snap.Confirm {
		d.interact()
		return
	}

	dx, dy := snap.Direction()
	if dx == 0 && dy == 0 {
		return
	}
	d.player.FacingX, d.player.FacingY = dx, dy
	tx, ty := d.player.X+dx, d.player.Y+dy
	if !d.m.Walkable(tx, ty) {
		return
	}
	d.player.FromX, d.player.FromY = d.player.X, d.player.Y
	d.player.X, d.player.Y = tx, ty
	d.player.Moving = true
	d.player.Progress = 0
}

func (d *Driver) delta() float64 {
	if d.clock == nil {
		return 0
	}
	return d.clock.Delta()
}

// arrive runs when the player settles on a new tile. A portal wins over a
// battler's sight line, which wins over a wild roll.
func (d *Driver) arrive() {
	x, y := d.player.X, d.player.Y

	if p, from, ok := d.m.PortalAt(x, y); ok {
		d.startPortal(p, from)
		return
	}

	for _, b := range d.battlers {
		if !b.Alive() || !d.loaded(b) {
			continue
		}
		if b.Sees(x, y) && d.m.Clear(b.x, b.y, x, y) {
			d.challenge(b)
			return
		}
	}

	kind, area, ok := d.m.TriggerAt(x, y)
	if !ok {
		return
	}
	threshold := d.settings.Thresholds[kind]
	roll := d.rng.Intn(100) + 1
	if roll > threshold {
		return
	}
	mon, ok := d.pickWild(area)
	if !ok {
		d.log.WithField("area", area).Debug("encounter rolled in an area with no monsters")
		return
	}
	d.log.WithFields(logrus.Fields{"area": area, "kind": kind, "roll": roll, "species": mon.Species}).Info("wild encounter")
	signal.Dispatch(d.bus, signal.EncounterDetected, signal.Encounter{
		Source:  signal.SourceWild,
		Area:    area,
		Trigger: kind,
		Wild:    mon,
		Routine: d.settings.WildRoutine,
	})
}

func (d *Driver) loaded(a Actor) bool {
	got, ok := d.m.ActorAt(a.Position())
	return ok && got.ActorID() == a.ActorID()
}

func (d *Driver) pickWild(area string) (signal.Monster, bool) {
	pool := d.settings.Areas[area]
	total := 0
	for _, m := range pool {
		total += m.Weight
	}
	if total <= 0 {
		return signal.Monster{}, false
	}
	n := d.rng.Intn(total)
	for _, m := range pool {
		if n < m.Weight {
			return signal.Monster{Species: m.Species, Level: m.Level}, true
		}
		n -= m.Weight
	}
	return signal.Monster{}, false
}

func (d *Driver) challenge(b *Battler) {
	party := make([]signal.Monster, 0, len(b.def.Party))
	for _, m := range b.def.Party {
		party = append(party, signal.Monster{Species: m.Species, Level: m.Level})
	}
	d.log.WithField("battler", b.ID()).Info("spotted by battler")
	signal.Dispatch(d.bus, signal.EncounterDetected, signal.Encounter{
		Source:   signal.SourceScripted,
		Area:     b.area,
		Trigger:  "sight",
		Opponent: b,
		Party:    party,
		Routine:  b.def.Routine,
		Lines:    append([]string(nil), b.def.Lines...),
	})
}

func (d *Driver) interact() {
	fx, fy := d.player.X+d.player.FacingX, d.player.Y+d.player.FacingY
	a, ok := d.m.ActorAt(fx, fy)
	if !ok {
		return
	}
	switch actor := a.(type) {
	case *NPC:
		if len(actor.Lines()) == 0 {
			return
		}
		signal.Dispatch(d.bus, signal.DialogOpenRequested, signal.NewDialogContent(actor.ActorID(), actor.Lines()...))
	case *Battler:
		if actor.Alive() {
			d.challenge(actor)
		}
	}
}

// startPortal moves the player between scene sets. The cutscene covers the
// whole trip and follows session time.
func (d *Driver) startPortal(p scene.Portal, from string) {
	keep := make(map[string]bool, len(p.To))
	for _, name := range p.To {
		keep[name] = true
	}

	steps := []sequence.Step{
		sequence.Emit("portal-entered", func() {
			signal.Dispatch(d.bus, signal.PortalEntered, true)
		}),
	}
	for _, m := range d.scenes.LoadedScenes(signal.ScopeWorld) {
		if keep[m.Name] {
			continue
		}
		steps = append(steps, sequence.Await("unload-"+m.Name, func() sequence.Completion {
			return d.scenes.UnloadOverlay(m.Name)
		}))
	}
	for _, name := range p.To {
		steps = append(steps, sequence.Await("load-"+name, func() sequence.Completion {
			return d.scenes.LoadOverlay(name, true)
		}))
	}
	steps = append(steps,
		sequence.Do("arrive", func() {
			d.ensureMap()
			d.player.X, d.player.Y = p.Arrive.X, p.Arrive.Y
			d.player.Placed = true
		}),
		sequence.Emit("portal-exited", func() {
			signal.Dispatch(d.bus, signal.PortalExited, true)
		}),
	)

	d.log.WithFields(logrus.Fields{"from": from, "to": p.To}).Info("portal taken")
	_, err := d.runner.Run(sequence.Chain{
		Key:    keyPortal,
		Steps:  steps,
		Scaled: true,
		OnFail: func(err error) {
			d.log.WithError(err).Error("portal failed, releasing cutscene")
			d.dirty = true
			d.player.Placed = false
			d.ensureMap()
			signal.Dispatch(d.bus, signal.PortalExited, true)
		},
	})
	if err != nil {
		d.log.WithError(err).Error("portal already in progress")
	}
}

// Approach walks a battler toward the player until they are adjacent, one
// tile every ApproachFrames frames.
func (d *Driver) Approach(id string) sequence.Completion {
	b, ok := d.battlers[id]
	if !ok {
		return sequence.Failed(fmt.Errorf("%w: %s", ErrUnknownActor, id))
	}
	dx, dy, _ := scene.Direction(b.def.Facing)
	dist := abs(d.player.X-b.x) + abs(d.player.Y-b.y)
	if dist <= 1 {
		return sequence.Completed()
	}

	op := sequence.NewOp()
	var steps []sequence.Step
	for i := 1; i < dist; i++ {
		steps = append(steps,
			sequence.WaitFrames(d.settings.ApproachFrames),
			sequence.Do("step", func() {
				b.x, b.y = b.x+dx, b.y+dy
				d.m.MoveActor(b)
			}),
		)
	}
	steps = append(steps, sequence.Do("arrived", op.Resolve))

	_, err := d.runner.Run(sequence.Chain{
		Key:      keyApproachPrefix + id,
		Steps:    steps,
		Scaled:   true,
		OnCancel: func() { op.Fail(ErrCanceled) },
	})
	if err != nil {
		return sequence.Failed(err)
	}
	return op
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
