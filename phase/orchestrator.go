package phase

import (
	"fmt"

	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

// Chain keys owned by the orchestrator.
const (
	KeyEncounter    = "encounter"
	KeyPauseEnter   = "pause.enter"
	KeyPauseExit    = "pause.exit"
	KeyDialogOpen   = "dialog.open"
	KeyDialogClose  = "dialog.close"
	KeyQuit         = "quit"
	KeySessionStart = "session.start"
	KeyBattleLost   = "battle.lost"
)

var ownKeys = []string{
	KeyEncounter, KeyPauseEnter, KeyPauseExit, KeyDialogOpen,
	KeyDialogClose, KeyQuit, KeySessionStart, KeyBattleLost,
}

// Streamer loads and unloads presentation layers.
type Streamer interface {
	LoadOverlay(name string, additive bool) sequence.Completion
	UnloadOverlay(name string) sequence.Completion
	UnloadAllWorldScenes() sequence.Completion
}

// Clock is the session time source frozen while paused.
type Clock interface {
	Freeze()
	Unfreeze()
}

// Routines builds the cutscene that plays before a battle starts.
type Routines interface {
	Routine(enc signal.Encounter) ([]sequence.Step, error)
}

type Overlays struct {
	Pause    string
	Dialog   string
	MainMenu string
}

type Options struct {
	Initial     Phase
	Overlays    Overlays
	WorldScenes []string

	Streamer Streamer
	Clock    Clock
	Routines Routines
	Observer Observer
}

type cutsceneCause int

const (
	causeNone cutsceneCause = iota
	causeEncounter
	causePortal
)

func (c cutsceneCause) String() string {
	switch c {
	case causeEncounter:
		return "encounter"
	case causePortal:
		return "portal"
	default:
		return "none"
	}
}

// Snapshot is a copy of the orchestrator state for inspection.
type Snapshot struct {
	Current   Phase
	Previous  Phase
	Stack     []Phase
	Cutscene  string
	Encounter string
	Frozen    bool
	Changes   uint64
	Chains    []sequence.Info
}

// Orchestrator owns the current phase. It is the only writer of the phase and
// the restoration stack, and it reacts to signals on the bus.
type Orchestrator struct {
	bus      *signal.Bus
	runner   *sequence.Runner
	group    *signal.Group
	opts     Options
	observer Observer
	log      logrus.FieldLogger

	current   Phase
	stack     []Phase
	encounter *signal.Encounter
	cutscene  cutsceneCause
	frozen    bool
	changes   uint64

	tickers map[Phase][]Ticker
}

func New(bus *signal.Bus, runner *sequence.Runner, opts Options, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "phase")

	o := &Orchestrator{
		bus:      bus,
		runner:   runner,
		group:    signal.NewGroup(bus),
		opts:     opts,
		observer: opts.Observer,
		log:      log,
		current:  opts.Initial,
		tickers:  make(map[Phase][]Ticker),
	}
	if o.observer == nil {
		o.observer = LogObserver{Log: log}
	}

	signal.On(o.group, signal.EncounterDetected, o.onEncounterDetected)
	signal.On(o.group, signal.BattleStarted, o.onBattleStarted)
	signal.On(o.group, signal.BattleEnded, o.onBattleEnded)
	signal.On(o.group, signal.PauseRequested, o.onPauseRequested)
	signal.On(o.group, signal.QuitRequested, o.onQuitRequested)
	signal.On(o.group, signal.SessionStartRequested, o.onSessionStartRequested)
	signal.On(o.group, signal.PortalEntered, o.onPortalEntered)
	signal.On(o.group, signal.PortalExited, o.onPortalExited)
	signal.On(o.group, signal.DialogOpenRequested, o.onDialogOpenRequested)
	signal.On(o.group, signal.DialogClosed, o.onDialogClosed)

	return o
}

// Close releases every subscription. Outstanding chains are left to the runner.
func (o *Orchestrator) Close() {
	if o == nil {
		return
	}
	o.group.Release()
}

func (o *Orchestrator) Current() Phase {
	return o.current
}

// Previous is the phase a resume or portal exit restores, or Menu when
// nothing is pending.
func (o *Orchestrator) Previous() Phase {
	if len(o.stack) == 0 {
		return Menu
	}
	return o.stack[len(o.stack)-1]
}

// Encounter returns the encounter being set up or fought, if any.
func (o *Orchestrator) Encounter() (signal.Encounter, bool) {
	if o.encounter == nil {
		return signal.Encounter{}, false
	}
	return *o.encounter, true
}

func (o *Orchestrator) Frozen() bool {
	return o.frozen
}

// Register adds a ticker run by Update while p is current.
func (o *Orchestrator) Register(p Phase, t Ticker) {
	if t == nil {
		return
	}
	o.tickers[p] = append(o.tickers[p], t)
}

// Update ticks the tickers of the current phase. It stops early when one of
// them causes a phase change.
func (o *Orchestrator) Update() {
	p := o.current
	tickers := o.tickers[p]
	for _, t := range tickers {
		t.Tick()
		if o.current != p {
			return
		}
	}
}

func (o *Orchestrator) Snapshot() Snapshot {
	s := Snapshot{
		Current:  o.current,
		Previous: o.Previous(),
		Stack:    append([]Phase(nil), o.stack...),
		Cutscene: o.cutscene.String(),
		Frozen:   o.frozen,
		Changes:  o.changes,
		Chains:   o.runner.Snapshot(),
	}
	if o.encounter != nil {
		s.Encounter = describe(*o.encounter)
	}
	return s
}

func describe(enc signal.Encounter) string {
	if enc.Source == signal.SourceScripted {
		return fmt.Sprintf("scripted:%s", enc.OpponentID())
	}
	return fmt.Sprintf("wild:%s:%s", enc.Area, enc.Wild.Species)
}

func (o *Orchestrator) onEncounterDetected(enc signal.Encounter) {
	const sig = "EncounterDetected"
	if o.current != World {
		o.reject(sig, "encounters start only from world")
		return
	}
	if o.busy(sig, KeyEncounter) {
		return
	}

	var routine []sequence.Step
	if o.opts.Routines != nil {
		steps, err := o.opts.Routines.Routine(enc)
		if err != nil {
			o.log.WithError(err).WithFields(logrus.Fields{
				"source":  enc.Source.String(),
				"trigger": enc.Trigger,
			}).Error("encounter routine unavailable")
			return
		}
		routine = steps
	}

	held := enc
	o.encounter = &held
	o.cutscene = causeEncounter
	o.enter(Cutscene, sig)

	steps := make([]sequence.Step, 0, len(routine)+1)
	steps = append(steps, routine...)
	steps = append(steps, sequence.Emit("battle-started", func() {
		signal.Dispatch(o.bus, signal.BattleStarted, held)
	}))
	o.start(sequence.Chain{
		Key:    KeyEncounter,
		Steps:  steps,
		Scaled: true,
		OnFail: func(err error) {
			o.encounter = nil
			o.cutscene = causeNone
			o.fallback(Cutscene, World, KeyEncounter, err)
		},
	})
}

func (o *Orchestrator) onBattleStarted(enc signal.Encounter) {
	const sig = "BattleStarted"
	if o.current != Cutscene {
		o.reject(sig, "battles start from the encounter cutscene")
		return
	}
	if o.encounter == nil || o.cutscene != causeEncounter {
		o.reject(sig, "no encounter held")
		return
	}
	if enc.Source != o.encounter.Source || enc.OpponentID() != o.encounter.OpponentID() {
		o.reject(sig, "descriptor does not match held encounter")
		return
	}
	o.cutscene = causeNone
	o.enter(Battle, sig)
}

func (o *Orchestrator) onBattleEnded(res signal.BattleResult) {
	const sig = "BattleEnded"
	if o.current != Battle {
		o.reject(sig, "no battle running")
		return
	}

	var opp signal.Opponent
	if o.encounter != nil {
		opp = o.encounter.Opponent
	}
	fields := map[string]any{
		"outcome": res.Outcome.String(),
		"source":  res.Source.String(),
	}

	lost := false
	switch res.Outcome {
	case signal.OutcomeWon:
		if res.Source != signal.SourceScripted {
			break
		}
		if opp == nil || !opp.Alive() {
			o.observer.Inconsistency("missing-opponent", fields)
			break
		}
		opp.MarkDefeated()
		o.log.WithField("opponent", opp.ID()).Info("opponent defeated")
	case signal.OutcomeLost:
		lost = true
	case signal.OutcomeFled:
	default:
		o.observer.Inconsistency("unknown-outcome", fields)
	}

	o.encounter = nil
	o.enter(World, sig)

	if lost {
		o.start(sequence.Chain{
			Key: KeyBattleLost,
			Steps: []sequence.Step{
				sequence.Emit("respawn", func() {
					signal.Dispatch(o.bus, signal.RespawnRequested, signal.Respawn{Reason: "battle-lost"})
				}),
			},
		})
	}
}

func (o *Orchestrator) onPauseRequested(paused bool) {
	const sig = "PauseRequested"
	if !paused {
		o.resume(sig)
		return
	}
	switch o.current {
	case Pause:
		o.reject(sig, "already paused")
		return
	case Menu:
		o.reject(sig, "nothing to pause in menu")
		return
	}
	if o.busy(sig, KeyPauseEnter) {
		return
	}

	o.runner.Cancel(KeyPauseExit)
	o.stack = append(o.stack, o.current)
	o.freeze()
	o.enter(Pause, sig)

	o.start(sequence.Chain{
		Key: KeyPauseEnter,
		Steps: []sequence.Step{
			sequence.Await("load-pause-overlay", func() sequence.Completion {
				return o.load(o.opts.Overlays.Pause, true)
			}),
		},
		OnFail: func(err error) {
			if o.current != Pause {
				return
			}
			o.log.WithError(err).Error("pause overlay failed, resuming")
			to := o.pop()
			o.unfreeze()
			o.enter(to, KeyPauseEnter+" failed")
		},
	})
}

func (o *Orchestrator) resume(sig string) {
	if o.current != Pause {
		o.reject(sig, "resume outside pause")
		return
	}
	if o.busy(sig, KeyPauseExit) {
		return
	}

	o.runner.Cancel(KeyPauseEnter)
	to := o.pop()
	o.unfreeze()
	o.enter(to, sig)

	o.start(sequence.Chain{
		Key: KeyPauseExit,
		Steps: []sequence.Step{
			sequence.Await("unload-pause-overlay", func() sequence.Completion {
				return o.unload(o.opts.Overlays.Pause)
			}),
		},
		OnFail: o.logOnly(KeyPauseExit),
	})
}

func (o *Orchestrator) onQuitRequested(quit bool) {
	const sig = "QuitRequested"
	if !quit {
		o.reject(sig, "quit not requested")
		return
	}
	if o.current == Menu {
		o.reject(sig, "already in menu")
		return
	}
	if o.busy(sig, KeyQuit) {
		return
	}

	before := o.current
	for _, key := range ownKeys {
		o.runner.Cancel(key)
	}
	o.stack = o.stack[:0]
	o.unfreeze()
	o.encounter = nil
	o.cutscene = causeNone
	o.enter(Menu, sig)

	o.start(sequence.Chain{
		Key: KeyQuit,
		Steps: []sequence.Step{
			sequence.Await("unload-world", func() sequence.Completion {
				if o.opts.Streamer == nil {
					return sequence.Completed()
				}
				return o.opts.Streamer.UnloadAllWorldScenes()
			}),
			sequence.Await("load-main-menu", func() sequence.Completion {
				return o.load(o.opts.Overlays.MainMenu, false)
			}),
		},
		OnFail: func(err error) {
			if o.current != Menu {
				return
			}
			// the stack and the dialog are gone, so those phases restart in world
			to := before
			if to == Pause || to == Cutscene || to == Dialog {
				to = World
			}
			o.log.WithError(err).WithField("restore", to.String()).Error("quit failed")
			o.enter(to, KeyQuit+" failed")
		},
	})
}

func (o *Orchestrator) onSessionStartRequested(start bool) {
	const sig = "SessionStartRequested"
	if !start {
		o.reject(sig, "start not requested")
		return
	}
	if o.current != Menu {
		o.reject(sig, "session already running")
		return
	}
	if o.runner.InFlight(KeyQuit) {
		o.reject(sig, "main menu still loading")
		return
	}
	if o.busy(sig, KeySessionStart) {
		return
	}

	steps := []sequence.Step{
		sequence.Await("unload-main-menu", func() sequence.Completion {
			return o.unload(o.opts.Overlays.MainMenu)
		}),
	}
	for _, name := range o.opts.WorldScenes {
		steps = append(steps, sequence.Await("load-"+name, func() sequence.Completion {
			return o.load(name, true)
		}))
	}
	steps = append(steps, sequence.Do("enter-world", func() {
		if o.current != Menu {
			return
		}
		o.stack = o.stack[:0]
		o.enter(World, sig)
	}))

	o.start(sequence.Chain{
		Key:    KeySessionStart,
		Steps:  steps,
		OnFail: o.logOnly(KeySessionStart),
	})
}

func (o *Orchestrator) onPortalEntered(entered bool) {
	const sig = "PortalEntered"
	if !entered {
		o.reject(sig, "portal not entered")
		return
	}
	if o.current != World {
		o.reject(sig, "portals are only taken from world")
		return
	}
	o.stack = append(o.stack, World)
	o.cutscene = causePortal
	o.enter(Cutscene, sig)
}

func (o *Orchestrator) onPortalExited(exited bool) {
	const sig = "PortalExited"
	if !exited {
		o.reject(sig, "portal not exited")
		return
	}
	if o.current != Cutscene || o.cutscene != causePortal {
		o.reject(sig, "no portal cutscene running")
		return
	}
	o.cutscene = causeNone
	o.enter(o.pop(), sig)
}

func (o *Orchestrator) onDialogOpenRequested(content signal.DialogContent) {
	const sig = "DialogOpenRequested"
	if o.current != World {
		o.reject(sig, "dialog opens only from world")
		return
	}
	if content.Empty() {
		o.reject(sig, "dialog has no lines")
		return
	}
	if o.busy(sig, KeyDialogOpen) {
		return
	}

	o.runner.Cancel(KeyDialogClose)
	o.enter(Dialog, sig)

	o.start(sequence.Chain{
		Key: KeyDialogOpen,
		Steps: []sequence.Step{
			sequence.Await("load-dialog-overlay", func() sequence.Completion {
				return o.load(o.opts.Overlays.Dialog, true)
			}),
			sequence.WaitFrames(1),
			sequence.Emit("dialog-show", func() {
				signal.Dispatch(o.bus, signal.DialogShow, content)
			}),
		},
		OnFail: func(err error) {
			o.fallback(Dialog, World, KeyDialogOpen, err)
		},
	})
}

func (o *Orchestrator) onDialogClosed(speaker string) {
	const sig = "DialogClosed"
	if o.current != Dialog {
		o.reject(sig, "no dialog open")
		return
	}
	if o.busy(sig, KeyDialogClose) {
		return
	}

	o.runner.Cancel(KeyDialogOpen)
	o.enter(World, sig)

	o.start(sequence.Chain{
		Key: KeyDialogClose,
		Steps: []sequence.Step{
			sequence.Await("unload-dialog-overlay", func() sequence.Completion {
				return o.unload(o.opts.Overlays.Dialog)
			}),
		},
		OnFail: o.logOnly(KeyDialogClose),
	})
	o.log.WithField("speaker", speaker).Debug("dialog closed")
}

func (o *Orchestrator) enter(to Phase, cause string) {
	from := o.current
	o.current = to
	o.changes++
	o.log.WithFields(logrus.Fields{
		"from":  from.String(),
		"phase": to.String(),
		"cause": cause,
	}).Info("phase changed")
	signal.Dispatch(o.bus, Changed, Change{From: from, To: to, Cause: cause})
}

func (o *Orchestrator) reject(sig, reason string) {
	o.log.WithFields(logrus.Fields{
		"phase":  o.current.String(),
		"signal": sig,
		"reason": reason,
	}).Warn("signal ignored")
}

// busy reports whether key already has a chain in flight. That only happens
// through a programming error, so strict runners panic.
func (o *Orchestrator) busy(sig, key string) bool {
	if !o.runner.InFlight(key) {
		return false
	}
	err := fmt.Errorf("phase: %s: chain %q: %w", sig, key, sequence.ErrChainInFlight)
	if o.runner.Strict() {
		panic(err)
	}
	o.observer.ProgrammingError(err)
	return true
}

func (o *Orchestrator) start(c sequence.Chain) {
	if _, err := o.runner.Run(c); err != nil {
		o.log.WithError(err).WithField("chain", c.Key).Error("could not start chain")
	}
}

// fallback undoes a transition to target whose chain failed. If target was
// suspended in the meantime the restoration stack is rewritten instead.
func (o *Orchestrator) fallback(target, to Phase, key string, err error) {
	o.log.WithError(err).WithFields(logrus.Fields{
		"chain":    key,
		"target":   target.String(),
		"fallback": to.String(),
	}).Error("transition chain failed")
	if o.current == target {
		o.enter(to, key+" failed")
		return
	}
	for i := range o.stack {
		if o.stack[i] == target {
			o.stack[i] = to
		}
	}
}

func (o *Orchestrator) logOnly(key string) func(error) {
	return func(err error) {
		o.log.WithError(err).WithField("chain", key).Error("chain failed after phase change")
	}
}

func (o *Orchestrator) pop() Phase {
	if len(o.stack) == 0 {
		o.observer.Inconsistency("empty-restoration-stack", map[string]any{"phase": o.current.String()})
		return World
	}
	p := o.stack[len(o.stack)-1]
	o.stack = o.stack[:len(o.stack)-1]
	return p
}

func (o *Orchestrator) freeze() {
	o.frozen = true
	if o.opts.Clock != nil {
		o.opts.Clock.Freeze()
	}
	o.runner.Hold(true)
}

func (o *Orchestrator) unfreeze() {
	if !o.frozen {
		return
	}
	o.frozen = false
	if o.opts.Clock != nil {
		o.opts.Clock.Unfreeze()
	}
	o.runner.Hold(false)
}

func (o *Orchestrator) load(name string, additive bool) sequence.Completion {
	if o.opts.Streamer == nil {
		return sequence.Completed()
	}
	return o.opts.Streamer.LoadOverlay(name, additive)
}

func (o *Orchestrator) unload(name string) sequence.Completion {
	if o.opts.Streamer == nil {
		return sequence.Completed()
	}
	return o.opts.Streamer.UnloadOverlay(name)
}
