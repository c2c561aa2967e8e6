package session

import (
	"math/rand"
	"path"
	"strings"
	"time"

	"github.com/milk9111/ravar/battle"
	"github.com/milk9111/ravar/config"
	"github.com/milk9111/ravar/content"
	"github.com/milk9111/ravar/dialog"
	"github.com/milk9111/ravar/input"
	"github.com/milk9111/ravar/inspect"
	"github.com/milk9111/ravar/movement"
	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/scene"
	"github.com/milk9111/ravar/script"
	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

// Options carries what the session cannot build itself. Everything but
// Config and Input is optional.
type Options struct {
	Config    *config.Config
	Input     input.Source
	Watcher   *content.Watcher
	Inspector *inspect.Server
	Presenter scene.Presenter
	Rand      *rand.Rand
	Log       logrus.FieldLogger
}

// Session owns the bus, the runner, the orchestrator and every subsystem
// driver, and advances them once per frame in a fixed order.
type Session struct {
	cfg *config.Config
	log logrus.FieldLogger

	bus      *signal.Bus
	runner   *sequence.Runner
	streamer *scene.Streamer
	orch     *phase.Orchestrator
	clock    *FrameClock

	source input.Source
	frame  input.Frame

	movement *movement.Driver
	battle   *battle.Driver
	dialog   *dialog.Driver
	routines *script.Routines

	watcher   *content.Watcher
	inspector *inspect.Server

	frames uint64
	exit   bool
}

func New(opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg := opts.Config
	rng := opts.Rand
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}

	s := &Session{
		cfg:       cfg,
		log:       log.WithField("component", "session"),
		bus:       signal.NewBus(log),
		runner:    sequence.NewRunner(log, cfg.Debug),
		clock:     NewFrameClock(cfg.FrameRate),
		source:    opts.Input,
		watcher:   opts.Watcher,
		inspector: opts.Inspector,
	}
	s.streamer = scene.NewStreamer(s.bus, log)
	if opts.Presenter != nil {
		s.streamer.SetPresenter(opts.Presenter)
	}

	s.movement = movement.NewDriver(s.bus, s.runner, s.streamer, &s.frame, s.clock, rng, movementSettings(cfg), log)
	s.dialog = dialog.NewDriver(s.bus, &s.frame, s.clock, cfg.Dialog.LettersPerSecond, log)
	s.routines = script.NewRoutines(s.bus, s.movement, s.dialog, scriptSettings(cfg), log)

	initial := phase.World
	if cfg.StartInMenu {
		initial = phase.Menu
	}
	var observer phase.Observer = phase.LogObserver{Log: log.WithField("component", "phase")}
	if s.inspector != nil {
		observer = phase.Observers{observer, s.inspector}
	}
	s.orch = phase.New(s.bus, s.runner, phase.Options{
		Initial: initial,
		Overlays: phase.Overlays{
			Pause:    cfg.Overlays.Pause,
			Dialog:   cfg.Overlays.Dialog,
			MainMenu: cfg.Overlays.MainMenu,
		},
		WorldScenes: cfg.World.InitialScenes,
		Streamer:    s.streamer,
		Clock:       s.clock,
		Routines:    s.routines,
		Observer:    observer,
	}, log)

	// subscribed after the orchestrator so BattleStarted sees the Battle phase
	s.battle = battle.NewDriver(s.bus, s.orch, rng, battleSettings(cfg), log)
	s.battle.SetParty(party(cfg))

	s.orch.Register(phase.World, s.movement)
	s.orch.Register(phase.Battle, s.battle)
	s.orch.Register(phase.Dialog, s.dialog)
	s.orch.Register(phase.Cutscene, s.dialog)

	if initial == phase.Menu {
		s.streamer.LoadOverlay(cfg.Overlays.MainMenu, false)
	} else {
		for _, name := range cfg.World.InitialScenes {
			s.streamer.LoadOverlay(name, true)
		}
	}
	s.log.WithFields(logrus.Fields{"phase": initial.String(), "strict": cfg.Debug}).Info("session created")
	return s
}

func movementSettings(cfg *config.Config) movement.Settings {
	thresholds := make(map[string]int, len(cfg.Encounters.Thresholds))
	for k, v := range cfg.Encounters.Thresholds {
		thresholds[k] = v
	}
	areas := make(map[string][]movement.AreaMonster, len(cfg.Areas))
	for area, monsters := range cfg.Areas {
		for _, m := range monsters {
			areas[area] = append(areas[area], movement.AreaMonster{Species: m.Species, Level: m.Level, Weight: m.Weight})
		}
	}
	return movement.Settings{
		TilesPerSecond: cfg.Movement.TilesPerSecond,
		TileSize:       float64(cfg.Movement.TileSize),
		ApproachFrames: cfg.Movement.ApproachFrames,
		Thresholds:     thresholds,
		Areas:          areas,
		WildRoutine:    cfg.Encounters.WildRoutine,
	}
}

func scriptSettings(cfg *config.Config) script.Settings {
	return script.Settings{
		WildRoutine:     cfg.Encounters.WildRoutine,
		WildIntroFrames: cfg.Encounters.WildIntroFrames,
	}
}

func battleSettings(cfg *config.Config) battle.Settings {
	return battle.Settings{
		PlayerPower:   cfg.Battle.PlayerPower,
		OpponentPower: cfg.Battle.OpponentPower,
		RoundFrames:   cfg.Battle.RoundFrames,
		MaxRounds:     cfg.Battle.MaxRounds,
	}
}

func party(cfg *config.Config) []signal.Monster {
	out := make([]signal.Monster, 0, len(cfg.World.Party))
	for _, m := range cfg.World.Party {
		out = append(out, signal.Monster{Species: m.Species, Level: m.Level})
	}
	return out
}

// Update runs one frame.
func (s *Session) Update() {
	if s == nil {
		return
	}

	s.Reload(s.watcher.Drain())

	var snap input.Snapshot
	if s.source != nil {
		snap = s.source.Poll()
	}
	s.frame.Set(snap)
	s.dispatchInput(snap)

	s.orch.Update()
	s.streamer.Update()
	s.runner.Tick()
	s.clock.Advance()
	s.frames++

	for _, st := range s.runner.Stalled(s.cfg.StallWarnFrames) {
		s.log.WithFields(logrus.Fields{
			"chain":  st.Key,
			"step":   st.Name,
			"kind":   st.Kind.String(),
			"frames": st.Waited,
		}).Warn("chain stalled")
	}

	if s.inspector != nil && s.cfg.Inspect.PublishEvery > 0 && s.frames%uint64(s.cfg.Inspect.PublishEvery) == 0 {
		s.inspector.Publish(s.Snapshot())
	}
}

func (s *Session) dispatchInput(snap input.Snapshot) {
	current := s.orch.Current()
	switch {
	case snap.Quit && current == phase.Menu:
		s.Exit()
	case snap.Quit:
		s.Quit()
	case snap.Pause:
		s.Pause(current != phase.Pause)
	case snap.Confirm && current == phase.Menu:
		s.Start()
	}
}

// Pause requests pause or resume. Overlay buttons call it too.
func (s *Session) Pause(paused bool) {
	signal.Dispatch(s.bus, signal.PauseRequested, paused)
}

func (s *Session) Quit() {
	signal.Dispatch(s.bus, signal.QuitRequested, true)
}

func (s *Session) Start() {
	signal.Dispatch(s.bus, signal.SessionStartRequested, true)
}

// Exit asks the host loop to stop. Only meaningful from the main menu.
func (s *Session) Exit() {
	s.exit = true
}

// ExitRequested reports whether quit was pressed on the main menu.
func (s *Session) ExitRequested() bool {
	return s.exit
}

// Reload applies changed content files, named relative to the content
// directory.
func (s *Session) Reload(names []string) {
	for _, name := range names {
		switch dir, file := path.Split(name); {
		case name == config.DefaultFile:
			s.reloadConfig()
		case dir == "scenes/":
			s.streamer.Invalidate(strings.TrimSuffix(file, path.Ext(file)))
			s.log.WithField("scene", file).Info("scene manifest reloaded")
		case dir == "scripts/":
			s.routines.Invalidate(strings.TrimSuffix(file, path.Ext(file)))
			s.log.WithField("script", file).Info("routine reloaded")
		}
	}
}

func (s *Session) reloadConfig() {
	cfg, err := config.Load()
	if err != nil {
		s.log.WithError(err).Warn("config reload failed, keeping current values")
		return
	}
	s.cfg.Encounters = cfg.Encounters
	s.cfg.Areas = cfg.Areas
	s.cfg.Movement = cfg.Movement
	s.cfg.Dialog = cfg.Dialog
	s.cfg.Battle = cfg.Battle
	s.cfg.StallWarnFrames = cfg.StallWarnFrames
	s.cfg.Inspect.PublishEvery = cfg.Inspect.PublishEvery

	s.movement.SetSettings(movementSettings(s.cfg))
	s.dialog.SetSpeed(s.cfg.Dialog.LettersPerSecond)
	s.battle.SetSettings(battleSettings(s.cfg))
	s.routines.SetSettings(scriptSettings(s.cfg))
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		if l, ok := s.log.(*logrus.Entry); ok {
			l.Logger.SetLevel(lvl)
		}
	}
	s.log.Info("config reloaded")
}

// Snapshot is the inspector view of the current frame.
func (s *Session) Snapshot() inspect.Snapshot {
	p := s.movement.Player()
	snap := inspect.NewSnapshot(s.frames, s.orch.Snapshot(), s.streamer.Snapshot(), inspect.Player{X: p.X, Y: p.Y})
	snap.Subscribers = s.bus.Counts()
	return snap
}

// Close releases every subscription and cancels outstanding chains.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.battle.Close()
	s.dialog.Close()
	s.movement.Close()
	s.orch.Close()
	s.runner.CancelAll()
	s.bus.Close()
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.log.WithError(err).Warn("close watcher")
		}
	}
}

func (s *Session) Config() *config.Config     { return s.cfg }
func (s *Session) Bus() *signal.Bus           { return s.bus }
func (s *Session) Runner() *sequence.Runner   { return s.runner }
func (s *Session) Phase() *phase.Orchestrator { return s.orch }
func (s *Session) Streamer() *scene.Streamer  { return s.streamer }
func (s *Session) Clock() *FrameClock         { return s.clock }
func (s *Session) Movement() *movement.Driver { return s.movement }
func (s *Session) Battle() *battle.Driver     { return s.battle }
func (s *Session) Dialog() *dialog.Driver     { return s.dialog }
func (s *Session) Frames() uint64             { return s.frames }
