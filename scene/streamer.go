package scene

import (
	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateUnloading
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateUnloading:
		return "unloading"
	default:
		return "unloaded"
	}
}

// Presenter is told when a scene becomes visible or goes away.
type Presenter interface {
	Show(m Manifest)
	Hide(m Manifest)
}

type entry struct {
	manifest   Manifest
	state      State
	framesLeft int
	op         *sequence.Op
}

// Status describes one tracked scene.
type Status struct {
	Name  string
	Scope signal.SceneScope
	State State
}

// Streamer loads and unloads scenes over a number of frames taken from each
// scene's manifest. Every request returns a completion that resolves once the
// scene has settled.
type Streamer struct {
	bus       *signal.Bus
	load      func(name string) (Manifest, error)
	cache     map[string]Manifest
	scenes    map[string]*entry
	order     []string
	presenter Presenter
	log       logrus.FieldLogger
}

func NewStreamer(bus *signal.Bus, log logrus.FieldLogger) *Streamer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Streamer{
		bus:    bus,
		load:   LoadManifest,
		cache:  make(map[string]Manifest),
		scenes: make(map[string]*entry),
		log:    log.WithField("component", "scene"),
	}
}

// SetLoader replaces how manifests are read.
func (s *Streamer) SetLoader(load func(name string) (Manifest, error)) {
	s.load = load
	s.cache = make(map[string]Manifest)
}

func (s *Streamer) SetPresenter(p Presenter) {
	s.presenter = p
}

// Manifest returns the manifest for name, reading it on first use.
func (s *Streamer) Manifest(name string) (Manifest, error) {
	if m, ok := s.cache[name]; ok {
		return m, nil
	}
	m, err := s.load(name)
	if err != nil {
		return Manifest{}, err
	}
	s.cache[name] = m
	return m, nil
}

// Invalidate drops a cached manifest so the next request rereads it. Scenes
// already loaded keep the manifest they were loaded with.
func (s *Streamer) Invalidate(name string) {
	delete(s.cache, name)
}

// LoadOverlay loads name. A non additive load also unloads every other scene.
func (s *Streamer) LoadOverlay(name string, additive bool) sequence.Completion {
	m, err := s.Manifest(name)
	if err != nil {
		s.log.WithError(err).WithField("scene", name).Error("load failed")
		return sequence.Failed(err)
	}

	if !additive {
		for _, other := range append([]string(nil), s.order...) {
			if other != name {
				s.UnloadOverlay(other)
			}
		}
	}

	e, ok := s.scenes[name]
	if !ok {
		e = &entry{}
		s.scenes[name] = e
		s.order = append(s.order, name)
	}

	switch e.state {
	case StateLoaded:
		return sequence.Completed()
	case StateLoading:
		return e.op
	case StateUnloading:
		e.op.Fail(ErrSuperseded)
	}

	e.manifest = m
	e.state = StateLoading
	e.framesLeft = m.LoadFrames
	e.op = sequence.NewOp()
	op := e.op
	s.log.WithFields(logrus.Fields{"scene": name, "frames": m.LoadFrames, "additive": additive}).Debug("loading scene")
	if e.framesLeft <= 0 {
		s.finish(name, e)
	}
	return op
}

// UnloadOverlay unloads name. Unloading a scene that is not loaded completes
// immediately.
func (s *Streamer) UnloadOverlay(name string) sequence.Completion {
	if _, err := s.Manifest(name); err != nil {
		s.log.WithError(err).WithField("scene", name).Error("unload failed")
		return sequence.Failed(err)
	}

	e, ok := s.scenes[name]
	if !ok || e.state == StateUnloaded {
		return sequence.Completed()
	}

	switch e.state {
	case StateUnloading:
		return e.op
	case StateLoading:
		e.op.Fail(ErrSuperseded)
	}

	e.state = StateUnloading
	e.framesLeft = e.manifest.UnloadFrames
	e.op = sequence.NewOp()
	op := e.op
	s.log.WithFields(logrus.Fields{"scene": name, "frames": e.framesLeft}).Debug("unloading scene")
	if e.framesLeft <= 0 {
		s.finish(name, e)
	}
	return op
}

// UnloadAllWorldScenes unloads every world and overlay scene, leaving menu
// scenes alone.
func (s *Streamer) UnloadAllWorldScenes() sequence.Completion {
	var ops []sequence.Completion
	for _, name := range append([]string(nil), s.order...) {
		e := s.scenes[name]
		if e == nil || e.manifest.SceneScope() == signal.ScopeMenu {
			continue
		}
		ops = append(ops, s.UnloadOverlay(name))
	}
	return all(ops)
}

// Update advances every pending load and unload by one frame.
func (s *Streamer) Update() {
	for _, name := range append([]string(nil), s.order...) {
		e, ok := s.scenes[name]
		if !ok {
			continue
		}
		if e.state != StateLoading && e.state != StateUnloading {
			continue
		}
		e.framesLeft--
		if e.framesLeft <= 0 {
			s.finish(name, e)
		}
	}
}

func (s *Streamer) finish(name string, e *entry) {
	ev := signal.SceneEvent{Name: name, Scope: e.manifest.SceneScope()}
	switch e.state {
	case StateLoading:
		e.state = StateLoaded
		e.op.Resolve()
		if s.presenter != nil {
			s.presenter.Show(e.manifest)
		}
		s.log.WithField("scene", name).Info("scene loaded")
		signal.Dispatch(s.bus, signal.SceneLoaded, ev)
	case StateUnloading:
		m := e.manifest
		delete(s.scenes, name)
		s.removeOrder(name)
		e.state = StateUnloaded
		e.op.Resolve()
		if s.presenter != nil {
			s.presenter.Hide(m)
		}
		s.log.WithField("scene", name).Info("scene unloaded")
		signal.Dispatch(s.bus, signal.SceneUnloaded, ev)
	}
}

func (s *Streamer) removeOrder(name string) {
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Streamer) State(name string) State {
	if e, ok := s.scenes[name]; ok {
		return e.state
	}
	return StateUnloaded
}

func (s *Streamer) Loaded(name string) bool {
	return s.State(name) == StateLoaded
}

// LoadedScenes returns the manifests of loaded scenes in scope, in load order.
func (s *Streamer) LoadedScenes(scope signal.SceneScope) []Manifest {
	var out []Manifest
	for _, name := range s.order {
		e := s.scenes[name]
		if e.state == StateLoaded && e.manifest.SceneScope() == scope {
			out = append(out, e.manifest)
		}
	}
	return out
}

// LoadedManifest returns the manifest a loaded scene was loaded with.
func (s *Streamer) LoadedManifest(name string) (Manifest, error) {
	e, ok := s.scenes[name]
	if !ok || e.state != StateLoaded {
		return Manifest{}, ErrNotLoaded
	}
	return e.manifest, nil
}

func (s *Streamer) Snapshot() []Status {
	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		e := s.scenes[name]
		out = append(out, Status{Name: name, Scope: e.manifest.SceneScope(), State: e.state})
	}
	return out
}

type allOf []sequence.Completion

func all(ops []sequence.Completion) sequence.Completion {
	if len(ops) == 0 {
		return sequence.Completed()
	}
	return allOf(ops)
}

func (a allOf) Done() bool {
	for _, op := range a {
		if op != nil && !op.Done() {
			return false
		}
	}
	return true
}

func (a allOf) Err() error {
	for _, op := range a {
		if op == nil {
			continue
		}
		if err := op.Err(); err != nil {
			return err
		}
	}
	return nil
}
