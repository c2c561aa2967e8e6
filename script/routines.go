package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/milk9111/ravar/content"
	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoOpponent = errors.New("script: routine needs an opponent")
	ErrBadCall    = errors.New("script: bad engine call")
)

const routineDispatchScript = `
trigger(__engine, __encounter)
`

// Approacher walks a battler up to the player.
type Approacher interface {
	Approach(id string) sequence.Completion
}

// Speaker plays dialog lines inline in a cutscene.
type Speaker interface {
	Play(content signal.DialogContent) sequence.Completion
}

type Settings struct {
	WildRoutine     string
	WildIntroFrames int
}

type actionKind int

const (
	actionCue actionKind = iota
	actionWait
	actionApproach
	actionSay
)

type action struct {
	kind   actionKind
	name   string
	frames int
}

// Routines turns tengo trigger scripts into the chain steps an encounter
// cutscene plays before its battle. A script defines
//
//	trigger := func(engine, encounter) { ... }
//
// and describes the cutscene with engine.cue, engine.wait, engine.approach
// and engine.say.
type Routines struct {
	bus      *signal.Bus
	approach Approacher
	speaker  Speaker
	settings Settings
	log      logrus.FieldLogger

	load     func(name string) ([]byte, error)
	compiled map[string]*tengo.Compiled
}

func NewRoutines(bus *signal.Bus, approach Approacher, speaker Speaker, settings Settings, log logrus.FieldLogger) *Routines {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Routines{
		bus:      bus,
		approach: approach,
		speaker:  speaker,
		settings: settings,
		log:      log.WithField("component", "script"),
		load:     content.LoadScript,
		compiled: make(map[string]*tengo.Compiled),
	}
}

func (r *Routines) SetSettings(s Settings) {
	r.settings = s
}

// SetLoader replaces how script sources are read.
func (r *Routines) SetLoader(load func(name string) ([]byte, error)) {
	r.load = load
	r.compiled = make(map[string]*tengo.Compiled)
}

// Invalidate drops a compiled script so the next encounter recompiles it.
func (r *Routines) Invalidate(name string) {
	delete(r.compiled, name)
}

func (r *Routines) Routine(enc signal.Encounter) ([]sequence.Step, error) {
	name := enc.Routine
	if name == "" && enc.Source == signal.SourceWild {
		name = r.settings.WildRoutine
	}
	if name == "" {
		return nil, nil
	}

	compiled, err := r.compile(name)
	if err != nil {
		return nil, err
	}

	var plan []action
	engine := r.buildEngine(enc, &plan)
	if err := compiled.Set("__engine", engine); err != nil {
		return nil, err
	}
	if err := compiled.Set("__encounter", r.encounterValue(enc)); err != nil {
		return nil, err
	}
	if err := compiled.Run(); err != nil {
		return nil, fmt.Errorf("script: run %s: %w", name, err)
	}

	r.log.WithFields(logrus.Fields{"routine": name, "actions": len(plan)}).Debug("routine planned")
	return r.steps(enc, plan), nil
}

func (r *Routines) compile(name string) (*tengo.Compiled, error) {
	if c, ok := r.compiled[name]; ok {
		return c, nil
	}

	src, err := r.load(name)
	if err != nil {
		return nil, fmt.Errorf("script: load %s: %w", name, err)
	}

	s := tengo.NewScript([]byte(string(src) + "\n" + routineDispatchScript))
	_ = s.Add("__engine", map[string]any{})
	_ = s.Add("__encounter", map[string]any{})
	s.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	c, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("script: compile %s: %w", name, err)
	}
	r.compiled[name] = c
	return c, nil
}

func (r *Routines) encounterValue(enc signal.Encounter) map[string]any {
	lines := make([]any, 0, len(enc.Lines))
	for _, l := range enc.Lines {
		lines = append(lines, l)
	}
	party := make([]any, 0, len(enc.Party))
	for _, m := range enc.Party {
		party = append(party, map[string]any{"species": m.Species, "level": m.Level})
	}
	return map[string]any{
		"source":       enc.Source.String(),
		"area":         enc.Area,
		"trigger":      enc.Trigger,
		"species":      enc.Wild.Species,
		"level":        enc.Wild.Level,
		"opponent":     enc.OpponentID(),
		"lines":        lines,
		"party":        party,
		"intro_frames": r.settings.WildIntroFrames,
	}
}

func (r *Routines) buildEngine(enc signal.Encounter, plan *[]action) *tengo.ImmutableMap {
	values := map[string]tengo.Object{}

	values["cue"] = &tengo.UserFunction{Name: "cue", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("%w: cue needs a name", ErrBadCall)
		}
		name := strings.TrimSpace(objectAsString(args[0]))
		if name == "" {
			return tengo.FalseValue, nil
		}
		*plan = append(*plan, action{kind: actionCue, name: name})
		return tengo.TrueValue, nil
	}}

	values["wait"] = &tengo.UserFunction{Name: "wait", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("%w: wait needs a frame count", ErrBadCall)
		}
		n, ok := tengo.ToInt(args[0])
		if !ok {
			return nil, fmt.Errorf("%w: wait(%s)", ErrBadCall, args[0].String())
		}
		if n <= 0 {
			return tengo.FalseValue, nil
		}
		*plan = append(*plan, action{kind: actionWait, frames: n})
		return tengo.TrueValue, nil
	}}

	values["approach"] = &tengo.UserFunction{Name: "approach", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if enc.OpponentID() == "" {
			return nil, ErrNoOpponent
		}
		*plan = append(*plan, action{kind: actionApproach})
		return tengo.TrueValue, nil
	}}

	values["say"] = &tengo.UserFunction{Name: "say", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("%w: say needs a line", ErrBadCall)
		}
		line := objectAsString(args[0])
		if line == "" {
			return tengo.FalseValue, nil
		}
		*plan = append(*plan, action{kind: actionSay, name: line})
		return tengo.TrueValue, nil
	}}

	return &tengo.ImmutableMap{Value: values}
}

// steps converts a recorded plan into chain steps. Consecutive lines are
// played as one dialog.
func (r *Routines) steps(enc signal.Encounter, plan []action) []sequence.Step {
	var out []sequence.Step
	actor := enc.OpponentID()

	for i := 0; i < len(plan); i++ {
		a := plan[i]
		switch a.kind {
		case actionCue:
			cue := signal.Cue{Name: a.name, Actor: actor}
			out = append(out, sequence.Emit("cue-"+a.name, func() {
				signal.Dispatch(r.bus, signal.CutsceneCue, cue)
			}))
		case actionWait:
			out = append(out, sequence.WaitFrames(a.frames))
		case actionApproach:
			out = append(out, sequence.Await("approach-"+actor, func() sequence.Completion {
				if r.approach == nil {
					return sequence.Completed()
				}
				return r.approach.Approach(actor)
			}))
		case actionSay:
			lines := []string{a.name}
			for i+1 < len(plan) && plan[i+1].kind == actionSay {
				i++
				lines = append(lines, plan[i].name)
			}
			content := signal.NewDialogContent(actor, lines...)
			out = append(out, sequence.Await("say", func() sequence.Completion {
				if r.speaker == nil {
					return sequence.Completed()
				}
				return r.speaker.Play(content)
			}))
		}
	}
	return out
}

func objectAsString(obj tengo.Object) string {
	if obj == nil {
		return ""
	}
	switch v := obj.(type) {
	case *tengo.String:
		return v.Value
	default:
		return strings.Trim(v.String(), "\"")
	}
}
