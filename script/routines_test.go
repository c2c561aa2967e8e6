package script

import (
	"errors"
	"io"
	"testing"

	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type opponent string

func (o opponent) ID() string  { return string(o) }
func (o opponent) Alive() bool { return true }

func (o opponent) MarkDefeated() {}

type fakeApproacher struct {
	calls []string
	op    *sequence.Op
}

func (f *fakeApproacher) Approach(id string) sequence.Completion {
	f.calls = append(f.calls, id)
	return f.op
}

type fakeSpeaker struct {
	played []signal.DialogContent
	op     *sequence.Op
}

func (f *fakeSpeaker) Play(c signal.DialogContent) sequence.Completion {
	f.played = append(f.played, c)
	return f.op
}

func kinds(steps []sequence.Step) []sequence.StepKind {
	out := make([]sequence.StepKind, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Kind)
	}
	return out
}

func sameKinds(a, b []sequence.StepKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBundledRoutines(t *testing.T) {
	cases := []struct {
		name string
		enc  signal.Encounter
		want []sequence.StepKind
	}{
		{
			name: "wild",
			enc:  signal.Encounter{Source: signal.SourceWild, Area: "route1", Trigger: "grass", Wild: signal.Monster{Species: "nibbler", Level: 3}},
			want: []sequence.StepKind{sequence.StepEmit, sequence.StepWait},
		},
		{
			name: "hiker",
			enc: signal.Encounter{
				Source:   signal.SourceScripted,
				Opponent: opponent("hiker"),
				Routine:  "hiker",
				Lines:    []string{"Hey!", "Battle me."},
			},
			want: []sequence.StepKind{sequence.StepEmit, sequence.StepWait, sequence.StepAwait, sequence.StepAwait},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := NewRoutines(signal.NewBus(quietLogger()), nil, nil, Settings{WildRoutine: "wild", WildIntroFrames: 30}, quietLogger())
			steps, err := r.Routine(c.enc)
			if err != nil {
				t.Fatalf("routine: %v", err)
			}
			if got := kinds(steps); !sameKinds(got, c.want) {
				t.Fatalf("expected %v, got %v", c.want, got)
			}
		})
	}
}

func TestRoutineStepsDriveSubsystems(t *testing.T) {
	bus := signal.NewBus(quietLogger())
	approacher := &fakeApproacher{op: sequence.NewOp()}
	speaker := &fakeSpeaker{op: sequence.NewOp()}
	r := NewRoutines(bus, approacher, speaker, Settings{}, quietLogger())
	r.SetLoader(func(name string) ([]byte, error) {
		return []byte(`
trigger := func(engine, encounter) {
	engine.cue("exclaim")
	engine.wait(2)
	engine.approach()
	for line in encounter.lines {
		engine.say(line)
	}
	engine.cue("ready")
}
`), nil
	})

	var cues []signal.Cue
	signal.Subscribe(bus, signal.CutsceneCue, func(c signal.Cue) { cues = append(cues, c) })

	steps, err := r.Routine(signal.Encounter{
		Source:   signal.SourceScripted,
		Opponent: opponent("hiker"),
		Routine:  "test",
		Lines:    []string{"one", "two"},
	})
	if err != nil {
		t.Fatalf("routine: %v", err)
	}

	runner := sequence.NewRunner(quietLogger(), true)
	tok, err := runner.Run(sequence.Chain{Key: "encounter", Steps: steps})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(cues) != 1 || cues[0].Name != "exclaim" || cues[0].Actor != "hiker" {
		t.Fatalf("expected exclaim cue on hiker, got %+v", cues)
	}

	runner.Tick()
	runner.Tick()
	if len(approacher.calls) != 1 || approacher.calls[0] != "hiker" {
		t.Fatalf("expected approach after the wait, got %v", approacher.calls)
	}

	approacher.op.Resolve()
	runner.Tick()
	if len(speaker.played) != 1 {
		t.Fatalf("consecutive lines should play as one dialog, got %d", len(speaker.played))
	}
	if got := speaker.played[0]; got.Speaker != "hiker" || len(got.Lines) != 2 || got.Lines[1] != "two" {
		t.Fatalf("unexpected dialog %+v", got)
	}

	speaker.op.Resolve()
	runner.Tick()
	if !tok.Done() || len(cues) != 2 {
		t.Fatalf("expected chain done with the final cue, state=%v cues=%+v", tok.State(), cues)
	}
}

func TestRoutineErrors(t *testing.T) {
	missing := errors.New("missing")
	cases := []struct {
		name   string
		source string
		enc    signal.Encounter
		check  func(error) bool
	}{
		{
			name:   "approach_without_opponent",
			source: `trigger := func(engine, encounter) { engine.approach() }`,
			enc:    signal.Encounter{Source: signal.SourceWild, Routine: "x"},
			check:  func(err error) bool { return err != nil },
		},
		{
			name:   "no_trigger_defined",
			source: `x := 1`,
			enc:    signal.Encounter{Source: signal.SourceWild, Routine: "x"},
			check:  func(err error) bool { return err != nil },
		},
		{
			name:  "unknown_script",
			enc:   signal.Encounter{Source: signal.SourceWild, Routine: "nope"},
			check: func(err error) bool { return errors.Is(err, missing) },
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := NewRoutines(signal.NewBus(quietLogger()), nil, nil, Settings{}, quietLogger())
			r.SetLoader(func(name string) ([]byte, error) {
				if c.source == "" {
					return nil, missing
				}
				return []byte(c.source), nil
			})
			if _, err := r.Routine(c.enc); !c.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestNoRoutine(t *testing.T) {
	r := NewRoutines(signal.NewBus(quietLogger()), nil, nil, Settings{}, quietLogger())
	steps, err := r.Routine(signal.Encounter{Source: signal.SourceScripted, Opponent: opponent("x")})
	if err != nil || len(steps) != 0 {
		t.Fatalf("encounter without a routine should have no steps, got %v %v", steps, err)
	}
}

func TestInvalidateRecompiles(t *testing.T) {
	r := NewRoutines(signal.NewBus(quietLogger()), nil, nil, Settings{}, quietLogger())
	src := `trigger := func(engine, encounter) { engine.wait(1) }`
	loads := 0
	r.SetLoader(func(name string) ([]byte, error) {
		loads++
		return []byte(src), nil
	})
	enc := signal.Encounter{Source: signal.SourceWild, Routine: "w"}

	for i := 0; i < 2; i++ {
		if _, err := r.Routine(enc); err != nil {
			t.Fatalf("routine: %v", err)
		}
	}
	if loads != 1 {
		t.Fatalf("compiled script should be cached, loaded %d times", loads)
	}

	src = `trigger := func(engine, encounter) { engine.wait(1); engine.wait(2) }`
	r.Invalidate("w")
	steps, err := r.Routine(enc)
	if err != nil {
		t.Fatalf("routine: %v", err)
	}
	if loads != 2 || len(steps) != 2 {
		t.Fatalf("expected reload with two waits, loads=%d steps=%d", loads, len(steps))
	}
}
