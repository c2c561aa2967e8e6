package dialog

import (
	"errors"
	"io"
	"testing"

	"github.com/milk9111/ravar/input"
	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixedClock float64

func (c fixedClock) Delta() float64 { return float64(c) }

func newDriver(t *testing.T, lettersPerSecond float64) (*Driver, *signal.Bus, *input.Frame) {
	t.Helper()
	bus := signal.NewBus(quietLogger())
	frame := &input.Frame{}
	// one letter per tick at 2 letters per second
	d := NewDriver(bus, frame, fixedClock(0.5), lettersPerSecond, quietLogger())
	t.Cleanup(d.Close)
	return d, bus, frame
}

func TestTypewriter(t *testing.T) {
	d, _, frame := newDriver(t, 2)
	if err := d.BeginSequence(signal.NewDialogContent("elder", "abc", "de")); err != nil {
		t.Fatalf("begin: %v", err)
	}

	frame.Set(input.Snapshot{Confirm: true})
	want := []string{"a", "ab", "abc"}
	for i, w := range want {
		d.Tick()
		v := d.View()
		if v.Text != w {
			t.Fatalf("tick %d: expected %q, got %q", i, w, v.Text)
		}
		if v.Line != 0 {
			t.Fatalf("confirm while typing must not advance, on line %d", v.Line)
		}
	}
	if d.View().Typing {
		t.Fatalf("line should be fully typed")
	}

	d.Tick()
	if v := d.View(); v.Line != 1 || v.Text != "" || !v.Typing {
		t.Fatalf("expected second line to start typing, got %+v", v)
	}
}

func TestSequenceEndEmitsClosed(t *testing.T) {
	cases := []struct {
		name  string
		speed float64
		lines []string
		ticks int
	}{
		{"instant_one_line", 0, []string{"hello"}, 1},
		{"instant_two_lines", 0, []string{"hello", "bye"}, 2},
		{"typed", 2, []string{"hi"}, 3},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, bus, frame := newDriver(t, c.speed)
			var closed []string
			signal.Subscribe(bus, signal.DialogClosed, func(s string) { closed = append(closed, s) })

			signal.Dispatch(bus, signal.DialogShow, signal.NewDialogContent("elder", c.lines...))
			if !d.Active() {
				t.Fatalf("DialogShow should begin a sequence")
			}

			frame.Set(input.Snapshot{Confirm: true})
			for i := 0; i < c.ticks-1; i++ {
				d.Tick()
				if len(closed) != 0 {
					t.Fatalf("closed early after %d ticks", i+1)
				}
			}
			d.Tick()
			if len(closed) != 1 || closed[0] != "elder" {
				t.Fatalf("expected one DialogClosed(elder), got %v", closed)
			}
			if d.Active() {
				t.Fatalf("driver should be idle after close")
			}
		})
	}
}

func TestPlayResolvesWithoutClosed(t *testing.T) {
	d, bus, frame := newDriver(t, 0)
	closed := 0
	signal.Subscribe(bus, signal.DialogClosed, func(string) { closed++ })

	op := d.Play(signal.NewDialogContent("hiker", "Halt!"))
	if op.Done() {
		t.Fatalf("play should wait for confirm")
	}
	if err := d.BeginSequence(signal.NewDialogContent("elder", "later")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	d.Tick()
	if op.Done() {
		t.Fatalf("no confirm yet")
	}
	frame.Set(input.Snapshot{Confirm: true})
	d.Tick()
	if !op.Done() || op.Err() != nil {
		t.Fatalf("expected play resolved, err=%v", op.Err())
	}
	if closed != 0 {
		t.Fatalf("inline dialog must not emit DialogClosed")
	}
}

func TestPlayErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		d, _, _ := newDriver(t, 0)
		if op := d.Play(signal.DialogContent{Speaker: "x"}); !errors.Is(op.Err(), ErrEmpty) {
			t.Fatalf("expected ErrEmpty, got %v", op.Err())
		}
	})

	t.Run("canceled_by_menu", func(t *testing.T) {
		d, bus, _ := newDriver(t, 0)
		op := d.Play(signal.NewDialogContent("hiker", "Halt!"))
		signal.Dispatch(bus, phase.Changed, phase.Change{From: phase.Cutscene, To: phase.Menu})
		if !errors.Is(op.Err(), ErrCanceled) || d.Active() {
			t.Fatalf("expected canceled play, got %v", op.Err())
		}
	})
}
