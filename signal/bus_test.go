package signal

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDispatchOrder(t *testing.T) {
	b := NewBus(quietLogger())
	kind := NewKind[int]("test.order")

	var got []string
	Subscribe(b, kind, func(v int) { got = append(got, "a") })
	Subscribe(b, kind, func(v int) { got = append(got, "b") })
	Subscribe(b, kind, func(v int) { got = append(got, "c") })

	Dispatch(b, kind, 1)

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("expected a,b,c got %v", got)
	}
}

func TestCountsByName(t *testing.T) {
	b := NewBus(quietLogger())
	kind := NewKind[int]("test.counts")
	Subscribe(b, kind, func(int) {})
	h := Subscribe(b, kind, func(int) {})
	if got := b.Counts()["test.counts"]; got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}
	b.Unsubscribe(h)
	if got := Subscribers(b, kind); got != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", got)
	}
}

func TestDispatchWithoutSubscribers(t *testing.T) {
	b := NewBus(quietLogger())
	kind := NewKind[string]("test.none")
	Dispatch(b, kind, "nobody listens")
	if Subscribers(b, kind) != 0 {
		t.Fatalf("expected zero subscribers")
	}
}

func TestReentrantDispatchIsDepthFirst(t *testing.T) {
	b := NewBus(quietLogger())
	outer := NewKind[int]("test.outer")
	inner := NewKind[int]("test.inner")

	var got []string
	Subscribe(b, outer, func(int) {
		got = append(got, "outer1")
		Dispatch(b, inner, 0)
	})
	Subscribe(b, outer, func(int) { got = append(got, "outer2") })
	Subscribe(b, inner, func(int) { got = append(got, "inner") })

	Dispatch(b, outer, 0)

	want := []string{"outer1", "inner", "outer2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v got %v", want, got)
		}
	}
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	cases := []struct {
		name      string
		firstRun  int
		secondRun int
	}{
		{"later_handler_still_runs_in_progress", 2, 1},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := NewBus(quietLogger())
			kind := NewKind[int]("test.unsub")

			calls := 0
			var second Handle
			Subscribe(b, kind, func(int) {
				calls++
				b.Unsubscribe(second)
			})
			second = Subscribe(b, kind, func(int) { calls++ })

			Dispatch(b, kind, 0)
			if calls != c.firstRun {
				t.Fatalf("first dispatch: expected %d calls, got %d", c.firstRun, calls)
			}

			calls = 0
			Dispatch(b, kind, 0)
			if calls != c.secondRun {
				t.Fatalf("second dispatch: expected %d calls, got %d", c.secondRun, calls)
			}
		})
	}
}

func TestSubscribeDuringDispatchNotCalledInSameFanOut(t *testing.T) {
	b := NewBus(quietLogger())
	kind := NewKind[int]("test.subscribe_late")

	late := 0
	Subscribe(b, kind, func(int) {
		Subscribe(b, kind, func(int) { late++ })
	})

	Dispatch(b, kind, 0)
	if late != 0 {
		t.Fatalf("handler added mid-dispatch should not run, ran %d", late)
	}
	Dispatch(b, kind, 0)
	if late != 1 {
		t.Fatalf("expected late handler once on next dispatch, got %d", late)
	}
}

func TestCloseAndGroup(t *testing.T) {
	t.Run("group_release", func(t *testing.T) {
		b := NewBus(quietLogger())
		kind := NewKind[bool]("test.group")
		g := NewGroup(b)

		hits := 0
		On(g, kind, func(bool) { hits++ })
		On(g, kind, func(bool) { hits++ })
		if g.Len() != 2 {
			t.Fatalf("expected 2 handles, got %d", g.Len())
		}

		Dispatch(b, kind, true)
		g.Release()
		g.Release()
		Dispatch(b, kind, true)

		if hits != 2 {
			t.Fatalf("expected 2 hits before release only, got %d", hits)
		}
	})

	t.Run("closed_bus", func(t *testing.T) {
		b := NewBus(quietLogger())
		kind := NewKind[bool]("test.closed")

		hits := 0
		Subscribe(b, kind, func(bool) { hits++ })
		b.Close()
		Dispatch(b, kind, true)

		if hits != 0 {
			t.Fatalf("closed bus should not dispatch")
		}
		if h := Subscribe(b, kind, func(bool) {}); h.Valid() {
			t.Fatalf("subscribe on closed bus should return inert handle")
		}
	})
}

func TestDialogContentCopiesLines(t *testing.T) {
	lines := []string{"hello", "bye"}
	d := NewDialogContent("npc", lines...)
	lines[0] = "mutated"
	if d.Lines[0] != "hello" {
		t.Fatalf("payload should not alias caller slice")
	}
}
