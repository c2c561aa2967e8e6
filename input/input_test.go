package input

import "testing"

func TestDirectionDropsDiagonals(t *testing.T) {
	cases := []struct {
		name   string
		snap   Snapshot
		dx, dy int
	}{
		{"none", Snapshot{}, 0, 0},
		{"left", Snapshot{MoveX: -1}, -1, 0},
		{"down", Snapshot{MoveY: 1}, 0, 1},
		{"diagonal_prefers_horizontal", Snapshot{MoveX: 1, MoveY: -1}, 1, 0},
		{"clamped", Snapshot{MoveY: -3}, 0, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dx, dy := c.snap.Direction()
			if dx != c.dx || dy != c.dy {
				t.Fatalf("expected %d,%d got %d,%d", c.dx, c.dy, dx, dy)
			}
		})
	}
}

func TestScriptReplaysThenGoesQuiet(t *testing.T) {
	s := NewScript(Snapshot{Confirm: true})
	s.Push(Hold(Snapshot{MoveX: 1}, 2)...)

	if !s.Poll().Confirm {
		t.Fatalf("expected confirm first")
	}
	for i := 0; i < 2; i++ {
		if s.Poll().MoveX != 1 {
			t.Fatalf("expected held move on frame %d", i)
		}
	}
	if s.Len() != 0 || s.Poll() != (Snapshot{}) {
		t.Fatalf("expected empty input after script")
	}

	var f Frame
	f.Set(Snapshot{Pause: true})
	if !f.Current().Pause {
		t.Fatalf("frame should hold the last snapshot")
	}
}
