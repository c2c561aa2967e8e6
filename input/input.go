package input

// Snapshot is the input for one frame. Move values are held directions in
// -1..1; the rest are edge triggered.
type Snapshot struct {
	MoveX   int
	MoveY   int
	Confirm bool
	Pause   bool
	Quit    bool
}

// Direction returns the held direction with diagonals removed. Horizontal
// input wins.
func (s Snapshot) Direction() (dx, dy int) {
	if s.MoveX != 0 {
		return sign(s.MoveX), 0
	}
	return 0, sign(s.MoveY)
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Source produces one snapshot per frame.
type Source interface {
	Poll() Snapshot
}

// State gives drivers read access to the snapshot of the current frame.
type State interface {
	Current() Snapshot
}

// Frame holds the snapshot polled for the current frame.
type Frame struct {
	snap Snapshot
}

func (f *Frame) Set(s Snapshot) {
	f.snap = s
}

func (f *Frame) Current() Snapshot {
	if f == nil {
		return Snapshot{}
	}
	return f.snap
}

// Script replays a fixed list of snapshots, then reports no input.
type Script struct {
	frames []Snapshot
}

func NewScript(frames ...Snapshot) *Script {
	return &Script{frames: append([]Snapshot(nil), frames...)}
}

func (s *Script) Push(frames ...Snapshot) {
	s.frames = append(s.frames, frames...)
}

func (s *Script) Poll() Snapshot {
	if len(s.frames) == 0 {
		return Snapshot{}
	}
	next := s.frames[0]
	s.frames = s.frames[1:]
	return next
}

func (s *Script) Len() int {
	return len(s.frames)
}

// Hold repeats snap for n frames.
func Hold(snap Snapshot, n int) []Snapshot {
	out := make([]Snapshot, n)
	for i := range out {
		out[i] = snap
	}
	return out
}
