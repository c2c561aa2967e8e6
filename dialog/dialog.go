package dialog

import (
	"errors"

	"github.com/milk9111/ravar/input"
	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/sequence"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

var (
	ErrBusy     = errors.New("dialog: a sequence is already showing")
	ErrEmpty    = errors.New("dialog: no lines")
	ErrCanceled = errors.New("dialog: canceled")
)

// Clock reports the session time elapsed during the current frame.
type Clock interface {
	Delta() float64
}

type sequenceState struct {
	content signal.DialogContent
	line    int
	shown   float64
	typing  bool

	// inline sequences resolve op instead of announcing DialogClosed
	inline bool
	op     *sequence.Op
}

func (s *sequenceState) runes() []rune {
	return []rune(s.content.Lines[s.line])
}

// View is what the dialog box should currently display.
type View struct {
	Active  bool
	Speaker string
	Text    string
	Line    int
	Lines   int
	Typing  bool
}

// Driver types out dialog lines and pages through them on confirm.
type Driver struct {
	bus   *signal.Bus
	group *signal.Group
	input input.State
	clock Clock
	log   logrus.FieldLogger

	lettersPerSecond float64
	active           *sequenceState
}

func NewDriver(bus *signal.Bus, in input.State, clock Clock, lettersPerSecond float64, log logrus.FieldLogger) *Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Driver{
		bus:   bus,
		group: signal.NewGroup(bus),
		input: in,
		clock: clock,
		log:   log.WithField("component", "dialog"),
	}
	d.SetSpeed(lettersPerSecond)

	signal.On(d.group, signal.DialogShow, func(c signal.DialogContent) {
		if err := d.BeginSequence(c); err != nil {
			d.log.WithError(err).WithField("speaker", c.Speaker).Warn("dialog show ignored")
		}
	})
	signal.On(d.group, phase.Changed, func(c phase.Change) {
		if c.To == phase.Menu {
			d.Cancel()
		}
	})
	return d
}

func (d *Driver) Close() {
	d.group.Release()
	d.Cancel()
}

// SetSpeed changes how many letters are typed per second. Zero or less
// shows whole lines at once.
func (d *Driver) SetSpeed(lettersPerSecond float64) {
	d.lettersPerSecond = lettersPerSecond
}

// BeginSequence shows content and emits DialogClosed once the last line is
// dismissed.
func (d *Driver) BeginSequence(content signal.DialogContent) error {
	return d.begin(content, false, nil)
}

// Play shows content as part of a cutscene. The returned completion resolves
// when the last line is dismissed; DialogClosed is not emitted.
func (d *Driver) Play(content signal.DialogContent) sequence.Completion {
	op := sequence.NewOp()
	if err := d.begin(content, true, op); err != nil {
		return sequence.Failed(err)
	}
	return op
}

func (d *Driver) begin(content signal.DialogContent, inline bool, op *sequence.Op) error {
	if content.Empty() {
		return ErrEmpty
	}
	if d.active != nil {
		return ErrBusy
	}
	d.active = &sequenceState{
		content: signal.NewDialogContent(content.Speaker, content.Lines...),
		inline:  inline,
		op:      op,
	}
	d.startLine(0)
	d.log.WithFields(logrus.Fields{"speaker": content.Speaker, "lines": len(content.Lines), "inline": inline}).Debug("dialog started")
	return nil
}

func (d *Driver) startLine(i int) {
	s := d.active
	s.line = i
	s.shown = 0
	s.typing = true
	if d.lettersPerSecond <= 0 || len(s.runes()) == 0 {
		s.shown = float64(len(s.runes()))
		s.typing = false
	}
}

// Tick types letters and handles confirm. It runs while Dialog or Cutscene
// is the current phase.
func (d *Driver) Tick() {
	s := d.active
	if s == nil {
		return
	}

	if s.typing {
		s.shown += d.lettersPerSecond * d.delta()
		if n := len(s.runes()); s.shown >= float64(n) {
			s.shown = float64(n)
			s.typing = false
		}
		// confirm is ignored until the whole line is out
		return
	}

	if !d.input.Current().Confirm {
		return
	}
	if s.line+1 < len(s.content.Lines) {
		d.startLine(s.line + 1)
		return
	}
	d.finish()
}

func (d *Driver) delta() float64 {
	if d.clock == nil {
		return 0
	}
	return d.clock.Delta()
}

func (d *Driver) finish() {
	s := d.active
	d.active = nil
	d.log.WithField("speaker", s.content.Speaker).Debug("dialog finished")
	if s.inline {
		s.op.Resolve()
		return
	}
	signal.Dispatch(d.bus, signal.DialogClosed, s.content.Speaker)
}

// Cancel drops the current sequence without announcing it.
func (d *Driver) Cancel() {
	s := d.active
	if s == nil {
		return
	}
	d.active = nil
	if s.inline {
		s.op.Fail(ErrCanceled)
	}
}

func (d *Driver) Active() bool {
	return d.active != nil
}

func (d *Driver) View() View {
	s := d.active
	if s == nil {
		return View{}
	}
	r := s.runes()
	return View{
		Active:  true,
		Speaker: s.content.Speaker,
		Text:    string(r[:int(s.shown)]),
		Line:    s.line,
		Lines:   len(s.content.Lines),
		Typing:  s.typing,
	}
}
