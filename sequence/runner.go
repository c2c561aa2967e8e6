package sequence

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	ErrChainInFlight = errors.New("sequence: chain already in flight")
	ErrNoKey         = errors.New("sequence: chain has no key")
)

type State int

const (
	StateRunning State = iota
	StateWaiting
	StateDone
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateDone:
		return "done"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) finished() bool {
	return s == StateDone || s == StateCanceled || s == StateFailed
}

type run struct {
	chain Chain
	index int
	state State
	err   error

	pending  Completion
	waitLeft int
	started  bool

	// frames spent on the current step, for stall reporting
	waited int
	warned bool
}

// Token is returned by Run and lets the owner cancel or inspect a chain.
type Token struct {
	r   *Runner
	run *run
}

func (t *Token) Key() string {
	if t == nil || t.run == nil {
		return ""
	}
	return t.run.chain.Key
}

func (t *Token) State() State {
	if t == nil || t.run == nil {
		return StateCanceled
	}
	return t.run.state
}

func (t *Token) Err() error {
	if t == nil || t.run == nil {
		return nil
	}
	return t.run.err
}

func (t *Token) Done() bool {
	return t.State().finished()
}

// Cancel aborts the remaining steps. Whatever already ran stays applied. It
// reports whether the chain was still outstanding.
func (t *Token) Cancel() bool {
	if t == nil || t.r == nil || t.run == nil {
		return false
	}
	return t.r.cancel(t.run)
}

// Info describes one outstanding chain.
type Info struct {
	Key    string
	State  State
	Step   int
	Steps  int
	Name   string
	Kind   StepKind
	Waited int
}

// Runner drives chains cooperatively. It never blocks: a chain that waits on
// something returns control and is resumed by the next Tick.
type Runner struct {
	runs   []*run
	byKey  map[string]*run
	strict bool
	held   bool
	log    logrus.FieldLogger
}

// NewRunner creates a runner. In strict mode starting a chain whose key is
// still in flight panics instead of returning ErrChainInFlight.
func NewRunner(log logrus.FieldLogger, strict bool) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		byKey:  make(map[string]*run),
		strict: strict,
		log:    log.WithField("component", "sequence"),
	}
}

func (r *Runner) Strict() bool {
	return r != nil && r.strict
}

// Run starts c and executes it until its first suspension point.
func (r *Runner) Run(c Chain) (*Token, error) {
	if r == nil {
		return nil, fmt.Errorf("sequence: run %q: nil runner", c.Key)
	}
	if c.Key == "" {
		return nil, ErrNoKey
	}
	if _, busy := r.byKey[c.Key]; busy {
		if r.strict {
			panic(fmt.Sprintf("sequence: chain %q started while already in flight", c.Key))
		}
		r.log.WithField("chain", c.Key).Error("chain already in flight, ignoring new request")
		return nil, fmt.Errorf("sequence: run %q: %w", c.Key, ErrChainInFlight)
	}

	rn := &run{chain: c, state: StateRunning}
	r.runs = append(r.runs, rn)
	r.byKey[c.Key] = rn
	r.log.WithFields(logrus.Fields{"chain": c.Key, "steps": len(c.Steps)}).Debug("chain started")

	r.advance(rn, false)
	r.prune()
	return &Token{r: r, run: rn}, nil
}

// Tick resumes every outstanding chain once. Chains started while ticking are
// not resumed until the next Tick.
func (r *Runner) Tick() {
	if r == nil {
		return
	}
	current := append([]*run(nil), r.runs...)
	for _, rn := range current {
		if rn.state.finished() {
			continue
		}
		if r.held && rn.chain.Scaled {
			continue
		}
		r.advance(rn, true)
	}
	r.prune()
}

// Hold stops or restarts scaled chains. Unscaled chains always advance.
func (r *Runner) Hold(held bool) {
	if r == nil {
		return
	}
	r.held = held
}

func (r *Runner) Held() bool {
	return r != nil && r.held
}

func (r *Runner) advance(rn *run, frameBoundary bool) {
	for rn.index < len(rn.chain.Steps) {
		if rn.state.finished() {
			return
		}
		step := rn.chain.Steps[rn.index]

		switch step.Kind {
		case StepDo, StepEmit:
			if step.action != nil {
				step.action()
			}
			if rn.state.finished() {
				// the action canceled its own chain
				return
			}
			r.nextStep(rn)

		case StepAwait:
			if rn.pending == nil && !rn.started {
				rn.started = true
				if step.start != nil {
					rn.pending = step.start()
				}
				frameBoundary = false
			}
			if rn.state.finished() {
				return
			}
			if rn.pending != nil && !rn.pending.Done() {
				r.suspend(rn, frameBoundary)
				return
			}
			if rn.pending != nil {
				if err := rn.pending.Err(); err != nil {
					r.fail(rn, step, err)
					return
				}
			}
			r.nextStep(rn)

		case StepWait:
			if !rn.started {
				rn.started = true
				rn.waitLeft = step.frames
				frameBoundary = false
			} else if frameBoundary {
				rn.waitLeft--
				frameBoundary = false
			}
			if rn.waitLeft > 0 {
				// deliberate waits never count toward stall reporting
				r.suspend(rn, false)
				return
			}
			r.nextStep(rn)
		}
	}

	rn.state = StateDone
	delete(r.byKey, rn.chain.Key)
	r.log.WithField("chain", rn.chain.Key).Debug("chain done")
	if rn.chain.OnDone != nil {
		rn.chain.OnDone()
	}
}

func (r *Runner) nextStep(rn *run) {
	rn.index++
	rn.pending = nil
	rn.started = false
	rn.waitLeft = 0
	rn.waited = 0
	rn.warned = false
	rn.state = StateRunning
}

func (r *Runner) suspend(rn *run, counted bool) {
	if rn.state == StateWaiting && counted {
		rn.waited++
	}
	rn.state = StateWaiting
}

func (r *Runner) fail(rn *run, step Step, err error) {
	rn.state = StateFailed
	rn.err = fmt.Errorf("sequence: chain %q step %q: %w", rn.chain.Key, step.Name, err)
	delete(r.byKey, rn.chain.Key)
	r.log.WithFields(logrus.Fields{"chain": rn.chain.Key, "step": step.Name}).WithError(err).Warn("chain failed")
	if rn.chain.OnFail != nil {
		rn.chain.OnFail(rn.err)
	}
}

func (r *Runner) cancel(rn *run) bool {
	if rn.state.finished() {
		return false
	}
	rn.state = StateCanceled
	if cur, ok := r.byKey[rn.chain.Key]; ok && cur == rn {
		delete(r.byKey, rn.chain.Key)
	}
	r.log.WithFields(logrus.Fields{"chain": rn.chain.Key, "step": rn.index}).Debug("chain canceled")
	if rn.chain.OnCancel != nil {
		rn.chain.OnCancel()
	}
	return true
}

func (r *Runner) prune() {
	kept := r.runs[:0]
	for _, rn := range r.runs {
		if !rn.state.finished() {
			kept = append(kept, rn)
		}
	}
	for i := len(kept); i < len(r.runs); i++ {
		r.runs[i] = nil
	}
	r.runs = kept
}

// InFlight reports whether a chain with key is outstanding.
func (r *Runner) InFlight(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byKey[key]
	return ok
}

// Cancel cancels the outstanding chain with key, if any.
func (r *Runner) Cancel(key string) bool {
	if r == nil {
		return false
	}
	rn, ok := r.byKey[key]
	if !ok {
		return false
	}
	return r.cancel(rn)
}

// CancelAll cancels every outstanding chain and returns how many there were.
func (r *Runner) CancelAll() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, rn := range append([]*run(nil), r.runs...) {
		if r.cancel(rn) {
			n++
		}
	}
	r.prune()
	return n
}

func (r *Runner) Len() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, rn := range r.runs {
		if !rn.state.finished() {
			n++
		}
	}
	return n
}

// Snapshot lists outstanding chains in start order.
func (r *Runner) Snapshot() []Info {
	if r == nil {
		return nil
	}
	out := make([]Info, 0, len(r.runs))
	for _, rn := range r.runs {
		if rn.state.finished() {
			continue
		}
		info := Info{
			Key:    rn.chain.Key,
			State:  rn.state,
			Step:   rn.index,
			Steps:  len(rn.chain.Steps),
			Waited: rn.waited,
		}
		if rn.index < len(rn.chain.Steps) {
			info.Name = rn.chain.Steps[rn.index].Name
			info.Kind = rn.chain.Steps[rn.index].Kind
		}
		out = append(out, info)
	}
	return out
}

// Stalled returns chains that have waited on one step for at least threshold
// frames and have not been reported yet for that step. Nothing is canceled.
func (r *Runner) Stalled(threshold int) []Info {
	if r == nil || threshold <= 0 {
		return nil
	}
	var out []Info
	for _, rn := range r.runs {
		if rn.state != StateWaiting || rn.warned || rn.waited < threshold {
			continue
		}
		rn.warned = true
		step := rn.chain.Steps[rn.index]
		out = append(out, Info{
			Key:    rn.chain.Key,
			State:  rn.state,
			Step:   rn.index,
			Steps:  len(rn.chain.Steps),
			Name:   step.Name,
			Kind:   step.Kind,
			Waited: rn.waited,
		})
	}
	return out
}
