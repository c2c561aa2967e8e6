package sequence

// Completion reports the outcome of an external operation a chain is waiting
// on, e.g. an overlay that is still streaming in.
type Completion interface {
	Done() bool
	Err() error
}

// Op is a Completion resolved by whoever owns the operation.
type Op struct {
	done bool
	err  error
}

func NewOp() *Op {
	return &Op{}
}

// Completed returns an already finished operation.
func Completed() *Op {
	return &Op{done: true}
}

// Failed returns an operation that already failed with err.
func Failed(err error) *Op {
	return &Op{done: true, err: err}
}

func (o *Op) Resolve() {
	if o == nil || o.done {
		return
	}
	o.done = true
}

func (o *Op) Fail(err error) {
	if o == nil || o.done {
		return
	}
	o.done = true
	o.err = err
}

func (o *Op) Done() bool {
	return o == nil || o.done
}

func (o *Op) Err() error {
	if o == nil {
		return nil
	}
	return o.err
}

type StepKind int

const (
	StepDo StepKind = iota
	StepEmit
	StepAwait
	StepWait
)

func (k StepKind) String() string {
	switch k {
	case StepDo:
		return "do"
	case StepEmit:
		return "emit"
	case StepAwait:
		return "await"
	case StepWait:
		return "wait"
	default:
		return "unknown"
	}
}

type Step struct {
	Name   string
	Kind   StepKind
	action func()
	start  func() Completion
	frames int
}

// Do runs fn and moves straight on to the next step.
func Do(name string, fn func()) Step {
	return Step{Name: name, Kind: StepDo, action: fn}
}

// Emit is a Do whose purpose is to dispatch a signal. Canceling a chain skips
// any Emit that has not run yet.
func Emit(name string, fn func()) Step {
	return Step{Name: name, Kind: StepEmit, action: fn}
}

// Await starts an operation and suspends until its completion reports done.
// A nil completion counts as already done.
func Await(name string, start func() Completion) Step {
	return Step{Name: name, Kind: StepAwait, start: start}
}

// WaitFrames suspends for n frame boundaries.
func WaitFrames(n int) Step {
	if n < 1 {
		n = 1
	}
	return Step{Name: "wait-frames", Kind: StepWait, frames: n}
}

// Chain is an ordered list of steps realizing one logical transition.
type Chain struct {
	Key   string
	Steps []Step

	// Scaled chains follow session time: they do not advance while the
	// runner is held.
	Scaled bool

	OnDone   func()
	OnFail   func(err error)
	OnCancel func()
}
