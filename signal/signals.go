package signal

// Session control.
var (
	PauseRequested        = NewKind[bool]("PauseRequested")
	QuitRequested         = NewKind[bool]("QuitRequested")
	SessionStartRequested = NewKind[bool]("SessionStartRequested")
)

// Scene boundaries.
var (
	PortalEntered = NewKind[bool]("PortalEntered")
	PortalExited  = NewKind[bool]("PortalExited")
	SceneLoaded   = NewKind[SceneEvent]("SceneLoaded")
	SceneUnloaded = NewKind[SceneEvent]("SceneUnloaded")
)

// Dialog.
var (
	DialogOpenRequested = NewKind[DialogContent]("DialogOpenRequested")
	DialogShow          = NewKind[DialogContent]("DialogShow")
	DialogClosed        = NewKind[string]("DialogClosed")
)

// Encounters and battles.
var (
	EncounterDetected = NewKind[Encounter]("EncounterDetected")
	BattleStarted     = NewKind[Encounter]("BattleStarted")
	BattleEnded       = NewKind[BattleResult]("BattleEnded")
	RespawnRequested  = NewKind[Respawn]("RespawnRequested")
	CutsceneCue       = NewKind[Cue]("CutsceneCue")
)

// DialogContent is an ordered run of lines spoken by one speaker.
type DialogContent struct {
	Speaker string
	Lines   []string
}

// NewDialogContent copies lines so the payload cannot be changed after it is
// dispatched.
func NewDialogContent(speaker string, lines ...string) DialogContent {
	return DialogContent{Speaker: speaker, Lines: append([]string(nil), lines...)}
}

func (d DialogContent) Empty() bool {
	return len(d.Lines) == 0
}

type SceneScope int

const (
	ScopeWorld SceneScope = iota
	ScopeOverlay
	ScopeMenu
)

func (s SceneScope) String() string {
	switch s {
	case ScopeWorld:
		return "world"
	case ScopeOverlay:
		return "overlay"
	case ScopeMenu:
		return "menu"
	default:
		return "unknown"
	}
}

type SceneEvent struct {
	Name  string
	Scope SceneScope
}

type EncounterSource int

const (
	SourceWild EncounterSource = iota
	SourceScripted
)

func (s EncounterSource) String() string {
	if s == SourceScripted {
		return "scripted"
	}
	return "wild"
}

// Opponent is the part of a scripted actor the session is allowed to touch.
type Opponent interface {
	ID() string
	Alive() bool
	MarkDefeated()
}

// Monster describes a single combatant by species and level.
type Monster struct {
	Species string
	Level   int
}

// Encounter pairs a triggering context with an opponent. It is created once
// by the detector and never mutated afterwards.
type Encounter struct {
	Source  EncounterSource
	Area    string
	Trigger string

	// Wild is set for SourceWild.
	Wild Monster

	// Opponent, Party, Routine and Lines are set for SourceScripted.
	Opponent Opponent
	Party    []Monster
	Routine  string
	Lines    []string
}

func (e Encounter) OpponentID() string {
	if e.Opponent == nil {
		return ""
	}
	return e.Opponent.ID()
}

type Outcome int

const (
	OutcomeWon Outcome = iota + 1
	OutcomeLost
	OutcomeFled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	case OutcomeFled:
		return "fled"
	default:
		return "invalid"
	}
}

type BattleResult struct {
	Outcome Outcome
	Source  EncounterSource
}

type Respawn struct {
	Reason string
}

// Cue is a cosmetic cutscene beat (an exclamation mark over an actor, a
// camera shake) aimed at presentation code.
type Cue struct {
	Name  string
	Actor string
}
