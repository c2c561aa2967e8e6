package battle

import (
	"errors"
	"math/rand"

	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

var (
	ErrBusy    = errors.New("battle: already fighting")
	ErrNoParty = errors.New("battle: empty party")
)

type Settings struct {
	PlayerPower   int
	OpponentPower int
	RoundFrames   int
	MaxRounds     int
}

// Fighter is a monster with hit points for the length of one battle.
type Fighter struct {
	Species string
	Level   int
	HP      int
	MaxHP   int
}

func newFighter(m signal.Monster) Fighter {
	hp := 10 + 2*m.Level
	return Fighter{Species: m.Species, Level: m.Level, HP: hp, MaxHP: hp}
}

func fighters(party []signal.Monster) []Fighter {
	out := make([]Fighter, 0, len(party))
	for _, m := range party {
		out = append(out, newFighter(m))
	}
	return out
}

type fight struct {
	source   signal.EncounterSource
	player   []Fighter
	opponent []Fighter
	round    int
	frames   int
}

// View is the state a battle screen draws.
type View struct {
	Active   bool
	Source   string
	Round    int
	Player   Fighter
	Opponent Fighter
	Left     int
}

// Driver resolves a battle in rounds, one every RoundFrames frames, and
// reports the outcome with BattleEnded.
type Driver struct {
	bus      *signal.Bus
	group    *signal.Group
	reader   phase.Reader
	rng      *rand.Rand
	log      logrus.FieldLogger
	settings Settings
	party    []signal.Monster
	fight    *fight
}

func NewDriver(bus *signal.Bus, reader phase.Reader, rng *rand.Rand, settings Settings, log logrus.FieldLogger) *Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	d := &Driver{
		bus:    bus,
		group:  signal.NewGroup(bus),
		reader: reader,
		rng:    rng,
		log:    log.WithField("component", "battle"),
	}
	d.SetSettings(settings)

	signal.On(d.group, signal.BattleStarted, d.onBattleStarted)
	signal.On(d.group, phase.Changed, d.onPhaseChanged)
	return d
}

func (d *Driver) Close() {
	d.group.Release()
	d.fight = nil
}

func (d *Driver) SetSettings(s Settings) {
	if s.RoundFrames <= 0 {
		s.RoundFrames = 1
	}
	if s.MaxRounds <= 0 {
		s.MaxRounds = 10
	}
	d.settings = s
}

// SetParty sets the player's party used by battles started from signals.
func (d *Driver) SetParty(party []signal.Monster) {
	d.party = append([]signal.Monster(nil), party...)
}

func (d *Driver) onBattleStarted(enc signal.Encounter) {
	if d.reader != nil && d.reader.Current() != phase.Battle {
		d.log.WithField("phase", d.reader.Current().String()).Debug("battle start ignored outside battle phase")
		return
	}
	var err error
	if enc.Source == signal.SourceScripted {
		err = d.StartScripted(d.party, enc.Party)
	} else {
		err = d.StartWild(d.party, enc.Wild)
	}
	if err == nil {
		return
	}
	d.log.WithError(err).WithField("source", enc.Source.String()).Error("battle could not start")
	if errors.Is(err, ErrBusy) {
		// the running fight reports its own end
		return
	}
	signal.Dispatch(d.bus, signal.BattleEnded, signal.BattleResult{Outcome: signal.OutcomeFled, Source: enc.Source})
}

func (d *Driver) onPhaseChanged(c phase.Change) {
	if d.fight == nil {
		return
	}
	if c.To != phase.Menu && (c.From != phase.Battle || c.To == phase.Pause) {
		return
	}
	d.log.WithFields(logrus.Fields{"from": c.From.String(), "to": c.To.String()}).Info("battle abandoned")
	d.fight = nil
}

func (d *Driver) StartWild(party []signal.Monster, opponent signal.Monster) error {
	return d.start(signal.SourceWild, party, []signal.Monster{opponent})
}

func (d *Driver) StartScripted(party, opponentParty []signal.Monster) error {
	return d.start(signal.SourceScripted, party, opponentParty)
}

func (d *Driver) start(source signal.EncounterSource, party, opponents []signal.Monster) error {
	if d.fight != nil {
		return ErrBusy
	}
	if len(party) == 0 || len(opponents) == 0 {
		return ErrNoParty
	}
	d.fight = &fight{
		source:   source,
		player:   fighters(party),
		opponent: fighters(opponents),
	}
	d.log.WithFields(logrus.Fields{
		"source":    source.String(),
		"player":    party[0].Species,
		"opponent":  opponents[0].Species,
		"opponents": len(opponents),
	}).Info("battle started")
	return nil
}

// Tick runs while Battle is the current phase.
func (d *Driver) Tick() {
	f := d.fight
	if f == nil {
		return
	}
	f.frames++
	if f.frames < d.settings.RoundFrames {
		return
	}
	f.frames = 0
	f.round++

	d.hit(&f.opponent, f.player[0], d.settings.PlayerPower)
	if len(f.opponent) > 0 {
		d.hit(&f.player, f.opponent[0], d.settings.OpponentPower)
	}

	switch {
	case len(f.opponent) == 0:
		d.end(signal.OutcomeWon)
	case len(f.player) == 0:
		d.end(signal.OutcomeLost)
	case f.round >= d.settings.MaxRounds:
		d.end(signal.OutcomeFled)
	}
}

// hit damages the lead of side and drops it once it faints.
func (d *Driver) hit(side *[]Fighter, attacker Fighter, power int) {
	target := &(*side)[0]
	dmg := power + attacker.Level/2 + d.rng.Intn(3)
	target.HP -= dmg
	if target.HP > 0 {
		return
	}
	target.HP = 0
	d.log.WithField("species", target.Species).Debug("fainted")
	*side = (*side)[1:]
}

func (d *Driver) end(outcome signal.Outcome) {
	f := d.fight
	d.fight = nil
	d.log.WithFields(logrus.Fields{"outcome": outcome.String(), "rounds": f.round}).Info("battle ended")
	signal.Dispatch(d.bus, signal.BattleEnded, signal.BattleResult{Outcome: outcome, Source: f.source})
}

func (d *Driver) Active() bool {
	return d.fight != nil
}

func (d *Driver) View() View {
	f := d.fight
	if f == nil {
		return View{}
	}
	return View{
		Active:   true,
		Source:   f.source.String(),
		Round:    f.round,
		Player:   f.player[0],
		Opponent: f.opponent[0],
		Left:     len(f.opponent),
	}
}
