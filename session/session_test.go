package session

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/milk9111/ravar/config"
	"github.com/milk9111/ravar/content"
	"github.com/milk9111/ravar/input"
	"github.com/milk9111/ravar/logger"
	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/signal"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	return logger.Discard()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Debug = true
	cfg.StartInMenu = true
	cfg.Movement.TilesPerSecond = 120
	cfg.Encounters.Thresholds = map[string]int{"grass": 100, "cave": 100}
	cfg.Battle.PlayerPower = 50
	cfg.Battle.RoundFrames = 2
	return cfg
}

func newSession(t *testing.T) (*Session, *input.Script) {
	t.Helper()
	script := input.NewScript()
	s := New(Options{
		Config: testConfig(t),
		Input:  script,
		Rand:   rand.New(rand.NewSource(11)),
		Log:    quietLogger(),
	})
	t.Cleanup(s.Close)
	return s, script
}

// runUntil steps the session until cond holds or limit frames have passed.
func runUntil(t *testing.T, s *Session, limit int, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < limit; i++ {
		if cond() {
			return
		}
		s.Update()
	}
	if !cond() {
		t.Fatalf("%s not reached after %d frames (phase %v)", what, limit, s.Phase().Current())
	}
}

func inPhase(s *Session, p phase.Phase) func() bool {
	return func() bool { return s.Phase().Current() == p }
}

func startWorld(t *testing.T, s *Session, script *input.Script) {
	t.Helper()
	runUntil(t, s, 10, "main menu loaded", func() bool { return s.Streamer().Loaded("main_menu") })
	script.Push(input.Snapshot{Confirm: true})
	runUntil(t, s, 30, "world", inPhase(s, phase.World))
	if !s.Streamer().Loaded("town") || !s.Streamer().Loaded("route1") || s.Streamer().Loaded("main_menu") {
		t.Fatalf("unexpected scenes after start: %+v", s.Streamer().Snapshot())
	}
}

func TestFrameClock(t *testing.T) {
	c := NewFrameClock(50)
	c.Advance()
	if c.Now() != 20*time.Millisecond || c.Delta() != 0.02 {
		t.Fatalf("unexpected clock %v %v", c.Now(), c.Delta())
	}
	c.Freeze()
	c.Advance()
	if c.Now() != 20*time.Millisecond || c.Delta() != 0 || c.Paused() != 20*time.Millisecond {
		t.Fatalf("frozen clock advanced: %v", c.Now())
	}
	c.Unfreeze()
	c.Advance()
	if c.Now() != 40*time.Millisecond {
		t.Fatalf("expected clock to resume, got %v", c.Now())
	}
}

func TestMenuStartPauseQuitExit(t *testing.T) {
	s, script := newSession(t)
	if s.Phase().Current() != phase.Menu {
		t.Fatalf("expected to start in menu")
	}
	startWorld(t, s, script)

	script.Push(input.Snapshot{Pause: true})
	s.Update()
	if s.Phase().Current() != phase.Pause || !s.Clock().Frozen() {
		t.Fatalf("expected frozen pause, got %v", s.Phase().Current())
	}
	runUntil(t, s, 10, "pause overlay", func() bool { return s.Streamer().Loaded("pause") })

	script.Push(input.Snapshot{Pause: true})
	s.Update()
	if s.Phase().Current() != phase.World || s.Clock().Frozen() {
		t.Fatalf("expected world after resume, got %v", s.Phase().Current())
	}
	runUntil(t, s, 10, "pause overlay unloaded", func() bool { return !s.Streamer().Loaded("pause") })

	script.Push(input.Snapshot{Quit: true})
	s.Update()
	if s.Phase().Current() != phase.Menu || s.Phase().Previous() != phase.Menu {
		t.Fatalf("expected menu with empty restoration stack")
	}
	runUntil(t, s, 20, "main menu after quit", func() bool {
		return s.Streamer().Loaded("main_menu") && !s.Streamer().Loaded("town")
	})
	if s.ExitRequested() {
		t.Fatalf("quit from the world must not exit")
	}

	script.Push(input.Snapshot{Quit: true})
	s.Update()
	if !s.ExitRequested() {
		t.Fatalf("quit on the main menu should exit")
	}
}

func TestWildEncounterThroughBattle(t *testing.T) {
	s, script := newSession(t)

	var ended []signal.BattleResult
	var cues []signal.Cue
	signal.Subscribe(s.Bus(), signal.BattleEnded, func(r signal.BattleResult) { ended = append(ended, r) })
	signal.Subscribe(s.Bus(), signal.CutsceneCue, func(c signal.Cue) { cues = append(cues, c) })

	startWorld(t, s, script)
	if p := s.Movement().Player(); p.X != 2 || p.Y != 2 {
		t.Fatalf("expected player at town spawn, got %d,%d", p.X, p.Y)
	}

	// up one row, then east into the grass of route1
	script.Push(input.Hold(input.Snapshot{MoveY: -1}, 2)...)
	script.Push(input.Hold(input.Snapshot{MoveX: 1}, 40)...)
	runUntil(t, s, 60, "encounter cutscene", inPhase(s, phase.Cutscene))

	enc, ok := s.Phase().Encounter()
	if !ok || enc.Source != signal.SourceWild || enc.Area != "route1" {
		t.Fatalf("expected wild route1 encounter, got %+v %v", enc, ok)
	}
	if len(cues) != 1 || cues[0].Name != "flash" {
		t.Fatalf("expected flash cue, got %+v", cues)
	}

	// pausing holds the intro routine
	script.Push(input.Snapshot{Pause: true})
	s.Update()
	for i := 0; i < 2*s.Config().Encounters.WildIntroFrames; i++ {
		s.Update()
	}
	if s.Phase().Current() != phase.Pause || s.Phase().Previous() != phase.Cutscene {
		t.Fatalf("expected pause over cutscene, got %v/%v", s.Phase().Current(), s.Phase().Previous())
	}
	script.Push(input.Snapshot{Pause: true})
	s.Update()
	if s.Phase().Current() != phase.Cutscene {
		t.Fatalf("expected cutscene after resume, got %v", s.Phase().Current())
	}

	runUntil(t, s, 60, "battle", inPhase(s, phase.Battle))
	if !s.Battle().Active() {
		t.Fatalf("battle driver should be fighting")
	}
	runUntil(t, s, 200, "world after battle", inPhase(s, phase.World))
	if len(ended) != 1 || ended[0].Outcome != signal.OutcomeWon {
		t.Fatalf("expected one won battle, got %+v", ended)
	}
	if _, ok := s.Phase().Encounter(); ok {
		t.Fatalf("encounter should be cleared")
	}
}

func wildEncounter(species string) signal.Encounter {
	return signal.Encounter{
		Source:  signal.SourceWild,
		Area:    "route1",
		Trigger: "grass",
		Wild:    signal.Monster{Species: species, Level: 2},
		Routine: "wild",
	}
}

func TestQuitFromPausedBattleResetsFight(t *testing.T) {
	s, script := newSession(t)
	startWorld(t, s, script)

	signal.Dispatch(s.Bus(), signal.EncounterDetected, wildEncounter("rat"))
	runUntil(t, s, 100, "first battle", inPhase(s, phase.Battle))

	script.Push(input.Snapshot{Pause: true})
	s.Update()
	if s.Phase().Current() != phase.Pause {
		t.Fatalf("expected pause over battle, got %v", s.Phase().Current())
	}
	script.Push(input.Snapshot{Quit: true})
	s.Update()
	if s.Phase().Current() != phase.Menu {
		t.Fatalf("expected menu after quit, got %v", s.Phase().Current())
	}
	if s.Battle().Active() || s.Battle().View().Active {
		t.Fatalf("quitting must drop the paused fight")
	}

	runUntil(t, s, 20, "main menu after quit", func() bool { return s.Streamer().Loaded("main_menu") })
	startWorld(t, s, script)
	signal.Dispatch(s.Bus(), signal.EncounterDetected, wildEncounter("bat"))
	runUntil(t, s, 100, "second battle", inPhase(s, phase.Battle))
	if v := s.Battle().View(); !v.Active || v.Opponent.Species != "bat" {
		t.Fatalf("expected a fresh fight against bat, got %+v", v)
	}
}

func TestBattleWithoutPartyReturnsToWorld(t *testing.T) {
	s, script := newSession(t)
	var ended []signal.BattleResult
	signal.Subscribe(s.Bus(), signal.BattleEnded, func(r signal.BattleResult) { ended = append(ended, r) })

	startWorld(t, s, script)
	s.Battle().SetParty(nil)
	signal.Dispatch(s.Bus(), signal.EncounterDetected, wildEncounter("rat"))
	runUntil(t, s, 100, "world after failed battle start", func() bool {
		return len(ended) > 0 && s.Phase().Current() == phase.World
	})
	if len(ended) != 1 || ended[0].Outcome != signal.OutcomeFled || ended[0].Source != signal.SourceWild {
		t.Fatalf("expected one fled wild battle, got %+v", ended)
	}
	if s.Battle().Active() {
		t.Fatalf("no fight should be running")
	}
}

func TestSnapshotAndReload(t *testing.T) {
	s, script := newSession(t)
	startWorld(t, s, script)

	snap := s.Snapshot()
	if snap.Phase != "world" || snap.Previous != "menu" || snap.Frame != s.Frames() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Scenes) != 2 {
		t.Fatalf("expected two world scenes, got %+v", snap.Scenes)
	}
	if snap.Subscribers["BattleStarted"] != 2 {
		t.Fatalf("expected orchestrator and battle on BattleStarted, got %v", snap.Subscribers)
	}

	src, err := content.FS.ReadFile(config.DefaultFile)
	if err != nil {
		t.Fatalf("read embedded config: %v", err)
	}
	dir := t.TempDir()
	edited := strings.Replace(string(src), "letters_per_second: 30", "letters_per_second: 90", 1)
	if err := os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte(edited), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := content.Dir
	content.Dir = dir
	t.Cleanup(func() { content.Dir = old })

	s.Reload([]string{config.DefaultFile, "scenes/town.yaml", "scripts/wild.tengo"})
	if s.Config().Dialog.LettersPerSecond != 90 {
		t.Fatalf("expected reloaded dialog speed, got %v", s.Config().Dialog.LettersPerSecond)
	}
	if s.Phase().Current() != phase.World {
		t.Fatalf("reload must not change the phase")
	}
}
