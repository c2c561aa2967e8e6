package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/milk9111/ravar/content"
)

const DefaultFile = "session.yaml"

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Debug           bool   `yaml:"debug"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	FrameRate       int    `yaml:"frame_rate"`
	StallWarnFrames int    `yaml:"stall_warn_frames"`
	StartInMenu     bool   `yaml:"start_in_menu"`
	Seed            int64  `yaml:"seed"`

	Overlays   Overlays                 `yaml:"overlays"`
	World      World                    `yaml:"world"`
	Encounters Encounters               `yaml:"encounters"`
	Areas      map[string][]AreaMonster `yaml:"areas"`
	Movement   Movement                 `yaml:"movement"`
	Dialog     Dialog                   `yaml:"dialog"`
	Battle     Battle                   `yaml:"battle"`
	Inspect    Inspect                  `yaml:"inspect"`
}

type Overlays struct {
	Pause    string `yaml:"pause"`
	Dialog   string `yaml:"dialog"`
	MainMenu string `yaml:"main_menu"`
}

type Monster struct {
	Species string `yaml:"species"`
	Level   int    `yaml:"level"`
}

type World struct {
	InitialScenes []string  `yaml:"initial_scenes"`
	Party         []Monster `yaml:"party"`
}

type Encounters struct {
	// Thresholds maps a trigger kind to the chance, out of 100, that a step
	// onto it starts an encounter.
	Thresholds      map[string]int `yaml:"thresholds"`
	WildIntroFrames int            `yaml:"wild_intro_frames"`
	WildRoutine     string         `yaml:"wild_routine"`
}

// Threshold returns the roll threshold for kind, 0 when unknown.
func (e Encounters) Threshold(kind string) int {
	return e.Thresholds[kind]
}

type AreaMonster struct {
	Species string `yaml:"species"`
	Level   int    `yaml:"level"`
	Weight  int    `yaml:"weight"`
}

type Movement struct {
	TilesPerSecond float64 `yaml:"tiles_per_second"`
	TileSize       int     `yaml:"tile_size"`
	ApproachFrames int     `yaml:"approach_frames"`
}

type Dialog struct {
	LettersPerSecond float64 `yaml:"letters_per_second"`
}

type Battle struct {
	PlayerPower   int `yaml:"player_power"`
	OpponentPower int `yaml:"opponent_power"`
	RoundFrames   int `yaml:"round_frames"`
	MaxRounds     int `yaml:"max_rounds"`
}

type Inspect struct {
	Addr         string `yaml:"addr"`
	PublishEvery int    `yaml:"publish_every"`
}

// Load reads DefaultFile, applies environment overrides and validates.
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

func LoadFile(name string) (*Config, error) {
	cfg, err := content.LoadSpec[Config](name)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.FrameRate == 0 {
		c.FrameRate = 60
	}
	if c.StallWarnFrames == 0 {
		c.StallWarnFrames = 5 * c.FrameRate
	}
	if c.Encounters.Thresholds == nil {
		c.Encounters.Thresholds = map[string]int{"grass": 7}
	}
	if c.Encounters.WildRoutine == "" {
		c.Encounters.WildRoutine = "wild"
	}
	if c.Movement.TilesPerSecond == 0 {
		c.Movement.TilesPerSecond = 4
	}
	if c.Movement.TileSize == 0 {
		c.Movement.TileSize = 16
	}
	if c.Dialog.LettersPerSecond == 0 {
		c.Dialog.LettersPerSecond = 30
	}
	if c.Battle.RoundFrames == 0 {
		c.Battle.RoundFrames = 20
	}
	if c.Battle.MaxRounds == 0 {
		c.Battle.MaxRounds = 10
	}
	if c.Inspect.PublishEvery == 0 {
		c.Inspect.PublishEvery = 30
	}
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.LogFormat = strings.ToLower(v)
	}
	if v, ok := lookup("RAVAR_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: RAVAR_DEBUG %q: %w", v, err)
		}
		c.Debug = b
	}
	if v, ok := lookup("RAVAR_INSPECT_ADDR"); ok {
		c.Inspect.Addr = v
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.FrameRate <= 0 {
		add("frame_rate must be positive, got %d", c.FrameRate)
	}
	if c.StallWarnFrames < 0 {
		add("stall_warn_frames must not be negative, got %d", c.StallWarnFrames)
	}
	if c.Overlays.Pause == "" || c.Overlays.Dialog == "" || c.Overlays.MainMenu == "" {
		add("overlays.pause, overlays.dialog and overlays.main_menu are required")
	}
	if len(c.World.InitialScenes) == 0 {
		add("world.initial_scenes needs at least one scene")
	}
	if len(c.World.Party) == 0 {
		add("world.party needs at least one monster")
	}
	for _, m := range c.World.Party {
		if m.Species == "" || m.Level <= 0 {
			add("world.party has an invalid monster %+v", m)
		}
	}
	for kind, v := range c.Encounters.Thresholds {
		if v < 0 || v > 100 {
			add("encounters.thresholds.%s must be in 0..100, got %d", kind, v)
		}
	}
	if c.Encounters.WildIntroFrames < 0 {
		add("encounters.wild_intro_frames must not be negative")
	}
	for area, monsters := range c.Areas {
		total := 0
		for _, m := range monsters {
			if m.Species == "" || m.Level <= 0 || m.Weight < 0 {
				add("areas.%s has an invalid monster %+v", area, m)
			}
			total += m.Weight
		}
		if total <= 0 {
			add("areas.%s has no weight", area)
		}
	}
	if c.Movement.TilesPerSecond <= 0 {
		add("movement.tiles_per_second must be positive")
	}
	if c.Dialog.LettersPerSecond <= 0 {
		add("dialog.letters_per_second must be positive")
	}
	if c.Battle.PlayerPower <= 0 || c.Battle.OpponentPower <= 0 {
		add("battle powers must be positive")
	}

	return errors.Join(errs...)
}
