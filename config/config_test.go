package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/milk9111/ravar/content"
)

func useContentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := content.Dir
	content.Dir = dir
	t.Cleanup(func() { content.Dir = prev })
	return dir
}

func env(values map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}
}

func TestLoadEmbeddedSession(t *testing.T) {
	useContentDir(t)
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Overlays.Pause != "pause" || cfg.Overlays.MainMenu != "main_menu" {
		t.Fatalf("unexpected overlays %+v", cfg.Overlays)
	}
	if cfg.Encounters.Threshold("grass") != 7 {
		t.Fatalf("expected grass threshold 7, got %d", cfg.Encounters.Threshold("grass"))
	}
	if cfg.Encounters.Threshold("lava") != 0 {
		t.Fatalf("unknown trigger kinds should never roll")
	}
	if len(cfg.World.InitialScenes) == 0 || len(cfg.Areas["route1"]) == 0 {
		t.Fatalf("expected world scenes and route1 monsters")
	}
}

func TestLoadDiskOverrideAndDefaults(t *testing.T) {
	dir := useContentDir(t)
	data := `
overlays: {pause: p, dialog: d, main_menu: m}
world: {initial_scenes: [town]}
battle: {player_power: 1, opponent_power: 1}
`
	if err := os.WriteFile(filepath.Join(dir, "session.yaml"), []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FrameRate != 60 || cfg.StallWarnFrames != 300 {
		t.Fatalf("expected defaults, got frame_rate=%d stall=%d", cfg.FrameRate, cfg.StallWarnFrames)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("expected env overrides, got %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Encounters.Threshold("grass") != 7 {
		t.Fatalf("expected default grass threshold")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	err := cfg.ApplyEnv(env(map[string]string{"RAVAR_DEBUG": "true", "RAVAR_INSPECT_ADDR": ":7070"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !cfg.Debug || cfg.Inspect.Addr != ":7070" {
		t.Fatalf("unexpected %+v", cfg)
	}

	if err := cfg.ApplyEnv(env(map[string]string{"RAVAR_DEBUG": "sometimes"})); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{
			Overlays: Overlays{Pause: "pause", Dialog: "dialog", MainMenu: "main_menu"},
			World:    World{InitialScenes: []string{"town"}, Party: []Monster{{Species: "sproutling", Level: 5}}},
			Battle:   Battle{PlayerPower: 1, OpponentPower: 1},
			Areas:    map[string][]AreaMonster{"route1": {{Species: "nibbler", Level: 2, Weight: 1}}},
		}
		c.applyDefaults()
		return c
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(c *Config) {}, ""},
		{"threshold_range", func(c *Config) { c.Encounters.Thresholds["grass"] = 101 }, "grass"},
		{"negative_threshold", func(c *Config) { c.Encounters.Thresholds["cave"] = -1 }, "cave"},
		{"missing_overlay", func(c *Config) { c.Overlays.Dialog = "" }, "overlays"},
		{"frame_rate", func(c *Config) { c.FrameRate = -1 }, "frame_rate"},
		{"no_scenes", func(c *Config) { c.World.InitialScenes = nil }, "initial_scenes"},
		{"empty_party", func(c *Config) { c.World.Party = nil }, "world.party"},
		{"levelless_party_member", func(c *Config) { c.World.Party[0].Level = 0 }, "world.party"},
		{"weightless_area", func(c *Config) { c.Areas["route1"][0].Weight = 0 }, "route1"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := valid()
			c.mutate(&cfg)
			err := cfg.Validate()
			if c.want == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected %q in %v", c.want, err)
			}
		})
	}
}
