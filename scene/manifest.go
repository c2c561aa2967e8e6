package scene

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/milk9111/ravar/content"
	"github.com/milk9111/ravar/signal"
)

var (
	ErrUnknownScene = errors.New("scene: unknown scene")
	ErrManifest     = errors.New("scene: bad manifest")
	ErrNotLoaded    = errors.New("scene: not loaded")
	ErrSuperseded   = errors.New("scene: superseded")
)

// Tile legend.
const (
	TileSolid = '#'
	TileFloor = '.'
	TileGrass = ','
	TileCave  = ':'
)

// TriggerKind returns the encounter trigger kind of a tile, or "" if stepping
// on it never rolls.
func TriggerKind(tile rune) string {
	switch tile {
	case TileGrass:
		return "grass"
	case TileCave:
		return "cave"
	default:
		return ""
	}
}

type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type Monster struct {
	Species string `yaml:"species"`
	Level   int    `yaml:"level"`
}

type NPC struct {
	ID    string   `yaml:"id"`
	X     int      `yaml:"x"`
	Y     int      `yaml:"y"`
	Lines []string `yaml:"lines"`
}

// Battler is a scripted opponent that challenges the player on sight.
type Battler struct {
	ID      string    `yaml:"id"`
	X       int       `yaml:"x"`
	Y       int       `yaml:"y"`
	Facing  string    `yaml:"facing"`
	Sight   int       `yaml:"sight"`
	Routine string    `yaml:"routine"`
	Lines   []string  `yaml:"lines"`
	Party   []Monster `yaml:"party"`
}

// Portal swaps the loaded world scenes for To. Arrive is in world tiles.
type Portal struct {
	X      int      `yaml:"x"`
	Y      int      `yaml:"y"`
	To     []string `yaml:"to"`
	Arrive Point    `yaml:"arrive"`
}

// Manifest describes one streamable scene. Entity coordinates are local to
// the scene; Origin places the scene in world tile space.
type Manifest struct {
	Name         string    `yaml:"name"`
	Scope        string    `yaml:"scope"`
	Area         string    `yaml:"area"`
	Origin       Point     `yaml:"origin"`
	LoadFrames   int       `yaml:"load_frames"`
	UnloadFrames int       `yaml:"unload_frames"`
	Spawn        Point     `yaml:"spawn"`
	Tiles        []string  `yaml:"tiles"`
	NPCs         []NPC     `yaml:"npcs"`
	Battlers     []Battler `yaml:"battlers"`
	Portals      []Portal  `yaml:"portals"`
}

func (m Manifest) SceneScope() signal.SceneScope {
	switch m.Scope {
	case "overlay":
		return signal.ScopeOverlay
	case "menu":
		return signal.ScopeMenu
	default:
		return signal.ScopeWorld
	}
}

func (m Manifest) Width() int {
	if len(m.Tiles) == 0 {
		return 0
	}
	return len(m.Tiles[0])
}

func (m Manifest) Height() int {
	return len(m.Tiles)
}

// TileAt returns the tile at local coordinates, solid when out of bounds.
func (m Manifest) TileAt(x, y int) rune {
	if y < 0 || y >= len(m.Tiles) || x < 0 || x >= len(m.Tiles[y]) {
		return TileSolid
	}
	return rune(m.Tiles[y][x])
}

func (m Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", ErrManifest)
	}
	switch m.Scope {
	case "", "world", "overlay", "menu":
	default:
		return fmt.Errorf("%w: %s: unknown scope %q", ErrManifest, m.Name, m.Scope)
	}
	if m.LoadFrames < 0 || m.UnloadFrames < 0 {
		return fmt.Errorf("%w: %s: negative frame budget", ErrManifest, m.Name)
	}
	if m.SceneScope() != signal.ScopeWorld {
		return nil
	}

	w := m.Width()
	if w == 0 {
		return fmt.Errorf("%w: %s: world scene has no tiles", ErrManifest, m.Name)
	}
	for i, row := range m.Tiles {
		if len(row) != w {
			return fmt.Errorf("%w: %s: row %d has width %d, want %d", ErrManifest, m.Name, i, len(row), w)
		}
	}
	inside := func(x, y int) bool { return x >= 0 && y >= 0 && x < w && y < m.Height() }
	if !inside(m.Spawn.X, m.Spawn.Y) {
		return fmt.Errorf("%w: %s: spawn outside scene", ErrManifest, m.Name)
	}
	for _, n := range m.NPCs {
		if !inside(n.X, n.Y) {
			return fmt.Errorf("%w: %s: npc %s outside scene", ErrManifest, m.Name, n.ID)
		}
	}
	for _, b := range m.Battlers {
		if !inside(b.X, b.Y) {
			return fmt.Errorf("%w: %s: battler %s outside scene", ErrManifest, m.Name, b.ID)
		}
		if _, _, ok := Direction(b.Facing); !ok {
			return fmt.Errorf("%w: %s: battler %s faces %q", ErrManifest, m.Name, b.ID, b.Facing)
		}
		if len(b.Party) == 0 {
			return fmt.Errorf("%w: %s: battler %s has no party", ErrManifest, m.Name, b.ID)
		}
	}
	for _, p := range m.Portals {
		if !inside(p.X, p.Y) || len(p.To) == 0 {
			return fmt.Errorf("%w: %s: bad portal at %d,%d", ErrManifest, m.Name, p.X, p.Y)
		}
	}
	return nil
}

// Direction converts a facing name to a unit tile step.
func Direction(facing string) (dx, dy int, ok bool) {
	switch facing {
	case "left":
		return -1, 0, true
	case "right":
		return 1, 0, true
	case "up":
		return 0, -1, true
	case "down":
		return 0, 1, true
	default:
		return 0, 0, false
	}
}

// LoadManifest reads scenes/<name>.yaml through the content store.
func LoadManifest(name string) (Manifest, error) {
	m, err := content.LoadSpec[Manifest](fmt.Sprintf("scenes/%s.yaml", name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrUnknownScene, name)
		}
		return Manifest{}, fmt.Errorf("%w: %s: %v", ErrManifest, name, err)
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.Name != name {
		return Manifest{}, fmt.Errorf("%w: %s declares name %q", ErrManifest, name, m.Name)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// CheckAll loads every manifest under scenes/ and returns the names that
// loaded, plus every error found.
func CheckAll() ([]string, error) {
	files, err := content.List("scenes")
	if err != nil {
		return nil, err
	}
	var names []string
	var errs []error
	for _, f := range files {
		if path.Ext(f) != ".yaml" {
			continue
		}
		name := strings.TrimSuffix(f, ".yaml")
		if _, err := LoadManifest(name); err != nil {
			errs = append(errs, err)
			continue
		}
		names = append(names, name)
	}
	return names, errors.Join(errs...)
}
