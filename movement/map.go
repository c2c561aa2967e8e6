package movement

import (
	"github.com/jakecoffman/cp"
	"github.com/milk9111/ravar/scene"
)

// Collision categories, one per kind of static shape on the map.
const (
	layerSolid uint = 1 << iota
	layerTrigger
	layerActor
	layerPortal
)

type triggerRef struct {
	Kind  string
	Area  string
	Scene string
}

type portalRef struct {
	Portal scene.Portal
	Scene  string
}

type bounds struct {
	x, y, w, h int
	name       string
	area       string
}

// Map is the walkable world assembled from every loaded world scene. Tiles
// become static chipmunk boxes, one category per layer, and lookups are
// point queries against the space.
type Map struct {
	space  *cp.Space
	tile   float64
	scenes []bounds
	spawn  scene.Point
	actors map[*cp.Shape]Actor
}

// Actor is anything standing on a tile that blocks movement and can be
// talked to.
type Actor interface {
	ActorID() string
	Position() (x, y int)
}

func BuildMap(manifests []scene.Manifest, tileSize float64) *Map {
	if tileSize <= 0 {
		tileSize = 1
	}
	m := &Map{
		space:  cp.NewSpace(),
		tile:   tileSize,
		actors: make(map[*cp.Shape]Actor),
	}

	for i, man := range manifests {
		ox, oy := man.Origin.X, man.Origin.Y
		m.scenes = append(m.scenes, bounds{x: ox, y: oy, w: man.Width(), h: man.Height(), name: man.Name, area: man.Area})
		if i == 0 {
			m.spawn = scene.Point{X: ox + man.Spawn.X, Y: oy + man.Spawn.Y}
		}

		for y, row := range man.Tiles {
			for x, r := range row {
				gx, gy := ox+x, oy+y
				if r == scene.TileSolid {
					m.addTile(gx, gy, layerSolid, nil)
					continue
				}
				if kind := scene.TriggerKind(r); kind != "" {
					m.addTile(gx, gy, layerTrigger, triggerRef{Kind: kind, Area: man.Area, Scene: man.Name})
				}
			}
		}
		for _, p := range man.Portals {
			m.addTile(ox+p.X, oy+p.Y, layerPortal, portalRef{Portal: p, Scene: man.Name})
		}
	}
	return m
}

func (m *Map) box(x, y int) cp.BB {
	l := float64(x) * m.tile
	t := float64(y) * m.tile
	return cp.BB{L: l, B: t, R: l + m.tile, T: t + m.tile}
}

func (m *Map) center(x, y int) cp.Vector {
	return cp.Vector{X: (float64(x) + 0.5) * m.tile, Y: (float64(y) + 0.5) * m.tile}
}

func (m *Map) addTile(x, y int, layer uint, data any) *cp.Shape {
	shape := cp.NewBox2(m.space.StaticBody, m.box(x, y), 0)
	shape.SetFilter(cp.ShapeFilter{Group: cp.NO_GROUP, Categories: layer, Mask: cp.ALL_CATEGORIES})
	shape.UserData = data
	m.space.AddShape(shape)
	return shape
}

func (m *Map) query(x, y int, layer uint) *cp.Shape {
	filter := cp.ShapeFilter{Group: cp.NO_GROUP, Categories: cp.ALL_CATEGORIES, Mask: layer}
	info := m.space.PointQueryNearest(m.center(x, y), 0, filter)
	if info == nil {
		return nil
	}
	return info.Shape
}

// PlaceActor registers a on its current tile.
func (m *Map) PlaceActor(a Actor) {
	x, y := a.Position()
	shape := m.addTile(x, y, layerActor, a)
	m.actors[shape] = a
}

// MoveActor re-registers a after it changed tiles.
func (m *Map) MoveActor(a Actor) {
	for shape, other := range m.actors {
		if other.ActorID() == a.ActorID() {
			m.space.RemoveShape(shape)
			delete(m.actors, shape)
			break
		}
	}
	m.PlaceActor(a)
}

func (m *Map) inside(x, y int) (bounds, bool) {
	for _, b := range m.scenes {
		if x >= b.x && y >= b.y && x < b.x+b.w && y < b.y+b.h {
			return b, true
		}
	}
	return bounds{}, false
}

// Walkable reports whether a tile is part of a loaded scene and free of
// walls and actors.
func (m *Map) Walkable(x, y int) bool {
	if m == nil {
		return false
	}
	if _, ok := m.inside(x, y); !ok {
		return false
	}
	return m.query(x, y, layerSolid|layerActor) == nil
}

// TriggerAt returns the encounter trigger on a tile.
func (m *Map) TriggerAt(x, y int) (kind, area string, ok bool) {
	if m == nil {
		return "", "", false
	}
	shape := m.query(x, y, layerTrigger)
	if shape == nil {
		return "", "", false
	}
	ref := shape.UserData.(triggerRef)
	return ref.Kind, ref.Area, true
}

func (m *Map) PortalAt(x, y int) (scene.Portal, string, bool) {
	if m == nil {
		return scene.Portal{}, "", false
	}
	shape := m.query(x, y, layerPortal)
	if shape == nil {
		return scene.Portal{}, "", false
	}
	ref := shape.UserData.(portalRef)
	return ref.Portal, ref.Scene, true
}

func (m *Map) ActorAt(x, y int) (Actor, bool) {
	if m == nil {
		return nil, false
	}
	shape := m.query(x, y, layerActor)
	if shape == nil {
		return nil, false
	}
	a, ok := m.actors[shape]
	return a, ok
}

// Clear reports whether no wall lies on the straight line between two tile
// centers.
func (m *Map) Clear(ax, ay, bx, by int) bool {
	if m == nil {
		return false
	}
	filter := cp.ShapeFilter{Group: cp.NO_GROUP, Categories: cp.ALL_CATEGORIES, Mask: layerSolid}
	info := m.space.SegmentQueryFirst(m.center(ax, ay), m.center(bx, by), 0, filter)
	return info.Shape == nil
}

// SceneAt returns the name and area of the scene covering a tile.
func (m *Map) SceneAt(x, y int) (name, area string, ok bool) {
	if m == nil {
		return "", "", false
	}
	b, ok := m.inside(x, y)
	return b.name, b.area, ok
}

// Spawn is the spawn point of the first scene the map was built from.
func (m *Map) Spawn() (x, y int, ok bool) {
	if m == nil || len(m.scenes) == 0 {
		return 0, 0, false
	}
	return m.spawn.X, m.spawn.Y, true
}

func (m *Map) Empty() bool {
	return m == nil || len(m.scenes) == 0
}
